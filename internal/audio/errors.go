package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrBackendUnavailable  = errors.New("capture backend unavailable")
	ErrFormatRejected      = errors.New("format rejected")
	ErrBackendProcess      = errors.New("capture backend process error")
	ErrUnexpectedExit      = errors.New("capture backend exited unexpectedly")
	ErrWriterIO            = wav.ErrIO
	ErrNotRunning          = errors.New("recording process is not running")
	ErrAlreadyRunning      = errors.New("recording process is already running")
	ErrUnsupported         = errors.New("capability not supported")
)

// ExitError describes a backend process that exited without being asked to,
// or whose output is missing after exit.
type ExitError struct {
	Backend string
	// Message is the last error the backend reported itself, if any
	Message string
	Code    int
	Signal  string
	Stderr  string
}

func (e *ExitError) Error() string {
	base := e.Message
	if base == "" {
		base = e.Backend + " process exited unexpectedly."
	}
	if d := e.Details(); d != "" {
		return base + " Details: " + d
	}
	return base
}

// Details renders code, signal and stderr tail
func (e *ExitError) Details() string {
	var parts []string
	if e.Code >= 0 {
		parts = append(parts, fmt.Sprintf("code %d", e.Code))
	}
	if e.Signal != "" {
		parts = append(parts, "signal "+e.Signal)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		parts = append(parts, "stderr: "+s)
	}
	return strings.Join(parts, ", ")
}

func (e *ExitError) Unwrap() error {
	return ErrUnexpectedExit
}

// checkFormat rejects anything but exactly want
func checkFormat(label string, want, got models.WavFormat) error {
	if err := got.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFormatRejected, label, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s records only %s, got %s", ErrFormatRejected, label, want, got)
	}
	return nil
}
