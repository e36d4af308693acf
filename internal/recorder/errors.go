package recorder

import (
	"errors"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
)

var (
	ErrAlreadyActive = errors.New("recording is already in progress")
	ErrNotActive     = errors.New("recording is not active")
	ErrClosed        = errors.New("recorder is closed")
	ErrNoUniqueName  = errors.New("failed to generate unique recording filename")
)

// Describe turns an error into a message for people rather than logs
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyActive):
		return "A recording is already in progress."
	case errors.Is(err, ErrNotActive):
		return "No recording is in progress."
	case errors.Is(err, audio.ErrUnsupportedPlatform):
		return "This capture method is not supported on this system."
	case errors.Is(err, audio.ErrBackendUnavailable):
		return "No recording device or capture helper is available."
	case errors.Is(err, audio.ErrFormatRejected):
		return "The capture backend cannot record in the requested format."
	case errors.Is(err, audio.ErrUnexpectedExit):
		return "The recording backend crashed."
	case errors.Is(err, audio.ErrWriterIO):
		return "The recording could not be written to disk."
	case errors.Is(err, audio.ErrBackendProcess):
		return "The recording backend failed."
	default:
		return err.Error()
	}
}
