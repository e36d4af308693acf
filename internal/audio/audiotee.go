package audio

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const (
	AudioTeeID     = "audiotee"
	AudioTeeBinary = "audiotee"
	AudioTeeEnv    = "AUDIOTEE_PATH"

	privacyScreenCaptureURL = "x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture"
)

// AudioTeeAdapter taps application audio on macOS 14.2+ through the
// audiotee binary, which streams mono s16le PCM to stdout
type AudioTeeAdapter struct {
	*StreamAdapter
	permission atomic.Value // models.PermissionStatus
}

// NewAudioTee returns the macOS application-audio adapter
func NewAudioTee(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) *AudioTeeAdapter {
	tee := cfg.AudioTee
	a := &AudioTeeAdapter{}
	a.permission.Store(models.PermissionUnknown)

	a.StreamAdapter = NewStreamAdapter(StreamPreset{
		ID:          AudioTeeID,
		Label:       "AudioTee",
		Locator:     NewLocator(AudioTeeBinary, cfg.HelperPath, AudioTeeEnv, cfg.Packaged),
		Platforms:   []string{"darwin"},
		StopSignal:  syscall.SIGTERM,
		CheckFormat: monoOnly,
		Args: func(opts StartOptions) []string {
			return audioTeeArgs(opts.Format, tee)
		},
		DecodeStderr: DecodeAudioTeeLine,
		HostCheck:    checkMacOSVersion,
		Timing:       timingFrom(cfg),
	}, tracker, logger)

	a.setErrorHook(func(msg string) {
		if isPermissionError(msg) {
			a.permission.Store(models.PermissionDenied)
		}
	})
	return a
}

func audioTeeArgs(format models.WavFormat, tee config.AudioTeeConfig) []string {
	args := []string{"--sample-rate", strconv.Itoa(format.SampleRateHz)}
	if tee.ChunkDuration > 0 {
		args = append(args, "--chunk-duration", strconv.FormatFloat(tee.ChunkDuration, 'f', -1, 64))
	}
	if tee.Mute {
		args = append(args, "--mute")
	}
	if len(tee.IncludeProcesses) > 0 {
		args = append(args, "--include-processes")
		for _, pid := range tee.IncludeProcesses {
			args = append(args, strconv.Itoa(pid))
		}
	}
	if len(tee.ExcludeProcesses) > 0 {
		args = append(args, "--exclude-processes")
		for _, pid := range tee.ExcludeProcesses {
			args = append(args, strconv.Itoa(pid))
		}
	}
	return args
}

func monoOnly(f models.WavFormat) error {
	if f.Channels != 1 {
		return fmt.Errorf("outputs mono audio only, got %d channels", f.Channels)
	}
	return nil
}

func isPermissionError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "permission") || strings.Contains(m, "not authorized") || strings.Contains(m, "tcc")
}

// Stop stops the tap; a run that captured audio proves permission was granted
func (a *AudioTeeAdapter) Stop(ctx context.Context) (models.RecordingResult, error) {
	result, err := a.StreamAdapter.Stop(ctx)
	if err == nil && result.BytesWritten != nil && *result.BytesWritten > 0 {
		a.permission.Store(models.PermissionGranted)
	}
	return result, err
}

// PermissionStatus reports what the last runs revealed about the
// System Audio Recording permission
func (a *AudioTeeAdapter) PermissionStatus(context.Context) models.PermissionStatus {
	if runtime.GOOS != "darwin" {
		return models.PermissionUnknown
	}
	return a.permission.Load().(models.PermissionStatus)
}

// OpenPreferences opens the privacy pane holding the System Audio Recording permission
func (a *AudioTeeAdapter) OpenPreferences(ctx context.Context) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("%w: privacy settings exist only on macOS", ErrUnsupportedPlatform)
	}
	if err := exec.CommandContext(ctx, "open", privacyScreenCaptureURL).Run(); err != nil {
		return fmt.Errorf("failed to open privacy settings: %w", err)
	}
	return nil
}

func checkMacOSVersion(ctx context.Context) error {
	_, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		// unknown versions are given the benefit of the doubt
		return nil
	}
	if !macOSAtLeast(version, 14, 2) {
		return fmt.Errorf("%w: AudioTee requires macOS 14.2+, found %s", ErrUnsupportedPlatform, version)
	}
	return nil
}

// macOSAtLeast compares a dotted version string against major.minor
func macOSAtLeast(version string, major, minor int) bool {
	parts := strings.Split(strings.TrimSpace(version), ".")
	maj, err := strconv.Atoi(parts[0])
	if err != nil {
		return true
	}
	if maj != major {
		return maj > major
	}
	if len(parts) < 2 {
		return minor == 0
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil {
		return true
	}
	return min >= minor
}
