// Package audio contains the capture adapters: one per platform mechanism,
// all driven through the same start/stop contract.
package audio

import (
	"context"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

// StartOptions describes one capture run
type StartOptions struct {
	OutputPath string
	Format     models.WavFormat
	DeviceID   string
}

// Events receives telemetry for the adapter's current run. Any field may be nil.
type Events struct {
	OnLevel    func(models.RecordingLevel)
	OnProgress func(models.RecordingProgress)
	OnError    func(error)
	// OnFormat fires when the backend confirms the format it is writing
	OnFormat func(models.WavFormat)
}

func (e Events) level(l models.RecordingLevel) {
	if e.OnLevel != nil {
		e.OnLevel(l)
	}
}

func (e Events) progress(p models.RecordingProgress) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}

func (e Events) fail(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

func (e Events) format(f models.WavFormat) {
	if e.OnFormat != nil {
		e.OnFormat(f)
	}
}

// Adapter turns one capture mechanism into the uniform start/stop contract.
//
// After Start returns nil the backend is capturing; after Stop returns, with
// or without an error, the adapter holds no process and can be started again.
type Adapter interface {
	ID() string
	Label() string
	Start(ctx context.Context, opts StartOptions, events Events) error
	Stop(ctx context.Context) (models.RecordingResult, error)
}

// AvailabilityChecker reports whether the backend can run on this host
type AvailabilityChecker interface {
	Available(ctx context.Context) bool
}

// DeviceLister enumerates capture devices
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]models.RecordingDevice, error)
}

// PermissionReporter reports the host capture permission
type PermissionReporter interface {
	PermissionStatus(ctx context.Context) models.PermissionStatus
}

// PreferencesOpener opens the host privacy settings for audio capture
type PreferencesOpener interface {
	OpenPreferences(ctx context.Context) error
}

// FormatProvider reports the format the backend produces natively
type FormatProvider interface {
	PreferredFormat() models.WavFormat
}

// IsAvailable returns true for adapters that do not report availability
func IsAvailable(ctx context.Context, a Adapter) bool {
	if c, ok := a.(AvailabilityChecker); ok {
		return c.Available(ctx)
	}
	return true
}

// ListDevices returns an empty list for adapters without device enumeration
func ListDevices(ctx context.Context, a Adapter) ([]models.RecordingDevice, error) {
	if l, ok := a.(DeviceLister); ok {
		return l.ListDevices(ctx)
	}
	return []models.RecordingDevice{}, nil
}

// PermissionStatus returns unknown for adapters without a permission concept
func PermissionStatus(ctx context.Context, a Adapter) models.PermissionStatus {
	if p, ok := a.(PermissionReporter); ok {
		return p.PermissionStatus(ctx)
	}
	return models.PermissionUnknown
}

// OpenPreferences returns ErrUnsupported when the adapter has no settings pane
func OpenPreferences(ctx context.Context, a Adapter) error {
	if p, ok := a.(PreferencesOpener); ok {
		return p.OpenPreferences(ctx)
	}
	return ErrUnsupported
}

// PreferredFormat returns the adapter's native format, or fallback
func PreferredFormat(a Adapter, fallback models.WavFormat) models.WavFormat {
	if p, ok := a.(FormatProvider); ok {
		return p.PreferredFormat()
	}
	return fallback
}
