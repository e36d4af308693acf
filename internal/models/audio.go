package models

import (
	"errors"
	"fmt"
)

// CodecPCMS16LE is the only codec written by the capture adapters
const CodecPCMS16LE = "pcm_s16le"

// WavFormat describes the PCM layout an adapter writes
type WavFormat struct {
	SampleRateHz int    `json:"sample_rate_hz" mapstructure:"sample_rate_hz"`
	Channels     int    `json:"channels" mapstructure:"channels"`
	BitDepth     int    `json:"bit_depth" mapstructure:"bit_depth"`
	Codec        string `json:"codec" mapstructure:"codec"`
}

// DefaultWavFormat is 16 kHz mono signed 16-bit PCM
var DefaultWavFormat = WavFormat{
	SampleRateHz: 16000,
	Channels:     1,
	BitDepth:     16,
	Codec:        CodecPCMS16LE,
}

// BytesPerFrame returns the size of one sample across all channels
func (f WavFormat) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BlockAlign is the WAV name for BytesPerFrame
func (f WavFormat) BlockAlign() int {
	return f.BytesPerFrame()
}

// ByteRate returns the number of bytes per second of audio
func (f WavFormat) ByteRate() int {
	return f.SampleRateHz * f.BytesPerFrame()
}

// DurationMs converts a PCM byte count into milliseconds of audio
func (f WavFormat) DurationMs(bytes int64) int64 {
	rate := int64(f.ByteRate())
	if rate <= 0 || bytes <= 0 {
		return 0
	}
	return bytes * 1000 / rate
}

// Validate checks that the format can be written as uncompressed 16-bit PCM
func (f WavFormat) Validate() error {
	var errs []error
	if f.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", f.SampleRateHz))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", f.Channels))
	}
	if f.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("bit depth must be 16, got %d", f.BitDepth))
	}
	if f.Codec != CodecPCMS16LE {
		errs = append(errs, fmt.Errorf("codec must be %s, got %q", CodecPCMS16LE, f.Codec))
	}
	return errors.Join(errs...)
}

// Merge applies the non-zero fields of an override
func (f WavFormat) Merge(o FormatOverride) WavFormat {
	if o.SampleRateHz > 0 {
		f.SampleRateHz = o.SampleRateHz
	}
	if o.Channels > 0 {
		f.Channels = o.Channels
	}
	if o.BitDepth > 0 {
		f.BitDepth = o.BitDepth
	}
	if o.Codec != "" {
		f.Codec = o.Codec
	}
	return f
}

func (f WavFormat) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d-bit %s", f.SampleRateHz, f.Channels, f.BitDepth, f.Codec)
}

// FormatOverride is a partial WavFormat; zero fields keep the default
type FormatOverride struct {
	SampleRateHz int    `json:"sample_rate_hz,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	BitDepth     int    `json:"bit_depth,omitempty"`
	Codec        string `json:"codec,omitempty"`
}

// RecordingLevel is a single loudness measurement
type RecordingLevel struct {
	RMS     float64 `json:"rms"`
	Peak    float64 `json:"peak"`
	Clipped bool    `json:"clipped"`
}

// RecordingProgress reports how much audio has been captured so far
type RecordingProgress struct {
	DurationMs   int64 `json:"duration_ms"`
	BytesWritten int64 `json:"bytes_written"`
}

// RecordingDevice is an input a backend can capture from
type RecordingDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default,omitempty"`
	Index     *int   `json:"index,omitempty"`
}

// PermissionStatus is the host's answer to "may this process capture audio"
type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
	PermissionUnknown PermissionStatus = "unknown"
)
