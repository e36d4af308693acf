package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWavFormat_Derived(t *testing.T) {
	f := WavFormat{SampleRateHz: 48000, Channels: 2, BitDepth: 16, Codec: CodecPCMS16LE}

	assert.Equal(t, 4, f.BlockAlign())
	assert.Equal(t, 192000, f.ByteRate())
	assert.Equal(t, int64(500), f.DurationMs(96000))
	assert.Equal(t, int64(0), WavFormat{}.DurationMs(100))
}

func TestWavFormat_Validate(t *testing.T) {
	tests := []struct {
		name    string
		format  WavFormat
		wantErr bool
	}{
		{"default", DefaultWavFormat, false},
		{"stereo 48k", WavFormat{48000, 2, 16, CodecPCMS16LE}, false},
		{"zero rate", WavFormat{0, 1, 16, CodecPCMS16LE}, true},
		{"zero channels", WavFormat{16000, 0, 16, CodecPCMS16LE}, true},
		{"24 bit", WavFormat{16000, 1, 24, CodecPCMS16LE}, true},
		{"float codec", WavFormat{16000, 1, 16, "pcm_f32le"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWavFormat_Merge(t *testing.T) {
	got := DefaultWavFormat.Merge(FormatOverride{SampleRateHz: 44100})
	assert.Equal(t, WavFormat{44100, 1, 16, CodecPCMS16LE}, got)

	assert.Equal(t, DefaultWavFormat, DefaultWavFormat.Merge(FormatOverride{}))
}

func TestRecordingState_IsActive(t *testing.T) {
	assert.False(t, StateIdle.IsActive())
	assert.True(t, StateStarting.IsActive())
	assert.True(t, StateRecording.IsActive())
	assert.True(t, StateStopping.IsActive())
	assert.False(t, StateError.IsActive())
}
