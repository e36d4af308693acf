package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeLevel(t *testing.T) {
	tests := []struct {
		name    string
		pcm     []byte
		rms     float64
		peak    float64
		clipped bool
	}{
		{"empty", nil, 0, 0, false},
		{"odd byte only", []byte{0x01}, 0, 0, false},
		{"silence", pcmChunk(64, 0), 0, 0, false},
		{"constant half scale", pcmChunk(64, 16384), 0.5, 0.5, false},
		{"negative full scale clips", pcmChunk(4, -32768), 1, 1, true},
		{"positive max clips", pcmChunk(4, 32767), 32767.0 / 32768, 32767.0 / 32768, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ComputeLevel(tt.pcm)
			assert.InDelta(t, tt.rms, l.RMS, 1e-9)
			assert.InDelta(t, tt.peak, l.Peak, 1e-9)
			assert.Equal(t, tt.clipped, l.Clipped)
		})
	}
}

func TestComputeLevel_MixedSamples(t *testing.T) {
	pcm := append(pcmChunk(1, 16384), pcmChunk(1, -8192)...)
	l := ComputeLevel(pcm)

	want := math.Sqrt((16384.0*16384.0+8192.0*8192.0)/2) / 32768
	assert.InDelta(t, want, l.RMS, 1e-9)
	assert.InDelta(t, 0.5, l.Peak, 1e-9)
	assert.False(t, l.Clipped)
}

func TestGate(t *testing.T) {
	g := NewGate(250 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	assert.True(t, g.Allow(t0), "first event passes")
	assert.False(t, g.Allow(t0.Add(100*time.Millisecond)))
	assert.False(t, g.Allow(t0.Add(249*time.Millisecond)))
	assert.True(t, g.Allow(t0.Add(250*time.Millisecond)))
	assert.False(t, g.Allow(t0.Add(300*time.Millisecond)))
	assert.True(t, g.Allow(t0.Add(500*time.Millisecond)))
}
