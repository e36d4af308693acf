package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const fullScale = 32768.0

// ComputeLevel measures a buffer of signed 16-bit little-endian samples.
// A trailing odd byte is ignored.
func ComputeLevel(pcm []byte) models.RecordingLevel {
	n := len(pcm) / 2
	if n == 0 {
		return models.RecordingLevel{}
	}

	var sumSquares float64
	var peak int
	clipped := false
	for i := 0; i < n; i++ {
		s := int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
		if s >= 32767 {
			clipped = true
		}
		sumSquares += float64(s) * float64(s)
	}

	return models.RecordingLevel{
		RMS:     math.Sqrt(sumSquares/float64(n)) / fullScale,
		Peak:    float64(peak) / fullScale,
		Clipped: clipped,
	}
}

// Gate lets one event through per interval
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewGate returns a gate that opens at most once per interval
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Allow reports whether an event at now may be emitted, and if so arms the gate
func (g *Gate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
