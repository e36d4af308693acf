package audio

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

// Timing holds the shutdown grace and telemetry intervals shared by adapters
type Timing struct {
	StopGrace        time.Duration
	LevelInterval    time.Duration
	ProgressInterval time.Duration
}

// DefaultTiming is a 5s grace, 250ms level and 300ms progress spacing
var DefaultTiming = Timing{
	StopGrace:        5 * time.Second,
	LevelInterval:    250 * time.Millisecond,
	ProgressInterval: 300 * time.Millisecond,
}

func (t Timing) withDefaults() Timing {
	if t.StopGrace <= 0 {
		t.StopGrace = DefaultTiming.StopGrace
	}
	if t.LevelInterval <= 0 {
		t.LevelInterval = DefaultTiming.LevelInterval
	}
	if t.ProgressInterval <= 0 {
		t.ProgressInterval = DefaultTiming.ProgressInterval
	}
	return t
}

// meter turns raw PCM into throttled level and progress events
type meter struct {
	format       models.WavFormat
	events       Events
	levelGate    *Gate
	progressGate *Gate
	received     atomic.Int64
	now          func() time.Time
}

func newMeter(format models.WavFormat, events Events, t Timing) *meter {
	return &meter{
		format:       format,
		events:       events,
		levelGate:    NewGate(t.LevelInterval),
		progressGate: NewGate(t.ProgressInterval),
		now:          time.Now,
	}
}

func (m *meter) observe(chunk []byte) {
	total := m.received.Add(int64(len(chunk)))
	now := m.now()

	if m.events.OnProgress != nil && m.progressGate.Allow(now) {
		m.events.progress(models.RecordingProgress{
			DurationMs:   m.format.DurationMs(total),
			BytesWritten: total,
		})
	}
	if m.events.OnLevel != nil && m.levelGate.Allow(now) {
		m.events.level(ComputeLevel(chunk))
	}
}

// reporter forwards at most one error per run
type reporter struct {
	once   sync.Once
	events Events
	sent   atomic.Bool
}

func (r *reporter) report(err error) {
	r.once.Do(func() {
		r.sent.Store(true)
		r.events.fail(err)
	})
}

func (r *reporter) reported() bool {
	return r.sent.Load()
}

// buildResult fills the optional fields with the best-known values
func buildResult(path string, format models.WavFormat, bytes, durationMs int64) models.RecordingResult {
	if durationMs <= 0 {
		durationMs = format.DurationMs(bytes)
	}
	return models.RecordingResult{
		FilePath:     path,
		Format:       format,
		DurationMs:   models.Int64(durationMs),
		BytesWritten: models.Int64(bytes),
	}
}

// fileDataBytes returns the PCM payload size of a WAV file on disk
func fileDataBytes(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	n := info.Size() - wav.HeaderSize
	if n < 0 {
		n = 0
	}
	return n, true
}
