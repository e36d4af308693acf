package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

const ToneID = "tone"

// Source delivers PCM buffers in the requested format until stopped.
// No callback may run after Stop returns.
type Source interface {
	Start(format models.WavFormat, onData func([]byte)) error
	Stop() error
}

// ToneSource synthesises a sine wave in real time
type ToneSource struct {
	Frequency float64
	// Amplitude is relative to full scale
	Amplitude float64
	Tick      time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewToneSource returns a 440 Hz tone at half scale, delivered every 20ms
func NewToneSource() *ToneSource {
	return &ToneSource{Frequency: 440, Amplitude: 0.5, Tick: 20 * time.Millisecond}
}

func (s *ToneSource) Start(format models.WavFormat, onData func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyRunning
	}
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: tone source writes 16-bit samples only", ErrFormatRejected)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(format, onData, s.stop, s.done)
	return nil
}

func (s *ToneSource) loop(format models.WavFormat, onData func([]byte), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	frames := int(float64(format.SampleRateHz) * s.Tick.Seconds())
	if frames < 1 {
		frames = 1
	}
	step := 2 * math.Pi * s.Frequency / float64(format.SampleRateHz)
	amp := s.Amplitude * 32767
	phase := 0.0

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		buf := make([]byte, frames*format.BytesPerFrame())
		off := 0
		for i := 0; i < frames; i++ {
			v := int16(amp * math.Sin(phase))
			phase += step
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
			for c := 0; c < format.Channels; c++ {
				binary.LittleEndian.PutUint16(buf[off:], uint16(v))
				off += 2
			}
		}
		onData(buf)
	}
}

func (s *ToneSource) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return ErrNotRunning
	}
	close(stop)
	<-done
	return nil
}

// CallbackAdapter records a Source that pushes buffers into the process,
// writing them through a wav.Writer
type CallbackAdapter struct {
	id        string
	label     string
	newSource func() Source
	timing    Timing
	tracker   *Tracker
	logger    *zap.Logger

	mu  sync.Mutex
	run *callbackRun
}

type callbackRun struct {
	source  Source
	writer  *wav.Writer
	meter   *meter
	opts    StartOptions
	errs    reporter
	release func()
}

// NewCallbackAdapter returns an adapter that creates a fresh source per run
func NewCallbackAdapter(id, label string, newSource func() Source, timing Timing, tracker *Tracker, logger *zap.Logger) *CallbackAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackAdapter{
		id:        id,
		label:     label,
		newSource: newSource,
		timing:    timing.withDefaults(),
		tracker:   tracker,
		logger:    logger.With(zap.String("adapter", id)),
	}
}

// NewTone returns the synthetic tone adapter
func NewTone(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) *CallbackAdapter {
	return NewCallbackAdapter(ToneID, "Test tone", func() Source { return NewToneSource() }, timingFrom(cfg), tracker, logger)
}

func (a *CallbackAdapter) ID() string    { return a.id }
func (a *CallbackAdapter) Label() string { return a.label }

func (a *CallbackAdapter) Start(ctx context.Context, opts StartOptions, events Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.run != nil {
		return ErrAlreadyRunning
	}
	if err := opts.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFormatRejected, a.label, err)
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("%w: no output path", ErrBackendProcess)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	run := &callbackRun{
		source: a.newSource(),
		opts:   opts,
		errs:   reporter{events: events},
		meter:  newMeter(opts.Format, events, a.timing),
	}
	writer, err := wav.Create(opts.OutputPath, opts.Format, wav.Options{
		OnError: run.errs.report,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	run.writer = writer

	release, err := a.tracker.Track(a.label+" source", func() error {
		return errors.Join(run.source.Stop(), run.writer.Finalize())
	})
	if err != nil {
		_ = writer.Finalize()
		return err
	}
	run.release = release

	err = run.source.Start(opts.Format, func(b []byte) {
		run.writer.Append(b)
		run.meter.observe(b)
	})
	if err != nil {
		release()
		_ = writer.Finalize()
		return fmt.Errorf("%w: %s: %w", ErrBackendProcess, a.label, err)
	}

	a.run = run
	a.logger.Info("callback capture started", zap.String("path", opts.OutputPath))
	return nil
}

func (a *CallbackAdapter) Stop(context.Context) (models.RecordingResult, error) {
	a.mu.Lock()
	run := a.run
	a.run = nil
	a.mu.Unlock()
	if run == nil {
		return models.RecordingResult{}, ErrNotRunning
	}

	stopErr := run.source.Stop()
	finalizeErr := run.writer.Finalize()
	run.release()

	result := buildResult(run.opts.OutputPath, run.opts.Format, run.writer.BytesWritten(), 0)
	if err := errors.Join(stopErr, finalizeErr); err != nil && !run.errs.reported() {
		return result, err
	}

	a.logger.Info("callback capture stopped", zap.String("path", result.FilePath), zap.Int64("bytes", *result.BytesWritten))
	return result, nil
}
