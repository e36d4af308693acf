package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

const readChunk = 8192

// StreamPreset describes a backend that writes raw s16le PCM to stdout
type StreamPreset struct {
	ID        string
	Label     string
	Locator   Locator
	Platforms []string
	// StopSignal is the graceful signal; SIGINT when zero
	StopSignal syscall.Signal
	// AcceptCodes are exit codes that still count as a clean stop
	AcceptCodes []int
	// CheckFormat rejects formats the backend cannot produce as-is
	CheckFormat func(models.WavFormat) error
	// Args builds the backend arguments for a run
	Args func(StartOptions) []string
	// DecodeStderr classifies stderr lines; nil keeps stderr only as a diagnostic tail
	DecodeStderr Decoder
	// HostCheck runs before anything is spawned
	HostCheck func(context.Context) error
	Timing    Timing
}

// StreamAdapter pipes a StreamPreset backend into an in-process wav.Writer
type StreamAdapter struct {
	preset  StreamPreset
	tracker *Tracker
	logger  *zap.Logger

	mu      sync.Mutex
	run     *streamRun
	onError func(msg string)
}

type streamRun struct {
	proc   *proc
	writer *wav.Writer
	meter  *meter
	opts   StartOptions
	errs   reporter

	mu      sync.Mutex
	lastErr string
}

// NewStreamAdapter returns an adapter for preset
func NewStreamAdapter(preset StreamPreset, tracker *Tracker, logger *zap.Logger) *StreamAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if preset.StopSignal == 0 {
		preset.StopSignal = syscall.SIGINT
	}
	if preset.DecodeStderr == nil {
		preset.DecodeStderr = DecodeNothing
	}
	preset.Timing = preset.Timing.withDefaults()
	return &StreamAdapter{
		preset:  preset,
		tracker: tracker,
		logger:  logger.With(zap.String("adapter", preset.ID)),
	}
}

func (a *StreamAdapter) ID() string    { return a.preset.ID }
func (a *StreamAdapter) Label() string { return a.preset.Label }

func (a *StreamAdapter) checkHost(ctx context.Context) error {
	if len(a.preset.Platforms) > 0 && !slices.Contains(a.preset.Platforms, runtime.GOOS) {
		return fmt.Errorf("%w: %s is supported only on %s", ErrUnsupportedPlatform, a.preset.Label, strings.Join(a.preset.Platforms, ", "))
	}
	if a.preset.HostCheck != nil {
		return a.preset.HostCheck(ctx)
	}
	return nil
}

// Available reports whether the host is supported and the backend resolves
func (a *StreamAdapter) Available(ctx context.Context) bool {
	if a.checkHost(ctx) != nil {
		return false
	}
	_, err := a.preset.Locator.Resolve()
	return err == nil
}

// Start spawns the backend and begins writing its stdout to opts.OutputPath
func (a *StreamAdapter) Start(ctx context.Context, opts StartOptions, events Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.run != nil {
		return ErrAlreadyRunning
	}
	if err := a.checkHost(ctx); err != nil {
		return err
	}
	if err := opts.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFormatRejected, a.preset.Label, err)
	}
	if a.preset.CheckFormat != nil {
		if err := a.preset.CheckFormat(opts.Format); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFormatRejected, a.preset.Label, err)
		}
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("%w: no output path", ErrBackendProcess)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bin, err := a.preset.Locator.Resolve()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	run := &streamRun{
		opts:  opts,
		errs:  reporter{events: events},
		meter: newMeter(opts.Format, events, a.preset.Timing),
	}

	writer, err := wav.Create(opts.OutputPath, opts.Format, wav.Options{
		OnError: run.errs.report,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	run.writer = writer

	cmd := exec.Command(bin, a.preset.Args(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = writer.Finalize()
		return fmt.Errorf("%w: %w", ErrBackendProcess, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = writer.Finalize()
		return fmt.Errorf("%w: %w", ErrBackendProcess, err)
	}

	p := newProc(a.preset.Label, cmd, a.preset.StopSignal, a.logger)
	p.acceptCodes = a.preset.AcceptCodes
	p.onExit = func(err error, requested bool) { a.handleExit(run, err, requested) }
	run.proc = p

	if err := p.start(a.tracker); err != nil {
		_ = writer.Finalize()
		return err
	}
	a.run = run

	go p.run(
		func() error { return a.pumpAudio(run, stdout) },
		func() error {
			return drainLines(io.TeeReader(stderr, p.stderr), a.preset.DecodeStderr, func(m Message) { a.handleMessage(run, m) }, a.logger)
		},
	)

	a.logger.Info("stream capture started", zap.String("path", opts.OutputPath), zap.Int("pid", p.pid()))
	return nil
}

func (a *StreamAdapter) pumpAudio(run *streamRun, r io.Reader) error {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			run.writer.Append(buf[:n])
			run.meter.observe(buf[:n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (a *StreamAdapter) handleMessage(run *streamRun, m Message) {
	switch m.Kind {
	case KindError:
		run.mu.Lock()
		run.lastErr = m.Text
		run.mu.Unlock()
		a.logger.Error("backend reported error", zap.String("message", m.Text))

		a.mu.Lock()
		hook := a.onError
		a.mu.Unlock()
		if hook != nil {
			hook(m.Text)
		}
		run.errs.report(fmt.Errorf("%w: %s", ErrBackendProcess, m.Text))
	case KindLog:
		a.logger.Debug("backend log", zap.String("message", m.Text))
	}
}

func (a *StreamAdapter) handleExit(run *streamRun, err error, requested bool) {
	if err == nil || requested {
		return
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		run.mu.Lock()
		ee.Message = run.lastErr
		run.mu.Unlock()
	}
	a.logger.Error("backend exited unexpectedly", zap.Error(err))
	run.errs.report(err)
}

// Stop signals the backend, waits for it to exit, then finalizes the WAV
// header. The result carries what was written even after a forced kill.
func (a *StreamAdapter) Stop(ctx context.Context) (models.RecordingResult, error) {
	a.mu.Lock()
	run := a.run
	a.mu.Unlock()
	if run == nil {
		return models.RecordingResult{}, ErrNotRunning
	}

	run.proc.requestStop(a.preset.Timing.StopGrace)
	exitErr := run.proc.wait(ctx)
	finalizeErr := run.writer.Finalize()

	a.mu.Lock()
	if a.run == run {
		a.run = nil
	}
	a.mu.Unlock()

	bytes := run.writer.BytesWritten()
	result := buildResult(run.opts.OutputPath, run.opts.Format, bytes, 0)

	if finalizeErr != nil && !run.errs.reported() {
		return result, finalizeErr
	}
	if exitErr != nil && !run.errs.reported() {
		return result, exitErr
	}

	a.logger.Info("stream capture stopped", zap.String("path", result.FilePath), zap.Int64("bytes", bytes))
	return result, nil
}

// setErrorHook lets presets inspect backend error text
func (a *StreamAdapter) setErrorHook(hook func(msg string)) {
	a.mu.Lock()
	a.onError = hook
	a.mu.Unlock()
}
