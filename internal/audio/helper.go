package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

// HelperConfig describes a native helper that writes the WAV file itself and
// reports telemetry as JSON lines on stdout
type HelperConfig struct {
	ID      string
	Label   string
	Locator Locator
	// Format is the only format the helper produces
	Format models.WavFormat
	// DeviceID is used when the start options name no device
	DeviceID string
	// DeviceEnv is consulted after DeviceID
	DeviceEnv string
	// Platforms lists the GOOS values the helper is built for
	Platforms []string
	Timing    Timing
}

// HelperAdapter drives a HelperConfig backend
type HelperAdapter struct {
	cfg     HelperConfig
	tracker *Tracker
	logger  *zap.Logger

	mu  sync.Mutex
	run *helperRun
}

type helperRun struct {
	proc      *proc
	opts      StartOptions
	events    Events
	errs      reporter
	levelGate *Gate
	progGate  *Gate

	mu           sync.Mutex
	format       models.WavFormat
	progress     models.RecordingProgress
	haveProgress bool
	helperErr    string
}

// NewHelperAdapter returns an adapter for the helper described by cfg
func NewHelperAdapter(cfg HelperConfig, tracker *Tracker, logger *zap.Logger) *HelperAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Timing = cfg.Timing.withDefaults()
	return &HelperAdapter{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger.With(zap.String("adapter", cfg.ID)),
	}
}

func (a *HelperAdapter) ID() string    { return a.cfg.ID }
func (a *HelperAdapter) Label() string { return a.cfg.Label }

// PreferredFormat returns the helper's fixed format
func (a *HelperAdapter) PreferredFormat() models.WavFormat {
	return a.cfg.Format
}

func (a *HelperAdapter) supported() bool {
	return len(a.cfg.Platforms) == 0 || slices.Contains(a.cfg.Platforms, runtime.GOOS)
}

// Available reports whether the platform is supported and the helper resolves
func (a *HelperAdapter) Available(context.Context) bool {
	if !a.supported() {
		return false
	}
	_, err := a.cfg.Locator.Resolve()
	return err == nil
}

// Start spawns the helper writing to opts.OutputPath
func (a *HelperAdapter) Start(ctx context.Context, opts StartOptions, events Events) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.run != nil {
		return ErrAlreadyRunning
	}
	if !a.supported() {
		return fmt.Errorf("%w: %s is supported only on %s", ErrUnsupportedPlatform, a.cfg.Label, strings.Join(a.cfg.Platforms, ", "))
	}
	if err := checkFormat(a.cfg.Label, a.cfg.Format, opts.Format); err != nil {
		return err
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("%w: no output path", ErrBackendProcess)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bin, err := a.cfg.Locator.Resolve()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := exec.Command(bin, a.buildArgs(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendProcess, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendProcess, err)
	}

	run := &helperRun{
		opts:      opts,
		events:    events,
		errs:      reporter{events: events},
		levelGate: NewGate(a.cfg.Timing.LevelInterval),
		progGate:  NewGate(a.cfg.Timing.ProgressInterval),
		format:    opts.Format,
	}
	p := newProc(a.cfg.Label, cmd, syscall.SIGINT, a.logger)
	p.onExit = func(err error, requested bool) { a.handleExit(run, err, requested) }
	run.proc = p

	if err := p.start(a.tracker); err != nil {
		return err
	}
	a.run = run

	go p.run(
		func() error {
			return drainLines(stdout, DecodeHelperLine, func(m Message) { a.handleMessage(run, m) }, a.logger)
		},
		func() error { _, err := io.Copy(p.stderr, stderr); return err },
	)

	a.logger.Info("helper capture started", zap.String("path", opts.OutputPath), zap.Int("pid", p.pid()))
	return nil
}

func (a *HelperAdapter) buildArgs(opts StartOptions) []string {
	args := []string{
		"--output", opts.OutputPath,
		"--sample-rate", strconv.Itoa(opts.Format.SampleRateHz),
		"--channels", strconv.Itoa(opts.Format.Channels),
		"--bit-depth", strconv.Itoa(opts.Format.BitDepth),
	}

	device := a.resolveDevice(opts.DeviceID)
	if device == "" {
		return args
	}
	if _, err := strconv.Atoi(device); err == nil {
		return append(args, "--device-index", device)
	}
	return append(args, "--device-id", device)
}

func (a *HelperAdapter) resolveDevice(requested string) string {
	if d := strings.TrimSpace(requested); d != "" {
		return d
	}
	if d := strings.TrimSpace(a.cfg.DeviceID); d != "" {
		return d
	}
	if a.cfg.DeviceEnv != "" {
		return strings.TrimSpace(os.Getenv(a.cfg.DeviceEnv))
	}
	return ""
}

func (a *HelperAdapter) handleMessage(run *helperRun, m Message) {
	now := time.Now()
	switch m.Kind {
	case KindProgress:
		run.mu.Lock()
		run.progress = m.Progress
		run.haveProgress = true
		run.mu.Unlock()
		if run.progGate.Allow(now) {
			run.events.progress(m.Progress)
		}
	case KindLevel:
		if run.levelGate.Allow(now) {
			run.events.level(m.Level)
		}
	case KindError:
		run.mu.Lock()
		run.helperErr = m.Text
		run.mu.Unlock()
		a.logger.Error("helper reported error", zap.String("message", m.Text))
		run.errs.report(fmt.Errorf("%w: %s", ErrBackendProcess, m.Text))
	case KindFormat:
		if m.Format.Validate() != nil {
			return
		}
		run.mu.Lock()
		run.format = m.Format
		run.mu.Unlock()
		run.events.format(m.Format)
	}
}

func (a *HelperAdapter) handleExit(run *helperRun, err error, requested bool) {
	if err == nil || requested {
		return
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		run.mu.Lock()
		ee.Message = run.helperErr
		run.mu.Unlock()
	}
	a.logger.Error("helper exited unexpectedly", zap.Error(err))
	run.errs.report(err)
}

// Stop interrupts the helper, waits for it to flush the file and returns
// what was captured. A crash already reported through OnError is not
// reported again here.
func (a *HelperAdapter) Stop(ctx context.Context) (models.RecordingResult, error) {
	a.mu.Lock()
	run := a.run
	a.mu.Unlock()
	if run == nil {
		return models.RecordingResult{}, ErrNotRunning
	}

	run.proc.requestStop(a.cfg.Timing.StopGrace)
	exitErr := run.proc.wait(ctx)

	a.mu.Lock()
	if a.run == run {
		a.run = nil
	}
	a.mu.Unlock()

	run.mu.Lock()
	format, progress, haveProgress := run.format, run.progress, run.haveProgress
	run.mu.Unlock()

	bytes, onDisk := fileDataBytes(run.opts.OutputPath)
	var result models.RecordingResult
	switch {
	case onDisk:
		result = buildResult(run.opts.OutputPath, format, bytes, 0)
	case haveProgress:
		result = buildResult(run.opts.OutputPath, format, progress.BytesWritten, progress.DurationMs)
	default:
		result = buildResult(run.opts.OutputPath, format, 0, 0)
	}

	if !onDisk {
		missing := &ExitError{Backend: a.cfg.Label, Message: "recording output is missing.", Code: -1, Stderr: run.proc.stderr.String()}
		if run.errs.reported() {
			return result, nil
		}
		return result, missing
	}
	if exitErr != nil && !run.errs.reported() {
		return result, exitErr
	}

	a.logger.Info("helper capture stopped", zap.String("path", result.FilePath), zap.Int64("bytes", bytes))
	return result, nil
}

// ListDevices runs the helper with --list-devices and decodes its JSON array
func (a *HelperAdapter) ListDevices(ctx context.Context) ([]models.RecordingDevice, error) {
	if !a.supported() {
		return []models.RecordingDevice{}, nil
	}
	bin, err := a.cfg.Locator.Resolve()
	if err != nil {
		return nil, err
	}

	var stderr tail
	cmd := exec.CommandContext(ctx, bin, "--list-devices")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		ee := &ExitError{Backend: a.cfg.Label, Message: "failed to list devices.", Code: -1, Stderr: stderr.String()}
		if cmd.ProcessState != nil {
			ee.Code = cmd.ProcessState.ExitCode()
			ee.Signal = exitSignal(cmd.ProcessState)
		}
		return nil, ee
	}

	var listed []helperDevice
	if err := json.Unmarshal(out, &listed); err != nil {
		return nil, fmt.Errorf("%w: invalid device list: %w", ErrBackendProcess, err)
	}
	devices := make([]models.RecordingDevice, 0, len(listed))
	for _, d := range listed {
		devices = append(devices, models.RecordingDevice{ID: d.ID, Name: d.Name, IsDefault: d.IsDefault, Index: d.Index})
	}
	return devices, nil
}

type helperDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	Index     *int   `json:"index"`
}
