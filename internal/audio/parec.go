package audio

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const (
	ParecID     = "parec"
	ParecBinary = "parec"
	ParecEnv    = "PAREC_PATH"

	defaultMonitor = "@DEFAULT_MONITOR@"
)

// ParecAdapter records a PulseAudio or PipeWire monitor source through parec
type ParecAdapter struct {
	*StreamAdapter
	pactl string
}

// NewParec returns the Linux monitor-source adapter
func NewParec(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) *ParecAdapter {
	configured := cfg.DeviceID
	return &ParecAdapter{
		pactl: "pactl",
		StreamAdapter: NewStreamAdapter(StreamPreset{
			ID:          ParecID,
			Label:       "PulseAudio monitor",
			Locator:     NewLocator(ParecBinary, cfg.HelperPath, ParecEnv, cfg.Packaged),
			Platforms:   []string{"linux"},
			StopSignal:  syscall.SIGINT,
			CheckFormat: monoOrStereo,
			Args: func(opts StartOptions) []string {
				device := strings.TrimSpace(opts.DeviceID)
				if device == "" {
					device = strings.TrimSpace(configured)
				}
				return parecArgs(device, opts.Format)
			},
			Timing: timingFrom(cfg),
		}, tracker, logger),
	}
}

func parecArgs(device string, format models.WavFormat) []string {
	if device == "" {
		device = defaultMonitor
	}
	return []string{
		"-d", device,
		"--format=s16le",
		"--rate=" + strconv.Itoa(format.SampleRateHz),
		"--channels=" + strconv.Itoa(format.Channels),
		"--raw",
	}
}

func monoOrStereo(f models.WavFormat) error {
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("records 1 or 2 channels, got %d", f.Channels)
	}
	return nil
}

// ListDevices returns the monitor sources known to the sound server
func (a *ParecAdapter) ListDevices(ctx context.Context) ([]models.RecordingDevice, error) {
	if a.checkHost(ctx) != nil {
		return []models.RecordingDevice{}, nil
	}

	out, err := exec.CommandContext(ctx, a.pactl, "list", "short", "sources").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: pactl list sources: %w", ErrBackendUnavailable, err)
	}

	defaultSink := ""
	if sink, err := exec.CommandContext(ctx, a.pactl, "get-default-sink").Output(); err == nil {
		defaultSink = strings.TrimSpace(string(sink))
	}

	return parsePactlSources(string(out), defaultSink), nil
}

// parsePactlSources reads `pactl list short sources` output, keeping monitors.
// Columns are index, name, driver, sample spec and state, tab separated.
func parsePactlSources(out, defaultSink string) []models.RecordingDevice {
	devices := []models.RecordingDevice{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSpace(fields[1])
		if !strings.HasSuffix(name, ".monitor") {
			continue
		}

		d := models.RecordingDevice{
			ID:        name,
			Name:      strings.TrimSuffix(name, ".monitor"),
			IsDefault: defaultSink != "" && name == defaultSink+".monitor",
		}
		if idx, err := strconv.Atoi(strings.TrimSpace(fields[0])); err == nil {
			d.Index = &idx
		}
		devices = append(devices, d)
	}
	return devices
}
