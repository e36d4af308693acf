package audio

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const (
	FFmpegID     = "ffmpeg"
	FFmpegBinary = "ffmpeg"
	FFmpegEnv    = "FFMPEG_PATH"
)

// FFmpegAdapter records any input device ffmpeg can open, converting to s16le on the fly
type FFmpegAdapter struct {
	*StreamAdapter
	inputFormat string
}

// NewFFmpeg returns the ffmpeg adapter using the platform's input format unless configured
func NewFFmpeg(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) *FFmpegAdapter {
	inputFormat, device := ffmpegDefaults()
	if f := strings.TrimSpace(cfg.FFmpeg.InputFormat); f != "" {
		inputFormat = f
	}
	if d := strings.TrimSpace(cfg.FFmpeg.Device); d != "" {
		device = d
	}
	if d := strings.TrimSpace(cfg.DeviceID); d != "" {
		device = d
	}

	a := &FFmpegAdapter{inputFormat: inputFormat}
	a.StreamAdapter = NewStreamAdapter(StreamPreset{
		ID:        FFmpegID,
		Label:     "FFmpeg (" + inputFormat + ")",
		Locator:   NewLocator(FFmpegBinary, cfg.HelperPath, FFmpegEnv, cfg.Packaged),
		Platforms: []string{"linux", "darwin", "windows"},
		// ffmpeg finishes the current packet on SIGINT and exits 255
		StopSignal:  syscall.SIGINT,
		AcceptCodes: []int{255},
		Args: func(opts StartOptions) []string {
			d := strings.TrimSpace(opts.DeviceID)
			if d == "" {
				d = device
			}
			return ffmpegArgs(inputFormat, d, opts.Format)
		},
		Timing: timingFrom(cfg),
	}, tracker, logger)
	return a
}

func ffmpegArgs(inputFormat, device string, format models.WavFormat) []string {
	return []string{
		"-f", inputFormat,
		"-i", ffmpegInput(inputFormat, device),
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRateHz),
		"pipe:1",
	}
}

// ffmpegInput turns a device id into an -i argument
func ffmpegInput(inputFormat, device string) string {
	switch inputFormat {
	case "dshow":
		if !strings.HasPrefix(device, "audio=") {
			return "audio=" + device
		}
	case "avfoundation":
		if !strings.HasPrefix(device, ":") {
			return ":" + device
		}
	}
	return device
}

// ListDevices asks ffmpeg to enumerate the input format's audio devices
func (a *FFmpegAdapter) ListDevices(ctx context.Context) ([]models.RecordingDevice, error) {
	bin, err := a.preset.Locator.Resolve()
	if err != nil {
		return nil, err
	}

	var args []string
	switch a.inputFormat {
	case "avfoundation":
		args = []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "dshow":
		args = []string{"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	default:
		args = []string{"-hide_banner", "-sources", a.inputFormat}
	}

	// listing exits non-zero even when it succeeds
	out, _ := exec.CommandContext(ctx, bin, args...).CombinedOutput()

	switch a.inputFormat {
	case "avfoundation":
		return parseAVFoundationDevices(string(out)), nil
	case "dshow":
		return parseDShowDevices(string(out)), nil
	default:
		return parseFFmpegSources(string(out)), nil
	}
}

var (
	avfIndexed  = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)
	dshowQuoted = regexp.MustCompile(`"([^"]+)"(\s+\(audio\))?`)
)

// parseAVFoundationDevices keeps the entries after the "audio devices" marker
func parseAVFoundationDevices(out string) []models.RecordingDevice {
	devices := []models.RecordingDevice{}
	inAudio := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "audio devices:"):
			inAudio = true
			continue
		case strings.Contains(line, "video devices:"):
			inAudio = false
			continue
		}
		if !inAudio {
			continue
		}
		m := avfIndexed.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		devices = append(devices, models.RecordingDevice{
			ID:        m[1],
			Name:      strings.TrimSpace(m[2]),
			IsDefault: idx == 0,
			Index:     &idx,
		})
	}
	return devices
}

// parseDShowDevices understands both the sectioned and the "(audio)" suffixed layouts
func parseDShowDevices(out string) []models.RecordingDevice {
	devices := []models.RecordingDevice{}
	section := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "DirectShow audio devices"):
			section = "audio"
			continue
		case strings.Contains(line, "DirectShow video devices"):
			section = "video"
			continue
		case strings.Contains(line, "Alternative name"):
			continue
		}
		m := dshowQuoted.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[2] == "" && section != "audio" {
			continue
		}
		idx := len(devices)
		devices = append(devices, models.RecordingDevice{
			ID:        "audio=" + m[1],
			Name:      m[1],
			IsDefault: idx == 0,
			Index:     &idx,
		})
	}
	return devices
}

// parseFFmpegSources reads `ffmpeg -sources <fmt>`, where "*" marks the default
func parseFFmpegSources(out string) []models.RecordingDevice {
	devices := []models.RecordingDevice{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "Auto-detected") || strings.TrimSpace(line) == "" {
			continue
		}
		isDefault := strings.HasPrefix(strings.TrimSpace(line), "*")
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))

		id, name := line, line
		if open := strings.Index(line, " ["); open > 0 && strings.HasSuffix(line, "]") {
			id = line[:open]
			name = line[open+2 : len(line)-1]
		}
		idx := len(devices)
		devices = append(devices, models.RecordingDevice{
			ID:        id,
			Name:      name,
			IsDefault: isDefault,
			Index:     &idx,
		})
	}
	return devices
}
