package audio

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
)

type factory func(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) Adapter

var factories = map[string]factory{
	MiniAudioID: func(c config.CaptureConfig, t *Tracker, l *zap.Logger) Adapter { return NewMiniAudio(c, t, l) },
	AudioTeeID:  func(c config.CaptureConfig, t *Tracker, l *zap.Logger) Adapter { return NewAudioTee(c, t, l) },
	ParecID:     func(c config.CaptureConfig, t *Tracker, l *zap.Logger) Adapter { return NewParec(c, t, l) },
	FFmpegID:    func(c config.CaptureConfig, t *Tracker, l *zap.Logger) Adapter { return NewFFmpeg(c, t, l) },
	ToneID:      func(c config.CaptureConfig, t *Tracker, l *zap.Logger) Adapter { return NewTone(c, t, l) },
}

// Names lists the adapters this build knows, in display order
func Names() []string {
	return []string{MiniAudioID, AudioTeeID, ParecID, FFmpegID, ToneID}
}

// DefaultName is the adapter used when none is configured
func DefaultName() string {
	switch runtime.GOOS {
	case "windows":
		return MiniAudioID
	case "darwin":
		return AudioTeeID
	default:
		return ParecID
	}
}

// New builds the named adapter; an empty name selects DefaultName
func New(name string, cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) (Adapter, error) {
	if name == "" {
		name = DefaultName()
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown adapter %q", ErrUnsupportedPlatform, name)
	}
	return f(cfg, tracker, logger), nil
}
