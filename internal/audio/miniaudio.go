package audio

import (
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const (
	MiniAudioID        = "miniaudio"
	MiniAudioBinary    = "miniaudio-loopback"
	MiniAudioHelperEnv = "MINIAUDIO_HELPER_PATH"
	MiniAudioDeviceEnv = "MINIAUDIO_DEVICE_ID"
)

// MiniAudioFormat is the only format the loopback helper writes
var MiniAudioFormat = models.DefaultWavFormat

// NewMiniAudio returns the loopback helper adapter
func NewMiniAudio(cfg config.CaptureConfig, tracker *Tracker, logger *zap.Logger) *HelperAdapter {
	return NewHelperAdapter(HelperConfig{
		ID:        MiniAudioID,
		Label:     "MiniAudio loopback",
		Locator:   NewLocator(MiniAudioBinary, cfg.HelperPath, MiniAudioHelperEnv, cfg.Packaged),
		Format:    MiniAudioFormat,
		DeviceID:  cfg.DeviceID,
		DeviceEnv: MiniAudioDeviceEnv,
		Platforms: []string{"windows", "darwin", "linux"},
		Timing:    timingFrom(cfg),
	}, tracker, logger)
}

func timingFrom(cfg config.CaptureConfig) Timing {
	return Timing{
		StopGrace:        cfg.StopGrace(),
		LevelInterval:    cfg.LevelInterval(),
		ProgressInterval: cfg.ProgressInterval(),
	}
}
