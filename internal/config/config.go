package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".config/kartoza-audio-capture"
	// DefaultRecordingsDir is the default output directory for recordings
	DefaultRecordingsDir = "Music/Recordings"
	// ConfigFileName is the name of the configuration file
	ConfigFileName = "config.json"
	// EnvPrefix prefixes every environment override, e.g. KARTOZA_AUDIO_ADAPTER
	EnvPrefix = "KARTOZA_AUDIO"
)

// Config holds the application configuration
type Config struct {
	RecordingsDir string           `json:"recordings_dir" mapstructure:"recordings_dir"`
	Adapter       string           `json:"adapter" mapstructure:"adapter"`
	DefaultFormat models.WavFormat `json:"default_format" mapstructure:"default_format"`
	Capture       CaptureConfig    `json:"capture" mapstructure:"capture"`
	Logging       LoggingConfig    `json:"logging" mapstructure:"logging"`
	Notifications bool             `json:"notifications" mapstructure:"notifications"`
}

// CaptureConfig tunes the capture backends
type CaptureConfig struct {
	// HelperPath overrides the backend binary location
	HelperPath string `json:"helper_path,omitempty" mapstructure:"helper_path"`
	DeviceID   string `json:"device_id,omitempty" mapstructure:"device_id"`
	// Packaged flips the helper search order to prefer the installed layout
	Packaged           bool           `json:"packaged" mapstructure:"packaged"`
	StopGraceMs        int            `json:"stop_grace_ms" mapstructure:"stop_grace_ms"`
	LevelIntervalMs    int            `json:"level_interval_ms" mapstructure:"level_interval_ms"`
	ProgressIntervalMs int            `json:"progress_interval_ms" mapstructure:"progress_interval_ms"`
	AudioTee           AudioTeeConfig `json:"audiotee" mapstructure:"audiotee"`
	FFmpeg             FFmpegConfig   `json:"ffmpeg" mapstructure:"ffmpeg"`
}

// AudioTeeConfig holds the application-tap options for macOS
type AudioTeeConfig struct {
	ChunkDuration    float64 `json:"chunk_duration,omitempty" mapstructure:"chunk_duration"`
	Mute             bool    `json:"mute" mapstructure:"mute"`
	IncludeProcesses []int   `json:"include_processes,omitempty" mapstructure:"include_processes"`
	ExcludeProcesses []int   `json:"exclude_processes,omitempty" mapstructure:"exclude_processes"`
}

// FFmpegConfig selects the ffmpeg input device
type FFmpegConfig struct {
	InputFormat string `json:"input_format,omitempty" mapstructure:"input_format"`
	Device      string `json:"device,omitempty" mapstructure:"device"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file,omitempty" mapstructure:"file"`
}

// StopGrace is how long a backend gets to exit after the graceful signal
func (c CaptureConfig) StopGrace() time.Duration {
	return msOr(c.StopGraceMs, 5*time.Second)
}

// LevelInterval is the minimum spacing between level events
func (c CaptureConfig) LevelInterval() time.Duration {
	return msOr(c.LevelIntervalMs, 250*time.Millisecond)
}

// ProgressInterval is the minimum spacing between progress events
func (c CaptureConfig) ProgressInterval() time.Duration {
	return msOr(c.ProgressIntervalMs, 300*time.Millisecond)
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		RecordingsDir: GetDefaultRecordingsDir(),
		DefaultFormat: models.DefaultWavFormat,
		Capture: CaptureConfig{
			StopGraceMs:        5000,
			LevelIntervalMs:    250,
			ProgressIntervalMs: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: true,
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetDefaultRecordingsDir returns the default recordings directory path
func GetDefaultRecordingsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultRecordingsDir
	}
	return filepath.Join(home, DefaultRecordingsDir)
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// EnsureDirectories creates the config directory and the recordings directory
func EnsureDirectories(cfg *Config) error {
	dirs := []string{GetConfigDir()}
	if cfg != nil && cfg.RecordingsDir != "" {
		dirs = append(dirs, cfg.RecordingsDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Load reads the config file (if any) and applies environment overrides.
// An empty path means the default location; a missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.AddConfigPath(GetConfigDir())
	}
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if strings.HasPrefix(cfg.RecordingsDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.RecordingsDir = filepath.Join(home, cfg.RecordingsDir[2:])
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("recordings_dir", d.RecordingsDir)
	v.SetDefault("adapter", d.Adapter)
	v.SetDefault("default_format.sample_rate_hz", d.DefaultFormat.SampleRateHz)
	v.SetDefault("default_format.channels", d.DefaultFormat.Channels)
	v.SetDefault("default_format.bit_depth", d.DefaultFormat.BitDepth)
	v.SetDefault("default_format.codec", d.DefaultFormat.Codec)
	v.SetDefault("capture.helper_path", d.Capture.HelperPath)
	v.SetDefault("capture.device_id", d.Capture.DeviceID)
	v.SetDefault("capture.packaged", d.Capture.Packaged)
	v.SetDefault("capture.stop_grace_ms", d.Capture.StopGraceMs)
	v.SetDefault("capture.level_interval_ms", d.Capture.LevelIntervalMs)
	v.SetDefault("capture.progress_interval_ms", d.Capture.ProgressIntervalMs)
	v.SetDefault("capture.audiotee.chunk_duration", d.Capture.AudioTee.ChunkDuration)
	v.SetDefault("capture.audiotee.mute", d.Capture.AudioTee.Mute)
	v.SetDefault("capture.ffmpeg.input_format", d.Capture.FFmpeg.InputFormat)
	v.SetDefault("capture.ffmpeg.device", d.Capture.FFmpeg.Device)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("notifications", d.Notifications)
}

// Save writes cfg to path, or to the default location when path is empty
func Save(cfg *Config, path string) error {
	if path == "" {
		if err := EnsureDirectories(nil); err != nil {
			return err
		}
		path = GetConfigPath()
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
