package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/config"
	"github.com/kartoza/kartoza-audio-capture/internal/logging"
)

var (
	version    = "dev"
	debugMode  bool
	configPath string
)

// shutdownTimeout bounds how long exit waits for backends to be reclaimed
const shutdownTimeout = 10 * time.Second

// runtimeState is what every command shares once the root has set it up
type runtimeState struct {
	cfg     *config.Config
	logger  *zap.Logger
	tracker *audio.Tracker
}

var app runtimeState

// SetVersion sets the application version (called from main)
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "kartoza-audio-capture",
	Short: "System audio capture to WAV",
	Long: `Kartoza Audio Capture records what your computer is playing into WAV files.

It supports:
  - Native loopback capture through the miniaudio helper
  - macOS application audio taps (audiotee, macOS 14.2+)
  - PulseAudio/PipeWire monitor sources (parec)
  - Any device ffmpeg can open
  - Live level meter, elapsed time and size while recording

Run without a subcommand to open the recording screen.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context(), recordFlags{})
	},
}

// setup loads configuration and builds the logger and resource tracker
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: debugMode,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return err
	}

	app = runtimeState{
		cfg:     cfg,
		logger:  logger,
		tracker: audio.NewTracker(logger.Named("tracker")),
	}
	return nil
}

// shutdown reclaims any backend still running and flushes the log
func shutdown() {
	if app.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.tracker.Drain(ctx); err != nil {
			app.logger.Warn("failed to release capture resources", zap.Error(err))
		}
	}
	if app.logger != nil {
		_ = app.logger.Sync()
	}
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; whatever is still tracked is drained before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/kartoza-audio-capture/config.json)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kartoza-audio-capture %s\n", version)
	},
}
