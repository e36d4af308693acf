package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/notify"
	"github.com/kartoza/kartoza-audio-capture/internal/recorder"
	"github.com/kartoza/kartoza-audio-capture/internal/tui"
)

// stopTimeout bounds the final stop issued by the command
const stopTimeout = 30 * time.Second

type recordFlags struct {
	name       string
	adapter    string
	device     string
	sampleRate int
	channels   int
	duration   time.Duration
	noTUI      bool
	json       bool
}

var recordOpts recordFlags

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record system audio to a WAV file",
	Long: `Record system audio into the recordings directory.

With a terminal attached the interactive recording screen opens; use
--no-tui (or pipe the output) for a plain recording that stops on
Ctrl+C or after --duration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context(), recordOpts)
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordOpts.name, "name", "n", "", "Output file name (default: generated)")
	recordCmd.Flags().StringVarP(&recordOpts.adapter, "adapter", "a", "", "Capture adapter: "+strings.Join(audio.Names(), ", "))
	recordCmd.Flags().StringVarP(&recordOpts.device, "device", "d", "", "Device id (see 'devices')")
	recordCmd.Flags().IntVar(&recordOpts.sampleRate, "sample-rate", 0, "Sample rate in Hz (default: adapter preference)")
	recordCmd.Flags().IntVar(&recordOpts.channels, "channels", 0, "Channel count (default: adapter preference)")
	recordCmd.Flags().DurationVar(&recordOpts.duration, "duration", 0, "Stop after this long (plain mode)")
	recordCmd.Flags().BoolVar(&recordOpts.noTUI, "no-tui", false, "Record without the interactive screen")
	recordCmd.Flags().BoolVar(&recordOpts.json, "json", false, "Print the result as JSON (implies --no-tui)")

	rootCmd.AddCommand(recordCmd)
}

func newAdapter(name string) (audio.Adapter, error) {
	if name == "" {
		name = app.cfg.Adapter
	}
	return audio.New(name, app.cfg.Capture, app.tracker, app.logger)
}

func runRecord(ctx context.Context, flags recordFlags) error {
	adapter, err := newAdapter(flags.adapter)
	if err != nil {
		return err
	}

	interactive := !flags.noTUI && !flags.json && flags.duration == 0 &&
		isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())

	notifier := notify.New(app.cfg.Notifications)
	opts := recorder.Options{RecordingsDir: app.cfg.RecordingsDir}
	if app.cfg.DefaultFormat.Validate() == nil {
		opts.DefaultFormat = audio.PreferredFormat(adapter, app.cfg.DefaultFormat)
	}

	if interactive {
		bridge := tui.NewBridge()
		opts.Callbacks = bridge.Callbacks()
		mgr := recorder.New(adapter, opts, app.logger)
		defer closeManager(mgr)

		return tui.Run(ctx, tui.Options{
			Manager:  mgr,
			Bridge:   bridge,
			Notifier: notifier,
			Version:  version,
			DeviceID: deviceOrDefault(flags.device),
		})
	}

	return recordPlain(ctx, adapter, opts, notifier, flags)
}

func closeManager(mgr *recorder.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := mgr.Close(ctx); err != nil {
		app.logger.Warn("failed to close recorder", zap.Error(err))
	}
}

func recordPlain(ctx context.Context, adapter audio.Adapter, opts recorder.Options, notifier *notify.Notifier, flags recordFlags) error {
	red := lipgloss.NewStyle().Foreground(tui.ColorRed).Bold(true)
	gray := lipgloss.NewStyle().Foreground(tui.ColorGray)

	ended := make(chan error, 1)
	var level models.RecordingLevel
	quiet := flags.json

	// callbacks run on one goroutine, so level needs no lock
	opts.Callbacks = recorder.Callbacks{
		OnLevel: func(l models.RecordingLevel) { level = l },
		OnProgress: func(p models.RecordingProgress) {
			if quiet {
				return
			}
			fmt.Fprintf(os.Stderr, "\r%s %s  %s  %s ",
				red.Render("● REC"),
				tui.FormatDuration(time.Duration(p.DurationMs)*time.Millisecond),
				gray.Render(fmt.Sprintf("%10s", tui.FormatBytes(p.BytesWritten))),
				levelBar(level, 20),
			)
		},
		OnError: func(err error) {
			select {
			case ended <- err:
			default:
			}
			_ = notifier.RecordingFailed(recorder.Describe(err))
		},
	}

	mgr := recorder.New(adapter, opts, app.logger)
	defer closeManager(mgr)

	session, err := mgr.Start(ctx, recorder.StartOptions{
		FileName: flags.name,
		Format:   models.FormatOverride{SampleRateHz: flags.sampleRate, Channels: flags.channels},
		DeviceID: deviceOrDefault(flags.device),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", recorder.Describe(err), err)
	}
	_ = notifier.RecordingStarted(adapter.Label(), session.FilePath)

	if !quiet {
		fmt.Fprintf(os.Stderr, "Recording %s with %s to %s\n", session.Format, adapter.Label(), session.FilePath)
		fmt.Fprintln(os.Stderr, gray.Render("Press Ctrl+C to stop."))
	}

	var timeout <-chan time.Time
	if flags.duration > 0 {
		timer := time.NewTimer(flags.duration)
		defer timer.Stop()
		timeout = timer.C
	}

	var sessionErr error
	select {
	case <-ctx.Done():
	case <-timeout:
	case sessionErr = <-ended:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	result, err := mgr.Stop(stopCtx)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", recorder.Describe(err), err)
	}

	if flags.json {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printResult(result)
	}

	if sessionErr != nil {
		return fmt.Errorf("recording ended early: %w", sessionErr)
	}
	_ = notifier.RecordingComplete(result.FilePath, result.Duration())
	return nil
}

func deviceOrDefault(device string) string {
	if device != "" {
		return device
	}
	return app.cfg.Capture.DeviceID
}

func printResult(r models.RecordingResult) {
	green := lipgloss.NewStyle().Foreground(tui.ColorGreen).Bold(true)
	gray := lipgloss.NewStyle().Foreground(tui.ColorGray)

	fmt.Println(green.Render("Saved ") + r.FilePath)
	fmt.Printf("%s %s\n", gray.Render("Format:  "), r.Format)
	fmt.Printf("%s %s\n", gray.Render("Duration:"), tui.FormatDuration(r.Duration()))
	if r.BytesWritten != nil {
		fmt.Printf("%s %s\n", gray.Render("Size:    "), tui.FormatBytes(*r.BytesWritten))
	}
}

// levelBar renders peak as a fixed-width bar, red when clipped
func levelBar(l models.RecordingLevel, width int) string {
	filled := int(l.Peak * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	color := tui.ColorGreen
	if l.Clipped {
		color = tui.ColorRed
	} else if l.Peak > 0.7 {
		color = tui.ColorOrange
	}
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	return bar + lipgloss.NewStyle().Foreground(tui.ColorDarkGray).Render(strings.Repeat("░", width-filled))
}
