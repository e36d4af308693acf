package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/tui"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

var inspectJSON bool

// wavInfo is what inspect reports about a file
type wavInfo struct {
	Path       string           `json:"path"`
	Format     models.WavFormat `json:"format"`
	DataBytes  int64            `json:"data_bytes"`
	FileBytes  int64            `json:"file_bytes"`
	DurationMs int64            `json:"duration_ms"`
	// Finalized is false when the header sizes do not match the file, e.g. after a crash
	Finalized bool `json:"finalized"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.wav>",
	Short: "Show the format and length of a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := inspectFile(args[0])
		if err != nil {
			return err
		}

		if inspectJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		gray := lipgloss.NewStyle().Foreground(tui.ColorGray)
		fmt.Printf("%s %s\n", gray.Render("File:     "), info.Path)
		fmt.Printf("%s %s\n", gray.Render("Format:   "), info.Format)
		fmt.Printf("%s %s\n", gray.Render("Duration: "), tui.FormatDuration(time.Duration(info.DurationMs)*time.Millisecond))
		fmt.Printf("%s %s\n", gray.Render("Audio:    "), tui.FormatBytes(info.DataBytes))
		if !info.Finalized {
			fmt.Println(lipgloss.NewStyle().Foreground(tui.ColorOrange).Render("Header does not match the file size; the recording was not finalized."))
		}
		return nil
	},
}

func inspectFile(path string) (wavInfo, error) {
	h, err := wav.ReadFileHeader(path)
	if err != nil {
		return wavInfo{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return wavInfo{}, err
	}
	return wavInfo{
		Path:       path,
		Format:     h.Format(),
		DataBytes:  int64(h.DataSize),
		FileBytes:  st.Size(),
		DurationMs: h.DurationMs(),
		Finalized:  st.Size() == int64(h.DataSize)+wav.HeaderSize,
	}, nil
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(inspectCmd)
}
