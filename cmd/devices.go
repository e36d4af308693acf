package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/tui"
)

var (
	devicesAdapter string
	devicesJSON    bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Long:  `List the devices the selected adapter can record from. Pass an id to 'record --device'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, err := newAdapter(devicesAdapter)
		if err != nil {
			return err
		}

		devices, err := audio.ListDevices(cmd.Context(), adapter)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		if devicesJSON {
			data, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		bold := lipgloss.NewStyle().Bold(true)
		gray := lipgloss.NewStyle().Foreground(tui.ColorGray)
		marker := lipgloss.NewStyle().Foreground(tui.ColorOrange).Bold(true)

		fmt.Printf("%s %s\n\n", bold.Render("Adapter:"), adapter.Label())
		if len(devices) == 0 {
			fmt.Println(gray.Render("  No devices reported; the adapter records its default input."))
			return nil
		}
		for _, d := range devices {
			prefix := "  "
			if d.IsDefault {
				prefix = marker.Render("→ ")
			}
			fmt.Printf("%s%s\n", prefix, bold.Render(d.Name))
			fmt.Printf("    %s\n", gray.Render("id: "+d.ID))
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesAdapter, "adapter", "a", "", "Capture adapter (default: from config)")
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Output devices as JSON")

	rootCmd.AddCommand(devicesCmd)
}
