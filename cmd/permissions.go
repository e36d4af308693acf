package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

var (
	permissionsOpen    bool
	permissionsAdapter string
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show or fix the audio capture permission",
	Long: `Report whether the operating system allows the selected adapter to capture
audio. With --open, the system privacy settings are opened where supported (macOS).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, err := newAdapter(permissionsAdapter)
		if err != nil {
			return err
		}

		status := audio.PermissionStatus(cmd.Context(), adapter)
		fmt.Printf("%s: %s\n", adapter.Label(), status)
		if status == models.PermissionUnknown {
			fmt.Println("The status is only known after a recording has been attempted.")
		}

		if !permissionsOpen {
			return nil
		}
		if err := audio.OpenPreferences(cmd.Context(), adapter); err != nil {
			if errors.Is(err, audio.ErrUnsupported) || errors.Is(err, audio.ErrUnsupportedPlatform) {
				return fmt.Errorf("%s has no privacy settings to open", adapter.Label())
			}
			return fmt.Errorf("failed to open privacy settings: %w", err)
		}
		return nil
	},
}

func init() {
	permissionsCmd.Flags().BoolVar(&permissionsOpen, "open", false, "Open the system privacy settings")
	permissionsCmd.Flags().StringVarP(&permissionsAdapter, "adapter", "a", "", "Capture adapter (default: from config)")

	rootCmd.AddCommand(permissionsCmd)
}
