package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/deps"
	"github.com/kartoza/kartoza-audio-capture/internal/tui"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Check for capture backends",
	Long:  `Check which capture helpers are installed and which one the configured adapter needs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		required, optional := deps.CheckAll(*app.cfg)
		missing := deps.MissingRequired(required)

		if !isatty.IsTerminal(os.Stdout.Fd()) {
			host, _ := deps.Host(cmd.Context())
			fmt.Print(deps.FormatAll(host, required, optional))
			if len(missing) > 0 {
				return fmt.Errorf("%w: %s", audio.ErrBackendUnavailable, missing[0].Dependency.Name)
			}
			return nil
		}

		green := lipgloss.NewStyle().Foreground(tui.ColorGreen)
		red := lipgloss.NewStyle().Foreground(tui.ColorRed)
		gray := lipgloss.NewStyle().Foreground(tui.ColorGray)
		cyan := lipgloss.NewStyle().Foreground(tui.ColorBlue)
		bold := lipgloss.NewStyle().Bold(true)

		fmt.Println()

		host, err := deps.Host(cmd.Context())
		if err != nil {
			fmt.Printf("%s %s\n", bold.Render("Host:"), gray.Render(err.Error()))
		} else {
			fmt.Printf("%s %s\n", bold.Render("Host:"), cyan.Render(fmt.Sprintf("%s %s (%s)", host.Platform, host.PlatformVersion, host.Arch)))
		}

		adapter := app.cfg.Adapter
		if adapter == "" {
			adapter = audio.DefaultName()
		}
		fmt.Printf("%s %s\n\n", bold.Render("Adapter:"), cyan.Render(adapter))

		printResults := func(title string, results []deps.CheckResult, missing string) {
			fmt.Println(bold.Render(title))
			fmt.Println()
			for _, r := range results {
				status := green.Render("✓")
				if !r.Available {
					status = missing
				}
				name := r.Dependency.Name
				if r.Dependency.Adapter != "" && r.Dependency.Adapter != name {
					name += " (" + r.Dependency.Adapter + ")"
				}
				fmt.Printf("  %s %s\n", status, bold.Render(name))
				fmt.Printf("    %s\n", gray.Render(r.Dependency.Description))
				if r.Available {
					fmt.Printf("    Path: %s\n", r.Path)
				}
				fmt.Println()
			}
		}

		printResults("Required Dependencies:", required, red.Render("✗"))
		printResults("Optional Dependencies:", optional, gray.Render("○"))

		if len(missing) > 0 {
			fmt.Println(red.Render("The configured adapter cannot record."))
			fmt.Print(deps.FormatMissing(missing))
			return fmt.Errorf("%w: %s", audio.ErrBackendUnavailable, missing[0].Dependency.Name)
		}
		fmt.Println(green.Render("All required dependencies are installed!"))
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
