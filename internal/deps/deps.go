package deps

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/kartoza/kartoza-audio-capture/internal/audio"
	"github.com/kartoza/kartoza-audio-capture/internal/config"
)

// Dependency represents an external program a capture backend needs
type Dependency struct {
	Name        string // Executable name (e.g., "parec")
	Description string // Human-readable description
	Required    bool   // If true, the selected adapter cannot record without it
	Adapter     string // Adapter that uses it, empty for general tools
	Platforms   []string

	locate func() (string, error)
}

// CheckResult contains the result of checking a dependency
type CheckResult struct {
	Dependency Dependency
	Available  bool
	Path       string // Path to the executable if found
	Error      error  // Error if check failed
}

// HostInfo summarises the machine for dependency reports
type HostInfo struct {
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
}

// Host reports the operating system and version
func Host(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}, fmt.Errorf("failed to read host info: %w", err)
	}
	return HostInfo{
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Arch:            info.KernelArch,
	}, nil
}

// backendDeps lists the executables behind each adapter, located the same way the adapters do
func backendDeps(cfg config.CaptureConfig) []Dependency {
	loc := func(name, env string) func() (string, error) {
		return audio.NewLocator(name, cfg.HelperPath, env, cfg.Packaged).Resolve
	}
	return []Dependency{
		{
			Name:        audio.MiniAudioBinary,
			Description: "Native loopback helper (WASAPI, Core Audio, PulseAudio)",
			Adapter:     audio.MiniAudioID,
			Platforms:   []string{"windows", "darwin", "linux"},
			locate:      loc(audio.MiniAudioBinary, audio.MiniAudioHelperEnv),
		},
		{
			Name:        audio.AudioTeeBinary,
			Description: "Application audio tap for macOS 14.2+",
			Adapter:     audio.AudioTeeID,
			Platforms:   []string{"darwin"},
			locate:      loc(audio.AudioTeeBinary, audio.AudioTeeEnv),
		},
		{
			Name:        audio.ParecBinary,
			Description: "PulseAudio/PipeWire monitor recording",
			Adapter:     audio.ParecID,
			Platforms:   []string{"linux"},
			locate:      loc(audio.ParecBinary, audio.ParecEnv),
		},
		{
			Name:        audio.FFmpegBinary,
			Description: "Device capture through ffmpeg",
			Adapter:     audio.FFmpegID,
			Platforms:   []string{"windows", "darwin", "linux"},
			locate:      loc(audio.FFmpegBinary, audio.FFmpegEnv),
		},
	}
}

// OptionalDeps lists tools that enhance functionality
var OptionalDeps = []Dependency{
	{
		Name:        "pactl",
		Description: "Lists PulseAudio/PipeWire monitor sources",
		Platforms:   []string{"linux"},
	},
	{
		Name:        "notify-send",
		Description: "Desktop notifications",
		Platforms:   []string{"linux"},
	},
	{
		Name:        "osascript",
		Description: "Desktop notifications",
		Platforms:   []string{"darwin"},
	},
}

func (d Dependency) supported() bool {
	if len(d.Platforms) == 0 {
		return true
	}
	for _, p := range d.Platforms {
		if p == runtime.GOOS {
			return true
		}
	}
	return false
}

// Check verifies if a single dependency is available
func Check(dep Dependency) CheckResult {
	result := CheckResult{Dependency: dep}

	locate := dep.locate
	if locate == nil {
		locate = func() (string, error) { return exec.LookPath(dep.Name) }
	}

	path, err := locate()
	if err != nil {
		result.Available = false
		result.Error = err
	} else {
		result.Available = true
		result.Path = path
	}

	return result
}

// CheckAll verifies the backends usable on this platform. The one behind
// the selected adapter is required; the rest are optional.
func CheckAll(cfg config.Config) (required []CheckResult, optional []CheckResult) {
	selected := cfg.Adapter
	if selected == "" {
		selected = audio.DefaultName()
	}

	for _, dep := range backendDeps(cfg.Capture) {
		if !dep.supported() {
			continue
		}
		if dep.Adapter == selected {
			dep.Required = true
			required = append(required, Check(dep))
		} else {
			optional = append(optional, Check(dep))
		}
	}
	for _, dep := range OptionalDeps {
		if dep.supported() {
			optional = append(optional, Check(dep))
		}
	}
	return required, optional
}

// MissingRequired returns the required dependencies that were not found
func MissingRequired(required []CheckResult) []CheckResult {
	var missing []CheckResult
	for _, r := range required {
		if !r.Available {
			missing = append(missing, r)
		}
	}
	return missing
}

// FormatMissing returns a formatted string of missing dependencies
func FormatMissing(results []CheckResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Missing dependencies:\n\n")

	for _, r := range results {
		status := "MISSING"
		if r.Dependency.Required {
			status = "REQUIRED"
		}
		sb.WriteString(fmt.Sprintf("  • %s (%s)\n", r.Dependency.Name, status))
		sb.WriteString(fmt.Sprintf("    %s\n", r.Dependency.Description))
		if r.Error != nil {
			sb.WriteString(fmt.Sprintf("    %s\n", r.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatAll returns a formatted string of all dependency check results
func FormatAll(info HostInfo, required, optional []CheckResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Host: %s %s (%s, kernel %s)\n\n", info.Platform, info.PlatformVersion, info.Arch, info.KernelVersion))

	sb.WriteString("Required dependencies:\n")
	for _, r := range required {
		writeResult(&sb, r, "✗")
	}

	sb.WriteString("\nOptional dependencies:\n")
	for _, r := range optional {
		writeResult(&sb, r, "○")
	}

	return sb.String()
}

func writeResult(sb *strings.Builder, r CheckResult, missing string) {
	status := "✓"
	if !r.Available {
		status = missing
	}
	name := r.Dependency.Name
	if r.Dependency.Adapter != "" {
		name += " [" + r.Dependency.Adapter + "]"
	}
	sb.WriteString(fmt.Sprintf("  %s %s - %s\n", status, name, r.Dependency.Description))
	if r.Available {
		sb.WriteString(fmt.Sprintf("      Path: %s\n", r.Path))
	}
}
