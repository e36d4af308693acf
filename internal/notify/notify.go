package notify

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// Urgency levels for notifications
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

const appName = "Audio Capture"

// runCommand is replaced in tests
var runCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Notifier sends desktop notifications when enabled
type Notifier struct {
	Enabled bool
}

// New returns a notifier; a disabled one drops every message
func New(enabled bool) *Notifier {
	return &Notifier{Enabled: enabled}
}

// Send sends a desktop notification using notify-send, or osascript on macOS
func (n *Notifier) Send(title, body string, urgency Urgency, icon string) error {
	if n == nil || !n.Enabled {
		return nil
	}

	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return runCommand("osascript", "-e", script)
	}

	args := []string{"--app-name=" + appName, title, body}
	if urgency != "" {
		args = append(args, "--urgency="+string(urgency))
	}
	if icon != "" {
		args = append(args, "--icon="+icon)
	}
	return runCommand("notify-send", args...)
}

// Info sends an informational notification
func (n *Notifier) Info(title, body string) error {
	return n.Send(title, body, UrgencyNormal, "audio-input-microphone")
}

// Error sends an error notification
func (n *Notifier) Error(title, body string) error {
	return n.Send(title, body, UrgencyCritical, "dialog-error")
}

// RecordingStarted notifies that recording has started
func (n *Notifier) RecordingStarted(adapterLabel, path string) error {
	return n.Info("Recording", fmt.Sprintf("Recording with %s to %s", adapterLabel, filepath.Base(path)))
}

// RecordingComplete notifies that the file is finalized
func (n *Notifier) RecordingComplete(path string, duration time.Duration) error {
	return n.Info("Recording Complete", fmt.Sprintf("%s saved (%s)", filepath.Base(path), duration.Round(time.Second)))
}

// RecordingFailed notifies that the session ended with an error
func (n *Notifier) RecordingFailed(message string) error {
	return n.Error("Recording Failed", message)
}
