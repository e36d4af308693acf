package notify

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

type call struct {
	name string
	args []string
}

func captureCommands(t *testing.T) *[]call {
	t.Helper()
	var calls []call
	orig := runCommand
	runCommand = func(name string, args ...string) error {
		calls = append(calls, call{name, args})
		return nil
	}
	t.Cleanup(func() { runCommand = orig })
	return &calls
}

func TestNotifier_Disabled(t *testing.T) {
	calls := captureCommands(t)

	if err := New(false).RecordingStarted("parec", "/tmp/a.wav"); err != nil {
		t.Fatal(err)
	}
	var nilNotifier *Notifier
	if err := nilNotifier.Info("x", "y"); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Errorf("expected no commands, got %v", *calls)
	}
}

func TestNotifier_RecordingComplete(t *testing.T) {
	calls := captureCommands(t)

	if err := New(true).RecordingComplete("/home/me/Music/Recordings/take.wav", 90500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one command, got %d", len(*calls))
	}

	c := (*calls)[0]
	joined := strings.Join(c.args, " ")
	if !strings.Contains(joined, "take.wav saved (1m31s)") {
		t.Errorf("unexpected body: %s", joined)
	}
	if runtime.GOOS == "darwin" {
		if c.name != "osascript" {
			t.Errorf("expected osascript, got %s", c.name)
		}
		return
	}
	if c.name != "notify-send" {
		t.Errorf("expected notify-send, got %s", c.name)
	}
	if !strings.Contains(joined, "--urgency=normal") {
		t.Errorf("expected normal urgency: %s", joined)
	}
}

func TestNotifier_RecordingFailedIsCritical(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("osascript has no urgency")
	}
	calls := captureCommands(t)

	if err := New(true).RecordingFailed("The recording backend crashed."); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join((*calls)[0].args, " ")
	if !strings.Contains(joined, "--urgency=critical") || !strings.Contains(joined, "--icon=dialog-error") {
		t.Errorf("unexpected args: %s", joined)
	}
}
