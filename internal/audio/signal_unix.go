//go:build !windows

package audio

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// interruptKills is false: the graceful signal lets the backend flush and exit
const interruptKills = false

// setSysProcAttr puts the backend in its own process group
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interrupt delivers the graceful stop signal
func interrupt(p *os.Process, sig syscall.Signal) error {
	if err := p.Signal(sig); err != nil {
		// SIGINT is ignored by some helpers; SIGTERM is the fallback
		if sig != syscall.SIGTERM {
			return p.Signal(syscall.SIGTERM)
		}
		return err
	}
	return nil
}

// exitSignal returns the name of the signal that ended the process, if any
func exitSignal(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}
