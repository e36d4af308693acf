//go:build windows

package audio

import (
	"os"
	"os/exec"
	"syscall"
)

// interruptKills is true: there is no graceful signal, interrupt is a kill
const interruptKills = true

// setSysProcAttr hides the console window of the backend
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

// interrupt kills the process
func interrupt(p *os.Process, _ syscall.Signal) error {
	return p.Kill()
}

// exitSignal is always empty on Windows
func exitSignal(*os.ProcessState) string {
	return ""
}
