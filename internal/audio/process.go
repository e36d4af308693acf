package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// proc is the explicit state of one spawned backend process. The exit
// handler reads requestedStop to tell a stop we asked for from a crash.
type proc struct {
	name       string
	cmd        *exec.Cmd
	stopSignal syscall.Signal
	// acceptCodes are exit codes treated as clean after a requested stop
	acceptCodes []int
	stderr      *tail
	logger      *zap.Logger
	release     func()
	// onExit runs before waiters are released, with the classified exit
	onExit func(err error, requested bool)

	mu            sync.Mutex
	requestedStop bool
	exited        bool
	forceKilled   bool
	killTimer     *time.Timer
	exitErr       error
	done          chan struct{}
}

func newProc(name string, cmd *exec.Cmd, stopSignal syscall.Signal, logger *zap.Logger) *proc {
	setSysProcAttr(cmd)
	return &proc{
		name:       name,
		cmd:        cmd,
		stopSignal: stopSignal,
		stderr:     &tail{},
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// start launches the process and registers it with tracker
func (p *proc) start(tracker *Tracker) error {
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %w", ErrBackendProcess, p.name, err)
	}

	release, err := tracker.Track(fmt.Sprintf("%s (pid %d)", p.name, p.cmd.Process.Pid), func() error {
		p.forceKill()
		return nil
	})
	if err != nil {
		p.forceKill()
		_ = p.cmd.Wait()
		return err
	}
	p.release = release

	p.logger.Debug("backend started", zap.Int("pid", p.cmd.Process.Pid), zap.Strings("args", p.cmd.Args[1:]))
	return nil
}

// run drains the output pumps, reaps the process and records the exit.
// It blocks until the process is gone.
func (p *proc) run(pumps ...func() error) {
	var g errgroup.Group
	for _, pump := range pumps {
		g.Go(pump)
	}
	pumpErr := g.Wait()
	waitErr := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.exitErr = p.classify(waitErr)
	if p.exitErr == nil && pumpErr != nil {
		p.exitErr = fmt.Errorf("%w: reading %s output: %w", ErrBackendProcess, p.name, pumpErr)
	}
	exitErr, requested := p.exitErr, p.requestedStop
	p.mu.Unlock()

	if p.release != nil {
		p.release()
	}
	p.logger.Debug("backend exited", zap.Error(waitErr), zap.Bool("requested", requested))
	if p.onExit != nil {
		p.onExit(exitErr, requested)
	}
	close(p.done)
}

// classify must be called with mu held
func (p *proc) classify(waitErr error) error {
	state := p.cmd.ProcessState
	code := -1
	if state != nil {
		code = state.ExitCode()
	}
	signal := exitSignal(state)

	if p.requestedStop {
		switch {
		case code == 0, signal != "", p.forceKilled, interruptKills:
			return nil
		case slices.Contains(p.acceptCodes, code):
			return nil
		}
	}

	if waitErr != nil && state == nil {
		return fmt.Errorf("%w: %s: %w", ErrBackendProcess, p.name, waitErr)
	}
	return &ExitError{
		Backend: p.name,
		Code:    code,
		Signal:  signal,
		Stderr:  p.stderr.String(),
	}
}

// requestStop sends the graceful signal and arms the force-kill timer
func (p *proc) requestStop(grace time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited || p.requestedStop {
		return
	}
	p.requestedStop = true

	if err := interrupt(p.cmd.Process, p.stopSignal); err != nil {
		p.logger.Warn("graceful stop signal failed, killing", zap.Error(err))
		go p.forceKill()
		return
	}
	p.killTimer = time.AfterFunc(grace, func() {
		p.logger.Warn("backend ignored stop signal, killing", zap.Duration("grace", grace))
		p.forceKill()
	})
}

// forceKill kills the process and every descendant
func (p *proc) forceKill() {
	p.mu.Lock()
	if p.exited || p.cmd.Process == nil {
		p.mu.Unlock()
		return
	}
	p.forceKilled = true
	pid := p.cmd.Process.Pid
	p.mu.Unlock()

	if err := killTree(int32(pid)); err != nil {
		p.logger.Debug("process tree kill incomplete", zap.Error(err))
		_ = p.cmd.Process.Kill()
	}
}

// wait blocks until the process has exited. If ctx ends first the process is
// killed, so wait always returns.
func (p *proc) wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.forceKill()
		<-p.done
	}
	return p.err()
}

func (p *proc) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *proc) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestedStop
}

func (p *proc) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func killTree(pid int32) error {
	root, err := process.NewProcess(pid)
	if err != nil {
		return err
	}

	var errs []error
	children, err := root.Children()
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		errs = append(errs, err)
	}
	for _, child := range children {
		if err := killTree(child.Pid); err != nil {
			errs = append(errs, err)
		}
	}
	if err := root.Kill(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
