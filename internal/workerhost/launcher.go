// Package workerhost starts, kills and reaps annotation worker processes.
//
// A worker is a child process that inherits its channel ends as extra file
// descriptors (see package ipc). By default the worker is the running binary
// itself, re-executed with the hidden worker subcommand.
package workerhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rshade/varbatch/internal/logging"
)

const (
	// WorkerCommandName is the hidden CLI subcommand a worker runs.
	WorkerCommandName = "__worker"

	// DefaultStderrTail is how many trailing stderr bytes are kept per worker.
	DefaultStderrTail = 4096

	processWaitDelay = 500 * time.Millisecond // Time to wait for I/O after the process exits
)

var (
	// ErrNotStarted is returned by Launcher.Start when the command could not be executed.
	ErrNotStarted = errors.New("worker process not started")

	// ErrUnsupportedPlatform is returned by CheckPlatform where workers cannot
	// inherit their channel descriptors.
	ErrUnsupportedPlatform = errors.New("worker processes are not supported on this platform")
)

// Command describes how to execute a worker.
type Command struct {
	Path string
	Args []string
	// Env is appended to the parent environment.
	Env []string
}

// SelfCommand returns the command that re-executes the current binary as a
// worker, or runs workerBinary when it is set.
func SelfCommand(workerBinary string) (Command, error) {
	path := workerBinary
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return Command{}, fmt.Errorf("resolving own executable: %w", err)
		}
		path = exe
	}
	return Command{Path: path, Args: []string{WorkerCommandName}}, nil
}

// Launcher starts worker processes from a fixed Command.
type Launcher struct {
	command    Command
	stderrTail int
}

// NewLauncher creates a launcher for command.
func NewLauncher(command Command) *Launcher {
	return &Launcher{command: command, stderrTail: DefaultStderrTail}
}

// WithStderrTail sets how many trailing stderr bytes each Process keeps.
func (l *Launcher) WithStderrTail(n int) *Launcher {
	l.stderrTail = n
	return l
}

// Command returns the launcher's command.
func (l *Launcher) Command() Command {
	return l.command
}

// Start launches one worker. extraFiles become descriptors 3, 4, ... in the
// child. The caller must eventually call Wait exactly as it would for
// exec.Cmd; Kill is safe at any time.
func (l *Launcher) Start(ctx context.Context, extraFiles []*os.File) (*Process, error) {
	log := logging.FromContext(ctx)

	//nolint:gosec // worker path comes from os.Executable or operator configuration
	cmd := exec.Command(l.command.Path, l.command.Args...)
	cmd.Env = append(os.Environ(), l.command.Env...)
	cmd.ExtraFiles = extraFiles

	stderr := NewTailBuffer(l.stderrTail)
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	cmd.WaitDelay = processWaitDelay
	configureProcess(cmd)

	if err := CheckPlatform(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotStarted, err)
	}
	if err := cmd.Start(); err != nil {
		log.Error().
			Ctx(ctx).
			Str("component", "workerhost").
			Str("operation", "start_worker").
			Str("worker_path", l.command.Path).
			Err(err).
			Msg("failed to start worker process")
		return nil, fmt.Errorf("%w: %w", ErrNotStarted, err)
	}

	log.Debug().
		Ctx(ctx).
		Str("component", "workerhost").
		Str("operation", "start_worker").
		Int("pid", cmd.Process.Pid).
		Msg("worker process started")

	return &Process{PID: cmd.Process.Pid, cmd: cmd, stderr: stderr}, nil
}

// Process is a started worker.
type Process struct {
	PID int

	cmd    *exec.Cmd
	stderr *TailBuffer

	waitOnce sync.Once
	waitErr  error

	mu     sync.Mutex
	reaped bool
	killed bool
}

// Kill terminates the worker and its process group. It is a no-op once the
// process has been reaped.
func (p *Process) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaped || p.killed {
		return
	}
	p.killed = true
	_ = terminateProcess(p.cmd)
}

// Killed reports whether Kill signalled the process.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Wait reaps the process. Repeated calls return the first result.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.mu.Lock()
		p.reaped = true
		p.mu.Unlock()
	})
	return p.waitErr
}

// Reaped reports whether Wait has returned.
func (p *Process) Reaped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reaped
}

// ExitCode returns the exit code after Wait, or -1 if unknown or signalled.
func (p *Process) ExitCode() int {
	if !p.Reaped() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// StderrTail returns the last bytes the worker wrote to stdout or stderr.
func (p *Process) StderrTail() string {
	return p.stderr.String()
}
