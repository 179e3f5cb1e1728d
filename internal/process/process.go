package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Handlers receive asynchronous notifications from a running process.
type Handlers struct {
	// OnStderrLine receives each line of standard error, without its terminator.
	// Calls are serialized and arrive in output order.
	OnStderrLine func(line string)

	// OnExit is called exactly once after the process exits and all standard
	// error output has been delivered.
	OnExit func(p *Process)
}

// Process represents an interpreter child process.
//
// Process wraps an exec.Cmd with lifecycle management, exit tracking,
// and standard I/O access. It is safe for concurrent use.
type Process struct {
	// ID is the unique identifier for this process.
	ID string

	// Name is a human-readable name for the process.
	Name string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Stdin provides write access to the process's stdin.
	Stdin io.WriteCloser

	// Stdout provides read access to the process's stdout.
	Stdout io.ReadCloser

	// Started is the time the process was started.
	Started time.Time

	stderr *lineWriter

	// done is closed when the process exits.
	done chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	waitOnce sync.Once

	hmu          sync.Mutex
	onExit       func(p *Process)
	exited       bool
	exitNotified bool
}

// newProcess creates a Process wrapping the given command.
// The command must not be started.
func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:     id,
		Name:   name,
		Cmd:    cmd,
		stderr: newLineWriter(),
		done:   make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1) // -1 indicates not exited
	return p
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code.
// Returns -1 if the process has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns any error from waiting on the process.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited (normally or killed).
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Attach installs the notification handlers. Buffered standard error lines are
// replayed to OnStderrLine before Attach returns. If the process already exited,
// OnExit runs in a new goroutine.
func (p *Process) Attach(h Handlers) {
	// Replay stderr first so an exit handler never runs ahead of buffered lines.
	p.stderr.attach(h.OnStderrLine)

	p.hmu.Lock()
	p.onExit = h.OnExit
	fire := p.exited && !p.exitNotified && h.OnExit != nil
	if fire {
		p.exitNotified = true
	}
	p.hmu.Unlock()

	if fire {
		go h.OnExit(p)
	}
}

// Signal sends a signal to the process.
// Returns an error if the process is not running.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() {
		return fmt.Errorf("process not running: %w", ErrProcessNotStarted)
	}

	if p.Cmd.Process == nil {
		return ErrProcessNotStarted
	}

	return p.Cmd.Process.Signal(sig)
}

// Kill forcibly terminates the process. Killing a process that has already
// exited, including one that exits between the liveness check and the kill, is
// not an error.
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return ErrProcessNotStarted
	}
	if p.HasExited() {
		return nil
	}
	err := p.Cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Terminate sends SIGTERM to the process.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// start starts the process and begins tracking it.
func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}

	if err := p.Cmd.Start(); err != nil {
		return err
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))

	go p.waitLoop()

	return nil
}

// waitLoop waits for the process to exit, updates state, and raises the exit
// notification.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		// Wait returns only after the stderr copier drained the pipe.
		err := p.Cmd.Wait()
		p.stderr.flush()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		state := StateExited

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)

		p.hmu.Lock()
		p.exited = true
		h := p.onExit
		fire := h != nil && !p.exitNotified
		if fire {
			p.exitNotified = true
		}
		p.hmu.Unlock()

		if fire {
			h(p)
		}
	})
}

// Close closes the I/O handles owned by the host side. It does not kill the process.
func (p *Process) Close() error {
	var errs []error

	if p.Stdin != nil {
		if err := p.Stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close stdin: %w", err))
		}
	}

	if p.Stdout != nil {
		if err := p.Stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close stdout: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Runtime returns the duration the process has been running.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	return time.Since(p.Started)
}
