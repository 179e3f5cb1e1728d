package process

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Supervisor tracks interpreter processes so they can be torn down together.
//
// Processes are removed from tracking once they exit. Supervisor is safe for
// concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process
	monitors  sync.WaitGroup

	// shutdown is closed when Shutdown begins
	shutdown chan struct{}
	closed   atomic.Bool

	// maxProcesses limits concurrent processes (0 = unlimited)
	maxProcesses int

	onProcessExit func(p *Process)
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses sets the maximum number of concurrent processes.
// A value of 0 (default) means unlimited.
func WithMaxProcesses(max int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcesses = max
	}
}

// WithProcessExitCallback sets a callback for when tracked processes exit.
func WithProcessExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onProcessExit = fn
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn launches spec via Spawn and tracks the resulting process.
//
// Returns ErrSupervisorShutdown if the supervisor is shutting down.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (*Process, error) {
	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}

	s.mu.RLock()
	full := s.maxProcesses > 0 && len(s.processes) >= s.maxProcesses
	s.mu.RUnlock()
	if full {
		return nil, fmt.Errorf("process limit reached: %d", s.maxProcesses)
	}

	proc, err := spawn(ctx, uuid.New().String(), spec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Shutdown may have started while the grace window was running.
	if s.closed.Load() {
		s.mu.Unlock()
		_ = proc.Kill()
		<-proc.Done()
		_ = proc.Close()
		return nil, ErrSupervisorShutdown
	}
	s.processes[proc.ID] = proc
	s.monitors.Add(1)
	s.mu.Unlock()

	go s.monitorProcess(proc)

	return proc, nil
}

// monitorProcess removes proc from tracking once it exits.
func (s *Supervisor) monitorProcess(proc *Process) {
	defer s.monitors.Done()
	<-proc.Done()

	if s.onProcessExit != nil {
		func() {
			defer func() {
				// A failing callback must not take the supervisor down.
				_ = recover()
			}()
			s.onProcessExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// List returns all tracked processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		result = append(result, p)
	}
	return result
}

// Count returns the number of tracked processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// KillAll kills all tracked processes immediately.
func (s *Supervisor) KillAll() {
	for _, p := range s.List() {
		if p.IsRunning() {
			_ = p.Kill()
		}
	}
}

// Shutdown terminates every tracked process.
//
// It sends SIGTERM and waits up to timeout; anything still running afterwards
// is killed. Shutdown blocks until all processes have exited and been removed.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	// Taken with s.mu so Spawn cannot add a monitor after Wait starts.
	s.mu.Lock()
	already := s.closed.Swap(true)
	s.mu.Unlock()
	if already {
		return
	}
	close(s.shutdown)

	procs := s.List()
	for _, p := range procs {
		if p.IsRunning() {
			_ = p.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		s.monitors.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.KillAll()
		<-done
	}
}

// IsShuttingDown returns true once Shutdown has been called.
func (s *Supervisor) IsShuttingDown() bool {
	return s.closed.Load()
}

// ShutdownChan returns a channel that is closed when shutdown begins.
func (s *Supervisor) ShutdownChan() <-chan struct{} {
	return s.shutdown
}
