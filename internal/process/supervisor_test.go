package process

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSupervisor(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	if s.Count() != 0 {
		t.Errorf("expected 0 processes, got %d", s.Count())
	}
	if s.IsShuttingDown() {
		t.Error("expected IsShuttingDown() to be false")
	}
}

func TestSupervisor_SpawnTracksUntilExit(t *testing.T) {
	sh := shellPath(t)
	var exits atomic.Int32
	s := NewSupervisor(WithProcessExitCallback(func(*Process) { exits.Add(1) }))
	defer s.Shutdown(time.Second)

	proc, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 0.3'"})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if list := s.List(); len(list) != 1 || list[0] != proc {
		t.Errorf("expected only the spawned process to be tracked, got %v", list)
	}

	<-proc.Done()
	deadline := time.Now().Add(2 * time.Second)
	for s.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Count() != 0 {
		t.Errorf("expected 0 processes after exit, got %d", s.Count())
	}
	if exits.Load() != 1 {
		t.Errorf("expected exit callback once, got %d", exits.Load())
	}
}

func TestSupervisor_MaxProcesses(t *testing.T) {
	sh := shellPath(t)
	s := NewSupervisor(WithMaxProcesses(1))
	defer s.Shutdown(time.Second)

	if _, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 10'"}); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if _, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 10'"}); err == nil {
		t.Error("expected error when exceeding max processes")
	}
}

func TestSupervisor_Shutdown(t *testing.T) {
	sh := shellPath(t)
	s := NewSupervisor()

	for i := 0; i < 3; i++ {
		if _, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 10'"}); err != nil {
			t.Fatalf("spawn failed: %v", err)
		}
	}

	start := time.Now()
	s.Shutdown(2 * time.Second)
	if time.Since(start) > 5*time.Second {
		t.Error("shutdown took too long")
	}
	if s.Count() != 0 {
		t.Errorf("expected 0 processes after shutdown, got %d", s.Count())
	}

	select {
	case <-s.ShutdownChan():
	default:
		t.Error("expected shutdown channel to be closed")
	}

	_, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 10'"})
	if !errors.Is(err, ErrSupervisorShutdown) {
		t.Errorf("expected ErrSupervisorShutdown, got %v", err)
	}

	// Second shutdown is a no-op.
	s.Shutdown(time.Second)
}

func TestSupervisor_ShutdownDuringSpawn(t *testing.T) {
	sh := shellPath(t)
	s := NewSupervisor()

	procs := make(chan *Process, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 8; i++ {
			p, err := s.Spawn(context.Background(), Spec{Path: sh, Args: "-c 'sleep 10'"})
			if err != nil {
				if !errors.Is(err, ErrSupervisorShutdown) {
					t.Errorf("unexpected spawn error: %v", err)
				}
				return
			}
			procs <- p
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Shutdown(2 * time.Second)
	<-done
	close(procs)

	for p := range procs {
		select {
		case <-p.Done():
		case <-time.After(time.Second):
			t.Errorf("process %s outlived Shutdown", p.ID)
		}
	}
}
