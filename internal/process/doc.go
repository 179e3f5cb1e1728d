// Package process launches and tracks interpreter child processes.
//
// Spawn validates the configured executable, starts it with piped standard
// streams, and waits a short grace window so that an interpreter that dies on
// startup is reported as a launch failure rather than as a live process.
//
// # Standard error
//
// Standard error is delivered line by line to a push handler. Lines written
// before a handler is attached are kept in a backlog and replayed by Attach, so
// a caller never misses output produced between Spawn returning and wiring up
// its own handlers.
//
// # Exit notification
//
// The exit handler fires exactly once, after all standard error output has been
// delivered. If the process has already exited when Attach is called, the
// handler runs asynchronously right away.
//
//	proc, err := process.Spawn(ctx, process.Spec{
//	    Path:      "/usr/bin/python3",
//	    Args:      "-u",
//	    ExtraArgs: []string{scriptPath},
//	})
//	if err != nil {
//	    return err
//	}
//	proc.Attach(process.Handlers{
//	    OnStderrLine: func(line string) { ... },
//	    OnExit:       func(p *process.Process) { ... },
//	})
//
// # Supervisor
//
// A Supervisor tracks every live process it spawned so the host can terminate
// them all on shutdown.
//
// # Thread Safety
//
// Both Supervisor and Process are safe for concurrent use.
package process
