package process

import (
	"errors"
	"fmt"
)

// Sentinel errors for the process package.
var (
	// ErrNotConfigured is returned when no interpreter path is configured.
	ErrNotConfigured = errors.New("interpreter not configured")

	// ErrNotFound is returned when the interpreter path does not resolve to an executable.
	ErrNotFound = errors.New("interpreter not found")

	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when trying to start an already running process.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrSupervisorShutdown is returned when the supervisor is shutting down.
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")
)

// LaunchError reports an OS-level launch failure, including a process that
// exited inside the launch grace window.
type LaunchError struct {
	// Path is the executable that failed to launch.
	Path string

	// Detail describes the failure.
	Detail string

	// ExitCode is the exit code of a process that exited during the grace
	// window, or -1 when the process never started.
	ExitCode int

	// Stderr holds any error output captured before the failure.
	Stderr string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launch %s: %s", e.Path, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}
