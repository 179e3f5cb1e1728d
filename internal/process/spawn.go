package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

const (
	// DefaultLaunchGrace is how long Spawn waits for an immediate exit.
	DefaultLaunchGrace = 100 * time.Millisecond

	// outputWaitDelay bounds how long Wait keeps draining standard error after
	// the interpreter exits, in case a grandchild still holds the pipe open.
	outputWaitDelay = 2 * time.Second
)

// Spec describes how to launch an interpreter.
type Spec struct {
	// Name is a human-readable name used in logs.
	Name string

	// Path is the interpreter executable.
	Path string

	// Args are free-form interpreter arguments, split shell-style into tokens.
	Args string

	// ExtraArgs are appended verbatim after Args (typically the companion script).
	ExtraArgs []string

	// Dir is the working directory. Defaults to the directory of Path.
	Dir string

	// Env is the complete child environment. Nil inherits the host environment.
	Env []string

	// LaunchGrace is how long to wait for an immediate exit.
	// Zero uses DefaultLaunchGrace; a negative value disables the check.
	LaunchGrace time.Duration
}

// Validate checks that the interpreter path is configured and exists.
// A blank path is rejected without touching the file system.
func Validate(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrNotConfigured
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return nil
}

// SplitArgs splits a free-form argument string into argv tokens. Quoted
// tokens keep their embedded whitespace.
func SplitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	return shlex.Split(args)
}

// Command builds the exec.Cmd for spec without starting it.
func Command(spec Spec) (*exec.Cmd, error) {
	args, err := SplitArgs(spec.Args)
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Detail: "parse interpreter arguments", ExitCode: -1, Err: err}
	}
	args = append(args, spec.ExtraArgs...)

	cmd := exec.Command(spec.Path, args...)
	cmd.Env = spec.Env
	cmd.WaitDelay = outputWaitDelay
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	} else {
		cmd.Dir = filepath.Dir(spec.Path)
	}
	return cmd, nil
}

// Spawn starts the interpreter described by spec with standard input, output,
// and error redirected. See the package documentation for failure semantics.
func Spawn(ctx context.Context, spec Spec) (*Process, error) {
	return spawn(ctx, uuid.New().String(), spec)
}

func spawn(ctx context.Context, id string, spec Spec) (*Process, error) {
	if err := Validate(spec.Path); err != nil {
		return nil, err
	}

	cmd, err := Command(spec)
	if err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = filepath.Base(spec.Path)
	}
	proc := newProcess(id, name, cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Detail: "create stdin pipe", ExitCode: -1, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &LaunchError{Path: spec.Path, Detail: "create stdout pipe", ExitCode: -1, Err: err}
	}
	// A non-file writer makes Wait drain stderr before returning.
	cmd.Stderr = proc.stderr

	proc.Stdin = stdin
	proc.Stdout = stdout

	if err := proc.start(); err != nil {
		_ = proc.Close()
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, spec.Path)
		}
		return nil, &LaunchError{Path: spec.Path, Detail: "start process", ExitCode: -1, Err: err}
	}

	grace := spec.LaunchGrace
	if grace == 0 {
		grace = DefaultLaunchGrace
	}
	if grace < 0 {
		return proc, nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-proc.Done():
		_ = proc.Close()
		return nil, &LaunchError{
			Path:     spec.Path,
			Detail:   fmt.Sprintf("process exited immediately with code %d", proc.ExitCode()),
			ExitCode: proc.ExitCode(),
			Stderr:   proc.stderr.buffered(),
		}
	case <-ctx.Done():
		_ = proc.Kill()
		<-proc.Done()
		_ = proc.Close()
		return nil, ctx.Err()
	case <-timer.C:
	}

	return proc, nil
}
