package repl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/replhost/internal/cdp"
	"github.com/dshills/replhost/internal/process"
	"github.com/dshills/replhost/internal/tracing"
)

// DefaultScope is the scope a new session evaluates in.
const DefaultScope = "__main__"

// State represents the lifecycle state of a Session.
type State int32

const (
	// StateDisconnected means no process has been started.
	StateDisconnected State = iota
	// StateSpawning means the process is being launched.
	StateSpawning
	// StateConnecting means the process runs and the handshake is in flight.
	StateConnecting
	// StateReady means the handshake succeeded.
	StateReady
	// StateExited means the process has exited.
	StateExited
	// StateDisposed means the session was shut down by its owner.
	StateDisposed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSpawning:
		return "spawning"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateExited:
		return "exited"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// sessionOptions are the resolved settings for one Session.
type sessionOptions struct {
	spec             process.Spec
	commandPrefix    string
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	out              Output
	log              Logger
	supervisor       *process.Supervisor
}

type handshake struct {
	done chan struct{}
	err  error
}

// Session is one interpreter process and its connection. It is safe for
// concurrent use.
type Session struct {
	id   string
	opts sessionOptions
	out  Output
	log  Logger

	proc *process.Process
	conn *cdp.Conn

	buffer *preConnectionBuffer

	// handshake is swapped to nil by exit handling.
	handshake atomic.Pointer[handshake]

	state        atomic.Int32
	executing    atomic.Int32
	expectedExit atomic.Bool

	scopeMu sync.RWMutex
	scope   string

	exitOnce    sync.Once
	disposeOnce sync.Once
	exited      chan struct{}
}

// startSession spawns the interpreter, wires its streams, and begins the
// handshake. It does not wait for the handshake.
func startSession(ctx context.Context, opts sessionOptions) (*Session, error) {
	if opts.out == nil {
		opts.out = nopOutput{}
	}
	if opts.log == nil {
		opts.log = nopLogger{}
	}

	s := &Session{
		opts:   opts,
		out:    opts.out,
		log:    opts.log,
		buffer: newPreConnectionBuffer(),
		scope:  DefaultScope,
		exited: make(chan struct{}),
	}
	s.setState(StateSpawning)

	var (
		proc *process.Process
		err  error
	)
	if opts.supervisor != nil {
		proc, err = opts.supervisor.Spawn(ctx, opts.spec)
	} else {
		proc, err = process.Spawn(ctx, opts.spec)
	}
	if err != nil {
		s.setState(StateDisconnected)
		return nil, err
	}

	s.id = proc.ID
	s.proc = proc
	s.log = withField(opts.log, "session", s.id)
	s.log.Info("started interpreter %s (pid %d)", opts.spec.Path, proc.PID())

	s.conn = cdp.NewConn(proc.Stdout, proc.Stdin, cdp.WithParseErrorHandler(func(line []byte, err error) {
		s.log.Debug("skipping companion line (%v): %q", err, line)
	}))
	s.conn.OnEvent(cdp.EventOutput, s.handleOutputEvent)

	hs := &handshake{done: make(chan struct{})}
	s.handshake.Store(hs)
	s.setState(StateConnecting)

	s.conn.Start()
	proc.Attach(process.Handlers{
		OnStderrLine: s.handleStderrLine,
		OnExit:       s.handleExit,
	})

	go s.runHandshake(hs)

	return s, nil
}

// ID returns the session identifier, shared with the underlying process.
func (s *Session) ID() string {
	return s.id
}

// PID returns the interpreter's operating system process ID.
func (s *Session) PID() int {
	return s.proc.PID()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// CurrentScope returns the scope reported by the last evaluation.
func (s *Session) CurrentScope() string {
	s.scopeMu.RLock()
	defer s.scopeMu.RUnlock()
	return s.scope
}

// IsExecuting reports whether an evaluation is in flight.
func (s *Session) IsExecuting() bool {
	return s.executing.Load() > 0
}

// IsConnected reports whether the handshake completed successfully and the
// process is still alive.
func (s *Session) IsConnected() bool {
	return s.State() == StateReady && !s.conn.IsClosed()
}

// SetExpectedExit marks the next process exit as intentional, suppressing
// the exit message.
func (s *Session) SetExpectedExit(expected bool) {
	s.expectedExit.Store(expected)
}

// Exited returns a channel closed after exit handling has completed.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// EnsureConnected waits for the handshake. It returns nil at once if exit
// handling already claimed the handshake.
func (s *Session) EnsureConnected(ctx context.Context) error {
	hs := s.handshake.Load()
	if hs == nil {
		return nil
	}

	select {
	case <-hs.done:
		return hs.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// ExecuteText evaluates text in the interpreter and returns the text to show
// the user.
//
// Text starting with the reserved command prefix is answered locally. A
// response without a result degrades to the response message rather than an
// error; only disconnection and cancellation are errors.
func (s *Session) ExecuteText(ctx context.Context, text string) (result string, err error) {
	if s.opts.commandPrefix != "" && strings.HasPrefix(text, s.opts.commandPrefix) {
		return msgUnknownCommand(strings.TrimSpace(text)), nil
	}

	s.executing.Add(1)
	defer s.executing.Add(-1)

	ctx, span := tracing.StartSpan(ctx, "repl.ExecuteText", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"session": s.id})

	if s.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.requestTimeout)
		defer cancel()
	}

	text = strings.TrimRight(normalizeNewlines(text), " ")
	s.log.Debug("executing %q", text)

	resp, err := s.conn.SendRequest(ctx, cdp.Request{
		Command:   cdp.CommandEvaluate,
		Arguments: map[string]any{"expression": text},
	})
	if err != nil {
		return "", err
	}

	if !resp.Success {
		return resp.Message, nil
	}
	if scope := gjson.GetBytes(resp.Body, "scope"); scope.Type == gjson.String && scope.Str != "" {
		s.setScope(scope.Str)
	}
	if res := gjson.GetBytes(resp.Body, "result"); res.Exists() && res.Type != gjson.Null {
		return res.String(), nil
	}
	return resp.Message, nil
}

// Dispose shuts the session down. It is idempotent. The exit it causes is
// treated as expected.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.expectedExit.Store(true)
		s.setState(StateDisposed)

		if err := s.proc.Kill(); err != nil {
			s.log.Debug("kill interpreter: %v", err)
		}
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close connection: %v", err)
		}
		s.log.Info("session disposed")
	})
}

func (s *Session) runHandshake(hs *handshake) {
	ctx := context.Background()
	if s.opts.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.handshakeTimeout)
		defer cancel()
	}

	err := s.conn.Initialize(ctx)
	if err == nil {
		if text, ok := s.buffer.TakeAndFlush(); ok && text != "" {
			s.log.Debug("discarding pre-connection output: %q", text)
		}
		if s.state.CompareAndSwap(int32(StateConnecting), int32(StateReady)) {
			s.log.Info("session ready")
		}
	} else if s.proc.IsRunning() && s.State() != StateDisposed {
		// A live process that cannot complete the handshake is useless.
		s.log.Error("handshake failed: %v", err)
		_ = s.proc.Kill()
	}

	hs.err = err
	close(hs.done)
}

func (s *Session) handleStderrLine(line string) {
	if s.buffer.Append(line) {
		return
	}
	s.writeError(normalizeNewlines(line) + "\n")
}

func (s *Session) handleOutputEvent(ev *cdp.Event) {
	output := gjson.GetBytes(ev.Body, "output").String()
	if output == "" {
		return
	}
	if gjson.GetBytes(ev.Body, "category").String() == "stderr" {
		s.writeError(output)
		return
	}
	s.writeOutput(output)
}

func (s *Session) handleExit(p *process.Process) {
	s.exitOnce.Do(func() {
		s.handshake.Swap(nil)

		if text, ok := s.buffer.TakeAndFlush(); ok && text != "" {
			s.writeError(text)
		}
		if !s.expectedExit.Load() {
			s.writeError(msgSessionExited + "\n")
		}
		s.expectedExit.Store(false)

		if err := p.ExitError(); err != nil {
			s.log.Info("interpreter exited with code %d after %v: %v", p.ExitCode(), p.Runtime(), err)
		} else {
			s.log.Info("interpreter exited after %v", p.Runtime())
		}

		// Pending requests fail with ErrCancelled; later ones with ErrDisconnected.
		_ = s.conn.Close()

		for {
			cur := s.state.Load()
			if State(cur) == StateDisposed || s.state.CompareAndSwap(cur, int32(StateExited)) {
				break
			}
		}
		close(s.exited)
	})
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) setScope(scope string) {
	s.scopeMu.Lock()
	s.scope = scope
	s.scopeMu.Unlock()
}

func (s *Session) writeOutput(text string) {
	guardedCall(s.log, "output sink", func() { s.out.WriteOutput(text) })
}

func (s *Session) writeError(text string) {
	guardedCall(s.log, "error sink", func() { s.out.WriteError(text) })
}
