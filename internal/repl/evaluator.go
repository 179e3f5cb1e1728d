package repl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/replhost/internal/config"
	"github.com/dshills/replhost/internal/environ"
	"github.com/dshills/replhost/internal/installpath"
	"github.com/dshills/replhost/internal/process"
	"github.com/dshills/replhost/internal/tracing"
)

// ScriptResolver locates the companion script. *installpath.Resolver
// implements it.
type ScriptResolver interface {
	Companion() (string, error)
}

// Evaluator owns the current Session and creates new ones on demand.
// It is safe for concurrent use.
type Evaluator struct {
	mu sync.Mutex

	cfg        *config.Config
	out        Output
	log        Logger
	resolver   ScriptResolver
	supervisor *process.Supervisor
	baseEnv    func() map[string]string
	now        func() time.Time

	session  *Session
	policy   restartPolicy
	disposed bool
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(log Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log
		}
	}
}

// WithResolver sets how the companion script is found when the config does
// not name one.
func WithResolver(r ScriptResolver) EvaluatorOption {
	return func(e *Evaluator) {
		e.resolver = r
	}
}

// WithSupervisor launches interpreters through s so they can be torn down
// together on shutdown.
func WithSupervisor(s *process.Supervisor) EvaluatorOption {
	return func(e *Evaluator) {
		e.supervisor = s
	}
}

// WithBaseEnvironment overrides the environment that overrides are merged
// onto. The default is the host process environment.
func WithBaseEnvironment(fn func() map[string]string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseEnv = fn
	}
}

// NewEvaluator creates an evaluator. No process is started until first use.
func NewEvaluator(cfg *config.Config, out Output, opts ...EvaluatorOption) *Evaluator {
	if cfg == nil {
		cfg = config.Default()
	}
	if out == nil {
		out = nopOutput{}
	}
	e := &Evaluator{
		cfg:      cfg,
		out:      out,
		log:      nopLogger{},
		resolver: installpath.NewResolver(),
		baseEnv:  environ.Snapshot,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.policy = newRestartPolicy(cfg)
	return e
}

func newRestartPolicy(cfg *config.Config) restartPolicy {
	s := cfg.Session
	return restartPolicy{
		maxRestarts: s.MaxRestarts,
		initial:     s.InitialBackoff.Std(),
		max:         s.MaxBackoff.Std(),
		multiplier:  s.BackoffMultiplier,
		resetWindow: s.ResetWindow.Std(),
	}
}

// Config returns the settings used for the next connection.
func (e *Evaluator) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig replaces the settings used by the next Connect. The running
// session is not affected.
func (e *Evaluator) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.policy
	e.cfg = cfg
	e.policy = newRestartPolicy(cfg)
	e.policy.count = last.count
	e.policy.lastStart = last.lastStart
}

// Session returns the current session, or nil.
func (e *Evaluator) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// State returns the state of the current session, or StateDisconnected.
func (e *Evaluator) State() State {
	if s := e.Session(); s != nil {
		return s.State()
	}
	return StateDisconnected
}

// CurrentScope returns the current session's scope.
func (e *Evaluator) CurrentScope() string {
	if s := e.Session(); s != nil {
		return s.CurrentScope()
	}
	return DefaultScope
}

// IsExecuting reports whether the current session is evaluating.
func (e *Evaluator) IsExecuting() bool {
	if s := e.Session(); s != nil {
		return s.IsExecuting()
	}
	return false
}

// PrimaryPrompt returns the prompt shown before a new statement.
func (e *Evaluator) PrimaryPrompt() string {
	return e.Config().Session.PrimaryPrompt
}

// SecondaryPrompt returns the prompt shown for continuation lines.
func (e *Evaluator) SecondaryPrompt() string {
	return e.Config().Session.SecondaryPrompt
}

// Connect returns the live session, starting one if there is none. Launch
// failures are described on the error output and returned.
func (e *Evaluator) Connect(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return nil, ErrDisposed
	}
	if e.session != nil && isLive(e.session.State()) {
		return e.session, nil
	}
	return e.connectLocked(ctx)
}

// ExecuteText evaluates text, connecting first if needed.
func (e *Evaluator) ExecuteText(ctx context.Context, text string) (string, error) {
	prefix := e.Config().Session.CommandPrefix
	if prefix != "" && strings.HasPrefix(text, prefix) {
		return msgUnknownCommand(strings.TrimSpace(text)), nil
	}

	s, err := e.current(ctx)
	if err != nil {
		return "", err
	}
	if err := s.EnsureConnected(ctx); err != nil {
		return "", err
	}
	return s.ExecuteText(ctx, text)
}

// EnsureConnected connects if needed and waits for the handshake.
func (e *Evaluator) EnsureConnected(ctx context.Context) error {
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	return s.EnsureConnected(ctx)
}

// Reset replaces the session with a fresh one. The old process exit is
// expected and produces no exit message.
func (e *Evaluator) Reset(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return nil, ErrDisposed
	}
	if old := e.session; old != nil {
		old.SetExpectedExit(true)
		old.Dispose()
		e.session = nil
	}
	e.policy.reset()
	return e.connectLocked(ctx)
}

// Dispose shuts down the current session. Further calls fail with
// ErrDisposed.
func (e *Evaluator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.disposed = true
	if e.session != nil {
		e.session.Dispose()
	}
}

// current returns a usable session following the reconnect policy.
func (e *Evaluator) current(ctx context.Context) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return nil, ErrDisposed
	}

	s := e.session
	switch {
	case s == nil:
		return e.connectLocked(ctx)
	case isLive(s.State()):
		return s, nil
	case !e.cfg.Session.AutoReconnect:
		return nil, ErrDisconnected
	}

	delay, ok := e.policy.next(e.now())
	if !ok {
		e.log.Error("not reconnecting: %d restarts exhausted", e.cfg.Session.MaxRestarts)
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, ErrRestartLimit)
	}
	e.log.Warn("session %s exited; reconnecting in %v", s.ID(), delay)

	// Wait without the lock so Dispose and Reset are not held up.
	var shutdown <-chan struct{}
	if e.supervisor != nil {
		shutdown = e.supervisor.ShutdownChan()
	}
	e.mu.Unlock()
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
	case <-shutdown:
	case <-timer.C:
	}
	timer.Stop()
	e.mu.Lock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if e.disposed {
		return nil, ErrDisposed
	}
	if e.session != s && e.session != nil && isLive(e.session.State()) {
		return e.session, nil
	}
	return e.connectLocked(ctx)
}

// connectLocked starts a new session. The caller holds e.mu.
func (e *Evaluator) connectLocked(ctx context.Context) (s *Session, err error) {
	ctx, span := tracing.StartSpan(ctx, "repl.Connect", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	// The host is exiting; starting an interpreter now would only orphan it.
	if e.supervisor != nil && e.supervisor.IsShuttingDown() {
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, process.ErrSupervisorShutdown)
	}

	opts, err := e.sessionOptions()
	if err != nil {
		return nil, err
	}

	s, err = startSession(ctx, opts)
	if err != nil {
		e.reportLaunchError(err)
		return nil, err
	}

	e.session = s
	e.policy.started(e.now())
	return s, nil
}

// sessionOptions validates the configuration and builds the launch spec.
// The checks run in order so a blank path never touches the file system.
func (e *Evaluator) sessionOptions() (sessionOptions, error) {
	ic := e.cfg.Interpreter

	if err := process.Validate(ic.Path); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			e.writeError(msgNotConfigured(ic.Name) + "\n")
		} else {
			e.writeError(msgInterpreterNotFound + "\n")
		}
		return sessionOptions{}, err
	}

	script := ic.Script
	if script == "" {
		p, err := e.resolver.Companion()
		if err != nil {
			e.writeError(msgScriptNotFound + "\n")
			return sessionOptions{}, err
		}
		script = p
	}

	env := environ.Merge(e.baseEnv(), ic.Env, ic.Separator())

	return sessionOptions{
		spec: process.Spec{
			Name:        ic.Name,
			Path:        ic.Path,
			Args:        ic.Arguments,
			ExtraArgs:   []string{script},
			Dir:         ic.WorkingDirectory,
			Env:         environ.ToSlice(env),
			LaunchGrace: e.cfg.Session.LaunchGrace.Std(),
		},
		commandPrefix:    e.cfg.Session.CommandPrefix,
		requestTimeout:   e.cfg.Session.RequestTimeout.Std(),
		handshakeTimeout: e.cfg.Session.HandshakeTimeout.Std(),
		out:              e.out,
		log:              e.log,
		supervisor:       e.supervisor,
	}, nil
}

func (e *Evaluator) reportLaunchError(err error) {
	var launchErr *process.LaunchError
	switch {
	case errors.Is(err, ErrNotFound):
		e.writeError(msgInterpreterNotFound + "\n")
	case errors.As(err, &launchErr):
		detail := launchErr.Error()
		if launchErr.Stderr != "" {
			detail += "\n" + launchErr.Stderr
		}
		e.writeError(msgStartError(detail) + "\n")
	default:
		e.writeError(msgStartError(err.Error()) + "\n")
	}
	e.log.Error("connect failed: %v", err)
}

func (e *Evaluator) writeError(text string) {
	guardedCall(e.log, "error sink", func() { e.out.WriteError(text) })
}

func isLive(st State) bool {
	return st == StateConnecting || st == StateReady
}
