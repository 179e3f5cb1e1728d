// Package app wires configuration, logging, tracing and the evaluator into
// the interactive replhost front end.
package app

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/dshills/replhost/internal/config"
	"github.com/dshills/replhost/internal/config/watcher"
	"github.com/dshills/replhost/internal/installpath"
	"github.com/dshills/replhost/internal/process"
	"github.com/dshills/replhost/internal/repl"
	"github.com/dshills/replhost/internal/tracing"
)

// evaluator is the part of *repl.Evaluator the front end drives.
type evaluator interface {
	ExecuteText(ctx context.Context, text string) (string, error)
	Reset(ctx context.Context) (*repl.Session, error)
	UpdateConfig(cfg *config.Config)
	State() repl.State
	PrimaryPrompt() string
	SecondaryPrompt() string
	Dispose()
}

// Application runs the read-evaluate-print loop against one interpreter.
type Application struct {
	mu  sync.RWMutex
	cfg *config.Config

	log        *Logger
	console    *console
	eval       evaluator
	supervisor *process.Supervisor
	watcher    *watcher.Watcher
	tracing    bool

	in          io.Reader
	interactive bool

	ctx    context.Context
	cancel context.CancelFunc

	running      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once

	opts Options
}

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty means the default location.
	ConfigPath string

	// LogLevel overrides the configured log level when set.
	LogLevel string

	// Interpreter overrides the configured interpreter path when set.
	Interpreter string

	// Version is reported to tracing.
	Version string

	// Stdin, Stdout and Stderr default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive forces prompt display on or off. When nil, prompts are
	// shown if Stdin is a terminal.
	Interactive *bool

	// Watch enables reloading the configuration file when it changes.
	Watch bool

	// evaluator replaces the interpreter-backed evaluator in tests.
	evaluator evaluator
}

// New creates an Application. No interpreter is started until the first
// evaluation.
func New(opts Options) (*Application, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath()
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		opts:    opts,
		in:      opts.Stdin,
		console: newConsole(opts.Stdout, opts.Stderr),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	app.interactive = isTerminal(opts.Stdin)
	if opts.Interactive != nil {
		app.interactive = *opts.Interactive
	}

	if err := app.bootstrap(); err != nil {
		cancel()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Config
	cfg, err := app.loadConfig()
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = cfg

	// 2. Logging
	app.log = NewLogger(LoggerConfig{
		Level:  ParseLogLevel(cfg.Log.Level),
		Output: app.opts.Stderr,
		Prefix: "replhost",
	})
	SetLogger(app.log)

	// 3. Tracing
	if cfg.Tracing.Enabled {
		if err := tracing.Init("replhost", app.opts.Version, cfg.Tracing.Output); err != nil {
			// Tracing errors are non-fatal
			app.log.Warn("tracing disabled: %v", err)
		} else {
			app.tracing = true
		}
	}

	// 4. Process supervision
	app.supervisor = process.NewSupervisor(
		process.WithProcessExitCallback(func(p *process.Process) {
			app.log.WithField("session", p.ID).Debug("interpreter exited with code %d", p.ExitCode())
		}),
	)

	// 5. Evaluator
	if app.opts.evaluator != nil {
		app.eval = app.opts.evaluator
		app.eval.UpdateConfig(cfg)
	} else {
		app.eval = repl.NewEvaluator(cfg, app.console,
			repl.WithLogger(ReplLogger(app.log.WithComponent("repl"))),
			repl.WithResolver(installpath.NewResolver()),
			repl.WithSupervisor(app.supervisor),
		)
	}

	// 6. Config watcher
	if app.opts.Watch {
		if err := app.startWatcher(); err != nil {
			// Watch errors are non-fatal
			app.log.Warn("config reload disabled: %v", err)
		}
	}

	return nil
}

// loadConfig reads the configuration file and applies command line
// overrides.
func (app *Application) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(app.opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if app.opts.Interpreter != "" {
		cfg.Interpreter.Path = app.opts.Interpreter
	}
	if app.opts.LogLevel != "" {
		cfg.Log.Level = app.opts.LogLevel
	}
	return cfg, nil
}

// Config returns the active configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *Logger {
	return app.log
}

// IsRunning returns true if the application loop is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Shutdown stops the loop and releases the interpreter. It is idempotent.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		close(app.done)
		app.cancel()
		app.shutdown()
	})
}

// shutdown performs cleanup in reverse initialization order.
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 1. Stop watching
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.log.Debug("close watcher: %v", err)
		}
	}

	// 2. Dispose the session
	if app.eval != nil {
		app.eval.Dispose()
	}

	// 3. Reap any interpreters still running
	if app.supervisor != nil {
		app.supervisor.Shutdown(2 * time.Second)
	}

	// 4. Flush traces
	if app.tracing {
		if err := tracing.Shutdown(ctx); err != nil {
			app.log.Debug("tracing shutdown: %v", err)
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
