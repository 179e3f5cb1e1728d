package repl

import (
	"errors"

	"github.com/dshills/replhost/internal/cdp"
	"github.com/dshills/replhost/internal/process"
)

// Errors returned by sessions and evaluators. The connection and launch errors
// are the ones defined by the cdp and process packages, re-exported so callers
// need only this package.
var (
	// ErrDisconnected is returned when no live connection exists.
	ErrDisconnected = cdp.ErrDisconnected

	// ErrCancelled is returned to callers whose request was abandoned.
	ErrCancelled = cdp.ErrCancelled

	// ErrNotConfigured is returned when no interpreter path is set.
	ErrNotConfigured = process.ErrNotConfigured

	// ErrNotFound is returned when the interpreter executable is missing.
	ErrNotFound = process.ErrNotFound

	// ErrDisposed is returned by an Evaluator after Dispose.
	ErrDisposed = errors.New("evaluator disposed")

	// ErrRestartLimit is returned when auto-reconnect gave up.
	ErrRestartLimit = errors.New("restart limit reached")
)
