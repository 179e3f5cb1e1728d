package repl

import (
	"runtime"
)

// Output receives text destined for the user. Text is written verbatim; the
// session supplies line terminators.
type Output interface {
	WriteOutput(text string)
	WriteError(text string)
}

// Logger is the leveled logger used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FieldLogger is a Logger that can carry structured fields. Sessions tag
// their logs with their ID when the logger supports it.
type FieldLogger interface {
	Logger
	WithField(key string, value any) Logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopOutput struct{}

func (nopOutput) WriteOutput(string) {}
func (nopOutput) WriteError(string)  {}

func withField(log Logger, key string, value any) Logger {
	if fl, ok := log.(FieldLogger); ok {
		return fl.WithField(key, value)
	}
	return log
}

// guardedCall runs fn, recovering panics from user-supplied callbacks.
// Runtime errors are critical and propagate.
func guardedCall(log Logger, what string, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if re, ok := r.(runtime.Error); ok {
			panic(re)
		}
		log.Error("%s panicked: %v", what, r)
	}()
	fn()
}
