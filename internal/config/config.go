package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/replhost/internal/environ"
)

// Config is the complete replhost configuration.
type Config struct {
	Interpreter InterpreterConfig `toml:"interpreter" yaml:"interpreter"`
	Session     SessionConfig     `toml:"session" yaml:"session"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Tracing     TracingConfig     `toml:"tracing" yaml:"tracing"`
}

// InterpreterConfig describes the interpreter to launch.
type InterpreterConfig struct {
	// Name is shown in messages, e.g. "Interpreter is not configured for <name>."
	Name string `toml:"name" yaml:"name"`

	// Path is the interpreter executable.
	Path string `toml:"path" yaml:"path"`

	// Arguments are extra interpreter arguments, split shell-style.
	Arguments string `toml:"arguments" yaml:"arguments"`

	// WorkingDirectory defaults to the directory containing Path.
	WorkingDirectory string `toml:"working_directory" yaml:"working_directory"`

	// Script overrides the companion script location.
	Script string `toml:"script" yaml:"script"`

	// EnvSeparator is the list separator used by env merge directives.
	// Empty means the platform path list separator.
	EnvSeparator string `toml:"env_separator" yaml:"env_separator"`

	// Env holds ordered environment overrides.
	Env []environ.Entry `toml:"env" yaml:"env"`
}

// Separator returns the configured env separator byte.
func (c InterpreterConfig) Separator() byte {
	if c.EnvSeparator == "" {
		return environ.DefaultSeparator
	}
	return c.EnvSeparator[0]
}

// SessionConfig controls session behaviour.
type SessionConfig struct {
	RequestTimeout    Duration `toml:"request_timeout" yaml:"request_timeout"`
	HandshakeTimeout  Duration `toml:"handshake_timeout" yaml:"handshake_timeout"`
	LaunchGrace       Duration `toml:"launch_grace" yaml:"launch_grace"`
	CommandPrefix     string   `toml:"command_prefix" yaml:"command_prefix"`
	AutoReconnect     bool     `toml:"auto_reconnect" yaml:"auto_reconnect"`
	MaxRestarts       int      `toml:"max_restarts" yaml:"max_restarts"`
	InitialBackoff    Duration `toml:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        Duration `toml:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64  `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	ResetWindow       Duration `toml:"reset_window" yaml:"reset_window"`
	PrimaryPrompt     string   `toml:"primary_prompt" yaml:"primary_prompt"`
	SecondaryPrompt   string   `toml:"secondary_prompt" yaml:"secondary_prompt"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Output is a file path; empty writes spans to standard output.
	Output string `toml:"output" yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interpreter: InterpreterConfig{
			Name: "Python",
		},
		Session: SessionConfig{
			RequestTimeout:    0,
			HandshakeTimeout:  Duration(30 * time.Second),
			LaunchGrace:       Duration(100 * time.Millisecond),
			CommandPrefix:     "$",
			AutoReconnect:     false,
			MaxRestarts:       5,
			InitialBackoff:    Duration(time.Second),
			MaxBackoff:        Duration(30 * time.Second),
			BackoffMultiplier: 2.0,
			ResetWindow:       Duration(5 * time.Minute),
			PrimaryPrompt:     ">>> ",
			SecondaryPrompt:   "... ",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks settings that cannot be enforced by the decoder.
// It returns ValidationErrors, which matches ErrValidationFailed.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if len(c.Interpreter.EnvSeparator) > 1 {
		add("interpreter.env_separator", "must be a single character", c.Interpreter.EnvSeparator)
	}
	for i, e := range c.Interpreter.Env {
		if strings.Trim(e.Key, string(c.Interpreter.Separator())) == "" {
			add(fmt.Sprintf("interpreter.env[%d].key", i), "must not be empty", e.Key)
		}
	}

	s := c.Session
	for _, f := range []struct {
		path string
		d    Duration
	}{
		{"session.request_timeout", s.RequestTimeout},
		{"session.handshake_timeout", s.HandshakeTimeout},
		{"session.launch_grace", s.LaunchGrace},
		{"session.initial_backoff", s.InitialBackoff},
		{"session.max_backoff", s.MaxBackoff},
		{"session.reset_window", s.ResetWindow},
	} {
		if f.d < 0 {
			add(f.path, "must not be negative", f.d)
		}
	}
	if s.CommandPrefix == "" {
		add("session.command_prefix", "must not be empty", s.CommandPrefix)
	}
	if s.MaxRestarts < 0 {
		add("session.max_restarts", "must not be negative", s.MaxRestarts)
	}
	if s.BackoffMultiplier < 1 {
		add("session.backoff_multiplier", "must be at least 1", s.BackoffMultiplier)
	}
	if s.MaxBackoff < s.InitialBackoff {
		add("session.max_backoff", "must not be less than initial_backoff", s.MaxBackoff)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "must be one of debug, info, warn, error", c.Log.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Duration is a time.Duration that reads and writes strings such as "250ms".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts duration strings and plain integers (nanoseconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
