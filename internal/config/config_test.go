package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/replhost/internal/environ"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Session.CommandPrefix != "$" {
		t.Errorf("CommandPrefix = %q, want $", cfg.Session.CommandPrefix)
	}
	if cfg.Session.PrimaryPrompt != ">>> " || cfg.Session.SecondaryPrompt != "... " {
		t.Errorf("prompts = %q %q", cfg.Session.PrimaryPrompt, cfg.Session.SecondaryPrompt)
	}
	if cfg.Session.LaunchGrace.Std() != 100*time.Millisecond {
		t.Errorf("LaunchGrace = %v", cfg.Session.LaunchGrace)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.toml"), noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Interpreter.Name != Default().Interpreter.Name {
		t.Errorf("Name = %q", cfg.Interpreter.Name)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[interpreter]
name = "Python 3"
path = "/usr/bin/python3"
arguments = "-u -X utf8"

[[interpreter.env]]
key = "PYTHONPATH;"
value = "/opt/lib"

[[interpreter.env]]
key = "EXTRA"
value = "1"

[session]
request_timeout = "2s"
auto_reconnect = true

[log]
level = "debug"
`)

	cfg, err := LoadWithEnv(path, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Interpreter.Path != "/usr/bin/python3" {
		t.Errorf("Path = %q", cfg.Interpreter.Path)
	}
	want := []environ.Entry{{Key: "PYTHONPATH;", Value: "/opt/lib"}, {Key: "EXTRA", Value: "1"}}
	if len(cfg.Interpreter.Env) != len(want) {
		t.Fatalf("Env = %v", cfg.Interpreter.Env)
	}
	for i := range want {
		if cfg.Interpreter.Env[i] != want[i] {
			t.Errorf("Env[%d] = %v, want %v", i, cfg.Interpreter.Env[i], want[i])
		}
	}
	if cfg.Session.RequestTimeout.Std() != 2*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Session.RequestTimeout)
	}
	if !cfg.Session.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	// Untouched settings keep their defaults.
	if cfg.Session.CommandPrefix != "$" {
		t.Errorf("CommandPrefix = %q", cfg.Session.CommandPrefix)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
interpreter:
  path: /usr/bin/python3
  env_separator: ":"
  env:
    - key: ":PATH"
      value: /opt/bin
session:
  handshake_timeout: 5s
  launch_grace: 250000000
  max_restarts: 2
`)

	cfg, err := LoadWithEnv(path, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Interpreter.Separator() != ':' {
		t.Errorf("Separator = %q", cfg.Interpreter.Separator())
	}
	if len(cfg.Interpreter.Env) != 1 || cfg.Interpreter.Env[0].Key != ":PATH" {
		t.Errorf("Env = %v", cfg.Interpreter.Env)
	}
	if cfg.Session.HandshakeTimeout.Std() != 5*time.Second {
		t.Errorf("HandshakeTimeout = %v", cfg.Session.HandshakeTimeout)
	}
	if cfg.Session.LaunchGrace.Std() != 250*time.Millisecond {
		t.Errorf("LaunchGrace = %v", cfg.Session.LaunchGrace)
	}
	if cfg.Session.MaxRestarts != 2 {
		t.Errorf("MaxRestarts = %d", cfg.Session.MaxRestarts)
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	path := writeFile(t, "config.yml", "")
	if _, err := LoadWithEnv(path, noEnv); err != nil {
		t.Errorf("LoadWithEnv() error = %v", err)
	}
}

func TestLoad_ParseError(t *testing.T) {
	path := writeFile(t, "config.toml", "[interpreter\npath = ")
	_, err := LoadWithEnv(path, noEnv)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Path != path {
		t.Errorf("ParseError.Path = %q", pe.Path)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "config.ini", "x=1")
	_, err := LoadWithEnv(path, noEnv)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.toml", `
[interpreter]
path = "/from/file"
`)
	env := map[string]string{
		"REPLHOST_INTERPRETER_PATH":       "/from/env",
		"REPLHOST_SESSION_AUTO_RECONNECT": "yes",
		"REPLHOST_SESSION_MAX_BACKOFF":    "1m",
		"REPLHOST_LOG_LEVEL":              "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := LoadWithEnv(path, lookup)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Interpreter.Path != "/from/env" {
		t.Errorf("Path = %q", cfg.Interpreter.Path)
	}
	if !cfg.Session.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
	if cfg.Session.MaxBackoff.Std() != time.Minute {
		t.Errorf("MaxBackoff = %v", cfg.Session.MaxBackoff)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "REPLHOST_SESSION_MAX_RESTARTS" {
			return "many", true
		}
		return "", false
	}
	_, err := LoadWithEnv("", lookup)

	var pe *ParseError
	if !errors.As(err, &pe) || pe.Path != "REPLHOST_SESSION_MAX_RESTARTS" {
		t.Errorf("expected ParseError for REPLHOST_SESSION_MAX_RESTARTS, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"separator too long", func(c *Config) { c.Interpreter.EnvSeparator = ";;" }, "interpreter.env_separator"},
		{"empty env key", func(c *Config) { c.Interpreter.Env = []environ.Entry{{Key: string(environ.DefaultSeparator), Value: "x"}} }, "interpreter.env[0].key"},
		{"negative timeout", func(c *Config) { c.Session.RequestTimeout = -1 }, "session.request_timeout"},
		{"empty prefix", func(c *Config) { c.Session.CommandPrefix = "" }, "session.command_prefix"},
		{"negative restarts", func(c *Config) { c.Session.MaxRestarts = -1 }, "session.max_restarts"},
		{"small multiplier", func(c *Config) { c.Session.BackoffMultiplier = 0.5 }, "session.backoff_multiplier"},
		{"max below initial", func(c *Config) { c.Session.MaxBackoff = Duration(time.Millisecond) }, "session.max_backoff"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("Validate() = %v, want ErrValidationFailed", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError in %v", err)
			}
			if ve.Path != tt.path {
				t.Errorf("Path = %q, want %q", ve.Path, tt.path)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 1m30s ")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("d = %v", d)
	}
	out, _ := d.MarshalText()
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q", out)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestEnvVars(t *testing.T) {
	found := false
	for _, name := range EnvVars() {
		if name == "REPLHOST_INTERPRETER_PATH" {
			found = true
		}
	}
	if !found {
		t.Error("REPLHOST_INTERPRETER_PATH not listed")
	}
}
