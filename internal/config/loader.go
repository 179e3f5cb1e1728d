package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/replhost/internal/installpath"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "REPLHOST_"

// DefaultFile is the config file name inside the user config directory.
const DefaultFile = "config.toml"

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(installpath.DefaultConfigDir(), DefaultFile)
}

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration at path, applies environment overrides from
// the process environment, and validates the result. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return c.Decode(path, data)
}

// Decode merges data onto c. The format is chosen from the extension of name.
func (c *Config) Decode(name string, data []byte) error {
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if derr := dec.Decode(c); derr != nil && !errors.Is(derr, io.EOF) {
			err = derr
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return &ParseError{Path: name, Message: err.Error(), Err: err}
	}
	return nil
}

// envSetter applies one environment value.
type envSetter func(c *Config, v string) error

// envMapping maps REPLHOST_* variables to settings.
var envMapping = map[string]envSetter{
	"INTERPRETER_NAME":              func(c *Config, v string) error { c.Interpreter.Name = v; return nil },
	"INTERPRETER_PATH":              func(c *Config, v string) error { c.Interpreter.Path = v; return nil },
	"INTERPRETER_ARGUMENTS":         func(c *Config, v string) error { c.Interpreter.Arguments = v; return nil },
	"INTERPRETER_WORKING_DIRECTORY": func(c *Config, v string) error { c.Interpreter.WorkingDirectory = v; return nil },
	"INTERPRETER_SCRIPT":            func(c *Config, v string) error { c.Interpreter.Script = v; return nil },
	"INTERPRETER_ENV_SEPARATOR":     func(c *Config, v string) error { c.Interpreter.EnvSeparator = v; return nil },
	"SESSION_REQUEST_TIMEOUT":       durationSetter(func(c *Config) *Duration { return &c.Session.RequestTimeout }),
	"SESSION_HANDSHAKE_TIMEOUT":     durationSetter(func(c *Config) *Duration { return &c.Session.HandshakeTimeout }),
	"SESSION_LAUNCH_GRACE":          durationSetter(func(c *Config) *Duration { return &c.Session.LaunchGrace }),
	"SESSION_COMMAND_PREFIX":        func(c *Config, v string) error { c.Session.CommandPrefix = v; return nil },
	"SESSION_AUTO_RECONNECT":        boolSetter(func(c *Config) *bool { return &c.Session.AutoReconnect }),
	"SESSION_MAX_RESTARTS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Session.MaxRestarts = n
		return nil
	},
	"SESSION_INITIAL_BACKOFF": durationSetter(func(c *Config) *Duration { return &c.Session.InitialBackoff }),
	"SESSION_MAX_BACKOFF":     durationSetter(func(c *Config) *Duration { return &c.Session.MaxBackoff }),
	"SESSION_BACKOFF_MULTIPLIER": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Session.BackoffMultiplier = f
		return nil
	},
	"SESSION_RESET_WINDOW":     durationSetter(func(c *Config) *Duration { return &c.Session.ResetWindow }),
	"SESSION_PRIMARY_PROMPT":   func(c *Config, v string) error { c.Session.PrimaryPrompt = v; return nil },
	"SESSION_SECONDARY_PROMPT": func(c *Config, v string) error { c.Session.SecondaryPrompt = v; return nil },
	"LOG_LEVEL":                func(c *Config, v string) error { c.Log.Level = v; return nil },
	"TRACING_ENABLED":          boolSetter(func(c *Config) *bool { return &c.Tracing.Enabled }),
	"TRACING_OUTPUT":           func(c *Config, v string) error { c.Tracing.Output = v; return nil },
}

// EnvVars returns the names of all recognized environment variables.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, EnvPrefix+name)
	}
	return names
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	for name, set := range envMapping {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(c, v); err != nil {
			return &ParseError{Path: EnvPrefix + name, Message: err.Error(), Err: err}
		}
	}
	return nil
}

func durationSetter(field func(*Config) *Duration) envSetter {
	return func(c *Config, v string) error {
		return field(c).UnmarshalText([]byte(v))
	}
}

// boolSetter parses common boolean spellings.
func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			*field(c) = true
		case "false", "no", "off", "0", "":
			*field(c) = false
		default:
			return fmt.Errorf("invalid boolean %q", v)
		}
		return nil
	}
}
