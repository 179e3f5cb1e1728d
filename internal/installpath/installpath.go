// Package installpath locates files that ship alongside the replhost binary,
// most importantly the companion script the interpreter runs.
package installpath

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// CompanionScript is the file name of the interpreter-side companion script.
const CompanionScript = "replhost_companion.py"

// RecordFile is the install record kept in the user configuration directory.
const RecordFile = "install.toml"

//go:embed assets/replhost_companion.py
var assets embed.FS

// InstallRecord describes where replhost's support files were installed.
type InstallRecord struct {
	InstallDir string `toml:"install_dir"`
}

// Resolver finds install files. The zero value searches nothing; use
// NewResolver for the defaults.
type Resolver struct {
	executableDir string
	configDir     string
	cacheDir      string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExecutableDir overrides the directory of the running executable.
func WithExecutableDir(dir string) Option {
	return func(r *Resolver) {
		r.executableDir = dir
	}
}

// WithConfigDir overrides the directory holding the install record.
func WithConfigDir(dir string) Option {
	return func(r *Resolver) {
		r.configDir = dir
	}
}

// WithCacheDir sets where Companion materializes the embedded script.
// An empty dir disables materialization.
func WithCacheDir(dir string) Option {
	return func(r *Resolver) {
		r.cacheDir = dir
	}
}

// NewResolver creates a resolver searching beside the executable and then the
// install record in the user configuration directory.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		configDir: DefaultConfigDir(),
	}
	if exe, err := os.Executable(); err == nil {
		r.executableDir = filepath.Dir(exe)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		r.cacheDir = filepath.Join(dir, "replhost")
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultConfigDir returns the user configuration directory for replhost.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "replhost")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "replhost")
}

// GetFile returns the absolute path of name, looking beside the executable
// first and then in the directory named by the install record.
func (r *Resolver) GetFile(name string) (string, error) {
	if r.executableDir != "" {
		if p := filepath.Join(r.executableDir, name); isFile(p) {
			return p, nil
		}
	}

	if r.configDir != "" {
		rec, err := ReadInstallRecord(filepath.Join(r.configDir, RecordFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if rec != nil && rec.InstallDir != "" {
			if p := filepath.Join(rec.InstallDir, name); isFile(p) {
				return p, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Companion returns the path of the companion script, materializing the
// embedded copy into the cache directory when no installed copy is found.
func (r *Resolver) Companion() (string, error) {
	p, err := r.GetFile(CompanionScript)
	if err == nil || !errors.Is(err, ErrNotFound) || r.cacheDir == "" {
		return p, err
	}
	return Materialize(r.cacheDir)
}

// ReadInstallRecord parses the install record at path.
func ReadInstallRecord(path string) (*InstallRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec InstallRecord
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse install record %s: %w", path, err)
	}
	return &rec, nil
}

// WriteInstallRecord stores rec at path, creating parent directories.
func WriteInstallRecord(path string, rec InstallRecord) error {
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode install record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Materialize writes the embedded companion script into dir and returns its
// path. An existing file with identical content is left untouched.
func Materialize(dir string) (string, error) {
	data, err := assets.ReadFile("assets/" + CompanionScript)
	if err != nil {
		return "", err
	}

	p := filepath.Join(dir, CompanionScript)
	if existing, err := os.ReadFile(p); err == nil && bytes.Equal(existing, data) {
		return p, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write companion script: %w", err)
	}
	return p, nil
}

// Install copies the companion script into dir and records dir in the
// install record under configDir, so later resolvers find it there.
func Install(dir, configDir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	p, err := Materialize(abs)
	if err != nil {
		return "", err
	}
	if err := WriteInstallRecord(filepath.Join(configDir, RecordFile), InstallRecord{InstallDir: abs}); err != nil {
		return "", fmt.Errorf("write install record: %w", err)
	}
	return p, nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
