// Package environ computes the environment handed to an interpreter process.
//
// Overrides are applied in order against a snapshot of the base environment.
// The key of each override may carry a merge directive:
//
//	"PYTHONPATH;"  prepend: value + sep + existing
//	";PYTHONPATH"  append:  existing + sep + value
//	"PYTHONPATH"   replace
//
// When the trimmed key is absent from the environment, a directive degrades to a
// plain insert. Malformed directives never produce an error.
package environ

import (
	"os"
	"sort"
	"strings"
)

// DefaultSeparator is the list separator used when none is configured.
const DefaultSeparator = byte(os.PathListSeparator)

// Entry is a single environment override.
type Entry struct {
	Key   string `toml:"key" yaml:"key"`
	Value string `toml:"value" yaml:"value"`
}

// Directive describes how an entry combines with an existing value.
type Directive int

const (
	// Replace sets the variable to the entry value.
	Replace Directive = iota
	// Prepend places the entry value before the existing value.
	Prepend
	// Append places the entry value after the existing value.
	Append
)

// String returns a human-readable directive name.
func (d Directive) String() string {
	switch d {
	case Replace:
		return "replace"
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Parse splits a raw override key into its variable name and directive.
// A trailing separator wins over a leading one, matching Merge.
func Parse(rawKey string, sep byte) (string, Directive) {
	key := strings.Trim(rawKey, string(sep))
	switch {
	case strings.HasSuffix(rawKey, string(sep)):
		return key, Prepend
	case strings.HasPrefix(rawKey, string(sep)):
		return key, Append
	default:
		return key, Replace
	}
}

// Merge returns a new environment built from base and the ordered entries.
// base is not modified.
func Merge(base map[string]string, entries []Entry, sep byte) map[string]string {
	env := make(map[string]string, len(base)+len(entries))
	for k, v := range base {
		env[k] = v
	}

	for _, e := range entries {
		key, dir := Parse(e.Key, sep)
		existing, ok := env[key]
		switch {
		case dir == Prepend && ok:
			env[key] = e.Value + string(sep) + existing
		case dir == Append && ok:
			env[key] = existing + string(sep) + e.Value
		default:
			env[key] = e.Value
		}
	}

	return env
}

// FromSlice converts "KEY=value" pairs (as returned by os.Environ) into a map.
// Later duplicates win. Entries without '=' are ignored.
func FromSlice(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// ToSlice converts an environment map to sorted "KEY=value" pairs.
func ToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current process environment as a map.
func Snapshot() map[string]string {
	return FromSlice(os.Environ())
}
