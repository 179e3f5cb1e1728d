// Package config loads replhost settings.
//
// Settings come from three places, later ones overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. REPLHOST_* environment variables
//
// A missing file is not an error; the defaults apply.
//
// # Example
//
//	[interpreter]
//	name = "Python 3"
//	path = "/usr/bin/python3"
//	arguments = "-u -X utf8"
//
//	[[interpreter.env]]
//	key = "PYTHONPATH;"
//	value = "/opt/lib"
//
//	[session]
//	request_timeout = "30s"
//	auto_reconnect = true
//
// A trailing or leading separator on an env key prepends or appends to an
// existing variable; see package environ.
//
// # Live reload
//
// Sub-package watcher reports changes to the file so the host can reload and
// restart its session.
package config
