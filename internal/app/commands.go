package app

import (
	"strings"
)

// Host command names, typed after the configured command prefix.
const (
	cmdReset = "reset"
	cmdQuit  = "quit"
)

func (app *Application) commandName(name string) string {
	return app.Config().Session.CommandPrefix + name
}

// handleCommand runs a host command. Text with the prefix that names no
// host command is left to the evaluator, which answers it locally.
func (app *Application) handleCommand(line string) (bool, error) {
	prefix := app.Config().Session.CommandPrefix
	if prefix == "" || !strings.HasPrefix(line, prefix) {
		return false, nil
	}

	switch strings.TrimSpace(strings.TrimPrefix(line, prefix)) {
	case cmdQuit:
		return true, ErrQuit
	case cmdReset:
		if _, err := app.eval.Reset(app.ctx); err != nil {
			app.log.Debug("reset: %v", err)
		}
		return true, nil
	default:
		return false, nil
	}
}
