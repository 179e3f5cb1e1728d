package app

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/dshills/replhost/internal/repl"
)

// Run reads statements from the input until end of input, a quit command, or
// Shutdown. It returns nil on a normal end and ErrQuit after a quit command.
func (app *Application) Run() error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	lines := make(chan string)
	go app.readLines(lines)

	var block []string
	for {
		app.prompt(len(block) > 0)

		var (
			line string
			ok   bool
		)
		select {
		case <-app.done:
			return nil
		case line, ok = <-lines:
		}

		if !ok {
			// End of input completes an open block.
			if len(block) > 0 {
				app.evaluate(strings.Join(block, "\n"))
			}
			return nil
		}

		if len(block) > 0 {
			if strings.TrimSpace(line) == "" {
				app.evaluate(strings.Join(block, "\n"))
				block = nil
				continue
			}
			block = append(block, line)
			continue
		}

		switch {
		case strings.TrimSpace(line) == "":
			continue
		case opensBlock(line):
			block = append(block, line)
			continue
		}

		handled, err := app.handleCommand(line)
		if err != nil {
			return err
		}
		if !handled {
			app.evaluate(line)
		}
	}
}

// readLines feeds input lines to out and closes it at end of input.
func (app *Application) readLines(out chan<- string) {
	defer close(out)

	scanner := bufio.NewScanner(app.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-app.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		app.log.Error("read input: %v", err)
	}
}

// opensBlock reports whether line starts a compound statement.
func opensBlock(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t"), ":")
}

func (app *Application) prompt(continuation bool) {
	if !app.interactive {
		return
	}
	if continuation {
		app.console.Prompt(app.eval.SecondaryPrompt())
	} else {
		app.console.Prompt(app.eval.PrimaryPrompt())
	}
}

// evaluate runs text and prints the result. Launch failures have already
// been described by the evaluator.
func (app *Application) evaluate(text string) {
	result, err := app.eval.ExecuteText(app.ctx, text)
	switch {
	case err == nil:
		app.console.WriteResult(result)
	case errors.Is(err, context.Canceled) && app.ctx.Err() != nil:
		// shutting down
	case errors.Is(err, repl.ErrRestartLimit):
		app.console.WriteError("The interactive session keeps exiting; use " + app.commandName("reset") + " to start a new one.\n")
	case errors.Is(err, repl.ErrDisconnected):
		app.console.WriteError("The interactive session is not running; use " + app.commandName("reset") + " to start a new one.\n")
	case errors.Is(err, repl.ErrCancelled):
		app.console.WriteError("Evaluation cancelled.\n")
	default:
		app.log.Debug("evaluate: %v", err)
	}
}
