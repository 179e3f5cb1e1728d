package app

import (
	"io"
	"sync"
)

// console is the output sink handed to the evaluator. Interpreter output and
// prompts share a lock so their writes never interleave.
type console struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

func newConsole(stdout, stderr io.Writer) *console {
	return &console{stdout: stdout, stderr: stderr}
}

// WriteOutput writes interpreter standard output.
func (c *console) WriteOutput(text string) {
	c.write(c.stdout, text)
}

// WriteError writes interpreter standard error and session messages.
func (c *console) WriteError(text string) {
	c.write(c.stderr, text)
}

// WriteResult writes an evaluation result on its own line.
func (c *console) WriteResult(text string) {
	if text == "" {
		return
	}
	c.write(c.stdout, text+"\n")
}

// Prompt writes a prompt without a line terminator.
func (c *console) Prompt(prompt string) {
	c.write(c.stdout, prompt)
}

func (c *console) write(w io.Writer, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(w, text)
}
