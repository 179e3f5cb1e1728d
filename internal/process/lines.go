package process

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits a byte stream into lines and pushes them to a handler.
// Lines arriving before a handler is attached are kept in a backlog.
// Write never blocks on the handler being absent.
type lineWriter struct {
	mu      sync.Mutex
	partial []byte
	backlog []string
	handler func(line string)
}

func newLineWriter() *lineWriter {
	return &lineWriter{}
}

// Write implements io.Writer.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.partial[:i]), "\r")
		w.partial = w.partial[i+1:]
		w.emitLocked(line)
	}
	return len(p), nil
}

// flush emits a trailing line that had no terminator.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.partial) == 0 {
		return
	}
	line := strings.TrimSuffix(string(w.partial), "\r")
	w.partial = nil
	w.emitLocked(line)
}

// attach installs the handler and replays the backlog to it.
func (w *lineWriter) attach(h func(line string)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handler = h
	if h == nil {
		return
	}
	for _, line := range w.backlog {
		h(line)
	}
	w.backlog = nil
}

// buffered returns the backlog joined with newlines.
func (w *lineWriter) buffered() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.backlog, "\n")
}

func (w *lineWriter) emitLocked(line string) {
	if w.handler == nil {
		w.backlog = append(w.backlog, line)
		return
	}
	w.handler(line)
}
