package repl

import (
	"strings"
	"sync"
	"sync/atomic"
)

// preConnectionBuffer collects standard error lines until someone takes it.
// Taking is atomic and happens at most once; after that Append reports false
// and the caller must deliver lines elsewhere.
type preConnectionBuffer struct {
	cell atomic.Pointer[bufferCell]
}

type bufferCell struct {
	mu  sync.Mutex
	buf strings.Builder
	// taken is set under mu so an Append racing with a take either lands
	// before the snapshot or reports false.
	taken bool
}

func newPreConnectionBuffer() *preConnectionBuffer {
	b := &preConnectionBuffer{}
	b.cell.Store(&bufferCell{})
	return b
}

// Append adds line with normalized line endings and a trailing newline.
func (b *preConnectionBuffer) Append(line string) bool {
	c := b.cell.Load()
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken {
		return false
	}
	c.buf.WriteString(normalizeNewlines(line))
	c.buf.WriteByte('\n')
	return true
}

// TakeAndFlush removes the buffer and returns its contents. Exactly one
// caller ever sees ok == true.
func (b *preConnectionBuffer) TakeAndFlush() (string, bool) {
	c := b.cell.Swap(nil)
	if c == nil {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.taken = true
	return c.buf.String(), true
}

// normalizeNewlines converts CRLF and lone CR to LF.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
