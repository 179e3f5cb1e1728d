package cdp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/dshills/replhost/internal/tracing"
)

// Conn is a correlated request/response channel over a byte stream pair.
// It is safe for concurrent use.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	// wmu serializes writes so messages never interleave.
	wmu sync.Mutex

	mu       sync.Mutex
	pending  map[int64]chan result
	handlers map[string][]EventHandler

	nextSeq atomic.Int64

	closed    atomic.Bool
	done      chan struct{}
	startOnce sync.Once

	onParseError func(line []byte, err error)
}

type result struct {
	resp *Response
	err  error
}

// Option configures a Conn.
type Option func(*Conn)

// WithParseErrorHandler installs a hook that receives lines that could not be
// decoded. The hook runs on the read goroutine.
func WithParseErrorHandler(fn func(line []byte, err error)) Option {
	return func(c *Conn) {
		c.onParseError = fn
	}
}

// NewConn creates a connection reading from r and writing to w. If w is also
// an io.Closer it is closed on teardown.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	c := &Conn{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		pending:  make(map[int64]chan result),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the read loop. Subsequent calls do nothing.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

// Done returns a channel that is closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether the connection has been torn down.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Pending returns the number of requests awaiting a response.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OnEvent registers a handler for the named event. EventWildcard receives
// every event after the specific handlers.
func (c *Conn) OnEvent(name string, handler EventHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers[name] = append(c.handlers[name], handler)
	c.mu.Unlock()
}

// SendRequest writes req and waits for the matching response.
//
// A cancelled ctx abandons the request and returns an error matching both
// ErrCancelled and ctx.Err(); a late response is then dropped. Teardown while
// waiting yields ErrCancelled. A torn down connection or a failed write yields
// ErrDisconnected.
func (c *Conn) SendRequest(ctx context.Context, req Request) (resp *Response, err error) {
	if c.closed.Load() {
		return nil, ErrDisconnected
	}

	ctx, span := tracing.StartSpan(ctx, "cdp.SendRequest", "CLIENT")
	defer func() { tracing.EndSpan(span, err) }()

	seq := c.nextSeq.Add(1)
	span.WithAttributes(map[string]string{"cdp.command": req.Command})
	span.SetInt("cdp.seq", seq)

	ch := make(chan result, 1)

	c.mu.Lock()
	// Checked under the lock so teardown either sees this entry or we see it.
	if c.closed.Load() {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	args := req.Arguments
	if args == nil {
		args = emptyArgs
	}
	msg := outgoing{
		Seq:       seq,
		Type:      TypeRequest,
		Command:   req.Command,
		Arguments: args,
	}
	if err := c.send(&msg); err != nil {
		c.remove(seq)
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		c.remove(seq)
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// Initialize performs the handshake with the companion.
func (c *Conn) Initialize(ctx context.Context) error {
	resp, err := c.SendRequest(ctx, Request{
		Command: CommandInitialize,
		Arguments: map[string]any{
			"clientID":  "replhost",
			"adapterID": "replhost",
		},
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, CommandInitialize, resp.Message)
	}
	return nil
}

// Close tears down the connection. It is idempotent.
func (c *Conn) Close() error {
	return c.teardown()
}

func (c *Conn) teardown() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	for seq, ch := range c.pending {
		ch <- result{err: ErrCancelled}
		delete(c.pending, seq)
	}
	c.mu.Unlock()

	if c.closer != nil {
		if err := c.closer.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("close writer: %w", err)
		}
	}
	return nil
}

func (c *Conn) remove(seq int64) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// send writes msg as a single line.
func (c *Conn) send(msg *outgoing) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer func() { _ = c.teardown() }()

	for {
		line, err := c.reader.ReadBytes('\n')
		if len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if line[0] != '{' {
		c.parseError(line, errors.New("not a JSON object"))
		return
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.parseError(line, err)
		c.salvageResponse(line)
		return
	}

	switch env.Type {
	case TypeResponse:
		c.handleResponse(&Response{
			Seq:        env.Seq,
			RequestSeq: env.RequestSeq,
			Success:    env.Success,
			Command:    env.Command,
			Message:    env.Message,
			Body:       env.Body,
		})
	case TypeEvent:
		c.handleEvent(&Event{Seq: env.Seq, Event: env.Event, Body: env.Body})
	case TypeRequest:
		// Answered off the read loop so a peer blocked on its own output
		// cannot stall us.
		go c.rejectRequest(env.Command, env.Seq)
	default:
		c.parseError(line, fmt.Errorf("unknown message type %s", strconv.Quote(env.Type)))
	}
}

// salvageResponse resolves the caller behind a response whose envelope did
// not decode. The caller gets an unsuccessful response carrying the message,
// or the raw line when there is none.
func (c *Conn) salvageResponse(line []byte) {
	if gjson.GetBytes(line, "type").String() != TypeResponse {
		return
	}
	reqSeq := gjson.GetBytes(line, "requestSeq")
	if reqSeq.Type != gjson.Number {
		return
	}

	msg := gjson.GetBytes(line, "message")
	text := string(line)
	if msg.Type == gjson.String {
		text = msg.Str
	}
	c.handleResponse(&Response{
		Seq:        gjson.GetBytes(line, "seq").Int(),
		RequestSeq: reqSeq.Int(),
		Command:    gjson.GetBytes(line, "command").String(),
		Message:    text,
	})
}

// handleResponse delivers resp to its waiting caller, if any.
func (c *Conn) handleResponse(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestSeq]
	if ok {
		delete(c.pending, resp.RequestSeq)
	}
	c.mu.Unlock()

	if ok {
		ch <- result{resp: resp}
	}
}

func (c *Conn) handleEvent(ev *Event) {
	c.mu.Lock()
	specific := c.handlers[ev.Event]
	wildcard := c.handlers[EventWildcard]
	hs := make([]EventHandler, 0, len(specific)+len(wildcard))
	hs = append(hs, specific...)
	hs = append(hs, wildcard...)
	c.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// rejectRequest answers a request from the peer. The host serves no commands.
func (c *Conn) rejectRequest(command string, seq int64) {
	if c.closed.Load() {
		return
	}
	ok := false
	_ = c.send(&outgoing{
		Seq:        c.nextSeq.Add(1),
		Type:       TypeResponse,
		Command:    command,
		RequestSeq: seq,
		Success:    &ok,
		Message:    "unrecognized request",
	})
}

func (c *Conn) parseError(line []byte, err error) {
	if c.onParseError != nil {
		c.onParseError(line, err)
	}
}
