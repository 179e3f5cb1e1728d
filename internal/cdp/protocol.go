package cdp

import "encoding/json"

// Message types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Commands and events used by the host.
const (
	CommandInitialize = "initialize"
	CommandEvaluate   = "evaluate"
	CommandDisconnect = "disconnect"

	EventOutput = "output"

	// EventWildcard registers a handler that receives every event.
	EventWildcard = "*"
)

// Request is an outgoing command. Arguments is marshaled as a JSON object;
// nil sends an empty object.
type Request struct {
	Command   string
	Arguments any
}

// Response is the peer's reply to a Request.
type Response struct {
	Seq        int64           `json:"seq"`
	RequestSeq int64           `json:"requestSeq"`
	Success    bool            `json:"success"`
	Command    string          `json:"command"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event is an unsolicited notification from the peer.
type Event struct {
	Seq   int64           `json:"seq"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// OutputBody is the body of an "output" event.
type OutputBody struct {
	Category string `json:"category"`
	Output   string `json:"output"`
}

// EventHandler receives events. Handlers run on the read goroutine.
type EventHandler func(ev *Event)

// outgoing is the wire form of a message written by the host.
type outgoing struct {
	Seq        int64  `json:"seq"`
	Type       string `json:"type"`
	Command    string `json:"command"`
	Arguments  any    `json:"arguments,omitempty"`
	RequestSeq int64  `json:"requestSeq,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Message    string `json:"message,omitempty"`
	Body       any    `json:"body,omitempty"`
}

// envelope is used to classify incoming messages.
type envelope struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command"`
	RequestSeq int64           `json:"requestSeq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Event      string          `json:"event"`
	Body       json.RawMessage `json:"body"`
}

// emptyArgs is sent for requests without arguments.
var emptyArgs = struct{}{}
