package cdp

import "errors"

// Sentinel errors for the cdp package.
var (
	// ErrDisconnected is returned when the connection is unusable: it has been
	// torn down, or writing the request failed.
	ErrDisconnected = errors.New("connection disconnected")

	// ErrCancelled is returned to a caller whose request was abandoned, either
	// because its context ended or because the connection was torn down while
	// it waited.
	ErrCancelled = errors.New("request cancelled")

	// ErrRequestFailed is returned by Initialize when the peer rejects the
	// handshake.
	ErrRequestFailed = errors.New("request failed")
)
