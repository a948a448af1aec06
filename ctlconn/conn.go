// Package ctlconn declares the contract a lower-level control-port client
// must satisfy for [github.com/torwatch/armctl/controller] to drive it.
//
// This module does not implement the control-port wire codec (framing
// request/response lines, parsing event payloads); that is assumed to live
// in a separate client library. Package ctlconn only names the interface
// the controller needs, plus a couple of small concrete error types the
// client is expected to use so the controller can classify failures without
// depending on the client's internal error types.
package ctlconn

import (
	"errors"
	"fmt"

	"github.com/torwatch/armctl/event"
)

// Conn is a live connection to a control port. Implementations are not
// required to be safe for concurrent use by multiple goroutines issuing
// queries simultaneously — the controller serializes access under its own
// lock — but event delivery (to the listener registered via
// AddEventListener) happens concurrently with query issuance, on whatever
// goroutine the implementation's read loop runs on.
type Conn interface {
	// IsLive reports whether the underlying socket is still connected.
	IsLive() bool

	// Close closes the underlying socket. Idempotent.
	Close() error

	// GetInfo issues "GETINFO key" and returns the single value.
	GetInfo(key string) (string, error)

	// GetOption issues "GETCONF key" and returns every value line in
	// order (most options have exactly one; Log and ExitPolicy commonly
	// have several).
	GetOption(key string) ([]string, error)

	// SetEvents issues "SETEVENTS <names...>", replacing any previously
	// requested set.
	SetEvents(names []string) error

	// SendSignal issues "SIGNAL <name>".
	SendSignal(name string) error

	// AddEventListener registers a receiver for every event delivered on
	// this connection from this point forward. Implementations fan out
	// to every registered listener; they do not replace previously
	// registered ones.
	AddEventListener(event.Listener)
}

// ErrClosed is returned by a Conn method when the underlying control
// socket has gone away. The controller treats this specially: it triggers
// Controller.Close() so the stale connection isn't reused.
var ErrClosed = errors.New("ctlconn: control connection closed")

// ProtocolError is returned when the control port answers a query with an
// error reply (as opposed to a transport-level failure). Msg is the raw
// reply text, used verbatim by event-set negotiation to detect
// "Unrecognized event" rejections.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ctlconn: error reply: %s", e.Msg)
}
