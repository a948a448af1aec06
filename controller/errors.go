package controller

import "errors"

// Sentinel errors, errors.Is-compatible, standing in for the error kinds of
// spec.md §7.
var (
	// ErrConnectionClosed is surfaced once to trigger Close(); callers
	// that pass suppressExc=true never see it directly.
	ErrConnectionClosed = errors.New("controller: control connection closed")

	// ErrInitFailed is returned by Init when no connection could be
	// established.
	ErrInitFailed = errors.New("controller: failed to initialize control connection")

	// ErrReloadFailed is returned by Reload when the pkill/SIGHUP path
	// could not confirm a reload within the grace window.
	ErrReloadFailed = errors.New("controller: reload not confirmed")
)

// ProtocolError wraps a control-port error reply surfaced to a caller that
// asked for it (suppressExc=false).
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "controller: error reply: " + e.Msg
}
