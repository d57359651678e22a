// Package transport defines the contract between the dispatch core and the
// messaging transport. The concrete adapter lives in a subpackage; the core
// only sees this interface plus a small set of lifecycle events.
package transport

import "context"

type EventKind string

const (
	// EventQR carries a pairing challenge that must be rendered as a
	// scannable code.
	EventQR EventKind = "qr"

	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
)

// Event is a lifecycle notification from the transport. The core only reacts
// to readiness (handled inside Dial); everything else is observability.
type Event struct {
	Kind EventKind
	Code string // QR payload, only for EventQR
	Err  error  // only for EventAuthFailure / EventDisconnected
}

// EventFunc receives lifecycle events. Implementations must not block.
type EventFunc func(Event)

// Session is an authenticated connection to the messaging transport.
// Implementations are safe for use from a single dispatch loop plus the
// request gateway; blastbot never issues concurrent sends.
type Session interface {
	// IsRegistered reports whether the address is reachable on the transport.
	// An unregistered recipient is a normal negative answer, not an error.
	IsRegistered(ctx context.Context, addr string) (bool, error)

	// SendText delivers a plain text message to a registered recipient.
	SendText(ctx context.Context, addr, text string) error

	// Close releases the connection. Safe to call once.
	Close(ctx context.Context) error
}

// DialFunc produces a ready (connected and authenticated) Session or fails.
// It must respect ctx for bounding the readiness wait.
type DialFunc func(ctx context.Context) (Session, error)
