// Package base holds the small set of types and interfaces shared by every
// layer of the library: the transport abstraction the session engine
// consumes, the wire-level tag enumerations common to both the codec and
// the application layer, and the sentinel errors raised across layers.
package base

import (
	"time"

	"go.uber.org/zap"
)

// Stream is the transport collaborator consumed by the session engine. It
// is deliberately minimal: framing (HDLC, M-Bus, TCP-wrapper, serial) is an
// external concern and is never implemented by this module. Each Read is
// expected to return bytes belonging to the single APDU currently being
// received; callers never need to re-synchronize on a byte boundary.
type Stream interface {
	Close() error
	Open() error
	Disconnect() error // hard end of connection without solving any unassociation
	IsOpen() bool
	SetLogger(logger *zap.SugaredLogger)
	SetDeadline(t time.Time)     // zero time means no deadline
	SetMaxReceivedBytes(m int64) // every call resets the current counter; exceeding it is a comm error
	Read(p []byte) (n int, err error)
	Write(src []byte) error // always writes everything or returns an error
}

// TimeSource is the optional system-time collaborator used when the session
// needs to stamp an outgoing APDU with the current time (e.g. set_clock).
type TimeSource interface {
	Now() time.Time
}
