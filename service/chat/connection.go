package chat

import (
	"time"
)

// Connection is one live client session as seen by the relay. The Registry
// owns the record; everything outside it works on copies.
type Connection struct {
	ID          string    // assigned by the transport at accept time
	DisplayName string    // client supplied, may be empty
	AvatarRef   string    // optional URI or opaque reference
	ConnectedAt time.Time // registration time
}

// ProfileUpdate carries optional new display fields; nil leaves a field as is.
type ProfileUpdate struct {
	DisplayName *string
	AvatarRef   *string
}

func (u ProfileUpdate) empty() bool { return u.DisplayName == nil && u.AvatarRef == nil }

// ConnState is the transport-side lifecycle of a connection.
// Transitions only move forward: Connecting -> Active -> Closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
