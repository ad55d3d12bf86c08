package membership

import "errors"

var (
	// ErrAuthRequired is returned for context-scoped actions attempted
	// before the connection's identity was verified.
	ErrAuthRequired = errors.New("authentication required")
	// ErrContextNotFound is returned when a join target or the context named
	// by a mutation does not exist.
	ErrContextNotFound = errors.New("context not found")
	// ErrContextNotJoinable is a policy rejection (room full, visits
	// disabled).
	ErrContextNotJoinable = errors.New("context not joinable")
	// ErrStaleController marks window mutations from a non-controller. It
	// is logged, never returned to clients.
	ErrStaleController = errors.New("stale controller")
	// ErrConnectionClosed is returned when the connection disconnected
	// while an operation was in flight.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrIdentityConflict is returned when an authenticated connection
	// re-authenticates as a different user.
	ErrIdentityConflict = errors.New("connection already authenticated as another user")
)
