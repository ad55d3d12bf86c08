package handlers

import (
	"context"
	"errors"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Emission describes a single outbound event produced by a handler call.
type Emission struct {
	targets []string
	event   string
	payload any
	// onSent runs once the event reached every target.
	onSent func(context.Context)
}

func emitTo(targets []string, event string, payload any) Emission {
	return Emission{targets: targets, event: event, payload: payload}
}

func emitSelf(auth AuthContext, event string, payload any) Emission {
	return emitTo([]string{auth.SocketID()}, event, payload)
}

// Targets returns the socket ids the event is addressed to.
func (e Emission) Targets() []string { return e.targets }

// Event returns the Socket.IO event name.
func (e Emission) Event() string { return e.event }

// Payload returns the event body.
func (e Emission) Payload() any { return e.payload }

// OnSent returns the follow-up to run after the event was delivered to all
// of its targets, or nil.
func (e Emission) OnSent() func(context.Context) { return e.onSent }

func (e Emission) whenSent(fn func(context.Context)) Emission {
	e.onSent = fn
	return e
}

// SnapshotSave asks the transport to persist a dextop snapshot.
type SnapshotSave struct {
	ownerID  string
	snapshot wire.DesktopSnapshot
}

// OwnerID returns the dextop owner.
func (s SnapshotSave) OwnerID() string { return s.ownerID }

// Snapshot returns the snapshot to store.
func (s SnapshotSave) Snapshot() wire.DesktopSnapshot { return s.snapshot }

// EventResult is the output of a handler invocation.
type EventResult struct {
	ack       any
	emissions []Emission
	saves     []SnapshotSave
	// statusChanged lists users whose friends must get a refreshed list.
	statusChanged []string
}

// NewEventResult constructs a handler result.
func NewEventResult(ack any, emissions []Emission) EventResult {
	return EventResult{ack: ack, emissions: emissions}
}

// Ack returns the ACK payload to send to the caller.
func (r EventResult) Ack() any { return r.ack }

// Emissions returns the events to emit, in order.
func (r EventResult) Emissions() []Emission { return r.emissions }

// Saves returns the snapshot persistence requests.
func (r EventResult) Saves() []SnapshotSave { return r.saves }

// StatusChanged returns the users whose presence changed.
func (r EventResult) StatusChanged() []string { return r.statusChanged }

func (r *EventResult) emit(e ...Emission) {
	for _, em := range e {
		if len(em.targets) == 0 {
			continue
		}
		r.emissions = append(r.emissions, em)
	}
}

func (r *EventResult) save(ownerID string, snap wire.DesktopSnapshot) {
	if ownerID == "" {
		return
	}
	r.saves = append(r.saves, SnapshotSave{ownerID: ownerID, snapshot: snap})
}

func (r *EventResult) changed(userID string) {
	if userID == "" {
		return
	}
	for _, id := range r.statusChanged {
		if id == userID {
			return
		}
	}
	r.statusChanged = append(r.statusChanged, userID)
}

func successResult() EventResult {
	return NewEventResult(wire.AckSuccess(), nil)
}

// errorResult maps a domain error to an error ACK. Messages are short and
// stable so clients can match on them.
func errorResult(err error) EventResult {
	return NewEventResult(wire.AckError(errorMessage(err)), nil)
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, membership.ErrAuthRequired):
		return "Authentication required"
	case errors.Is(err, membership.ErrContextNotJoinable):
		return "Context not joinable"
	case errors.Is(err, membership.ErrContextNotFound):
		return "Context not found"
	case errors.Is(err, membership.ErrIdentityConflict):
		return "Identity conflict"
	case errors.Is(err, membership.ErrConnectionClosed):
		return "Connection closed"
	case errors.Is(err, relay.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, relay.ErrAlreadyFriends):
		return "Already friends"
	case errors.Is(err, relay.ErrRequestNotFound):
		return "Friend request not found"
	case errors.Is(err, relay.ErrInvalidMessage), errors.Is(err, relay.ErrInvalidRequest):
		return "Invalid request"
	case errors.Is(err, relay.ErrExternalStore):
		return "Storage unavailable"
	}
	return "Internal error"
}
