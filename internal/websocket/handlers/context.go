package handlers

import (
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/pkg/wire"
)

// roomRef resolves a client supplied room id. Empty means "current context".
func roomRef(id string) membership.ContextRef {
	if id == "" {
		return membership.ContextRef{}
	}
	if ref, ok := membership.ParseKey(id); ok {
		return ref
	}
	return membership.RoomRef(id)
}

// dextopRef resolves a client supplied dextop id. Empty means "current
// context".
func dextopRef(id string) membership.ContextRef {
	if id == "" {
		return membership.ContextRef{}
	}
	if ref, ok := membership.ParseKey(id); ok {
		return ref
	}
	return membership.DextopRef(id)
}

func snapshotEvent(ref membership.ContextRef) string {
	if ref.Kind == membership.KindDextop {
		return wire.EventDextopState
	}
	return wire.EventDesktopState
}

func snapshotPayload(ref membership.ContextRef, snap wire.DesktopSnapshot) wire.DesktopStatePayload {
	return wire.DesktopStatePayload{ContextID: ref.Key(), DesktopState: snap}
}

func leftEvent(isVisitor bool) string {
	if isVisitor {
		return wire.EventVisitorLeft
	}
	return wire.EventPlayerLeft
}

// departureResult tells the remaining members of a context that a
// connection left, and hands them a migrated snapshot when hosting moved.
func departureResult(r *EventResult, dep *membership.Departure) {
	if dep == nil {
		return
	}
	r.emit(emitTo(dep.Remaining, leftEvent(dep.IsVisitor), wire.LeftPayload{
		ContextID: dep.Context.Key(),
		PlayerID:  dep.Presence.PlayerID,
		UserID:    dep.Presence.UserID,
	}))
	if dep.Snapshot != nil {
		r.emit(emitTo(dep.Remaining, snapshotEvent(dep.Context), snapshotPayload(dep.Context, *dep.Snapshot)))
		if dep.Context.Kind == membership.KindDextop {
			r.save(dep.Context.ID, *dep.Snapshot)
		}
	}
}

// joinResult fans a completed join out to the joiner and its peers.
func joinResult(r *EventResult, auth AuthContext, jr membership.JoinResult) {
	departureResult(r, jr.Departed)

	ref := jr.Context
	switch ref.Kind {
	case membership.KindRoom:
		r.emit(emitSelf(auth, wire.EventRoomJoined, wire.RoomJoinedPayload{
			RoomID:   ref.ID,
			PlayerID: auth.SocketID(),
			Username: jr.Presence.Username,
			Quadrant: jr.Presence.Quadrant,
		}))
	case membership.KindDextop:
		r.emit(emitSelf(auth, wire.EventDextopJoined, wire.DextopJoinedPayload{
			DextopID: ref.ID,
			UserID:   auth.UserID(),
			Username: jr.Presence.Username,
			PlayerID: auth.SocketID(),
			IsOwner:  jr.IsOwner,
			Restored: jr.Restored,
		}))
	}

	list := wire.PresenceListPayload{ContextID: ref.Key(), Players: jr.Players}
	listEvent := wire.EventPlayersUpdate
	if ref.Kind == membership.KindDextop {
		listEvent = wire.EventVisitorsUpdate
	}
	r.emit(emitSelf(auth, listEvent, list))
	r.emit(emitSelf(auth, snapshotEvent(ref), snapshotPayload(ref, jr.Snapshot)))

	if jr.NoOp {
		return
	}

	if ref.Kind == membership.KindRoom {
		r.emit(emitTo(jr.Peers, wire.EventPlayersUpdate, list))
	} else {
		r.emit(emitTo(jr.Peers, wire.EventVisitorStateUpdate, wire.VisitorStatePayload{
			PlayerID: jr.Presence.PlayerID,
			UserID:   jr.Presence.UserID,
			Username: jr.Presence.Username,
			State:    jr.Presence.State.FullPatch(),
		}))
	}
	if jr.SnapshotChanged {
		r.emit(emitTo(jr.Peers, snapshotEvent(ref), snapshotPayload(ref, jr.Snapshot)))
		if ref.Kind == membership.KindDextop {
			r.save(ref.ID, jr.Snapshot)
		}
	}
	if ref.Kind == membership.KindDextop || (jr.Departed != nil && jr.Departed.Context.Kind == membership.KindDextop) {
		r.changed(auth.UserID())
	}
}

// desktopResult broadcasts an accepted snapshot. When some of the sender's
// edits were reverted the sender gets the corrected snapshot too.
func desktopResult(r *EventResult, auth AuthContext, du membership.DesktopUpdate) {
	if du.Buffered || (!du.Changed && len(du.Rejected) == 0) {
		return
	}
	payload := snapshotPayload(du.Context, du.Snapshot)
	if du.Changed {
		r.emit(emitTo(du.Peers, snapshotEvent(du.Context), payload))
		r.save(du.PersistFor(), du.Snapshot)
	}
	if len(du.Rejected) > 0 {
		r.emit(emitSelf(auth, snapshotEvent(du.Context), payload))
	}
}

// Swept builds the notifications for presences evicted by the sweeper.
func Swept(deps Deps, stale []presence.Stale) EventResult {
	var r EventResult
	for _, s := range stale {
		ref, ok := membership.ParseKey(s.ContextID)
		if !ok {
			continue
		}
		r.emit(emitTo(deps.Members().Members(ref), leftEvent(s.Presence.IsVisitor), wire.LeftPayload{
			ContextID: s.ContextID,
			PlayerID:  s.ConnectionID,
			UserID:    s.Presence.UserID,
			Stale:     true,
		}))
		if s.Snapshot != nil {
			r.emit(emitTo(deps.Members().Members(ref), snapshotEvent(ref), snapshotPayload(ref, *s.Snapshot)))
			if ref.Kind == membership.KindDextop {
				r.save(ref.ID, *s.Snapshot)
			}
		}
		if ref.Kind == membership.KindDextop {
			r.changed(s.Presence.UserID)
		}
	}
	return r
}
