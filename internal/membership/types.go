package membership

import (
	"time"

	"github.com/dextop-world/dextop/pkg/wire"
)

// Phase is the identity state of a connection.
type Phase int

const (
	// PhaseAnonymous connections have not presented a valid token.
	PhaseAnonymous Phase = iota
	// PhaseProvisional connections hold a verified token whose account
	// lookup has not completed. Joins are recorded and mutations buffered.
	PhaseProvisional
	// PhaseAuthenticated connections may join contexts and mutate state.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseProvisional:
		return "provisional"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Identity is the user behind a connection.
type Identity struct {
	UserID   string
	Username string
}

// ConnectionInfo is a read-only view of a connection.
type ConnectionInfo struct {
	ID            string
	Phase         Phase
	Identity      Identity
	Context       ContextRef
	IsVisitor     bool
	HasVisitCache bool
	LastSeen      time.Time
}

// Departure describes a connection leaving a context.
type Departure struct {
	Context   ContextRef
	Presence  wire.Presence
	IsVisitor bool
	// Remaining are the connection ids still in the context.
	Remaining []string
	// Snapshot is set when leaving migrated multiplayer windows to another
	// member; remaining members must receive it.
	Snapshot *wire.DesktopSnapshot
	Closed   bool
}

// JoinResult describes a join, visit or return-home transition.
type JoinResult struct {
	Context  ContextRef
	Presence wire.Presence
	// Players holds every presence in the context, joiner included.
	Players  map[string]wire.Presence
	Snapshot wire.DesktopSnapshot
	// Peers are the other connections in the context.
	Peers   []string
	IsOwner bool
	// Restored is true when the snapshot came from the visit cache.
	Restored  bool
	Repatched int
	// SnapshotChanged means peers must receive Snapshot and, for dextops,
	// it must be persisted.
	SnapshotChanged bool
	Departed        *Departure
	// NoOp is set when the connection already was in the context.
	NoOp bool
	// Pending is set when the join was recorded for a provisional
	// connection and will run on promotion.
	Pending bool
}

// DesktopUpdate is the outcome of an incoming snapshot.
type DesktopUpdate struct {
	Context  ContextRef
	Snapshot wire.DesktopSnapshot
	Peers    []string
	// Rejected lists window ids whose mutation was reverted.
	Rejected []string
	Changed  bool
	Buffered bool
}

// PersistFor returns the dextop owner whose stored snapshot must be
// updated, or "" when nothing needs saving.
func (u DesktopUpdate) PersistFor() string {
	if !u.Changed || u.Context.Kind != KindDextop {
		return ""
	}
	return u.Context.ID
}

// PlayerUpdate is the outcome of a movement or player-state event.
type PlayerUpdate struct {
	Context   ContextRef
	Presence  wire.Presence
	Patch     wire.PlayerStatePatch
	Peers     []string
	IsVisitor bool
	Buffered  bool
}

// Promotion is the outcome of a provisional connection becoming
// authenticated.
type Promotion struct {
	Identity Identity
	// Already is set when the connection was authenticated before this
	// call; nothing else is populated then.
	Already bool
	// Join is the recorded join, performed now.
	Join *JoinResult
	// Desktop is the single snapshot broadcast that flushes buffered window
	// state and controller re-patches.
	Desktop *DesktopUpdate
}
