package membership

import (
	"strings"

	"github.com/dextop-world/dextop/pkg/wire"
)

// Kind distinguishes ephemeral rooms from persistent dextop sessions.
type Kind string

const (
	KindRoom   Kind = "room"
	KindDextop Kind = "dextop"
)

// ContextRef names a room (by code) or a dextop session (by owner user id).
type ContextRef struct {
	Kind Kind
	ID   string
}

// RoomRef returns the reference of the room with the given code.
func RoomRef(code string) ContextRef {
	return ContextRef{Kind: KindRoom, ID: NormalizeRoomCode(code)}
}

// DextopRef returns the reference of userID's dextop session.
func DextopRef(userID string) ContextRef {
	return ContextRef{Kind: KindDextop, ID: userID}
}

// NormalizeRoomCode upper-cases and trims a room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsZero reports whether r names no context.
func (r ContextRef) IsZero() bool { return r.ID == "" }

// Key is the registry key of the context, e.g. "dextop:<user id>".
func (r ContextRef) Key() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + r.ID
}

func (r ContextRef) String() string { return r.Key() }

// ParseKey reverses Key.
func ParseKey(key string) (ContextRef, bool) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return ContextRef{}, false
	}
	switch Kind(kind) {
	case KindRoom, KindDextop:
		return ContextRef{Kind: Kind(kind), ID: id}, true
	}
	return ContextRef{}, false
}

type contextState struct {
	ref      ContextRef
	snapshot wire.DesktopSnapshot
	members  map[string]struct{}
	// quadrants maps room quadrant index to connection id.
	quadrants map[int]string
}

func newContextState(ref ContextRef, snap wire.DesktopSnapshot) *contextState {
	if snap.Programs == nil {
		snap = wire.NewDesktopSnapshot()
	}
	return &contextState{
		ref:       ref,
		snapshot:  snap.Clone(),
		members:   make(map[string]struct{}),
		quadrants: make(map[int]string),
	}
}

func (cs *contextState) lowestFreeQuadrant() int {
	q := 0
	for {
		if _, taken := cs.quadrants[q]; !taken {
			return q
		}
		q++
	}
}

func (cs *contextState) memberSet() map[string]bool {
	out := make(map[string]bool, len(cs.members))
	for id := range cs.members {
		out[id] = true
	}
	return out
}
