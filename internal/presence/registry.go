// Package presence tracks the live player and visitor records of every
// context. It is a plain in-memory service; callers inject an instance so
// tests can use isolated registries.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/dextop-world/dextop/pkg/wire"
)

// Identity is the non-state part of a presence record.
type Identity struct {
	UserID    string
	Username  string
	IsVisitor bool
	Quadrant  int
}

// Stale describes a presence evicted by Sweep.
type Stale struct {
	ContextID    string
	ConnectionID string
	Presence     wire.Presence
	LastSeen     time.Time
	// Snapshot is the context's desktop after the eviction moved hosted
	// multiplayer windows to another member; nil when nothing moved.
	Snapshot *wire.DesktopSnapshot
}

type record struct {
	presence wire.Presence
	lastSeen time.Time
}

// Registry maps (context id, connection id) to the latest known presence.
type Registry struct {
	now func() time.Time

	mu       sync.Mutex
	contexts map[string]map[string]*record
}

// NewRegistry returns an empty registry. A nil clock uses time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:      now,
		contexts: make(map[string]map[string]*record),
	}
}

// Track inserts or fully replaces the presence of a connection in a context.
// It is the explicit full-resync path; incremental updates go through Upsert.
func (r *Registry) Track(contextID, connectionID string, id Identity, state wire.PlayerState) wire.Presence {
	p := wire.Presence{
		PlayerID:  connectionID,
		UserID:    id.UserID,
		Username:  id.Username,
		IsVisitor: id.IsVisitor,
		Quadrant:  id.Quadrant,
		State:     state,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.contexts[contextID]
	if !ok {
		members = make(map[string]*record)
		r.contexts[contextID] = members
	}
	members[connectionID] = &record{presence: p, lastSeen: r.now()}
	return p
}

// Upsert merges a partial state into a tracked presence. It reports false
// when the connection is not tracked in the context; the caller must Track
// it first since identity fields cannot be derived from a patch.
func (r *Registry) Upsert(contextID, connectionID string, patch wire.PlayerStatePatch) (wire.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.contexts[contextID][connectionID]
	if !ok {
		return wire.Presence{}, false
	}
	rec.presence.State = rec.presence.State.Merge(patch)
	rec.lastSeen = r.now()
	return rec.presence, true
}

// Touch refreshes the last-seen timestamp without changing state.
func (r *Registry) Touch(contextID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.contexts[contextID][connectionID]
	if !ok {
		return false
	}
	rec.lastSeen = r.now()
	return true
}

// Get returns one presence.
func (r *Registry) Get(contextID, connectionID string) (wire.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.contexts[contextID][connectionID]
	if !ok {
		return wire.Presence{}, false
	}
	return rec.presence, true
}

// SnapshotAll returns a copy of every presence tracked in a context, keyed by
// connection id.
func (r *Registry) SnapshotAll(contextID string) map[string]wire.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.contexts[contextID]
	out := make(map[string]wire.Presence, len(members))
	for id, rec := range members {
		out[id] = rec.presence
	}
	return out
}

// Visitors returns the visitor presences of a context, ordered by username.
func (r *Registry) Visitors(contextID string) []wire.Presence {
	r.mu.Lock()
	var out []wire.Presence
	for _, rec := range r.contexts[contextID] {
		if rec.presence.IsVisitor {
			out = append(out, rec.presence)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

// Count returns the number of presences in a context.
func (r *Registry) Count(contextID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts[contextID])
}

// Remove evicts a presence and reports whether membership changed.
func (r *Registry) Remove(contextID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.contexts[contextID]
	if !ok {
		return false
	}
	if _, ok := members[connectionID]; !ok {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.contexts, contextID)
	}
	return true
}

// Sweep removes every presence last seen before cutoff and returns them.
// Removal and collection happen under one lock so a given presence is
// returned by at most one Sweep call.
func (r *Registry) Sweep(cutoff time.Time) []Stale {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Stale
	for contextID, members := range r.contexts {
		for connectionID, rec := range members {
			if !rec.lastSeen.Before(cutoff) {
				continue
			}
			out = append(out, Stale{
				ContextID:    contextID,
				ConnectionID: connectionID,
				Presence:     rec.presence,
				LastSeen:     rec.lastSeen,
			})
			delete(members, connectionID)
		}
		if len(members) == 0 {
			delete(r.contexts, contextID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.Before(out[j].LastSeen) })
	return out
}
