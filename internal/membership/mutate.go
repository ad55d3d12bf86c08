package membership

import (
	"fmt"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/ownership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/pkg/wire"
)

// ApplyDesktop applies a full snapshot sent by connID for ref (zero ref
// means the connection's current context). The snapshot is sanitized and
// guarded: edits to windows the sender does not control are reverted
// silently. Provisional senders have their snapshot buffered, latest wins.
func (m *Manager) ApplyDesktop(connID string, ref ContextRef, snap wire.DesktopSnapshot) (DesktopUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return DesktopUpdate{}, ErrConnectionClosed
	}
	switch c.phase {
	case PhaseAnonymous:
		return DesktopUpdate{}, ErrAuthRequired
	case PhaseProvisional:
		buf := m.sanitizer.Sanitize(snap)
		c.bufDesktop = &buf
		c.bufRef = ref
		return DesktopUpdate{Context: ref, Buffered: true}, nil
	}

	cs, err := m.currentContextLocked(c, ref)
	if err != nil {
		return DesktopUpdate{}, err
	}

	incoming := m.sanitizer.Sanitize(snap)
	settings := cs.ref.Kind == KindRoom || cs.ref.ID == c.identity.UserID
	out, rejected := ownership.Guard(cs.snapshot, incoming, c.id, ownership.GuardOptions{SettingsAllowed: settings})
	if len(rejected) > 0 {
		logger.Debugf("membership: conn %s in %s: %v: reverted windows %v", c.id, cs.ref, ErrStaleController, rejected)
	}

	changed := m.detector.HasChanged(cs.snapshot, out)
	if changed {
		cs.snapshot = out
	}
	return DesktopUpdate{
		Context:  cs.ref,
		Snapshot: cs.snapshot.Clone(),
		Peers:    peersOf(cs, c.id),
		Rejected: rejected,
		Changed:  changed,
	}, nil
}

// UpdatePlayer merges a partial player state from connID. The state is
// remembered on the connection and carried across context changes.
func (m *Manager) UpdatePlayer(connID string, ref ContextRef, patch wire.PlayerStatePatch) (PlayerUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return PlayerUpdate{}, ErrConnectionClosed
	}
	if c.phase == PhaseAnonymous {
		return PlayerUpdate{}, ErrAuthRequired
	}
	c.state = c.state.Merge(patch)
	c.lastSeen = m.now()
	if c.phase == PhaseProvisional {
		return PlayerUpdate{Context: ref, Patch: patch, Buffered: true}, nil
	}

	cs, err := m.currentContextLocked(c, ref)
	if err != nil {
		return PlayerUpdate{}, err
	}
	key := cs.ref.Key()
	p, ok := m.registry.Upsert(key, c.id, patch)
	if !ok {
		p = m.registry.Track(key, c.id, presence.Identity{
			UserID:    c.identity.UserID,
			Username:  c.username,
			IsVisitor: c.isVisitor(),
			Quadrant:  c.quadrant,
		}, c.state)
	}
	return PlayerUpdate{
		Context:   cs.ref,
		Presence:  p,
		Patch:     patch,
		Peers:     peersOf(cs, c.id),
		IsVisitor: c.isVisitor(),
	}, nil
}

// Chat resolves the audience of a context-scoped chat message.
func (m *Manager) Chat(connID string, ref ContextRef) (ContextRef, Identity, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.authenticatedLocked(connID)
	if err != nil {
		return ContextRef{}, Identity{}, nil, err
	}
	cs, err := m.currentContextLocked(c, ref)
	if err != nil {
		return ContextRef{}, Identity{}, nil, err
	}
	id := c.identity
	if c.username != "" {
		id.Username = c.username
	}
	return cs.ref, id, peersOf(cs, c.id), nil
}

func (m *Manager) currentContextLocked(c *connection, ref ContextRef) (*contextState, error) {
	if c.ctx.IsZero() {
		return nil, fmt.Errorf("not in a context: %w", ErrContextNotFound)
	}
	if !ref.IsZero() && ref != c.ctx {
		return nil, ErrContextNotFound
	}
	cs, ok := m.contexts[c.ctx.Key()]
	if !ok {
		return nil, ErrContextNotFound
	}
	return cs, nil
}
