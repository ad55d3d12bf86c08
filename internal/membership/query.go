package membership

import (
	"sort"

	"github.com/dextop-world/dextop/pkg/wire"
)

// Connection returns a view of one connection.
func (m *Manager) Connection(connID string) (ConnectionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{
		ID:            c.id,
		Phase:         c.phase,
		Identity:      c.identity,
		Context:       c.ctx,
		IsVisitor:     c.isVisitor(),
		HasVisitCache: c.visitCache != nil,
		LastSeen:      c.lastSeen,
	}, true
}

// VisitCache returns a copy of the connection's cached own snapshot.
func (m *Manager) VisitCache(connID string) (wire.DesktopSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok || c.visitCache == nil {
		return wire.DesktopSnapshot{}, false
	}
	return c.visitCache.Clone(), true
}

// Members returns the connection ids in a context, sorted.
func (m *Manager) Members(ref ContextRef) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.contexts[ref.Key()]
	if !ok {
		return nil
	}
	return sortedMembers(cs)
}

// Snapshot returns the live snapshot of a context. Dextops without members
// are not held in memory.
func (m *Manager) Snapshot(ref ContextRef) (wire.DesktopSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.contexts[ref.Key()]
	if !ok {
		return wire.DesktopSnapshot{}, false
	}
	return cs.snapshot.Clone(), true
}

// Players returns every presence tracked in a context.
func (m *Manager) Players(ref ContextRef) map[string]wire.Presence {
	return m.registry.SnapshotAll(ref.Key())
}

// Visitors returns the visitors currently in ownerID's dextop.
func (m *Manager) Visitors(ownerID string) []wire.Presence {
	return m.registry.Visitors(DextopRef(ownerID).Key())
}

// UserConnections returns the authenticated connection ids of a user.
func (m *Manager) UserConnections(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, c := range m.conns {
		if c.phase == PhaseAuthenticated && c.identity.UserID == userID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Location reports whether a user is online and, if so, which dextop one of
// their connections is in.
func (m *Manager) Location(userID string) (online bool, dextopID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.phase != PhaseAuthenticated || c.identity.UserID != userID {
			continue
		}
		online = true
		if c.ctx.Kind == KindDextop && (dextopID == "" || c.ctx.ID < dextopID) {
			dextopID = c.ctx.ID
		}
	}
	return online, dextopID
}
