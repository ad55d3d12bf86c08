// Package membership places connections into rooms and dextop sessions and
// owns the authoritative per-context desktop snapshots.
//
// All transitions run under one mutex. Store lookups (snapshot seeding,
// account checks) happen outside it, so a slow store only delays the
// connection that asked. The presence registry has its own lock and is
// always acquired after the manager's, never before.
package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/ownership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/internal/reconcile"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Store is the durable backing for dextop snapshots and account lookups.
type Store interface {
	LoadDextopSnapshot(ctx context.Context, userID string) (wire.DesktopSnapshot, bool, error)
	AccountExists(ctx context.Context, userID string) (bool, error)
}

// Options configure a Manager.
type Options struct {
	Registry    *presence.Registry
	Store       Store
	Policy      JoinPolicy
	Sanitizer   *reconcile.Sanitizer
	NewRoomCode func() (string, error)
	Now         func() time.Time
}

type joinRequest struct {
	ref      ContextRef
	username string
	create   bool
}

type connection struct {
	id       string
	phase    Phase
	identity Identity
	// username is the display name used in the current context.
	username string
	ctx      ContextRef
	quadrant int
	state    wire.PlayerState
	lastSeen time.Time

	// visitCache holds the connection's own dextop snapshot while it
	// visits elsewhere. It is set once per visit and cleared on return.
	visitCache *wire.DesktopSnapshot

	pendingJoin *joinRequest
	bufDesktop  *wire.DesktopSnapshot
	bufRef      ContextRef
}

func (c *connection) isVisitor() bool {
	return c.ctx.Kind == KindDextop && c.ctx.ID != c.identity.UserID
}

// Manager is the session/membership service.
type Manager struct {
	registry    *presence.Registry
	store       Store
	policy      JoinPolicy
	sanitizer   *reconcile.Sanitizer
	detector    reconcile.ChangeDetector[wire.DesktopSnapshot]
	newRoomCode func() (string, error)
	now         func() time.Time

	mu       sync.Mutex
	conns    map[string]*connection
	contexts map[string]*contextState
}

// NewManager builds a manager. Registry and NewRoomCode are required.
func NewManager(opts Options) *Manager {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy{MaxRoomMembers: 4, VisitsEnabled: true}
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = reconcile.NewSanitizer(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		registry:    opts.Registry,
		store:       opts.Store,
		policy:      opts.Policy,
		sanitizer:   opts.Sanitizer,
		detector:    reconcile.SerializedDetector[wire.DesktopSnapshot]{},
		newRoomCode: opts.NewRoomCode,
		now:         opts.Now,
		conns:       make(map[string]*connection),
		contexts:    make(map[string]*contextState),
	}
}

// Connect registers a new anonymous connection.
func (m *Manager) Connect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; ok {
		return
	}
	m.conns[connID] = &connection{id: connID, lastSeen: m.now()}
}

// BeginAuth records a verified token identity, moving an anonymous
// connection to provisional. It returns true when the connection was
// already authenticated as the same user and no promotion is needed.
func (m *Manager) BeginAuth(connID string, id Identity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok {
		return false, ErrConnectionClosed
	}
	switch c.phase {
	case PhaseAuthenticated:
		if c.identity.UserID != id.UserID {
			return false, ErrIdentityConflict
		}
		if id.Username != "" {
			c.identity.Username = id.Username
		}
		return true, nil
	case PhaseProvisional:
		if c.identity.UserID != id.UserID {
			// A different token replaces whatever was recorded for the
			// previous one.
			c.pendingJoin = nil
			c.bufDesktop = nil
		}
	}
	c.identity = id
	c.phase = PhaseProvisional
	return false, nil
}

// Promote completes the two-phase join: the provisional connection becomes
// authenticated, a recorded join is performed and buffered window state is
// flushed with controller ids re-patched to this connection. At most one
// snapshot broadcast results (Promotion.Desktop, or Join.SnapshotChanged).
func (m *Manager) Promote(ctx context.Context, connID string, username string) (Promotion, error) {
	m.mu.Lock()
	c, ok := m.conns[connID]
	if !ok {
		m.mu.Unlock()
		return Promotion{}, ErrConnectionClosed
	}
	switch c.phase {
	case PhaseAnonymous:
		m.mu.Unlock()
		return Promotion{}, ErrAuthRequired
	case PhaseAuthenticated:
		id := c.identity
		m.mu.Unlock()
		return Promotion{Identity: id, Already: true}, nil
	}
	c.phase = PhaseAuthenticated
	if username != "" {
		c.identity.Username = username
	}
	promo := Promotion{Identity: c.identity}
	pending, buf, bufRef := c.pendingJoin, c.bufDesktop, c.bufRef
	c.pendingJoin, c.bufDesktop, c.bufRef = nil, nil, ContextRef{}
	m.mu.Unlock()

	if pending == nil {
		if buf != nil {
			logger.Debugf("membership: conn %s promoted without a join; dropping buffered desktop", connID)
		}
		return promo, nil
	}

	var (
		jr  JoinResult
		err error
	)
	switch {
	case pending.create:
		jr, err = m.CreateRoom(connID, pending.username)
	case pending.ref.Kind == KindRoom:
		jr, err = m.JoinRoom(connID, pending.ref.ID, pending.username)
	default:
		jr, err = m.JoinDextop(ctx, connID, pending.ref.ID)
	}
	if err != nil {
		return promo, err
	}
	promo.Join = &jr

	if buf == nil || (!bufRef.IsZero() && bufRef != jr.Context) {
		return promo, nil
	}

	m.mu.Lock()
	present := map[string]bool{}
	if cs, ok := m.contexts[jr.Context.Key()]; ok {
		present = cs.memberSet()
	}
	m.mu.Unlock()
	patched, _ := ownership.RepatchStale(*buf, present, connID)

	du, err := m.ApplyDesktop(connID, jr.Context, patched)
	if err != nil {
		return promo, err
	}
	if jr.SnapshotChanged {
		du.Changed = true
		promo.Join.SnapshotChanged = false
	}
	promo.Desktop = &du
	return promo, nil
}

// Disconnect forgets a connection. Provisional connections are discarded
// without notifying anyone; authenticated ones leave their context.
func (m *Manager) Disconnect(connID string) *Departure {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok {
		return nil
	}
	delete(m.conns, connID)
	if c.phase != PhaseAuthenticated {
		return nil
	}
	return m.leaveLocked(c)
}

// Leave removes the connection from its current context.
func (m *Manager) Leave(connID string) (*Departure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.authenticatedLocked(connID)
	if err != nil {
		return nil, err
	}
	return m.leaveLocked(c), nil
}

// Heartbeat refreshes the connection's presence timestamp.
func (m *Manager) Heartbeat(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[connID]
	if !ok {
		return ErrConnectionClosed
	}
	c.lastSeen = m.now()
	if !c.ctx.IsZero() {
		m.registry.Touch(c.ctx.Key(), c.id)
	}
	return nil
}

// Sweep evicts stale presences from the registry and drops the affected
// connections from their contexts. It satisfies presence.Sweepable.
func (m *Manager) Sweep(cutoff time.Time) []presence.Stale {
	stale := m.registry.Sweep(cutoff)
	if len(stale) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range stale {
		c, ok := m.conns[s.ConnectionID]
		if !ok || c.ctx.Key() != s.ContextID {
			continue
		}
		if _, back := m.registry.Get(s.ContextID, s.ConnectionID); back {
			continue
		}
		if dep := m.leaveLocked(c); dep != nil {
			stale[i].Snapshot = dep.Snapshot
		}
	}
	return stale
}

func (m *Manager) authenticatedLocked(connID string) (*connection, error) {
	c, ok := m.conns[connID]
	if !ok {
		return nil, ErrConnectionClosed
	}
	if c.phase != PhaseAuthenticated {
		return nil, ErrAuthRequired
	}
	return c, nil
}

// leaveLocked removes c from its context and returns what peers must be
// told. Multiplayer windows hosted by c move to the first remaining member.
func (m *Manager) leaveLocked(c *connection) *Departure {
	if c.ctx.IsZero() {
		return nil
	}
	ref := c.ctx
	key := ref.Key()
	dep := &Departure{Context: ref, IsVisitor: c.isVisitor()}

	p, ok := m.registry.Get(key, c.id)
	if !ok {
		p = wire.Presence{PlayerID: c.id, UserID: c.identity.UserID, Username: c.username, IsVisitor: dep.IsVisitor, State: c.state}
	} else {
		c.state = p.State
	}
	dep.Presence = p
	m.registry.Remove(key, c.id)

	c.ctx = ContextRef{}
	c.quadrant = 0

	cs, ok := m.contexts[key]
	if !ok {
		return dep
	}
	delete(cs.members, c.id)
	for q, id := range cs.quadrants {
		if id == c.id {
			delete(cs.quadrants, q)
		}
	}
	dep.Remaining = sortedMembers(cs)
	if len(cs.members) == 0 {
		delete(m.contexts, key)
		dep.Closed = true
		return dep
	}

	host := dep.Remaining[0]
	migrated := 0
	for id, w := range cs.snapshot.Programs {
		if w.IsMultiplayer && w.ControllerID == c.id {
			w.ControllerID = host
			cs.snapshot.Programs[id] = w
			migrated++
		}
	}
	if migrated > 0 {
		snap := cs.snapshot.Clone()
		dep.Snapshot = &snap
	}
	return dep
}

// enterLocked adds c to cs and tracks its presence with its current state.
func (m *Manager) enterLocked(c *connection, cs *contextState, username string) wire.Presence {
	if username == "" {
		username = c.identity.Username
	}
	c.username = username
	c.ctx = cs.ref
	c.lastSeen = m.now()
	cs.members[c.id] = struct{}{}

	if cs.ref.Kind == KindRoom {
		c.quadrant = cs.lowestFreeQuadrant()
		cs.quadrants[c.quadrant] = c.id
	}
	return m.registry.Track(cs.ref.Key(), c.id, presence.Identity{
		UserID:    c.identity.UserID,
		Username:  username,
		IsVisitor: c.isVisitor(),
		Quadrant:  c.quadrant,
	}, c.state)
}

func (m *Manager) contextLocked(ref ContextRef, seed wire.DesktopSnapshot) *contextState {
	key := ref.Key()
	if cs, ok := m.contexts[key]; ok {
		return cs
	}
	cs := newContextState(ref, seed)
	m.contexts[key] = cs
	return cs
}

func (m *Manager) joinResultLocked(c *connection, cs *contextState, p wire.Presence) JoinResult {
	return JoinResult{
		Context:  cs.ref,
		Presence: p,
		Players:  m.registry.SnapshotAll(cs.ref.Key()),
		Snapshot: cs.snapshot.Clone(),
		Peers:    peersOf(cs, c.id),
		IsOwner:  cs.ref.Kind == KindDextop && cs.ref.ID == c.identity.UserID,
	}
}

func sortedMembers(cs *contextState) []string {
	out := make([]string, 0, len(cs.members))
	for id := range cs.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func peersOf(cs *contextState, self string) []string {
	out := make([]string, 0, len(cs.members))
	for id := range cs.members {
		if id != self {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manager) loadSnapshot(ctx context.Context, userID string) wire.DesktopSnapshot {
	if m.store == nil {
		return wire.NewDesktopSnapshot()
	}
	snap, _, err := m.store.LoadDextopSnapshot(ctx, userID)
	if err != nil {
		logger.Warnf("membership: load snapshot for %s failed, starting empty: %v", userID, err)
		return wire.NewDesktopSnapshot()
	}
	return m.sanitizer.Sanitize(snap)
}

func (m *Manager) accountExists(ctx context.Context, userID string) error {
	if m.store == nil {
		return nil
	}
	ok, err := m.store.AccountExists(ctx, userID)
	if err != nil {
		logger.Warnf("membership: account lookup for %s failed, allowing join: %v", userID, err)
		return nil
	}
	if !ok {
		return fmt.Errorf("dextop %s: %w", userID, ErrContextNotFound)
	}
	return nil
}
