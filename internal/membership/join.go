package membership

import (
	"context"
	"fmt"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/ownership"
	"github.com/dextop-world/dextop/pkg/wire"
)

const maxRoomCodeAttempts = 8

// CreateRoom creates a fresh room with a generated code and joins it.
func (m *Manager) CreateRoom(connID, username string) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, pending, err := m.joinableLocked(connID)
	if err != nil {
		return JoinResult{}, err
	}
	if pending {
		c.pendingJoin = &joinRequest{create: true, username: username}
		return JoinResult{Pending: true}, nil
	}

	var ref ContextRef
	for i := 0; i < maxRoomCodeAttempts; i++ {
		code, err := m.newRoomCode()
		if err != nil {
			return JoinResult{}, fmt.Errorf("generate room code: %w", err)
		}
		candidate := RoomRef(code)
		if _, taken := m.contexts[candidate.Key()]; !taken {
			ref = candidate
			break
		}
	}
	if ref.IsZero() {
		return JoinResult{}, fmt.Errorf("no free room code after %d attempts: %w", maxRoomCodeAttempts, ErrContextNotJoinable)
	}
	return m.joinRoomLocked(c, ref, username)
}

// JoinRoom joins the room with the given code, creating it when absent.
func (m *Manager) JoinRoom(connID, code, username string) (JoinResult, error) {
	ref := RoomRef(code)
	if ref.IsZero() {
		return JoinResult{}, fmt.Errorf("empty room code: %w", ErrContextNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, pending, err := m.joinableLocked(connID)
	if err != nil {
		return JoinResult{}, err
	}
	if pending {
		c.pendingJoin = &joinRequest{ref: ref, username: username}
		return JoinResult{Context: ref, Pending: true}, nil
	}
	return m.joinRoomLocked(c, ref, username)
}

func (m *Manager) joinRoomLocked(c *connection, ref ContextRef, username string) (JoinResult, error) {
	if c.ctx == ref {
		cs := m.contexts[ref.Key()]
		p, _ := m.registry.Get(ref.Key(), c.id)
		jr := m.joinResultLocked(c, cs, p)
		jr.NoOp = true
		return jr, nil
	}

	members := 0
	if cs, ok := m.contexts[ref.Key()]; ok {
		members = len(cs.members)
	}
	if err := m.policy.AllowRoomJoin(ref.ID, members); err != nil {
		return JoinResult{}, err
	}

	dep := m.leaveLocked(c)
	cs := m.contextLocked(ref, wire.NewDesktopSnapshot())
	p := m.enterLocked(c, cs, username)

	jr := m.joinResultLocked(c, cs, p)
	jr.Departed = dep
	logger.Debugf("membership: conn %s joined room %s (quadrant %d, %d members)", c.id, ref.ID, c.quadrant, len(cs.members))
	return jr, nil
}

// JoinDextop enters a dextop session. An empty target or the caller's own
// user id is a return-home transition; anything else is a visit.
//
// Visiting caches the caller's own snapshot once; a second visit before
// returning home keeps the first cache. Returning home restores that cache
// instead of the stored snapshot, clears it, and re-patches controllers
// that no longer reference a present member to this connection.
func (m *Manager) JoinDextop(ctx context.Context, connID, target string) (JoinResult, error) {
	m.mu.Lock()
	c, pending, err := m.joinableLocked(connID)
	if err != nil {
		m.mu.Unlock()
		return JoinResult{}, err
	}
	own := c.identity.UserID
	if target == "" {
		target = own
	}
	ref := DextopRef(target)
	if pending {
		c.pendingJoin = &joinRequest{ref: ref}
		m.mu.Unlock()
		return JoinResult{Context: ref, Pending: true}, nil
	}
	if c.ctx == ref {
		jr := m.noopLocked(c)
		m.mu.Unlock()
		return jr, nil
	}
	home := target == own
	if !home {
		if err := m.policy.AllowVisit(own, target); err != nil {
			m.mu.Unlock()
			return JoinResult{}, err
		}
	}
	_, targetLoaded := m.contexts[ref.Key()]
	_, ownLoaded := m.contexts[DextopRef(own).Key()]
	needTarget := !targetLoaded && !(home && c.visitCache != nil)
	needOwn := !home && c.visitCache == nil && !ownLoaded
	m.mu.Unlock()

	if !home {
		if err := m.accountExists(ctx, target); err != nil {
			return JoinResult{}, err
		}
	}
	targetSeed := wire.NewDesktopSnapshot()
	if needTarget {
		targetSeed = m.loadSnapshot(ctx, target)
	}
	ownSeed := wire.NewDesktopSnapshot()
	if needOwn {
		ownSeed = m.loadSnapshot(ctx, own)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err = m.authenticatedLocked(connID)
	if err != nil {
		return JoinResult{}, err
	}
	if c.ctx == ref {
		return m.noopLocked(c), nil
	}

	if !home && c.visitCache == nil {
		cached := ownSeed
		if cs, ok := m.contexts[DextopRef(own).Key()]; ok {
			cached = cs.snapshot.Clone()
		}
		c.visitCache = &cached
	}

	dep := m.leaveLocked(c)

	var restored bool
	cs, exists := m.contexts[ref.Key()]
	switch {
	case home && c.visitCache != nil:
		if !exists {
			cs = m.contextLocked(ref, *c.visitCache)
		} else {
			cs.snapshot = c.visitCache.Clone()
		}
		c.visitCache = nil
		restored = true
	case !exists:
		cs = m.contextLocked(ref, targetSeed)
	}

	p := m.enterLocked(c, cs, "")

	repatched := 0
	if home {
		cs.snapshot, repatched = ownership.RepatchStale(cs.snapshot, cs.memberSet(), c.id)
	}

	jr := m.joinResultLocked(c, cs, p)
	jr.Departed = dep
	jr.Restored = restored
	jr.Repatched = repatched
	jr.SnapshotChanged = restored || repatched > 0
	if home {
		logger.Debugf("membership: conn %s returned home (restored=%v repatched=%d)", c.id, restored, repatched)
	} else {
		logger.Debugf("membership: conn %s visiting %s", c.id, target)
	}
	return jr, nil
}

// joinableLocked checks the caller's phase. Provisional callers get
// pending=true; their join is recorded and replayed by Promote.
func (m *Manager) joinableLocked(connID string) (*connection, bool, error) {
	c, ok := m.conns[connID]
	if !ok {
		return nil, false, ErrConnectionClosed
	}
	switch c.phase {
	case PhaseAnonymous:
		return nil, false, ErrAuthRequired
	case PhaseProvisional:
		return c, true, nil
	}
	return c, false, nil
}

func (m *Manager) noopLocked(c *connection) JoinResult {
	cs := m.contexts[c.ctx.Key()]
	p, _ := m.registry.Get(c.ctx.Key(), c.id)
	jr := m.joinResultLocked(c, cs, p)
	jr.NoOp = true
	return jr
}
