package runtime

import (
	"context"
	"sync"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

const queueSize = 256

// Manager owns keyed runtimes and provides serialized entrypoints.
//
// Work for one key (a connection id, or a dextop for snapshot saves) runs in
// order on its own goroutine. Different keys never wait on each other, so a
// slow store lookup only delays the connection that caused it.
type Manager struct {
	store Store

	mu       sync.Mutex
	runtimes map[string]*keyRuntime
}

// NewManager creates a new keyed runtime manager.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		runtimes: make(map[string]*keyRuntime),
	}
}

// Enqueue schedules fn on key's queue. It reports false when the task was
// dropped because the queue is full or the key was forgotten.
func (m *Manager) Enqueue(ctx context.Context, key, name string, fn Task) bool {
	if key == "" || fn == nil {
		return false
	}
	return m.getOrCreate(key).enqueue(taskEvent{ctx: ctx, name: name, fn: fn})
}

// SaveSnapshot schedules persistence of a dextop snapshot. Saves for the
// same owner are serialized and coalesced: only the latest pending snapshot
// is written.
func (m *Manager) SaveSnapshot(ctx context.Context, ownerID string, snap wire.DesktopSnapshot) {
	if ownerID == "" || m.store == nil {
		return
	}
	rt := m.getOrCreate("snapshot:" + ownerID)
	if rt.setPendingSnapshot(ownerID, snap.Clone()) {
		rt.enqueue(snapshotEvent{ctx: ctx})
	}
}

// Forget stops key's runtime once its queued work has drained.
func (m *Manager) Forget(key string) {
	m.mu.Lock()
	rt, ok := m.runtimes[key]
	delete(m.runtimes, key)
	m.mu.Unlock()
	if ok {
		rt.close()
	}
}

// Close stops every runtime.
func (m *Manager) Close() {
	m.mu.Lock()
	rts := m.runtimes
	m.runtimes = make(map[string]*keyRuntime)
	m.mu.Unlock()
	for _, rt := range rts {
		rt.close()
	}
}

func (m *Manager) getOrCreate(key string) *keyRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[key]; ok {
		return rt
	}
	rt := newKeyRuntime(m.store, key)
	m.runtimes[key] = rt
	return rt
}

type keyRuntime struct {
	store Store

	key    string
	events chan any

	startOnce sync.Once

	mu          sync.Mutex
	closed      bool
	snapOwner   string
	pendingSnap *wire.DesktopSnapshot
}

func newKeyRuntime(store Store, key string) *keyRuntime {
	return &keyRuntime{
		store:  store,
		key:    key,
		events: make(chan any, queueSize),
	}
}

func (r *keyRuntime) enqueue(evt any) bool {
	r.startOnce.Do(func() { go r.loop() })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.events <- evt:
		return true
	default:
		// Avoid blocking Socket.IO callbacks indefinitely; drop under overload.
		logger.Warnf("[runtime] %s queue full; dropping event %T", r.key, evt)
		return false
	}
}

// setPendingSnapshot stores snap and reports whether a save event must be
// queued (none is pending yet).
func (r *keyRuntime) setPendingSnapshot(owner string, snap wire.DesktopSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	queued := r.pendingSnap != nil
	r.snapOwner = owner
	r.pendingSnap = &snap
	return !queued
}

func (r *keyRuntime) takePendingSnapshot() (string, *wire.DesktopSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.pendingSnap
	r.pendingSnap = nil
	return r.snapOwner, snap
}

func (r *keyRuntime) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

func (r *keyRuntime) loop() {
	for evt := range r.events {
		switch e := evt.(type) {
		case taskEvent:
			r.runTask(e)
		case snapshotEvent:
			r.handleSnapshot(e)
		default:
			logger.Warnf("[runtime] %s: unknown event %T", r.key, evt)
		}
	}
}

func (r *keyRuntime) runTask(e taskEvent) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("[runtime] %s: task %s panicked: %v", r.key, e.name, p)
		}
	}()
	e.fn(ctx)
}
