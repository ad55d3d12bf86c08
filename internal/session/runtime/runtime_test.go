package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/pkg/wire"
)

type fakeStore struct {
	mu    sync.Mutex
	saves map[string][]wire.DesktopSnapshot
	block chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{saves: make(map[string][]wire.DesktopSnapshot)}
}

func (s *fakeStore) SaveDextopSnapshot(_ context.Context, userID string, snap wire.DesktopSnapshot) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[userID] = append(s.saves[userID], snap)
	return nil
}

func (s *fakeStore) saved(userID string) []wire.DesktopSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.DesktopSnapshot(nil), s.saves[userID]...)
}

func TestManager_Enqueue_SerializesPerKey(t *testing.T) {
	mgr := NewManager(newFakeStore())
	defer mgr.Close()

	const n = 50
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < n; i++ {
		i := i
		require.True(t, mgr.Enqueue(context.Background(), "c1", "append", func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		require.Equal(t, i, got[i])
	}
}

func TestManager_SlowKeyDoesNotBlockOthers(t *testing.T) {
	mgr := NewManager(newFakeStore())
	defer mgr.Close()

	release := make(chan struct{})
	mgr.Enqueue(context.Background(), "slow", "wait", func(context.Context) { <-release })

	done := make(chan struct{})
	mgr.Enqueue(context.Background(), "fast", "signal", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast key was blocked by slow key")
	}
	close(release)
}

func TestManager_PanickingTaskKeepsQueueAlive(t *testing.T) {
	mgr := NewManager(newFakeStore())
	defer mgr.Close()

	mgr.Enqueue(context.Background(), "c1", "boom", func(context.Context) { panic("boom") })
	done := make(chan struct{})
	mgr.Enqueue(context.Background(), "c1", "after", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stopped after panic")
	}
}

func TestManager_ForgetStopsRuntime(t *testing.T) {
	mgr := NewManager(newFakeStore())
	defer mgr.Close()

	done := make(chan struct{})
	mgr.Enqueue(context.Background(), "c1", "first", func(context.Context) { close(done) })
	old := mgr.getOrCreate("c1")
	mgr.Forget("c1")
	<-done

	require.False(t, old.enqueue(taskEvent{name: "late", fn: func(context.Context) {}}))

	// A forgotten key starts a fresh runtime on next use.
	ran := make(chan struct{})
	require.True(t, mgr.Enqueue(context.Background(), "c1", "again", func(context.Context) { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("fresh runtime did not run")
	}
}

func TestManager_SaveSnapshotCoalesces(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	mgr := NewManager(store)
	defer mgr.Close()

	snap := func(i int) wire.DesktopSnapshot {
		s := wire.NewDesktopSnapshot()
		s.BackgroundID = fmt.Sprintf("bg-%d", i)
		return s
	}

	// The first save blocks inside the store; the next three pile up and
	// must collapse into one write of the latest value.
	mgr.SaveSnapshot(context.Background(), "u1", snap(0))
	require.Eventually(t, func() bool {
		rt := mgr.getOrCreate("snapshot:u1")
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.pendingSnap == nil
	}, 2*time.Second, 5*time.Millisecond)

	for i := 1; i <= 3; i++ {
		mgr.SaveSnapshot(context.Background(), "u1", snap(i))
	}
	close(store.block)

	require.Eventually(t, func() bool { return len(store.saved("u1")) == 2 }, 2*time.Second, 10*time.Millisecond)
	saves := store.saved("u1")
	require.Equal(t, "bg-0", saves[0].BackgroundID)
	require.Equal(t, "bg-3", saves[1].BackgroundID)
}
