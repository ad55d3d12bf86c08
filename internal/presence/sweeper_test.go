package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/pkg/wire"
)

func TestSweeper_EmitsLeftExactlyOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	reg := NewRegistry(clock.Now)
	reg.Track("dextop:u1", "c1", Identity{UserID: "u2", IsVisitor: true}, wire.PlayerState{})
	reg.Track("dextop:u1", "c2", Identity{UserID: "u1"}, wire.PlayerState{})

	var left []string
	sweeper := NewSweeper(reg, time.Minute, 5*time.Minute, func(batch []Stale) {
		for _, s := range batch {
			left = append(left, s.ConnectionID)
		}
	})

	clock.Advance(3 * time.Minute)
	reg.Touch("dextop:u1", "c2")
	require.Nil(t, sweeper.Tick(clock.Now()))

	clock.Advance(3 * time.Minute)
	evicted := sweeper.Tick(clock.Now())
	require.Len(t, evicted, 1)
	require.Equal(t, "c1", evicted[0].ConnectionID)
	require.True(t, evicted[0].Presence.IsVisitor)

	// Repeated sweeps must not report the same connection again.
	sweeper.Tick(clock.Now())
	sweeper.Tick(clock.Now().Add(time.Second))
	require.Equal(t, []string{"c1"}, left)
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(NewRegistry(nil), 0, 0, nil)
	require.Equal(t, DefaultSweepInterval, s.interval)
	require.Equal(t, DefaultStaleAfter, s.staleAfter)
}
