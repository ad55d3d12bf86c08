package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlayerStateMerge_OnlyTouchesSetFields(t *testing.T) {
	base := PlayerState{
		Position:       Position{X: 1, Y: 2},
		IsGaming:       true,
		Vehicle:        "skateboard",
		CurrentItemIDs: []string{"hat"},
	}
	moving := true
	next := base.Merge(PlayerStatePatch{IsMoving: &moving, Position: &Position{X: 5, Y: 6}})

	require.Equal(t, Position{X: 5, Y: 6}, next.Position)
	require.True(t, next.IsMoving)
	require.True(t, next.IsGaming)
	require.Equal(t, "skateboard", next.Vehicle)
	require.Equal(t, []string{"hat"}, next.CurrentItemIDs)
}

func TestPlayerStateFullPatch_RoundTrips(t *testing.T) {
	s := PlayerState{
		Position:        Position{X: 3},
		IsSitting:       true,
		Vehicle:         "car",
		SpeedMultiplier: 2,
		CurrentTitleID:  "t1",
	}
	require.Equal(t, s.CurrentTitleID, PlayerState{}.Merge(s.FullPatch()).CurrentTitleID)
	merged := PlayerState{IsGrabbing: true}.Merge(s.FullPatch())
	require.False(t, merged.IsGrabbing)
	require.True(t, merged.IsSitting)
	require.Equal(t, 2.0, merged.SpeedMultiplier)
	require.Empty(t, merged.CurrentItemIDs)
}

func TestPlayerStatePatch_IsEmpty(t *testing.T) {
	require.True(t, PlayerStatePatch{}.IsEmpty())
	v := "bike"
	require.False(t, PlayerStatePatch{Vehicle: &v}.IsEmpty())
}

func TestDesktopSnapshotClone_IsDeep(t *testing.T) {
	d := NewDesktopSnapshot()
	d.Programs["w1"] = ProgramWindow{ID: "w1", State: []byte(`{"a":1}`)}

	c := d.Clone()
	w := c.Programs["w1"]
	w.State[2] = 'b'
	c.Programs["w2"] = ProgramWindow{ID: "w2"}

	require.Len(t, d.Programs, 1)
	require.Equal(t, `{"a":1}`, string(d.Programs["w1"].State))
}
