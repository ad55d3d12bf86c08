package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/pkg/wire"
)

var privateTypes = []string{"characterEditor", "inventory"}

func snapshotWith(windows ...wire.ProgramWindow) wire.DesktopSnapshot {
	snap := wire.NewDesktopSnapshot()
	for _, w := range windows {
		snap.Programs[w.ID] = w
		if w.ZIndex > snap.HighestZIndex {
			snap.HighestZIndex = w.ZIndex
		}
	}
	return snap
}

func newDesktopTracker(s *Sanitizer) *Tracker[wire.DesktopSnapshot] {
	return NewTracker[wire.DesktopSnapshot](SerializedDetector[wire.DesktopSnapshot]{}, s.Sanitize)
}

func TestSanitizer_StripsPrivateWindows(t *testing.T) {
	s := NewSanitizer(privateTypes)
	snap := snapshotWith(
		wire.ProgramWindow{ID: "n", Type: wire.ProgramNotepad, ZIndex: 1},
		wire.ProgramWindow{ID: "ce", Type: wire.ProgramCharacterEditor, ZIndex: 2},
	)

	clean := s.Sanitize(snap)
	require.Contains(t, clean.Programs, "n")
	require.NotContains(t, clean.Programs, "ce")
	// The input is untouched.
	require.Contains(t, snap.Programs, "ce")
}

func TestSanitizer_PrivateWindowsStayLocalOnly(t *testing.T) {
	s := NewSanitizer(privateTypes)

	// Peer A's snapshot arrives carrying A's private editor (a buggy or
	// malicious sender). B already has its own editor open.
	fromA := snapshotWith(
		wire.ProgramWindow{ID: "a-editor", Type: wire.ProgramCharacterEditor, ZIndex: 4},
		wire.ProgramWindow{ID: "shared", Type: wire.ProgramPaint, ZIndex: 1},
	)
	localB := snapshotWith(
		wire.ProgramWindow{ID: "b-editor", Type: wire.ProgramCharacterEditor, ZIndex: 7},
	)

	merged := s.ApplyRemote(localB, fromA)
	require.NotContains(t, merged.Programs, "a-editor")
	require.Contains(t, merged.Programs, "b-editor")
	require.Contains(t, merged.Programs, "shared")
	require.Equal(t, 7, merged.HighestZIndex)

	// Whatever B broadcasts next never carries either editor.
	tracker := newDesktopTracker(s)
	out, emit := tracker.Observe(LocalValue(merged))
	require.True(t, emit)
	require.NotContains(t, out.Programs, "a-editor")
	require.NotContains(t, out.Programs, "b-editor")
	require.Contains(t, out.Programs, "shared")
}

func TestTracker_RemoteValueIsNotEchoed(t *testing.T) {
	s := NewSanitizer(privateTypes)
	tracker := newDesktopTracker(s)

	local := snapshotWith(wire.ProgramWindow{ID: "inv", Type: wire.ProgramInventory, ZIndex: 2})
	_, emit := tracker.Observe(LocalValue(local))
	require.True(t, emit)

	remote := snapshotWith(wire.ProgramWindow{ID: "w1", Type: wire.ProgramNotepad, ZIndex: 5})
	applied := s.ApplyRemote(local, remote)
	_, emit = tracker.Observe(RemoteValue(remote))
	require.False(t, emit)

	// The next local tick sees the applied snapshot and stays silent.
	_, emit = tracker.Observe(LocalValue(applied))
	require.False(t, emit)

	// A genuine local mutation is broadcast whole.
	moved := applied.Clone()
	w := moved.Programs["w1"]
	w.Position = wire.Position{X: 10, Y: 20}
	moved.Programs["w1"] = w
	out, emit := tracker.Observe(LocalValue(moved))
	require.True(t, emit)
	require.Len(t, out.Programs, 1)
	require.Equal(t, wire.Position{X: 10, Y: 20}, out.Programs["w1"].Position)
}

func TestTracker_PrivateOnlyChangeIsSilent(t *testing.T) {
	s := NewSanitizer(privateTypes)
	tracker := newDesktopTracker(s)

	base := snapshotWith(wire.ProgramWindow{ID: "n", Type: wire.ProgramNotepad})
	_, emit := tracker.Observe(LocalValue(base))
	require.True(t, emit)

	withEditor := base.Clone()
	withEditor.Programs["ce"] = wire.ProgramWindow{ID: "ce", Type: wire.ProgramCharacterEditor}
	_, emit = tracker.Observe(LocalValue(withEditor))
	require.False(t, emit)
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker[wire.PlayerState](NewFingerprintDetector(), nil)
	_, emit := tracker.Observe(LocalValue(wire.PlayerState{}))
	require.True(t, emit)
	_, emit = tracker.Observe(LocalValue(wire.PlayerState{}))
	require.False(t, emit)

	tracker.Reset()
	_, ok := tracker.Last()
	require.False(t, ok)
	_, emit = tracker.Observe(LocalValue(wire.PlayerState{}))
	require.True(t, emit)
}

func TestFingerprintDetector_IgnoresMovement(t *testing.T) {
	d := NewFingerprintDetector()
	prev := wire.PlayerState{Vehicle: "bike"}
	next := prev
	next.Position = wire.Position{X: 100}
	next.IsMoving = true
	next.WalkFrame = 3
	require.False(t, d.HasChanged(prev, next))

	next.EquippedTitle = json.RawMessage(`{"id":"t1"}`)
	require.True(t, d.HasChanged(prev, next))
}

func TestMovementDetector_IgnoresCosmetics(t *testing.T) {
	d := NewMovementDetector()
	prev := wire.PlayerState{Position: wire.Position{X: 1}}
	next := prev
	next.CurrentItemIDs = []string{"hat"}
	next.IsGaming = true
	require.False(t, d.HasChanged(prev, next))

	next.FacingDirection = "left"
	require.True(t, d.HasChanged(prev, next))
}

func TestDigestOf_MapOrderIndependent(t *testing.T) {
	a := snapshotWith(
		wire.ProgramWindow{ID: "1", Type: wire.ProgramNotepad},
		wire.ProgramWindow{ID: "2", Type: wire.ProgramPaint},
	)
	b := wire.NewDesktopSnapshot()
	b.Programs["2"] = a.Programs["2"]
	b.Programs["1"] = a.Programs["1"]

	da, err := DigestOf(a)
	require.NoError(t, err)
	db, err := DigestOf(b)
	require.NoError(t, err)
	require.Equal(t, da, db)
}
