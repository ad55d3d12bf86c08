// Package ownership enforces controller write-authority over shared program
// windows and re-patches controller ids when identities change.
package ownership

import (
	"bytes"
	"sort"

	"github.com/dextop-world/dextop/pkg/wire"
)

// CanMutate reports whether actor may change or close w. Multiplayer windows
// accept any participant; proximity is checked by the client UI.
func CanMutate(w wire.ProgramWindow, actor string) bool {
	return w.IsMultiplayer || w.ControllerID == "" || w.ControllerID == actor
}

// GuardOptions tune Guard for the context type.
type GuardOptions struct {
	// SettingsAllowed permits changes to backgroundId and interactionRange.
	// In dextops only the owner has it.
	SettingsAllowed bool
}

// Guard merges an incoming full snapshot from actor over prev. Windows actor
// may not mutate keep their previous value, deletions of such windows are
// undone, and new windows are stamped with actor as controller. The ids of
// reverted windows are returned sorted; callers drop them silently.
func Guard(prev, incoming wire.DesktopSnapshot, actor string, opts GuardOptions) (wire.DesktopSnapshot, []string) {
	out := incoming.Clone()
	if out.Programs == nil {
		out.Programs = map[string]wire.ProgramWindow{}
	}
	var rejected []string

	for id, w := range out.Programs {
		old, existed := prev.Programs[id]
		if !existed {
			w.ID = id
			w.ControllerID = actor
			out.Programs[id] = w
			continue
		}
		if CanMutate(old, actor) {
			if w.ControllerID == "" {
				w.ControllerID = actor
				out.Programs[id] = w
			}
			continue
		}
		if !windowsEqual(old, w) {
			rejected = append(rejected, id)
		}
		out.Programs[id] = old
	}

	for id, old := range prev.Programs {
		if _, ok := out.Programs[id]; ok {
			continue
		}
		if !CanMutate(old, actor) {
			out.Programs[id] = old
			rejected = append(rejected, id)
		}
	}

	if !opts.SettingsAllowed {
		out.BackgroundID = prev.BackgroundID
		out.InteractionRange = prev.InteractionRange
	}

	out.HighestZIndex = max(prev.HighestZIndex, out.HighestZIndex)
	for _, w := range out.Programs {
		out.HighestZIndex = max(out.HighestZIndex, w.ZIndex)
	}

	sort.Strings(rejected)
	return out, rejected
}

// RepatchAll points every window whose controller differs from id at id. It
// returns the patched copy and the number of windows changed.
func RepatchAll(snap wire.DesktopSnapshot, id string) (wire.DesktopSnapshot, int) {
	return repatch(snap, id, func(w wire.ProgramWindow) bool { return w.ControllerID != id })
}

// RepatchFrom points windows controlled by one of the given stale ids (for
// example a placeholder assigned before identity resolved) at id.
func RepatchFrom(snap wire.DesktopSnapshot, stale []string, id string) (wire.DesktopSnapshot, int) {
	set := make(map[string]struct{}, len(stale))
	for _, s := range stale {
		set[s] = struct{}{}
	}
	return repatch(snap, id, func(w wire.ProgramWindow) bool {
		_, ok := set[w.ControllerID]
		return ok && w.ControllerID != id
	})
}

// RepatchStale points every window whose controller is not among present at
// id, restoring the invariant that controllers reference live members.
func RepatchStale(snap wire.DesktopSnapshot, present map[string]bool, id string) (wire.DesktopSnapshot, int) {
	return repatch(snap, id, func(w wire.ProgramWindow) bool {
		return w.ControllerID != id && !present[w.ControllerID]
	})
}

func repatch(snap wire.DesktopSnapshot, id string, match func(wire.ProgramWindow) bool) (wire.DesktopSnapshot, int) {
	out := snap.Clone()
	changed := 0
	for wid, w := range out.Programs {
		if !match(w) {
			continue
		}
		w.ControllerID = id
		out.Programs[wid] = w
		changed++
	}
	return out, changed
}

func windowsEqual(a, b wire.ProgramWindow) bool {
	return a.ID == b.ID && a.Type == b.Type && a.IsOpen == b.IsOpen &&
		a.IsMinimized == b.IsMinimized && a.Position == b.Position && a.Size == b.Size &&
		a.ZIndex == b.ZIndex && a.ControllerID == b.ControllerID &&
		a.IsMultiplayer == b.IsMultiplayer && bytes.Equal(a.State, b.State)
}
