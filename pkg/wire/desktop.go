package wire

import "encoding/json"

// ProgramType identifies the kind of program a window hosts.
type ProgramType string

const (
	ProgramNotepad         ProgramType = "notepad"
	ProgramPaint           ProgramType = "paint"
	ProgramMusicPlayer     ProgramType = "musicPlayer"
	ProgramSnake           ProgramType = "snake"
	ProgramCheckers        ProgramType = "checkers"
	ProgramSudoku          ProgramType = "sudoku"
	ProgramCharacterEditor ProgramType = "characterEditor"
	ProgramInventory       ProgramType = "inventory"
	ProgramShop            ProgramType = "shop"
	ProgramAchievements    ProgramType = "achievements"
)

// Size is a window size in desktop units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ProgramWindow is one shared, movable program window.
type ProgramWindow struct {
	ID          string      `json:"id"`
	Type        ProgramType `json:"type"`
	IsOpen      bool        `json:"isOpen"`
	IsMinimized bool        `json:"isMinimized"`
	Position    Position    `json:"position"`
	Size        Size        `json:"size"`
	ZIndex      int         `json:"zIndex"`
	// ControllerID is the player id holding write authority over the window.
	// For multiplayer windows it is the host.
	ControllerID  string `json:"controllerId"`
	IsMultiplayer bool   `json:"isMultiplayer"`
	// State is the program-specific state, relayed opaquely.
	State json.RawMessage `json:"state,omitempty"`
}

// DesktopSnapshot is the full shared window graph of a context. It is the
// unit that is diffed and broadcast.
type DesktopSnapshot struct {
	Programs         map[string]ProgramWindow `json:"programs"`
	HighestZIndex    int                      `json:"highestZIndex"`
	InteractionRange float64                  `json:"interactionRange"`
	BackgroundID     string                   `json:"backgroundId"`
}

// NewDesktopSnapshot returns an empty snapshot with default settings.
func NewDesktopSnapshot() DesktopSnapshot {
	return DesktopSnapshot{
		Programs:         map[string]ProgramWindow{},
		InteractionRange: 150,
		BackgroundID:     "default",
	}
}

// Clone returns a deep copy of the snapshot so callers may mutate it freely.
func (d DesktopSnapshot) Clone() DesktopSnapshot {
	out := d
	out.Programs = make(map[string]ProgramWindow, len(d.Programs))
	for id, w := range d.Programs {
		if w.State != nil {
			w.State = append(json.RawMessage(nil), w.State...)
		}
		out.Programs[id] = w
	}
	return out
}
