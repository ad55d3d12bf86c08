package wire

import "encoding/json"

// Position is a point on the shared desktop surface.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerState holds the per-connection attributes broadcast to context peers.
type PlayerState struct {
	Position          Position `json:"position"`
	IsMoving          bool     `json:"isMoving"`
	MovementDirection string   `json:"movementDirection,omitempty"`
	WalkFrame         int      `json:"walkFrame"`
	FacingDirection   string   `json:"facingDirection,omitempty"`

	IsGrabbing bool `json:"isGrabbing"`
	IsResizing bool `json:"isResizing"`
	IsSitting  bool `json:"isSitting"`

	IsGaming             bool    `json:"isGaming"`
	GamingInputDirection string  `json:"gamingInputDirection,omitempty"`
	Vehicle              string  `json:"vehicle,omitempty"`
	SpeedMultiplier      float64 `json:"speedMultiplier,omitempty"`

	CurrentItemIDs []string `json:"currentItemIds,omitempty"`
	CurrentTitleID string   `json:"currentTitleId,omitempty"`
	// EquippedItems and EquippedTitle are resolved cosmetic objects. They are
	// produced by the inventory service and relayed opaquely.
	EquippedItems json.RawMessage `json:"equippedItems,omitempty"`
	EquippedTitle json.RawMessage `json:"equippedTitle,omitempty"`
}

// PlayerStatePatch is a partial PlayerState. Nil fields are left untouched
// when merged.
type PlayerStatePatch struct {
	Position          *Position `json:"position,omitempty"`
	IsMoving          *bool     `json:"isMoving,omitempty"`
	MovementDirection *string   `json:"movementDirection,omitempty"`
	WalkFrame         *int      `json:"walkFrame,omitempty"`
	FacingDirection   *string   `json:"facingDirection,omitempty"`

	IsGrabbing *bool `json:"isGrabbing,omitempty"`
	IsResizing *bool `json:"isResizing,omitempty"`
	IsSitting  *bool `json:"isSitting,omitempty"`

	IsGaming             *bool    `json:"isGaming,omitempty"`
	GamingInputDirection *string  `json:"gamingInputDirection,omitempty"`
	Vehicle              *string  `json:"vehicle,omitempty"`
	SpeedMultiplier      *float64 `json:"speedMultiplier,omitempty"`

	CurrentItemIDs []string        `json:"currentItemIds,omitempty"`
	CurrentTitleID *string         `json:"currentTitleId,omitempty"`
	EquippedItems  json.RawMessage `json:"equippedItems,omitempty"`
	EquippedTitle  json.RawMessage `json:"equippedTitle,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p PlayerStatePatch) IsEmpty() bool {
	return p.Position == nil && p.IsMoving == nil && p.MovementDirection == nil &&
		p.WalkFrame == nil && p.FacingDirection == nil && p.IsGrabbing == nil &&
		p.IsResizing == nil && p.IsSitting == nil && p.IsGaming == nil &&
		p.GamingInputDirection == nil && p.Vehicle == nil && p.SpeedMultiplier == nil &&
		p.CurrentItemIDs == nil && p.CurrentTitleID == nil && p.EquippedItems == nil &&
		p.EquippedTitle == nil
}

// Merge returns s with every non-nil field of p applied.
func (s PlayerState) Merge(p PlayerStatePatch) PlayerState {
	if p.Position != nil {
		s.Position = *p.Position
	}
	if p.IsMoving != nil {
		s.IsMoving = *p.IsMoving
	}
	if p.MovementDirection != nil {
		s.MovementDirection = *p.MovementDirection
	}
	if p.WalkFrame != nil {
		s.WalkFrame = *p.WalkFrame
	}
	if p.FacingDirection != nil {
		s.FacingDirection = *p.FacingDirection
	}
	if p.IsGrabbing != nil {
		s.IsGrabbing = *p.IsGrabbing
	}
	if p.IsResizing != nil {
		s.IsResizing = *p.IsResizing
	}
	if p.IsSitting != nil {
		s.IsSitting = *p.IsSitting
	}
	if p.IsGaming != nil {
		s.IsGaming = *p.IsGaming
	}
	if p.GamingInputDirection != nil {
		s.GamingInputDirection = *p.GamingInputDirection
	}
	if p.Vehicle != nil {
		s.Vehicle = *p.Vehicle
	}
	if p.SpeedMultiplier != nil {
		s.SpeedMultiplier = *p.SpeedMultiplier
	}
	if p.CurrentItemIDs != nil {
		s.CurrentItemIDs = append([]string(nil), p.CurrentItemIDs...)
	}
	if p.CurrentTitleID != nil {
		s.CurrentTitleID = *p.CurrentTitleID
	}
	if p.EquippedItems != nil {
		s.EquippedItems = append(json.RawMessage(nil), p.EquippedItems...)
	}
	if p.EquippedTitle != nil {
		s.EquippedTitle = append(json.RawMessage(nil), p.EquippedTitle...)
	}
	return s
}

// FullPatch converts a complete PlayerState into a patch that sets every field.
func (s PlayerState) FullPatch() PlayerStatePatch {
	pos := s.Position
	moving, walk := s.IsMoving, s.WalkFrame
	moveDir, facing := s.MovementDirection, s.FacingDirection
	grab, resize, sit := s.IsGrabbing, s.IsResizing, s.IsSitting
	gaming, gamingDir, vehicle, speed := s.IsGaming, s.GamingInputDirection, s.Vehicle, s.SpeedMultiplier
	title := s.CurrentTitleID
	items := s.CurrentItemIDs
	if items == nil {
		items = []string{}
	}
	return PlayerStatePatch{
		Position:             &pos,
		IsMoving:             &moving,
		MovementDirection:    &moveDir,
		WalkFrame:            &walk,
		FacingDirection:      &facing,
		IsGrabbing:           &grab,
		IsResizing:           &resize,
		IsSitting:            &sit,
		IsGaming:             &gaming,
		GamingInputDirection: &gamingDir,
		Vehicle:              &vehicle,
		SpeedMultiplier:      &speed,
		CurrentItemIDs:       append([]string(nil), items...),
		CurrentTitleID:       &title,
		EquippedItems:        s.EquippedItems,
		EquippedTitle:        s.EquippedTitle,
	}
}

// Presence is one tracked player or visitor as seen by context peers.
type Presence struct {
	PlayerID  string      `json:"playerId"`
	UserID    string      `json:"userId,omitempty"`
	Username  string      `json:"username"`
	IsVisitor bool        `json:"isVisitor"`
	Quadrant  int         `json:"quadrant,omitempty"`
	State     PlayerState `json:"state"`
}

// PlayerMovePayload carries continuous movement updates.
type PlayerMovePayload struct {
	ContextID string           `json:"contextId,omitempty"`
	State     PlayerStatePatch `json:"state"`
}

// PlayerMovedPayload is the server broadcast for movement.
type PlayerMovedPayload struct {
	PlayerID string           `json:"playerId"`
	UserID   string           `json:"userId,omitempty"`
	State    PlayerStatePatch `json:"state"`
}

// PlayerStateUpdatePayload carries the occasional gaming/cosmetic state.
type PlayerStateUpdatePayload struct {
	ContextID string           `json:"contextId,omitempty"`
	State     PlayerStatePatch `json:"state"`
}

// VisitorStatePayload is the per-visitor state broadcast.
type VisitorStatePayload struct {
	PlayerID string           `json:"playerId"`
	UserID   string           `json:"userId,omitempty"`
	Username string           `json:"username"`
	State    PlayerStatePatch `json:"state"`
}

// PresenceListPayload is the full presence list for initial sync
// (playersUpdate / visitorsUpdate).
type PresenceListPayload struct {
	ContextID string              `json:"contextId"`
	Players   map[string]Presence `json:"players"`
}
