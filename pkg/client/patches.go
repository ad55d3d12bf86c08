package client

import "github.com/dextop-world/dextop/pkg/wire"

// movementPatch is the continuous movement channel's view of s.
func movementPatch(s wire.PlayerState) wire.PlayerStatePatch {
	pos := s.Position
	moving := s.IsMoving
	dir := s.MovementDirection
	frame := s.WalkFrame
	facing := s.FacingDirection
	grabbing := s.IsGrabbing
	resizing := s.IsResizing
	return wire.PlayerStatePatch{
		Position:          &pos,
		IsMoving:          &moving,
		MovementDirection: &dir,
		WalkFrame:         &frame,
		FacingDirection:   &facing,
		IsGrabbing:        &grabbing,
		IsResizing:        &resizing,
	}
}

// statePatch is the occasional gaming and cosmetic channel's view of s.
func statePatch(s wire.PlayerState) wire.PlayerStatePatch {
	sitting := s.IsSitting
	gaming := s.IsGaming
	input := s.GamingInputDirection
	vehicle := s.Vehicle
	speed := s.SpeedMultiplier
	title := s.CurrentTitleID
	items := s.CurrentItemIDs
	if items == nil {
		items = []string{}
	}
	return wire.PlayerStatePatch{
		IsSitting:            &sitting,
		IsGaming:             &gaming,
		GamingInputDirection: &input,
		Vehicle:              &vehicle,
		SpeedMultiplier:      &speed,
		CurrentItemIDs:       items,
		CurrentTitleID:       &title,
		EquippedItems:        s.EquippedItems,
		EquippedTitle:        s.EquippedTitle,
	}
}
