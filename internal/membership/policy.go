package membership

import "fmt"

// JoinPolicy decides whether joins are allowed. Returned errors should wrap
// ErrContextNotJoinable.
type JoinPolicy interface {
	AllowRoomJoin(code string, members int) error
	AllowVisit(visitorUserID, ownerUserID string) error
}

// DefaultPolicy caps room size and can disable visits.
type DefaultPolicy struct {
	MaxRoomMembers int
	VisitsEnabled  bool
}

func (p DefaultPolicy) AllowRoomJoin(code string, members int) error {
	if p.MaxRoomMembers > 0 && members >= p.MaxRoomMembers {
		return fmt.Errorf("room %s is full: %w", code, ErrContextNotJoinable)
	}
	return nil
}

func (p DefaultPolicy) AllowVisit(_, _ string) error {
	if !p.VisitsEnabled {
		return fmt.Errorf("visits are disabled: %w", ErrContextNotJoinable)
	}
	return nil
}
