package handlers

import (
	"context"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/pkg/wire"
)

// CreateRoom creates a fresh room and joins the caller to it.
func CreateRoom(ctx context.Context, deps Deps, auth AuthContext, req wire.CreateRoomPayload) EventResult {
	jr, err := deps.Members().CreateRoom(auth.SocketID(), req.Username)
	if err != nil {
		return errorResult(err)
	}
	return joined(auth, jr)
}

// JoinRoom joins the caller to a room by code.
func JoinRoom(ctx context.Context, deps Deps, auth AuthContext, req wire.JoinRoomPayload) EventResult {
	if req.RoomID == "" {
		return errorResult(membership.ErrContextNotFound)
	}
	jr, err := deps.Members().JoinRoom(auth.SocketID(), req.RoomID, req.Username)
	if err != nil {
		return errorResult(err)
	}
	return joined(auth, jr)
}

// JoinDextop enters a dextop: the caller's own when DextopID is empty,
// otherwise a visit.
func JoinDextop(ctx context.Context, deps Deps, auth AuthContext, req wire.JoinDextopPayload) EventResult {
	target := req.DextopID
	if ref, ok := membership.ParseKey(target); ok && ref.Kind == membership.KindDextop {
		target = ref.ID
	}
	jr, err := deps.Members().JoinDextop(ctx, auth.SocketID(), target)
	if err != nil {
		return errorResult(err)
	}
	return joined(auth, jr)
}

func joined(auth AuthContext, jr membership.JoinResult) EventResult {
	r := successResult()
	if jr.Pending {
		// Replayed on promotion.
		return r
	}
	joinResult(&r, auth, jr)
	return r
}

// LeaveContext removes the caller from its current room or dextop.
func LeaveContext(ctx context.Context, deps Deps, auth AuthContext, _ struct{}) EventResult {
	dep, err := deps.Members().Leave(auth.SocketID())
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	departureResult(&r, dep)
	if dep != nil && dep.Context.Kind == membership.KindDextop {
		r.changed(auth.UserID())
	}
	return r
}
