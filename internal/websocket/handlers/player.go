package handlers

import (
	"context"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/pkg/wire"
)

// PlayerMove relays continuous movement inside a room.
func PlayerMove(ctx context.Context, deps Deps, auth AuthContext, req wire.PlayerMovePayload) EventResult {
	return move(deps, auth, roomRef(req.ContextID), req.State)
}

// DextopPlayerMove relays continuous movement inside a dextop.
func DextopPlayerMove(ctx context.Context, deps Deps, auth AuthContext, req wire.PlayerMovePayload) EventResult {
	return move(deps, auth, dextopRef(req.ContextID), req.State)
}

func move(deps Deps, auth AuthContext, ref membership.ContextRef, patch wire.PlayerStatePatch) EventResult {
	if patch.IsEmpty() {
		return successResult()
	}
	pu, err := deps.Members().UpdatePlayer(auth.SocketID(), ref, patch)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	if pu.Buffered {
		return r
	}
	event := wire.EventPlayerMoved
	if pu.Context.Kind == membership.KindDextop {
		event = wire.EventVisitorMoved
	}
	r.emit(emitTo(pu.Peers, event, wire.PlayerMovedPayload{
		PlayerID: auth.SocketID(),
		UserID:   pu.Presence.UserID,
		State:    pu.Patch,
	}))
	return r
}

// PlayerStateUpdate merges occasional player state inside a room. Peers
// get the full player list.
func PlayerStateUpdate(ctx context.Context, deps Deps, auth AuthContext, req wire.PlayerStateUpdatePayload) EventResult {
	pu, err := deps.Members().UpdatePlayer(auth.SocketID(), roomRef(req.ContextID), req.State)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	if pu.Buffered {
		return r
	}
	r.emit(emitTo(pu.Peers, wire.EventPlayersUpdate, wire.PresenceListPayload{
		ContextID: pu.Context.Key(),
		Players:   deps.Members().Players(pu.Context),
	}))
	return r
}

// VisitorStateUpdate merges occasional player state inside a dextop. Peers
// get the single changed entry.
func VisitorStateUpdate(ctx context.Context, deps Deps, auth AuthContext, req wire.PlayerStateUpdatePayload) EventResult {
	pu, err := deps.Members().UpdatePlayer(auth.SocketID(), dextopRef(req.ContextID), req.State)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	if pu.Buffered {
		return r
	}
	r.emit(emitTo(pu.Peers, wire.EventVisitorStateUpdate, wire.VisitorStatePayload{
		PlayerID: auth.SocketID(),
		UserID:   pu.Presence.UserID,
		Username: pu.Presence.Username,
		State:    pu.Patch,
	}))
	return r
}
