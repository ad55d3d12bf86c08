package handlers

import (
	"context"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

// LocalMessage relays a chat message to everyone in the caller's room,
// the caller included.
func LocalMessage(ctx context.Context, deps Deps, auth AuthContext, req wire.LocalMessagePayload) EventResult {
	return chat(deps, auth, roomRef(req.RoomID), wire.EventLocalMessage, req.Message)
}

// DextopMessage relays a chat message to everyone in the caller's dextop.
func DextopMessage(ctx context.Context, deps Deps, auth AuthContext, req wire.DextopMessagePayload) EventResult {
	return chat(deps, auth, dextopRef(req.DextopID), wire.EventDextopMessage, req.Message)
}

func chat(deps Deps, auth AuthContext, ref membership.ContextRef, event string, out wire.OutgoingMessage) EventResult {
	cur, id, peers, err := deps.Members().Chat(auth.SocketID(), ref)
	if err != nil {
		return errorResult(err)
	}
	msg, err := deps.Relay().LocalMessage(relay.Sender{UserID: id.UserID, Username: id.Username}, cur.Key(), out)
	if err != nil {
		return errorResult(err)
	}
	audience := append([]string{auth.SocketID()}, peers...)
	return NewEventResult(wire.AckSuccess(), []Emission{emitTo(audience, event, msg)})
}

// PrivateMessage stores and routes a direct message. The sender's sockets
// receive an echo.
func PrivateMessage(ctx context.Context, deps Deps, auth AuthContext, req wire.PrivateMessagePayload) EventResult {
	if !auth.Authenticated() {
		return errorResult(membership.ErrAuthRequired)
	}
	d, err := deps.Relay().SendPrivate(ctx, auth.sender(), req.RecipientID, req.Message)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	r.emit(
		emitTo(d.RecipientConns, wire.EventPrivateMessage, d.Message),
		emitTo(d.SenderConns, wire.EventPrivateMessage, d.Message),
	)
	return r
}
