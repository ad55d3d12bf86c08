package websocket

import (
	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/websocket/handlers"
	"github.com/dextop-world/dextop/pkg/wire"
)

func (s *SocketIOServer) registerClientHandlers(client *socket.Socket, socketID string) {
	// Identity (re)assertion runs synchronously; promotion is queued.
	client.On(wire.EventAuthenticate, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var req wire.AuthenticatePayload
		_ = decodeAny(raw, &req)
		s.authenticate(socketID, wire.SocketAuthPayload{Token: req.Token}, ack)
	})

	// joinDextop may carry a token for clients that skip the handshake
	// auth. The join itself is recorded and replayed on promotion.
	client.On(wire.EventJoinDextop, func(data ...any) {
		raw, _ := getFirstAnyWithAck(data)
		var req wire.JoinDextopPayload
		if err := decodeAny(raw, &req); err == nil && req.Token != "" && !s.isAuthenticated(socketID) {
			s.authenticate(socketID, wire.SocketAuthPayload{Token: req.Token}, nil)
		}
	})
	onTyped(s, client, wire.EventJoinDextop, handlers.JoinDextop)

	onTyped(s, client, wire.EventCreateRoom, handlers.CreateRoom)
	onTyped(s, client, wire.EventJoinRoom, handlers.JoinRoom)
	onTyped(s, client, wire.EventLeaveContext, handlers.LeaveContext)

	onTyped(s, client, wire.EventPlayerMove, handlers.PlayerMove)
	onTyped(s, client, wire.EventDextopPlayerMove, handlers.DextopPlayerMove)
	onTyped(s, client, wire.EventPlayerStateUpdate, handlers.PlayerStateUpdate)
	onTyped(s, client, wire.EventVisitorStateUpdate, handlers.VisitorStateUpdate)

	onTyped(s, client, wire.EventDesktopStateUpdate, handlers.DesktopStateUpdate)
	onTyped(s, client, wire.EventDextopStateUpdate, handlers.DextopStateUpdate)

	onTyped(s, client, wire.EventLocalMessage, handlers.LocalMessage)
	onTyped(s, client, wire.EventDextopMessage, handlers.DextopMessage)
	onTyped(s, client, wire.EventPrivateMessage, handlers.PrivateMessage)

	onTyped(s, client, wire.EventFriendRequest, handlers.FriendRequest)
	onTyped(s, client, wire.EventAcceptFriendRequest, handlers.AcceptFriendRequest)
	onTyped(s, client, wire.EventRejectFriendRequest, handlers.RejectFriendRequest)
	onTyped(s, client, wire.EventGetFriendsList, handlers.GetFriendsList)

	onTyped(s, client, wire.EventHeartbeat, handlers.Heartbeat)

	client.On("disconnect", func(data ...any) {
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		s.handleDisconnect(socketID, reason)
	})

	logger.Tracef("Registered client handlers (socket %s)", socketID)
}

// isAuthenticated reports whether an identity was already asserted,
// including one whose promotion is still queued.
func (s *SocketIOServer) isAuthenticated(socketID string) bool {
	info, ok := s.members.Connection(socketID)
	return ok && info.Phase != membership.PhaseAnonymous
}
