package websocket

import (
	"context"
	"errors"

	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/websocket/handlers"
	"github.com/dextop-world/dextop/pkg/wire"
)

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	logger.Infof("Socket.IO connection (socket ID: %s)", socketID)

	s.members.Connect(socketID)
	s.attach(socketID, socketSender(client))
	s.registerClientHandlers(client, socketID)

	authMap := client.Handshake().Auth
	if len(authMap) == 0 {
		logger.Debugf("Socket.IO connection without auth data stays anonymous (socket %s)", socketID)
		return
	}

	var authPayload wire.SocketAuthPayload
	if err := decodeAny(authMap, &authPayload); err != nil {
		logger.Warnf("Socket.IO invalid auth data (socket %s): %v", socketID, err)
		client.Emit(wire.EventError, map[string]string{"message": "Invalid authentication data"})
		return
	}
	s.authenticate(socketID, authPayload, nil)
}

// authenticate verifies a token and queues the promotion on the socket's
// own runtime queue, so it is ordered against the socket's events and its
// disconnect cleanup. Failures leave the connection anonymous; the socket
// is never closed.
func (s *SocketIOServer) authenticate(socketID string, payload wire.SocketAuthPayload, ack func(...any)) {
	reply := func(res wire.ResultAck) {
		if ack != nil {
			ack(res)
		}
	}
	fail := func(message string) {
		s.emitTo([]string{socketID}, wire.EventError, map[string]string{"message": message})
		reply(wire.AckError(message))
	}

	token, err := handlers.ValidateSocketAuthPayload(payload)
	if err != nil {
		logger.Debugf("Socket.IO auth rejected (socket %s): %v", socketID, err)
		fail(err.Error())
		return
	}

	// Do not log the token.
	claims, err := s.jwtManager.VerifyToken(token)
	if err != nil {
		logger.Warnf("Socket.IO invalid token (socket %s): %v", socketID, err)
		fail("Invalid authentication token")
		return
	}

	id := membership.Identity{UserID: claims.Subject, Username: claims.Username}
	already, err := s.members.BeginAuth(socketID, id)
	switch {
	case errors.Is(err, membership.ErrIdentityConflict):
		logger.Warnf("Socket.IO re-auth as a different user refused (socket %s)", socketID)
		fail("Identity conflict")
		return
	case err != nil:
		fail("Connection closed")
		return
	case already:
		sd := s.getSocketData(socketID)
		s.emitTo([]string{socketID}, wire.EventAuthenticated, wire.AuthenticatedPayload{
			UserID:   sd.UserID,
			Username: sd.Username,
			PlayerID: socketID,
			DextopID: sd.UserID,
		})
		reply(wire.AckSuccess())
		return
	}

	logger.Debugf("Socket.IO token verified: userID=%s socketId=%s", id.UserID, socketID)

	queued := s.runtime.Enqueue(context.Background(), socketID, "authenticate", func(ctx context.Context) {
		s.promote(ctx, socketID, id)
	})
	if !queued {
		fail("Server busy")
		return
	}
	reply(wire.AckSuccess())
}

func (s *SocketIOServer) promote(ctx context.Context, socketID string, id membership.Identity) {
	if !s.live(socketID) {
		// Left Provisional; the queued disconnect discards it silently.
		logger.Debugf("Promotion of socket %s skipped: socket closed", socketID)
		return
	}
	username := id.Username
	if err := s.accounts.EnsureAccount(ctx, id.UserID, username); err != nil {
		logger.Warnf("Account upsert for %s failed: %v", id.UserID, err)
	} else if acct, err := s.accounts.AccountByID(ctx, id.UserID); err == nil {
		username = acct.Username
	}

	promo, err := s.members.Promote(ctx, socketID, username)
	switch {
	case errors.Is(err, membership.ErrConnectionClosed), errors.Is(err, membership.ErrAuthRequired):
		logger.Debugf("Promotion of socket %s abandoned: %v", socketID, err)
		return
	case err != nil:
		// The identity is resolved; only the recorded join failed.
		logger.Warnf("Recorded join for socket %s failed: %v", socketID, err)
		s.emitTo([]string{socketID}, wire.EventError, map[string]string{"message": err.Error()})
	}

	s.setIdentity(socketID, promo.Identity)
	if promo.Already {
		return
	}
	logger.Infof("Socket.IO client authenticated (user: %s, socket: %s)", promo.Identity.UserID, socketID)

	auth := handlers.NewAuthContext(promo.Identity.UserID, promo.Identity.Username, socketID)
	s.applyResult(ctx, handlers.Promoted(ctx, s.deps, auth, promo))
}

func (s *SocketIOServer) handleDisconnect(socketID, reason string) {
	logger.Infof("User disconnected: %s (socket %s, reason: %s)", s.getSocketData(socketID).UserID, socketID, reason)
	s.detach(socketID)

	// Runs after the socket's queued events, including a pending promotion.
	cleanup := func(ctx context.Context) {
		result := handlers.Disconnect(ctx, s.deps, s.authContext(socketID))
		s.socketData.Delete(socketID)
		if s.relay != nil {
			s.relay.Subscriptions().Unsubscribe(socketID)
		}
		s.applyResult(ctx, result)
	}
	if !s.runtime.Enqueue(context.Background(), socketID, "disconnect", cleanup) {
		cleanup(context.Background())
	}
	s.runtime.Forget(socketID)
}
