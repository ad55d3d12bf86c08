package websocket

import (
	"context"

	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/websocket/handlers"
	"github.com/dextop-world/dextop/pkg/wire"
)

// onTyped registers a decode -> handler -> ack -> emit pipeline for event.
// Handler calls for one socket run in arrival order on the socket's
// runtime queue, so slow store work never blocks other connections.
func onTyped[Req any](
	s *SocketIOServer,
	client *socket.Socket,
	event string,
	handler func(context.Context, handlers.Deps, handlers.AuthContext, Req) handlers.EventResult,
) {
	socketID := string(client.Id())
	client.On(event, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)

		var req Req
		if raw != nil {
			if err := decodeAny(raw, &req); err != nil {
				logger.Debugf("%s decode error (socket %s): %v", event, socketID, err)
				if ack != nil {
					ack(wire.AckError("Invalid payload"))
				}
				return
			}
		}

		queued := s.runtime.Enqueue(context.Background(), socketID, event, func(ctx context.Context) {
			result := handler(ctx, s.deps, s.authContext(socketID), req)
			if ack != nil {
				ack(result.Ack())
			} else if res, ok := result.Ack().(wire.ResultAck); ok && res.Result != "success" {
				logger.Debugf("%s from socket %s: %s", event, socketID, res.Message)
			}
			s.applyResult(ctx, result)
		})
		if !queued && ack != nil {
			ack(wire.AckError("Server busy"))
		}
	})
}
