package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/dextop-world/dextop/internal/crypto"
	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/internal/relay"
	sessionruntime "github.com/dextop-world/dextop/internal/session/runtime"
	"github.com/dextop-world/dextop/internal/websocket/handlers"
	"github.com/dextop-world/dextop/pkg/wire"
)

// DefaultPath is where the Socket.IO endpoint is mounted.
const DefaultPath = "/socket.io/"

// friendStatusKey serializes friend-status pushes on one runtime queue.
const friendStatusKey = "friend-status"

// AccountStore resolves the account behind a verified token.
type AccountStore interface {
	EnsureAccount(ctx context.Context, userID, username string) error
	AccountByID(ctx context.Context, id string) (relay.Account, error)
}

// Options configure a SocketIOServer.
type Options struct {
	JWT      *crypto.JWTManager
	Members  *membership.Manager
	Relay    *relay.Relay
	Runtime  *sessionruntime.Manager
	Accounts AccountStore
	// Streams receives friend-status pushes for plain WebSocket
	// subscribers. Optional.
	Streams *FriendStreams
	// Path overrides DefaultPath.
	Path string
}

// SocketIOServer wraps the Socket.IO server for dextop clients.
type SocketIOServer struct {
	server     *socket.Server
	jwtManager *crypto.JWTManager
	members    *membership.Manager
	relay      *relay.Relay
	runtime    *sessionruntime.Manager
	accounts   AccountStore
	streams    *FriendStreams
	deps       handlers.Deps
	socketData sync.Map // Maps socket ID to *SocketData
}

// SocketData stores connection metadata for each socket. Values are
// replaced, never mutated, once stored.
type SocketData struct {
	UserID   string
	Username string
	// send writes one event to the socket; nil once the socket closed.
	send func(event string, payload any)
}

func socketSender(client *socket.Socket) func(string, any) {
	return func(event string, payload any) {
		client.Emit(event, payload)
	}
}

// NewSocketIOServer creates a new Socket.IO v4 server.
func NewSocketIOServer(o Options) *SocketIOServer {
	opts := socket.DefaultServerOptions()

	// HTTP origins are enforced by the gin CORS middleware.
	opts.SetCors(&sockettypes.Cors{
		Origin:      "*",
		Credentials: false,
	})

	// SocketIOPingInterval defines how frequently the server pings clients to
	// detect dead transports. Presence staleness is handled separately by
	// the presence sweeper.
	const SocketIOPingInterval = 10 * time.Second

	// SocketIOPingTimeout defines how long the server waits before considering a
	// socket dead (no pong received).
	const SocketIOPingTimeout = 20 * time.Second

	opts.SetPingTimeout(SocketIOPingTimeout)
	opts.SetPingInterval(SocketIOPingInterval)

	path := o.Path
	if path == "" {
		path = DefaultPath
	}
	opts.SetPath(path)

	s := &SocketIOServer{
		server:     socket.NewServer(nil, opts),
		jwtManager: o.JWT,
		members:    o.Members,
		relay:      o.Relay,
		runtime:    o.Runtime,
		accounts:   o.Accounts,
		streams:    o.Streams,
	}
	var subs handlers.Subscriber
	if o.Relay != nil {
		subs = o.Relay.Subscriptions()
	}
	s.deps = handlers.NewDeps(o.Members, o.Relay, subs, time.Now)

	s.setupHandlers()
	return s
}

// setupHandlers configures Socket.IO event handlers
func (s *SocketIOServer) setupHandlers() {
	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}

// getSocketData retrieves socket metadata by socket ID
func (s *SocketIOServer) getSocketData(socketID string) *SocketData {
	if data, ok := s.socketData.Load(socketID); ok {
		if sd, ok := data.(*SocketData); ok {
			return sd
		}
	}
	return &SocketData{} // Return empty struct if not found
}

// attach registers a live socket under socketID.
func (s *SocketIOServer) attach(socketID string, send func(string, any)) {
	s.socketData.Store(socketID, &SocketData{send: send})
}

// detach stops all further emits to socketID while keeping its identity for
// the queued cleanup.
func (s *SocketIOServer) detach(socketID string) {
	sd := s.getSocketData(socketID)
	s.socketData.Store(socketID, &SocketData{UserID: sd.UserID, Username: sd.Username})
}

func (s *SocketIOServer) live(socketID string) bool {
	return s.getSocketData(socketID).send != nil
}

func (s *SocketIOServer) setIdentity(socketID string, id membership.Identity) {
	sd := s.getSocketData(socketID)
	if sd.send == nil {
		return
	}
	s.socketData.Store(socketID, &SocketData{
		UserID:   id.UserID,
		Username: id.Username,
		send:     sd.send,
	})
}

func (s *SocketIOServer) authContext(socketID string) handlers.AuthContext {
	sd := s.getSocketData(socketID)
	return handlers.NewAuthContext(sd.UserID, sd.Username, socketID)
}

// emitTo sends event to each live socket and reports how many it reached.
// Sockets that are gone are skipped; their clients resync after
// reconnecting.
func (s *SocketIOServer) emitTo(socketIDs []string, event string, payload any) int {
	sent := 0
	for _, id := range socketIDs {
		sd := s.getSocketData(id)
		if sd.send == nil {
			logger.Tracef("Dropping %s for disconnected socket %s", event, id)
			continue
		}
		sd.send(event, payload)
		sent++
	}
	return sent
}

// applyResult performs a handler's emissions and side effects.
func (s *SocketIOServer) applyResult(ctx context.Context, result handlers.EventResult) {
	for _, e := range result.Emissions() {
		sent := s.emitTo(e.Targets(), e.Event(), e.Payload())
		if fn := e.OnSent(); fn != nil && sent == len(e.Targets()) {
			fn(ctx)
		}
	}
	if s.runtime != nil {
		for _, save := range result.Saves() {
			s.runtime.SaveSnapshot(ctx, save.OwnerID(), save.Snapshot())
		}
	}
	for _, userID := range result.StatusChanged() {
		s.pushFriendStatus(userID)
	}
}

// pushFriendStatus refreshes the friends list of every subscribed friend
// of userID.
func (s *SocketIOServer) pushFriendStatus(userID string) {
	if s.relay == nil || s.runtime == nil {
		return
	}
	s.runtime.Enqueue(context.Background(), friendStatusKey, "friend-status", func(ctx context.Context) {
		for _, push := range s.relay.FriendStatusChanged(ctx, userID) {
			payload := wire.FriendStatusPayload{Friends: push.Friends}
			for _, sub := range push.Subscribers {
				if s.streams != nil && s.streams.Deliver(sub, payload) {
					continue
				}
				s.emitTo([]string{sub}, wire.EventFriendStatusUpdate, payload)
			}
		}
	})
}

// NotifySwept tells context members about presences evicted by the
// sweeper. It is the presence.Sweeper callback.
func (s *SocketIOServer) NotifySwept(stale []presence.Stale) {
	s.applyResult(context.Background(), handlers.Swept(s.deps, stale))
}

// HandleSocketIO creates a Gin handler for Socket.IO
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		// Handle preflight
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}

		logger.Tracef("Socket.IO request: %s %s", c.Request.Method, c.Request.URL.Path)

		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server
func (s *SocketIOServer) Close() error {
	s.server.Close(nil)
	return nil
}
