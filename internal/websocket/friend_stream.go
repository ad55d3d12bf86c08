package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

const (
	streamSendBuffer = 16
	streamWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origins are enforced by the CORS middleware
	},
}

// StreamEvent is a message on the plain WebSocket friend-status stream.
type StreamEvent struct {
	Type string                   `json:"type"`
	Data wire.FriendStatusPayload `json:"data"`
}

// FriendStreams serves friend-status updates over a plain WebSocket (not
// Socket.IO) for lightweight observers such as a launcher or status bar.
type FriendStreams struct {
	relay *relay.Relay
	newID func() string

	mu      sync.Mutex
	streams map[string]*friendStream // subscriber id -> stream
}

type friendStream struct {
	userID string
	send   chan wire.FriendStatusPayload
}

// NewFriendStreams creates the stream registry.
func NewFriendStreams(r *relay.Relay, newID func() string) *FriendStreams {
	return &FriendStreams{
		relay:   r,
		newID:   newID,
		streams: make(map[string]*friendStream),
	}
}

// Deliver queues payload for the stream subscribed as subscriberID. It
// reports false when no such stream exists. Slow streams drop updates;
// every update is a full list, so the next one catches them up.
func (f *FriendStreams) Deliver(subscriberID string, payload wire.FriendStatusPayload) bool {
	f.mu.Lock()
	st, ok := f.streams[subscriberID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case st.send <- payload:
	default:
		logger.Warnf("[friend-stream] %s is slow; dropping update", subscriberID)
	}
	return true
}

// Count returns the number of open streams.
func (f *FriendStreams) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// HandleWebSocket upgrades the request and streams the caller's friends
// list until the client goes away.
func (f *FriendStreams) HandleWebSocket(c *gin.Context) {
	// Get user ID from auth middleware (already set in context)
	userID := c.GetString("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[friend-stream] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	subID := "stream:" + f.newID()
	st := &friendStream{userID: userID, send: make(chan wire.FriendStatusPayload, streamSendBuffer)}

	f.mu.Lock()
	f.streams[subID] = st
	f.mu.Unlock()
	f.relay.Subscriptions().Subscribe(userID, subID)

	defer func() {
		f.relay.Subscriptions().Unsubscribe(subID)
		f.mu.Lock()
		delete(f.streams, subID)
		f.mu.Unlock()
	}()

	logger.Debugf("[friend-stream] %s connected as %s", userID, subID)

	friends, err := f.relay.FriendsList(context.Background(), userID)
	if err != nil {
		logger.Warnf("[friend-stream] initial list for %s: %v", userID, err)
	}
	st.send <- wire.FriendStatusPayload{Friends: friends}

	// The read loop only detects the close; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debugf("[friend-stream] read error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Debugf("[friend-stream] %s disconnected", subID)
			return
		case payload := <-st.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(StreamEvent{Type: wire.EventFriendStatusUpdate, Data: payload}); err != nil {
				logger.Debugf("[friend-stream] write to %s failed: %v", subID, err)
				return
			}
		}
	}
}
