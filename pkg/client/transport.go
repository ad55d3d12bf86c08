package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

// ErrTransportDisconnected is returned when an operation needs a live
// connection and there is none.
var ErrTransportDisconnected = errors.New("transport disconnected")

// Transport is one live connection to the server. A Transport is never
// reused after it reports a disconnect.
type Transport interface {
	// Emit sends an event. ack, when non-nil, receives the server's ack.
	Emit(event string, payload any, ack func(wire.ResultAck, error)) error
	Close() error
}

// TransportHandler receives transport callbacks. Callbacks may arrive on
// any goroutine.
type TransportHandler struct {
	OnConnect    func()
	OnDisconnect func(reason string)
	OnEvent      func(event string, raw json.RawMessage)
}

// DialConfig is what a Dialer needs to open a transport.
type DialConfig struct {
	URL   string
	Path  string
	Token string
}

// Dialer opens a transport. It returns once the attempt has started; the
// outcome is reported through the handler.
type Dialer func(cfg DialConfig, h TransportHandler) (Transport, error)

// serverEvents are the events the client listens for.
var serverEvents = []string{
	wire.EventAuthenticated,
	wire.EventDextopJoined,
	wire.EventRoomJoined,
	wire.EventPlayerMoved,
	wire.EventVisitorMoved,
	wire.EventPlayersUpdate,
	wire.EventVisitorsUpdate,
	wire.EventVisitorStateUpdate,
	wire.EventVisitorLeft,
	wire.EventPlayerLeft,
	wire.EventDesktopState,
	wire.EventDextopState,
	wire.EventLocalMessage,
	wire.EventDextopMessage,
	wire.EventPrivateMessage,
	wire.EventFriendRequest,
	wire.EventFriendRequestAccepted,
	wire.EventFriendStatusUpdate,
	wire.EventOfflineMessages,
	wire.EventOfflineFriendRequests,
	wire.EventError,
}

type socketIOTransport struct {
	mu     sync.Mutex
	sock   *socket.Socket
	closed bool
}

// DialSocketIO connects with the Socket.IO client. The library's own
// reconnection is cut short by closing the socket on the first disconnect;
// the Client reconnects with its own backoff on a fresh transport.
func DialSocketIO(cfg DialConfig, h TransportHandler) (Transport, error) {
	opts := socket.DefaultOptions()
	opts.SetPath(cfg.Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]any{"token": cfg.Token})

	sock, err := socket.Connect(cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	t := &socketIOTransport{sock: sock}

	var reported sync.Once
	disconnected := func(reason string) {
		reported.Do(func() {
			// Closed off the callback goroutine; the library is still
			// dispatching the event.
			go t.Close()
			if h.OnDisconnect != nil {
				h.OnDisconnect(reason)
			}
		})
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		if h.OnConnect != nil {
			h.OnConnect()
		}
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		disconnected(reason)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Debugf("[client] Socket.IO connection error: %v", args[0])
		}
		disconnected("connect error")
	})

	for _, event := range serverEvents {
		sock.On(types.EventName(event), func(args ...any) {
			if h.OnEvent == nil {
				return
			}
			var payload any
			if len(args) > 0 {
				payload = args[0]
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				logger.Warnf("[client] undecodable %s payload: %v", event, err)
				return
			}
			h.OnEvent(event, raw)
		})
	}

	return t, nil
}

func (t *socketIOTransport) Emit(event string, payload any, ack func(wire.ResultAck, error)) error {
	t.mu.Lock()
	sock, closed := t.sock, t.closed
	t.mu.Unlock()
	if closed || sock == nil || !sock.Connected() {
		return ErrTransportDisconnected
	}
	if ack == nil {
		return sock.Emit(event, payload)
	}
	return sock.Emit(event, payload, func(args []any, err error) {
		if err != nil {
			ack(wire.ResultAck{}, err)
			return
		}
		var res wire.ResultAck
		if len(args) > 0 {
			raw, err := json.Marshal(args[0])
			if err == nil {
				err = json.Unmarshal(raw, &res)
			}
			if err != nil {
				ack(wire.ResultAck{}, fmt.Errorf("decode %s ack: %w", event, err))
				return
			}
		}
		if res.Result == "" {
			res.Result = "success"
		}
		ack(res, nil)
	})
}

func (t *socketIOTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sock != nil {
		t.sock.Close()
	}
	return nil
}
