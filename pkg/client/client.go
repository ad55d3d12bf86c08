// Package client is the dextop client SDK.
//
// A Client keeps one Socket.IO connection to the server, re-authenticates
// and rejoins its own dextop after every reconnect, and reconciles local
// desktop and player state with the current context: local changes are
// broadcast whole when they differ from what was last sent, and remote
// snapshots are applied without being echoed back.
//
// All state lives on a single loop goroutine. Public methods post commands
// to it and wait for the outcome.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dextop-world/dextop/pkg/wire"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
	// ErrNotInContext is returned by chat when the client has not joined a
	// room or dextop.
	ErrNotInContext = errors.New("not in a context")
)

// ServerError is an error ack returned by the server.
type ServerError struct {
	Event   string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Event, e.Message)
}

// EventStatus is published whenever the connection status changes.
const EventStatus = "client:status"

// Event is a server event or a client status change.
type Event struct {
	Name string
	// Data is the raw server payload.
	Data json.RawMessage
	// Status is set for EventStatus.
	Status *Status
	// Err is ErrTransportDisconnected once reconnection gave up.
	Err error
}

// Decode unmarshals the server payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

// Client is a dextop client connection.
type Client struct {
	opts     Options
	loop     *loop[*session]
	events   chan Event
	messages *MessageLog

	startOnce sync.Once
	started   atomic.Bool
	closeOnce sync.Once
	quit      chan struct{}
	// heartbeatEvery is swapped in tests.
	heartbeatEvery func(d time.Duration) (<-chan time.Time, func())
}

// New builds a client. It does not connect.
func New(opts Options) (*Client, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	events := make(chan Event, opts.EventBuffer)
	messages := NewMessageLog(1000)
	rt := newSocketRuntime(opts, events)
	return &Client{
		opts:     opts,
		loop:     newLoop[*session](newSession(opts, messages), step, rt, 0),
		events:   events,
		messages: messages,
		quit:     make(chan struct{}),
		heartbeatEvery: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}, nil
}

func (c *Client) start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		c.loop.start()
		tick, stop := c.heartbeatEvery(c.opts.HeartbeatInterval)
		go func() {
			defer stop()
			for {
				select {
				case <-c.quit:
					return
				case now := <-tick:
					c.loop.enqueue(heartbeatDue{at: now})
				}
			}
		}()
	})
}

// do posts a command and waits for its outcome.
func (c *Client) do(ctx context.Context, in input, reply chan error) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	if !c.loop.enqueue(in) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClosed
	}
}

// Connect starts connecting. It returns once the attempt has started;
// watch Events for the outcome. Calling Connect after reconnection gave
// up starts over with a fresh attempt budget.
func (c *Client) Connect(ctx context.Context) error {
	c.start()
	reply := make(chan error, 1)
	return c.do(ctx, connectCmd{reply: reply}, reply)
}

// Disconnect closes the connection without reconnecting.
func (c *Client) Disconnect(ctx context.Context) error {
	reply := make(chan error, 1)
	return c.do(ctx, disconnectCmd{reply: reply}, reply)
}

// Close disconnects and stops the client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.started.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.Disconnect(ctx)
			cancel()
		}
		close(c.quit)
		c.loop.stop()
	})
	return nil
}

// Events delivers server events and status changes. Events are dropped
// when the consumer falls behind.
func (c *Client) Events() <-chan Event { return c.events }

// Messages is the de-duplicated chat log.
func (c *Client) Messages() *MessageLog { return c.messages }

// Status returns the current connection status.
func (c *Client) Status() Status {
	var st Status
	c.loop.inspect(func(s *session) { st = s.status() })
	return st
}

// Desktop returns the local desktop snapshot.
func (c *Client) Desktop() wire.DesktopSnapshot {
	var snap wire.DesktopSnapshot
	c.loop.inspect(func(s *session) { snap = s.desktop.Clone() })
	return snap
}

// SetDesktop replaces the local desktop. It is broadcast if it differs
// from what was last sent; while disconnected it is kept locally.
func (c *Client) SetDesktop(ctx context.Context, snap wire.DesktopSnapshot) error {
	reply := make(chan error, 1)
	return c.do(ctx, desktopCmd{snap: snap, reply: reply}, reply)
}

// UpdatePlayer merges patch into the local player state.
func (c *Client) UpdatePlayer(ctx context.Context, patch wire.PlayerStatePatch) error {
	reply := make(chan error, 1)
	return c.do(ctx, playerCmd{patch: patch, reply: reply}, reply)
}

func (c *Client) request(ctx context.Context, event string, payload any) error {
	reply := make(chan error, 1)
	return c.do(ctx, emitCmd{event: event, payload: payload, reply: reply}, reply)
}

// JoinDextop visits dextopID, or returns home when it is empty or the
// caller's own user id.
func (c *Client) JoinDextop(ctx context.Context, dextopID string) error {
	return c.request(ctx, wire.EventJoinDextop, wire.JoinDextopPayload{DextopID: dextopID})
}

func (c *Client) CreateRoom(ctx context.Context, username string) error {
	return c.request(ctx, wire.EventCreateRoom, wire.CreateRoomPayload{Username: username})
}

func (c *Client) JoinRoom(ctx context.Context, code, username string) error {
	return c.request(ctx, wire.EventJoinRoom, wire.JoinRoomPayload{RoomID: code, Username: username})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.request(ctx, wire.EventLeaveContext, struct{}{})
}

// Say sends a chat message to the current context.
func (c *Client) Say(ctx context.Context, content string) error {
	reply := make(chan error, 1)
	return c.do(ctx, chatCmd{msg: wire.OutgoingMessage{Content: content}, reply: reply}, reply)
}

func (c *Client) SendPrivate(ctx context.Context, recipientID, content string) error {
	return c.request(ctx, wire.EventPrivateMessage, wire.PrivateMessagePayload{
		RecipientID: recipientID,
		Message:     wire.OutgoingMessage{Content: content},
	})
}

func (c *Client) SendFriendRequest(ctx context.Context, username string) error {
	return c.request(ctx, wire.EventFriendRequest, wire.SendFriendRequestPayload{Username: username})
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.request(ctx, wire.EventAcceptFriendRequest, wire.FriendRequestActionPayload{RequestID: requestID})
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.request(ctx, wire.EventRejectFriendRequest, wire.FriendRequestActionPayload{RequestID: requestID})
}

// RequestFriendsList subscribes to friend status updates. The list
// arrives as a friendStatusUpdate event.
func (c *Client) RequestFriendsList(ctx context.Context) error {
	return c.request(ctx, wire.EventGetFriendsList, struct{}{})
}
