package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/internal/reconcile"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

type fakeSnapshotStore struct{}

func (fakeSnapshotStore) LoadDextopSnapshot(context.Context, string) (wire.DesktopSnapshot, bool, error) {
	return wire.NewDesktopSnapshot(), false, nil
}

func (fakeSnapshotStore) AccountExists(context.Context, string) (bool, error) {
	return true, nil
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMembers(t *testing.T) (*membership.Manager, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(50_000, 0)}
	n := 0
	return membership.NewManager(membership.Options{
		Registry:  presence.NewRegistry(clock.Now),
		Store:     fakeSnapshotStore{},
		Sanitizer: reconcile.NewSanitizer([]string{"characterEditor"}),
		NewRoomCode: func() (string, error) {
			n++
			return fmt.Sprintf("ROOM%02d", n), nil
		},
		Now: clock.Now,
	}), clock
}

// login authenticates socketID as userID and returns its handler context.
func login(t *testing.T, m *membership.Manager, socketID, userID string) AuthContext {
	t.Helper()
	m.Connect(socketID)
	_, err := m.BeginAuth(socketID, membership.Identity{UserID: userID, Username: userID + "-name"})
	require.NoError(t, err)
	_, err = m.Promote(context.Background(), socketID, "")
	require.NoError(t, err)
	return NewAuthContext(userID, userID+"-name", socketID)
}

type fakeRelay struct {
	localMessage func(from relay.Sender, contextID string, out wire.OutgoingMessage) (wire.Message, error)
	sendPrivate  func(ctx context.Context, from relay.Sender, recipientID string, out wire.OutgoingMessage) (relay.PrivateDelivery, error)
	offline      func(ctx context.Context, userID string) []wire.Message
	delivered    func(batch []wire.Message)
	sendRequest  func(ctx context.Context, from relay.Sender, username string) (relay.RequestDelivery, error)
	pending      func(ctx context.Context, userID string) []wire.FriendRequest
	accept       func(ctx context.Context, actor relay.Sender, requestID string) (relay.Acceptance, error)
	reject       func(ctx context.Context, actor relay.Sender, requestID string) error
	friendsList  func(ctx context.Context, userID string) ([]wire.Friend, error)
}

func (f fakeRelay) LocalMessage(from relay.Sender, contextID string, out wire.OutgoingMessage) (wire.Message, error) {
	if f.localMessage == nil {
		return wire.Message{ID: "m", SenderID: from.UserID, ContextID: contextID, Content: out.Content, Kind: wire.MessageLocal}, nil
	}
	return f.localMessage(from, contextID, out)
}

func (f fakeRelay) SendPrivate(ctx context.Context, from relay.Sender, recipientID string, out wire.OutgoingMessage) (relay.PrivateDelivery, error) {
	return f.sendPrivate(ctx, from, recipientID, out)
}

func (f fakeRelay) OfflineMessages(ctx context.Context, userID string) []wire.Message {
	if f.offline == nil {
		return []wire.Message{}
	}
	return f.offline(ctx, userID)
}

func (f fakeRelay) MarkDelivered(ctx context.Context, batch []wire.Message) {
	if f.delivered != nil {
		f.delivered(batch)
	}
}

func (f fakeRelay) SendFriendRequest(ctx context.Context, from relay.Sender, username string) (relay.RequestDelivery, error) {
	return f.sendRequest(ctx, from, username)
}

func (f fakeRelay) PendingFriendRequests(ctx context.Context, userID string) []wire.FriendRequest {
	if f.pending == nil {
		return []wire.FriendRequest{}
	}
	return f.pending(ctx, userID)
}

func (f fakeRelay) AcceptFriendRequest(ctx context.Context, actor relay.Sender, requestID string) (relay.Acceptance, error) {
	return f.accept(ctx, actor, requestID)
}

func (f fakeRelay) RejectFriendRequest(ctx context.Context, actor relay.Sender, requestID string) error {
	return f.reject(ctx, actor, requestID)
}

func (f fakeRelay) FriendsList(ctx context.Context, userID string) ([]wire.Friend, error) {
	if f.friendsList == nil {
		return []wire.Friend{}, nil
	}
	return f.friendsList(ctx, userID)
}

type fakeSubscriber struct {
	subs map[string][]string
}

func (f *fakeSubscriber) Subscribe(userID, subscriberID string) {
	if f.subs == nil {
		f.subs = map[string][]string{}
	}
	f.subs[userID] = append(f.subs[userID], subscriberID)
}

// emitted returns the payloads of every emission of event that targets
// socketID.
func emitted(r EventResult, socketID, event string) []any {
	var out []any
	for _, e := range r.Emissions() {
		if e.Event() != event {
			continue
		}
		for _, id := range e.Targets() {
			if id == socketID {
				out = append(out, e.Payload())
				break
			}
		}
	}
	return out
}

func requireAck(t *testing.T, r EventResult, result string) wire.ResultAck {
	t.Helper()
	ack, ok := r.Ack().(wire.ResultAck)
	require.True(t, ok)
	require.Equal(t, result, ack.Result)
	return ack
}
