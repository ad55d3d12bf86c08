package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/pkg/wire"
)

type memStore struct {
	mu        sync.Mutex
	accounts  map[string]Account
	messages  []wire.Message
	delivered map[string]bool
	requests  map[string]wire.FriendRequest
	friends   map[string]map[string]bool
	failList  bool
}

func newMemStore(names ...string) *memStore {
	s := &memStore{
		accounts:  map[string]Account{},
		delivered: map[string]bool{},
		requests:  map[string]wire.FriendRequest{},
		friends:   map[string]map[string]bool{},
	}
	for _, n := range names {
		s.accounts[n] = Account{ID: n, Username: n + "-name"}
	}
	return s
}

func (s *memStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *memStore) AccountByUsername(_ context.Context, username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *memStore) SavePrivateMessage(_ context.Context, msg wire.Message, delivered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.delivered[msg.ID] = delivered
	return nil
}

func (s *memStore) UndeliveredMessages(_ context.Context, recipientID string) ([]wire.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("disk on fire")
	}
	var out []wire.Message
	for _, m := range s.messages {
		if m.RecipientID == recipientID && !s.delivered[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) MarkDelivered(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.delivered[id] = true
	}
	return nil
}

func (s *memStore) CreateFriendRequest(_ context.Context, req wire.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *memStore) FriendRequest(_ context.Context, id string) (wire.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return wire.FriendRequest{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) PendingFriendRequest(_ context.Context, from, to string) (wire.FriendRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.FromUserID == from && r.ToUserID == to && r.Status == wire.FriendRequestPending {
			return r, true, nil
		}
	}
	return wire.FriendRequest{}, false, nil
}

func (s *memStore) PendingFriendRequests(_ context.Context, to string) ([]wire.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wire.FriendRequest
	for _, r := range s.requests {
		if r.ToUserID == to && r.Status == wire.FriendRequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *memStore) setStatus(id string, status wire.FriendRequestStatus, at time.Time) bool {
	r, ok := s.requests[id]
	if !ok || r.Status != wire.FriendRequestPending {
		return false
	}
	r.Status = status
	r.RespondedAt = at.UnixMilli()
	s.requests[id] = r
	return true
}

func (s *memStore) AcceptFriendRequest(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setStatus(id, wire.FriendRequestAccepted, at) {
		return false, nil
	}
	r := s.requests[id]
	for _, pair := range [][2]string{{r.FromUserID, r.ToUserID}, {r.ToUserID, r.FromUserID}} {
		if s.friends[pair[0]] == nil {
			s.friends[pair[0]] = map[string]bool{}
		}
		s.friends[pair[0]][pair[1]] = true
	}
	return true, nil
}

func (s *memStore) RejectFriendRequest(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatus(id, wire.FriendRequestRejected, at), nil
}

func (s *memStore) AreFriends(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friends[a][b], nil
}

func (s *memStore) Friends(_ context.Context, userID string) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Account
	for id := range s.friends[userID] {
		out = append(out, s.accounts[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakePresence struct {
	conns   map[string][]string
	dextops map[string]string
}

func (p *fakePresence) UserConnections(userID string) []string { return p.conns[userID] }

func (p *fakePresence) Location(userID string) (bool, string) {
	return len(p.conns[userID]) > 0, p.dextops[userID]
}

func newTestRelay(store Store, presence *fakePresence) (*Relay, *time.Time) {
	now := time.UnixMilli(1_000_000)
	n := 0
	r := New(store, presence, func() time.Time { return now }, func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	})
	return r, &now
}

func TestRelay_LocalMessageColor(t *testing.T) {
	r, _ := newTestRelay(newMemStore(), &fakePresence{})

	msg, err := r.LocalMessage(Sender{UserID: "u1", Username: "al"}, "room:ABC", wire.OutgoingMessage{Content: "  hi  "})
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Content)
	require.Equal(t, wire.MessageLocal, msg.Kind)
	require.Equal(t, ColorFor("u1"), msg.Color)
	require.Equal(t, ColorFor("u1"), ColorFor("u1"))

	msg, err = r.LocalMessage(Sender{UserID: "u1"}, "room:ABC", wire.OutgoingMessage{Content: "x", Color: "#fff"})
	require.NoError(t, err)
	require.Equal(t, "#fff", msg.Color)

	_, err = r.LocalMessage(Sender{UserID: "u1"}, "room:ABC", wire.OutgoingMessage{Content: "   "})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestRelay_OfflineMessagesInOrderWithoutOwn(t *testing.T) {
	store := newMemStore("x", "y")
	presence := &fakePresence{conns: map[string][]string{"x": {"cx"}}}
	r, now := newTestRelay(store, presence)
	ctx := context.Background()

	for _, content := range []string{"m1", "m2", "m3"} {
		*now = now.Add(time.Second)
		d, err := r.SendPrivate(ctx, Sender{UserID: "x", Username: "x-name"}, "y", wire.OutgoingMessage{Content: content})
		require.NoError(t, err)
		require.True(t, d.Queued)
		require.Empty(t, d.RecipientConns)
		require.Equal(t, []string{"cx"}, d.SenderConns)
	}
	// A message authored by y that somehow sits in y's queue is skipped.
	store.messages = append([]wire.Message{{ID: "own", SenderID: "y", RecipientID: "y", Content: "me", Timestamp: 1}}, store.messages...)

	batch := r.OfflineMessages(ctx, "y")
	require.Len(t, batch, 3)
	for i, want := range []string{"m1", "m2", "m3"} {
		require.Equal(t, want, batch[i].Content)
		require.Equal(t, "x", batch[i].SenderID)
	}

	require.Len(t, r.OfflineMessages(ctx, "y"), 3, "unconfirmed batch stays queued")
	r.MarkDelivered(ctx, batch)
	require.Empty(t, r.OfflineMessages(ctx, "y"), "batch is delivered once")
}

func TestRelay_OfflineMessagesDegrade(t *testing.T) {
	store := newMemStore("y")
	store.failList = true
	r, _ := newTestRelay(store, &fakePresence{})

	batch := r.OfflineMessages(context.Background(), "y")
	require.NotNil(t, batch)
	require.Empty(t, batch)
}

func TestRelay_PrivateMessageLive(t *testing.T) {
	store := newMemStore("x", "y")
	presence := &fakePresence{conns: map[string][]string{"y": {"cy"}}}
	r, _ := newTestRelay(store, presence)

	d, err := r.SendPrivate(context.Background(), Sender{UserID: "x"}, "y", wire.OutgoingMessage{Content: "yo"})
	require.NoError(t, err)
	require.False(t, d.Queued)
	require.Equal(t, []string{"cy"}, d.RecipientConns)
	require.True(t, store.delivered[d.Message.ID])

	_, err = r.SendPrivate(context.Background(), Sender{UserID: "x"}, "ghost", wire.OutgoingMessage{Content: "yo"})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRelay_FriendAcceptanceIsSymmetric(t *testing.T) {
	store := newMemStore("a", "b")
	presence := &fakePresence{
		conns:   map[string][]string{"a": {"ca"}, "b": {"cb"}},
		dextops: map[string]string{"a": "a"},
	}
	r, _ := newTestRelay(store, presence)
	ctx := context.Background()

	sent, err := r.SendFriendRequest(ctx, Sender{UserID: "a", Username: "a-name"}, "b-name")
	require.NoError(t, err)
	require.Equal(t, []string{"cb"}, sent.RecipientConns)
	require.Equal(t, "a-name", sent.Request.FromUsername)

	again, err := r.SendFriendRequest(ctx, Sender{UserID: "a", Username: "a-name"}, "b-name")
	require.NoError(t, err)
	require.Equal(t, sent.Request.ID, again.Request.ID)

	_, err = r.AcceptFriendRequest(ctx, Sender{UserID: "a"}, sent.Request.ID)
	require.ErrorIs(t, err, ErrRequestNotFound, "only the recipient may accept")

	acc, err := r.AcceptFriendRequest(ctx, Sender{UserID: "b", Username: "b-name"}, sent.Request.ID)
	require.NoError(t, err)
	require.Equal(t, wire.FriendRequestAccepted, acc.Request.Status)

	require.Equal(t, []string{"ca"}, acc.SenderConns)
	require.Equal(t, "b", acc.ForSender.Friend.UserID)
	require.Len(t, acc.ForSender.FriendsList, 1)
	require.Equal(t, "b", acc.ForSender.FriendsList[0].UserID)

	require.Equal(t, []string{"cb"}, acc.RecipientConns)
	require.Equal(t, "a", acc.ForRecipient.Friend.UserID)
	require.True(t, acc.ForRecipient.Friend.Online)
	require.Equal(t, "a", acc.ForRecipient.Friend.DextopID)
	require.Len(t, acc.ForRecipient.FriendsList, 1)

	_, err = r.SendFriendRequest(ctx, Sender{UserID: "a"}, "b-name")
	require.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestRelay_RejectIsSilentAndFinal(t *testing.T) {
	store := newMemStore("a", "b")
	r, _ := newTestRelay(store, &fakePresence{})
	ctx := context.Background()

	sent, err := r.SendFriendRequest(ctx, Sender{UserID: "a"}, "b-name")
	require.NoError(t, err)
	require.Empty(t, sent.RecipientConns)
	require.Len(t, r.PendingFriendRequests(ctx, "b"), 1)

	require.NoError(t, r.RejectFriendRequest(ctx, Sender{UserID: "b"}, sent.Request.ID))
	require.Empty(t, r.PendingFriendRequests(ctx, "b"))
	require.ErrorIs(t, r.RejectFriendRequest(ctx, Sender{UserID: "b"}, sent.Request.ID), ErrRequestNotFound)

	_, err = r.SendFriendRequest(ctx, Sender{UserID: "a"}, "a-name")
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = r.SendFriendRequest(ctx, Sender{UserID: "a"}, "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRelay_FriendStatusPushesFullLists(t *testing.T) {
	store := newMemStore("a", "b", "c")
	store.friends = map[string]map[string]bool{
		"a": {"b": true, "c": true},
		"b": {"a": true},
		"c": {"a": true},
	}
	presence := &fakePresence{conns: map[string][]string{"a": {"ca"}}, dextops: map[string]string{"a": "c"}}
	r, _ := newTestRelay(store, presence)

	r.Subscriptions().Subscribe("b", "sock-b")
	r.Subscriptions().Subscribe("b", "stream-1")

	pushes := r.FriendStatusChanged(context.Background(), "a")
	require.Len(t, pushes, 1)
	require.Equal(t, "b", pushes[0].UserID)
	require.Equal(t, []string{"sock-b", "stream-1"}, pushes[0].Subscribers)
	require.Equal(t, []wire.Friend{{UserID: "a", Username: "a-name", Online: true, DextopID: "c"}}, pushes[0].Friends)

	r.Subscriptions().Unsubscribe("sock-b")
	r.Subscriptions().Unsubscribe("stream-1")
	require.Empty(t, r.FriendStatusChanged(context.Background(), "a"))
}
