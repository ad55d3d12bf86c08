package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Subscriptions tracks who wants friend-status pushes. Subscriber ids are
// opaque to the relay (socket ids, stream ids).
type Subscriptions struct {
	mu     sync.Mutex
	byUser map[string]map[string]struct{}
	owner  map[string]string
}

// NewSubscriptions returns an empty set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		byUser: make(map[string]map[string]struct{}),
		owner:  make(map[string]string),
	}
}

// Subscribe registers subscriberID as watching userID's friends.
func (s *Subscriptions) Subscribe(userID, subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.owner[subscriberID]; ok && prev != userID {
		s.removeLocked(subscriberID)
	}
	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[userID] = set
	}
	set[subscriberID] = struct{}{}
	s.owner[subscriberID] = userID
}

// Unsubscribe removes a subscriber.
func (s *Subscriptions) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(subscriberID)
}

func (s *Subscriptions) removeLocked(subscriberID string) {
	userID, ok := s.owner[subscriberID]
	if !ok {
		return
	}
	delete(s.owner, subscriberID)
	set := s.byUser[userID]
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(s.byUser, userID)
	}
}

// Of returns the subscribers watching userID's friends, sorted.
func (s *Subscriptions) Of(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// StatusPush is a full friends list for one subscribed user.
type StatusPush struct {
	UserID      string
	Subscribers []string
	Friends     []wire.Friend
}

// FriendStatusChanged computes the pushes caused by userID going online,
// offline or moving between dextops: every friend holding a subscription
// receives their complete refreshed list.
func (r *Relay) FriendStatusChanged(ctx context.Context, userID string) []StatusPush {
	friends, err := r.store.Friends(ctx, userID)
	if err != nil {
		logger.Warnf("relay: status change for %s: %v", userID, storeErr("list friends", err))
		return nil
	}
	var out []StatusPush
	for _, f := range friends {
		subs := r.subs.Of(f.ID)
		if len(subs) == 0 {
			continue
		}
		list, err := r.FriendsList(ctx, f.ID)
		if err != nil {
			logger.Warnf("relay: friends list for %s: %v", f.ID, err)
			continue
		}
		out = append(out, StatusPush{UserID: f.ID, Subscribers: subs, Friends: list})
	}
	return out
}
