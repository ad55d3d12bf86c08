// Package relay routes chat and friend-request traffic between users and
// replays what a user missed while offline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

const MaxMessageLength = 500

var (
	// ErrExternalStore wraps failures of the durable store.
	ErrExternalStore = errors.New("external store failure")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound        = errors.New("not found")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidRequest  = errors.New("invalid friend request")
	ErrAlreadyFriends  = errors.New("already friends")
	ErrRequestNotFound = errors.New("friend request not found")
)

// Account is the identity data the relay needs about a user.
type Account struct {
	ID        string
	Username  string
	ChatColor string
}

// Store is the durable message and friendship store.
type Store interface {
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByUsername(ctx context.Context, username string) (Account, error)

	SavePrivateMessage(ctx context.Context, msg wire.Message, delivered bool) error
	UndeliveredMessages(ctx context.Context, recipientID string) ([]wire.Message, error)
	MarkDelivered(ctx context.Context, ids []string) error

	CreateFriendRequest(ctx context.Context, req wire.FriendRequest) error
	FriendRequest(ctx context.Context, id string) (wire.FriendRequest, error)
	PendingFriendRequest(ctx context.Context, fromUserID, toUserID string) (wire.FriendRequest, bool, error)
	PendingFriendRequests(ctx context.Context, toUserID string) ([]wire.FriendRequest, error)
	// AcceptFriendRequest marks the request accepted and creates both
	// friendship rows atomically. It reports false if it was not pending.
	AcceptFriendRequest(ctx context.Context, id string, at time.Time) (bool, error)
	RejectFriendRequest(ctx context.Context, id string, at time.Time) (bool, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	Friends(ctx context.Context, userID string) ([]Account, error)
}

// Presence answers who is online and where.
type Presence interface {
	UserConnections(userID string) []string
	Location(userID string) (online bool, dextopID string)
}

// Sender identifies the author of a message or request.
type Sender struct {
	UserID   string
	Username string
}

// Relay is the messaging and friend-request service.
type Relay struct {
	store    Store
	presence Presence
	now      func() time.Time
	newID    func() string
	subs     *Subscriptions
}

// New builds a relay.
func New(store Store, presence Presence, now func() time.Time, newID func() string) *Relay {
	if now == nil {
		now = time.Now
	}
	return &Relay{
		store:    store,
		presence: presence,
		now:      now,
		newID:    newID,
		subs:     NewSubscriptions(),
	}
}

// Subscriptions exposes the friend-status subscriber set.
func (r *Relay) Subscriptions() *Subscriptions { return r.subs }

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrExternalStore, err)
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("empty content: %w", ErrInvalidMessage)
	}
	if len([]rune(content)) > MaxMessageLength {
		return "", fmt.Errorf("content longer than %d characters: %w", MaxMessageLength, ErrInvalidMessage)
	}
	return content, nil
}

// LocalMessage builds a context-scoped chat message. The color hint falls
// back to the sender's palette color.
func (r *Relay) LocalMessage(from Sender, contextID string, out wire.OutgoingMessage) (wire.Message, error) {
	content, err := cleanContent(out.Content)
	if err != nil {
		return wire.Message{}, err
	}
	color := out.Color
	if color == "" {
		color = ColorFor(from.UserID)
	}
	return wire.Message{
		ID:         r.newID(),
		SenderID:   from.UserID,
		SenderName: from.Username,
		ContextID:  contextID,
		Content:    content,
		Timestamp:  r.now().UnixMilli(),
		Kind:       wire.MessageLocal,
		Color:      color,
	}, nil
}

// PrivateDelivery is the routing of one private message.
type PrivateDelivery struct {
	Message wire.Message
	// RecipientConns receive the message live; empty when it was queued.
	RecipientConns []string
	// SenderConns receive the echo.
	SenderConns []string
	Queued      bool
}

// SendPrivate stores and routes a direct message. Offline recipients get it
// in their next offline batch.
func (r *Relay) SendPrivate(ctx context.Context, from Sender, recipientID string, out wire.OutgoingMessage) (PrivateDelivery, error) {
	content, err := cleanContent(out.Content)
	if err != nil {
		return PrivateDelivery{}, err
	}
	if recipientID == "" || recipientID == from.UserID {
		return PrivateDelivery{}, fmt.Errorf("bad recipient: %w", ErrInvalidMessage)
	}
	if _, err := r.store.AccountByID(ctx, recipientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrivateDelivery{}, ErrUserNotFound
		}
		return PrivateDelivery{}, storeErr("lookup recipient", err)
	}

	msg := wire.Message{
		ID:          r.newID(),
		SenderID:    from.UserID,
		SenderName:  from.Username,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   r.now().UnixMilli(),
		Kind:        wire.MessagePrivate,
	}
	live := r.presence.UserConnections(recipientID)
	d := PrivateDelivery{
		Message:        msg,
		RecipientConns: live,
		SenderConns:    r.presence.UserConnections(from.UserID),
		Queued:         len(live) == 0,
	}

	if err := r.store.SavePrivateMessage(ctx, msg, !d.Queued); err != nil {
		if d.Queued {
			return PrivateDelivery{}, storeErr("queue private message", err)
		}
		logger.Warnf("relay: persisting delivered message %s failed: %v", msg.ID, err)
	}
	return d, nil
}

// OfflineMessages returns the messages queued for userID in chronological
// order, excluding anything userID authored. The batch stays queued until
// MarkDelivered confirms it reached the user. Store failures degrade to an
// empty batch.
func (r *Relay) OfflineMessages(ctx context.Context, userID string) []wire.Message {
	queued, err := r.store.UndeliveredMessages(ctx, userID)
	if err != nil {
		logger.Warnf("relay: offline messages for %s: %v", userID, storeErr("list undelivered", err))
		return []wire.Message{}
	}

	seen := make(map[string]struct{}, len(queued))
	out := make([]wire.Message, 0, len(queued))
	var own []string
	for _, m := range queued {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.SenderID == userID {
			own = append(own, m.ID)
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	// Self-authored entries are never replayed; clear them now.
	if len(own) > 0 {
		if err := r.store.MarkDelivered(ctx, own); err != nil {
			logger.Warnf("relay: mark delivered for %s: %v", userID, err)
		}
	}
	return out
}

// MarkDelivered removes an offline batch from the queue once it has been
// handed to a live connection.
func (r *Relay) MarkDelivered(ctx context.Context, batch []wire.Message) {
	if len(batch) == 0 {
		return
	}
	ids := make([]string, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	if err := r.store.MarkDelivered(ctx, ids); err != nil {
		logger.Warnf("relay: mark delivered: %v", err)
	}
}
