package handlers

import (
	"context"
	"time"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Membership is the subset of the membership manager used by websocket
// handlers.
type Membership interface {
	CreateRoom(connID, username string) (membership.JoinResult, error)
	JoinRoom(connID, code, username string) (membership.JoinResult, error)
	JoinDextop(ctx context.Context, connID, target string) (membership.JoinResult, error)
	Leave(connID string) (*membership.Departure, error)
	Disconnect(connID string) *membership.Departure
	ApplyDesktop(connID string, ref membership.ContextRef, snap wire.DesktopSnapshot) (membership.DesktopUpdate, error)
	UpdatePlayer(connID string, ref membership.ContextRef, patch wire.PlayerStatePatch) (membership.PlayerUpdate, error)
	Chat(connID string, ref membership.ContextRef) (membership.ContextRef, membership.Identity, []string, error)
	Heartbeat(connID string) error
	Members(ref membership.ContextRef) []string
	Players(ref membership.ContextRef) map[string]wire.Presence
}

// Relay is the subset of the messaging relay used by websocket handlers.
type Relay interface {
	LocalMessage(from relay.Sender, contextID string, out wire.OutgoingMessage) (wire.Message, error)
	SendPrivate(ctx context.Context, from relay.Sender, recipientID string, out wire.OutgoingMessage) (relay.PrivateDelivery, error)
	OfflineMessages(ctx context.Context, userID string) []wire.Message
	MarkDelivered(ctx context.Context, batch []wire.Message)
	SendFriendRequest(ctx context.Context, from relay.Sender, username string) (relay.RequestDelivery, error)
	PendingFriendRequests(ctx context.Context, userID string) []wire.FriendRequest
	AcceptFriendRequest(ctx context.Context, actor relay.Sender, requestID string) (relay.Acceptance, error)
	RejectFriendRequest(ctx context.Context, actor relay.Sender, requestID string) error
	FriendsList(ctx context.Context, userID string) ([]wire.Friend, error)
}

// Subscriber records friend-status subscriptions.
type Subscriber interface {
	Subscribe(userID, subscriberID string)
}

// Deps holds the narrow dependencies required by websocket handlers.
type Deps struct {
	members Membership
	relay   Relay
	subs    Subscriber
	now     func() time.Time
}

// NewDeps builds a dependency bundle for handler calls.
func NewDeps(members Membership, relay Relay, subs Subscriber, now func() time.Time) Deps {
	return Deps{
		members: members,
		relay:   relay,
		subs:    subs,
		now:     now,
	}
}

func (d Deps) Members() Membership       { return d.members }
func (d Deps) Relay() Relay              { return d.relay }
func (d Deps) Subscriptions() Subscriber { return d.subs }
func (d Deps) Now() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
