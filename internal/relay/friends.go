package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/pkg/wire"
)

// RequestDelivery routes a new friend request.
type RequestDelivery struct {
	Request wire.FriendRequest
	// RecipientConns is empty when the recipient is offline; the request
	// is then replayed from the pending list on their next connect.
	RecipientConns []string
}

// SendFriendRequest creates a pending request from sender to the user with
// the given username. Repeating a pending request returns the existing one.
func (r *Relay) SendFriendRequest(ctx context.Context, from Sender, username string) (RequestDelivery, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return RequestDelivery{}, fmt.Errorf("empty username: %w", ErrInvalidRequest)
	}
	to, err := r.store.AccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RequestDelivery{}, ErrUserNotFound
		}
		return RequestDelivery{}, storeErr("lookup username", err)
	}
	if to.ID == from.UserID {
		return RequestDelivery{}, fmt.Errorf("cannot befriend yourself: %w", ErrInvalidRequest)
	}

	friends, err := r.store.AreFriends(ctx, from.UserID, to.ID)
	if err != nil {
		return RequestDelivery{}, storeErr("check friendship", err)
	}
	if friends {
		return RequestDelivery{}, ErrAlreadyFriends
	}

	req, found, err := r.store.PendingFriendRequest(ctx, from.UserID, to.ID)
	if err != nil {
		return RequestDelivery{}, storeErr("check pending request", err)
	}
	if !found {
		req = wire.FriendRequest{
			ID:           r.newID(),
			FromUserID:   from.UserID,
			FromUsername: from.Username,
			ToUserID:     to.ID,
			Status:       wire.FriendRequestPending,
			CreatedAt:    r.now().UnixMilli(),
		}
		if err := r.store.CreateFriendRequest(ctx, req); err != nil {
			return RequestDelivery{}, storeErr("create friend request", err)
		}
	}
	req.FromUsername = from.Username

	return RequestDelivery{
		Request:        req,
		RecipientConns: r.presence.UserConnections(to.ID),
	}, nil
}

// PendingFriendRequests returns every pending request addressed to userID,
// oldest first. Store failures degrade to an empty list.
func (r *Relay) PendingFriendRequests(ctx context.Context, userID string) []wire.FriendRequest {
	reqs, err := r.store.PendingFriendRequests(ctx, userID)
	if err != nil {
		logger.Warnf("relay: pending requests for %s: %v", userID, storeErr("list pending", err))
		return []wire.FriendRequest{}
	}
	if reqs == nil {
		reqs = []wire.FriendRequest{}
	}
	return reqs
}

// Acceptance is what both parties of an accepted request receive.
type Acceptance struct {
	Request        wire.FriendRequest
	SenderConns    []string
	ForSender      wire.FriendRequestAcceptedPayload
	RecipientConns []string
	ForRecipient   wire.FriendRequestAcceptedPayload
}

// AcceptFriendRequest accepts a pending request addressed to actor, creates
// the symmetric friendship and returns refreshed lists for both sides.
func (r *Relay) AcceptFriendRequest(ctx context.Context, actor Sender, requestID string) (Acceptance, error) {
	req, err := r.pendingFor(ctx, actor.UserID, requestID)
	if err != nil {
		return Acceptance{}, err
	}

	ok, err := r.store.AcceptFriendRequest(ctx, req.ID, r.now())
	if err != nil {
		return Acceptance{}, storeErr("accept friend request", err)
	}
	if !ok {
		return Acceptance{}, ErrRequestNotFound
	}
	req.Status = wire.FriendRequestAccepted
	req.RespondedAt = r.now().UnixMilli()

	senderList, err := r.FriendsList(ctx, req.FromUserID)
	if err != nil {
		logger.Warnf("relay: friends list for %s: %v", req.FromUserID, err)
	}
	recipientList, err := r.FriendsList(ctx, actor.UserID)
	if err != nil {
		logger.Warnf("relay: friends list for %s: %v", actor.UserID, err)
	}

	return Acceptance{
		Request:     req,
		SenderConns: r.presence.UserConnections(req.FromUserID),
		ForSender: wire.FriendRequestAcceptedPayload{
			Friend:      findFriend(senderList, actor.UserID, actor.Username),
			FriendsList: senderList,
		},
		RecipientConns: r.presence.UserConnections(actor.UserID),
		ForRecipient: wire.FriendRequestAcceptedPayload{
			Friend:      findFriend(recipientList, req.FromUserID, req.FromUsername),
			FriendsList: recipientList,
		},
	}, nil
}

// RejectFriendRequest rejects a pending request addressed to actor. The
// sender is not notified.
func (r *Relay) RejectFriendRequest(ctx context.Context, actor Sender, requestID string) error {
	req, err := r.pendingFor(ctx, actor.UserID, requestID)
	if err != nil {
		return err
	}
	ok, err := r.store.RejectFriendRequest(ctx, req.ID, r.now())
	if err != nil {
		return storeErr("reject friend request", err)
	}
	if !ok {
		return ErrRequestNotFound
	}
	return nil
}

func (r *Relay) pendingFor(ctx context.Context, userID, requestID string) (wire.FriendRequest, error) {
	if requestID == "" {
		return wire.FriendRequest{}, ErrRequestNotFound
	}
	req, err := r.store.FriendRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return wire.FriendRequest{}, ErrRequestNotFound
		}
		return wire.FriendRequest{}, storeErr("load friend request", err)
	}
	if req.ToUserID != userID || req.Status != wire.FriendRequestPending {
		return wire.FriendRequest{}, ErrRequestNotFound
	}
	return req, nil
}

// FriendsList returns userID's friends with live presence. On store
// failure it returns an empty list and the wrapped error.
func (r *Relay) FriendsList(ctx context.Context, userID string) ([]wire.Friend, error) {
	accounts, err := r.store.Friends(ctx, userID)
	if err != nil {
		return []wire.Friend{}, storeErr("list friends", err)
	}
	out := make([]wire.Friend, 0, len(accounts))
	for _, a := range accounts {
		online, dextop := r.presence.Location(a.ID)
		out = append(out, wire.Friend{
			UserID:   a.ID,
			Username: a.Username,
			Online:   online,
			DextopID: dextop,
		})
	}
	return out, nil
}

// findFriend picks the entry for userID from list, falling back to a
// minimal record when the list could not be loaded.
func findFriend(list []wire.Friend, userID, username string) wire.Friend {
	for _, f := range list {
		if f.UserID == userID {
			return f
		}
	}
	return wire.Friend{UserID: userID, Username: username}
}
