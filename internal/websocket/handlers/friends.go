package handlers

import (
	"context"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/pkg/wire"
)

// FriendRequest sends a friend request by username. Online recipients get
// it live; offline ones on their next connect.
func FriendRequest(ctx context.Context, deps Deps, auth AuthContext, req wire.SendFriendRequestPayload) EventResult {
	if !auth.Authenticated() {
		return errorResult(membership.ErrAuthRequired)
	}
	d, err := deps.Relay().SendFriendRequest(ctx, auth.sender(), req.Username)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	r.emit(emitTo(d.RecipientConns, wire.EventFriendRequest, d.Request))
	return r
}

// AcceptFriendRequest accepts a pending request. Both parties get the new
// friend and their refreshed list.
func AcceptFriendRequest(ctx context.Context, deps Deps, auth AuthContext, req wire.FriendRequestActionPayload) EventResult {
	if !auth.Authenticated() {
		return errorResult(membership.ErrAuthRequired)
	}
	a, err := deps.Relay().AcceptFriendRequest(ctx, auth.sender(), req.RequestID)
	if err != nil {
		return errorResult(err)
	}
	r := successResult()
	r.emit(
		emitTo(a.SenderConns, wire.EventFriendRequestAccepted, a.ForSender),
		emitTo(a.SenderConns, wire.EventFriendStatusUpdate, wire.FriendStatusPayload{Friends: a.ForSender.FriendsList}),
		emitTo(a.RecipientConns, wire.EventFriendRequestAccepted, a.ForRecipient),
		emitTo(a.RecipientConns, wire.EventFriendStatusUpdate, wire.FriendStatusPayload{Friends: a.ForRecipient.FriendsList}),
	)
	return r
}

// RejectFriendRequest rejects a pending request. The sender is not told.
func RejectFriendRequest(ctx context.Context, deps Deps, auth AuthContext, req wire.FriendRequestActionPayload) EventResult {
	if !auth.Authenticated() {
		return errorResult(membership.ErrAuthRequired)
	}
	if err := deps.Relay().RejectFriendRequest(ctx, auth.sender(), req.RequestID); err != nil {
		return errorResult(err)
	}
	return successResult()
}

// GetFriendsList replies with the caller's friends and subscribes the
// socket to future status pushes.
func GetFriendsList(ctx context.Context, deps Deps, auth AuthContext, _ struct{}) EventResult {
	if !auth.Authenticated() {
		return errorResult(membership.ErrAuthRequired)
	}
	if subs := deps.Subscriptions(); subs != nil {
		subs.Subscribe(auth.UserID(), auth.SocketID())
	}
	friends, err := deps.Relay().FriendsList(ctx, auth.UserID())
	if err != nil {
		logger.Warnf("getFriendsList for %s: %v", auth.UserID(), err)
	}
	payload := wire.FriendStatusPayload{Friends: friends}
	return NewEventResult(wire.AckSuccess(), []Emission{emitSelf(auth, wire.EventFriendStatusUpdate, payload)})
}
