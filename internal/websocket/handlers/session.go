package handlers

import (
	"context"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Promoted builds everything a connection receives once its identity is
// resolved: the confirmation, the replayed join and buffered window state,
// then the offline message and friend request batches.
func Promoted(ctx context.Context, deps Deps, auth AuthContext, promo membership.Promotion) EventResult {
	r := successResult()
	r.emit(emitSelf(auth, wire.EventAuthenticated, wire.AuthenticatedPayload{
		UserID:   promo.Identity.UserID,
		Username: promo.Identity.Username,
		PlayerID: auth.SocketID(),
		DextopID: promo.Identity.UserID,
	}))
	if promo.Join != nil {
		jr := *promo.Join
		if promo.Desktop != nil && !promo.Desktop.Buffered {
			// The joiner sees the flushed snapshot right away.
			jr.Snapshot = promo.Desktop.Snapshot
		}
		joinResult(&r, auth, jr)
	}
	if promo.Desktop != nil {
		desktopResult(&r, auth, *promo.Desktop)
	}
	batch := deps.Relay().OfflineMessages(ctx, promo.Identity.UserID)
	offline := emitSelf(auth, wire.EventOfflineMessages, wire.OfflineMessagesPayload{Messages: batch})
	if len(batch) > 0 {
		rel := deps.Relay()
		offline = offline.whenSent(func(ctx context.Context) { rel.MarkDelivered(ctx, batch) })
	}
	r.emit(offline)
	r.emit(emitSelf(auth, wire.EventOfflineFriendRequests, wire.OfflineFriendRequestsPayload{
		Requests: deps.Relay().PendingFriendRequests(ctx, promo.Identity.UserID),
	}))
	r.changed(promo.Identity.UserID)
	return r
}

// Disconnect drops the caller's connection and notifies its context.
func Disconnect(ctx context.Context, deps Deps, auth AuthContext) EventResult {
	var r EventResult
	departureResult(&r, deps.Members().Disconnect(auth.SocketID()))
	r.changed(auth.UserID())
	return r
}

// Heartbeat refreshes the caller's presence timestamp. Any payload is
// accepted.
func Heartbeat(ctx context.Context, deps Deps, auth AuthContext, _ any) EventResult {
	if err := deps.Members().Heartbeat(auth.SocketID()); err != nil {
		return errorResult(err)
	}
	return successResult()
}
