package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dextop-world/dextop/internal/api/middleware"
	"github.com/dextop-world/dextop/pkg/types"
	"github.com/dextop-world/dextop/pkg/wire"
)

// FriendsSource is the part of the relay the friends endpoints read.
type FriendsSource interface {
	FriendsList(ctx context.Context, userID string) ([]wire.Friend, error)
	PendingFriendRequests(ctx context.Context, userID string) []wire.FriendRequest
}

type FriendsHandler struct {
	friends FriendsSource
}

func NewFriendsHandler(friends FriendsSource) *FriendsHandler {
	return &FriendsHandler{friends: friends}
}

// ListFriends returns the caller's friends with their online status.
func (h *FriendsHandler) ListFriends(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	friends, err := h.friends.FriendsList(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to list friends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListRequests returns the pending friend requests addressed to the caller.
// Reading them does not consume the offline batch.
func (h *FriendsHandler) ListRequests(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	c.JSON(http.StatusOK, gin.H{"requests": h.friends.PendingFriendRequests(c.Request.Context(), userID)})
}
