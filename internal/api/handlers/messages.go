package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dextop-world/dextop/internal/api/middleware"
	"github.com/dextop-world/dextop/pkg/types"
	"github.com/dextop-world/dextop/pkg/wire"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryStore serves private message history.
type HistoryStore interface {
	AccountExists(ctx context.Context, userID string) (bool, error)
	Conversation(ctx context.Context, userID, otherID string, limit int) ([]wire.Message, error)
}

type MessagesHandler struct {
	store HistoryStore
}

func NewMessagesHandler(store HistoryStore) *MessagesHandler {
	return &MessagesHandler{store: store}
}

// GetConversation returns the latest private messages between the caller
// and :userId, oldest first. Messages may also have arrived in an offline
// batch; clients de-duplicate by message id.
func (h *MessagesHandler) GetConversation(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	otherID := c.Param("userId")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx := c.Request.Context()
	exists, err := h.store.AccountExists(ctx, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load messages"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "user not found"})
		return
	}

	messages, err := h.store.Conversation(ctx, userID, otherID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
