package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dextop-world/dextop/internal/api/middleware"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/reconcile"
	"github.com/dextop-world/dextop/pkg/types"
	"github.com/dextop-world/dextop/pkg/wire"
)

// LiveDextops exposes the in-memory dextop sessions.
type LiveDextops interface {
	Snapshot(ref membership.ContextRef) (wire.DesktopSnapshot, bool)
	Visitors(ownerID string) []wire.Presence
}

// SnapshotStore is the durable side of dextop snapshots.
type SnapshotStore interface {
	AccountExists(ctx context.Context, userID string) (bool, error)
	LoadDextopSnapshot(ctx context.Context, userID string) (wire.DesktopSnapshot, bool, error)
}

type DextopHandler struct {
	live      LiveDextops
	store     SnapshotStore
	policy    membership.JoinPolicy
	sanitizer *reconcile.Sanitizer
}

func NewDextopHandler(live LiveDextops, store SnapshotStore, policy membership.JoinPolicy, sanitizer *reconcile.Sanitizer) *DextopHandler {
	if sanitizer == nil {
		sanitizer = reconcile.NewSanitizer(nil)
	}
	return &DextopHandler{live: live, store: store, policy: policy, sanitizer: sanitizer}
}

// SnapshotResponse is the body of GET /v1/dextops/:id/snapshot.
type SnapshotResponse struct {
	DextopID     string               `json:"dextopId"`
	Live         bool                 `json:"live"`
	Persisted    bool                 `json:"persisted"`
	DesktopState wire.DesktopSnapshot `json:"desktopState"`
}

// VisitorsResponse is the body of GET /v1/dextops/:id/visitors.
type VisitorsResponse struct {
	DextopID string          `json:"dextopId"`
	Visitors []wire.Presence `json:"visitors"`
}

// viewable reports whether the caller may look at ownerID's dextop. It
// writes the error response itself.
func (h *DextopHandler) viewable(c *gin.Context, ownerID string) bool {
	viewer, _ := middleware.GetUserID(c)
	if viewer != ownerID && h.policy != nil {
		if err := h.policy.AllowVisit(viewer, ownerID); err != nil {
			c.JSON(http.StatusForbidden, types.ErrorResponse{Error: "dextop not viewable"})
			return false
		}
	}
	exists, err := h.store.AccountExists(c.Request.Context(), ownerID)
	switch {
	case err != nil:
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load dextop"})
		return false
	case !exists:
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "dextop not found"})
		return false
	}
	return true
}

// GetSnapshot returns the live snapshot when the dextop has members and
// the persisted one otherwise.
func (h *DextopHandler) GetSnapshot(c *gin.Context) {
	ownerID := c.Param("id")
	if !h.viewable(c, ownerID) {
		return
	}

	resp := SnapshotResponse{DextopID: ownerID}
	if snap, ok := h.live.Snapshot(membership.DextopRef(ownerID)); ok {
		resp.Live = true
		resp.DesktopState = snap
	} else {
		snap, found, err := h.store.LoadDextopSnapshot(c.Request.Context(), ownerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to load dextop"})
			return
		}
		resp.Persisted = found
		resp.DesktopState = snap
		if !found {
			resp.DesktopState = wire.NewDesktopSnapshot()
		}
	}

	viewer, _ := middleware.GetUserID(c)
	if viewer != ownerID {
		resp.DesktopState = h.sanitizer.Sanitize(resp.DesktopState)
	}
	c.JSON(http.StatusOK, resp)
}

// ListVisitors returns the visitors currently in the dextop.
func (h *DextopHandler) ListVisitors(c *gin.Context) {
	ownerID := c.Param("id")
	if !h.viewable(c, ownerID) {
		return
	}
	visitors := h.live.Visitors(ownerID)
	if visitors == nil {
		visitors = []wire.Presence{}
	}
	c.JSON(http.StatusOK, VisitorsResponse{DextopID: ownerID, Visitors: visitors})
}
