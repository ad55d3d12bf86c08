package runtime

import (
	"context"

	"github.com/dextop-world/dextop/internal/logger"
)

func (r *keyRuntime) handleSnapshot(e snapshotEvent) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	owner, snap := r.takePendingSnapshot()
	if snap == nil {
		return
	}
	if err := r.store.SaveDextopSnapshot(ctx, owner, *snap); err != nil {
		logger.Errorf("[runtime] snapshot persist error uid=%s: %v", owner, err)
		return
	}
	logger.Tracef("[runtime] saved snapshot uid=%s windows=%d", owner, len(snap.Programs))
}
