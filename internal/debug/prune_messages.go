package debug

import (
	"context"
	"database/sql"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
)

// PruneDeliveredMessages deletes private messages that were delivered before
// the cutoff (dev-only helper).
func PruneDeliveredMessages(db *sql.DB, olderThan time.Duration) error {
	ctx := context.Background()
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := db.ExecContext(ctx, `DELETE FROM private_messages WHERE delivered = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n >= 0 {
		logger.Infof("[Debug] Pruned delivered private_messages rows: %d", n)
	}
	return nil
}
