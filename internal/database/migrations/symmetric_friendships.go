package migrations

import (
	"context"
	"database/sql"

	"github.com/dextop-world/dextop/internal/logger"
)

// SymmetrizeFriendships inserts the missing reverse row for every friendship
// edge stored in only one direction. Older imports wrote a single row per
// accepted request; friends lists expect both (a,b) and (b,a).
func SymmetrizeFriendships(db *sql.DB) error {
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, `
SELECT f.user_id, f.friend_id FROM friendships f
WHERE NOT EXISTS (
	SELECT 1 FROM friendships r WHERE r.user_id = f.friend_id AND r.friend_id = f.user_id
)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type edge struct {
		from string
		to   string
	}
	var edges []edge
	for rows.Next() {
		var e edge
		if err := rows.Scan(&e.from, &e.to); err != nil {
			return err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	logger.Infof("[Migration] Found %d one-directional friendship rows", len(edges))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO friendships (user_id, friend_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.to, e.from); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Infof("[Migration] Repaired %d friendships", len(edges))
	return nil
}
