package models

import (
	"context"
	"database/sql"
	"time"
)

// FriendRequest is a friend_requests row.
type FriendRequest struct {
	ID          string
	FromUserID  string
	ToUserID    string
	Status      string
	CreatedAt   time.Time
	RespondedAt sql.NullTime
}

const friendRequestColumns = `id, from_user_id, to_user_id, status, created_at, responded_at`

func scanFriendRequest(row interface{ Scan(...any) error }) (FriendRequest, error) {
	var r FriendRequest
	err := row.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.Status, &r.CreatedAt, &r.RespondedAt)
	return r, err
}

type CreateFriendRequestParams struct {
	ID         string
	FromUserID string
	ToUserID   string
	CreatedAt  time.Time
}

// CreateFriendRequest inserts a pending request.
func (q *Queries) CreateFriendRequest(ctx context.Context, arg CreateFriendRequestParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO friend_requests (id, from_user_id, to_user_id, status, created_at) VALUES (?, ?, ?, 'pending', ?)`,
		arg.ID, arg.FromUserID, arg.ToUserID, arg.CreatedAt)
	return err
}

// GetFriendRequest returns a request by id.
func (q *Queries) GetFriendRequest(ctx context.Context, id string) (FriendRequest, error) {
	return scanFriendRequest(q.db.QueryRowContext(ctx, `SELECT `+friendRequestColumns+` FROM friend_requests WHERE id = ?`, id))
}

// FindPendingFriendRequest returns the pending request from -> to, if any.
func (q *Queries) FindPendingFriendRequest(ctx context.Context, fromUserID, toUserID string) (FriendRequest, error) {
	return scanFriendRequest(q.db.QueryRowContext(ctx, `
SELECT `+friendRequestColumns+` FROM friend_requests
WHERE from_user_id = ? AND to_user_id = ? AND status = 'pending'`, fromUserID, toUserID))
}

type UpdateFriendRequestStatusParams struct {
	ID          string
	Status      string
	RespondedAt time.Time
}

// UpdateFriendRequestStatus moves a pending request to a terminal status. It
// returns the number of rows changed (0 when the request was not pending).
func (q *Queries) UpdateFriendRequestStatus(ctx context.Context, arg UpdateFriendRequestStatusParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE friend_requests SET status = ?, responded_at = ? WHERE id = ? AND status = 'pending'`,
		arg.Status, arg.RespondedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPendingFriendRequests returns pending requests addressed to userID,
// oldest first.
func (q *Queries) ListPendingFriendRequests(ctx context.Context, toUserID string) ([]FriendRequest, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+friendRequestColumns+` FROM friend_requests
WHERE to_user_id = ? AND status = 'pending'
ORDER BY created_at ASC, id ASC`, toUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FriendRequest
	for rows.Next() {
		r, err := scanFriendRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateFriendship inserts both directions of a friendship edge.
func (q *Queries) CreateFriendship(ctx context.Context, userA, userB string) error {
	if _, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO friendships (user_id, friend_id) VALUES (?, ?)`, userA, userB); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO friendships (user_id, friend_id) VALUES (?, ?)`, userB, userA)
	return err
}

// AreFriends reports whether a friendship edge exists from a to b.
func (q *Queries) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM friendships WHERE user_id = ? AND friend_id = ?`, userA, userB).Scan(&n)
	return n > 0, err
}

// ListFriends returns the accounts befriended by userID, ordered by username.
func (q *Queries) ListFriends(ctx context.Context, userID string) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT a.id, a.username, a.display_name, a.chat_color, a.created_at
FROM friendships f JOIN accounts a ON a.id = f.friend_id
WHERE f.user_id = ?
ORDER BY a.username COLLATE NOCASE`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
