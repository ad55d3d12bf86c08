package models

import (
	"context"
	"fmt"
	"strings"
)

// PrivateMessage is a private_messages row. CreatedAt is ms since epoch.
type PrivateMessage struct {
	Seq         int64
	ID          string
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
	CreatedAt   int64
	Delivered   bool
	Read        bool
}

const privateMessageColumns = `seq, id, sender_id, sender_name, recipient_id, content, created_at, delivered, read`

func scanPrivateMessage(row interface{ Scan(...any) error }) (PrivateMessage, error) {
	var m PrivateMessage
	var delivered, read int64
	err := row.Scan(&m.Seq, &m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Content, &m.CreatedAt, &delivered, &read)
	m.Delivered = delivered != 0
	m.Read = read != 0
	return m, err
}

type CreatePrivateMessageParams struct {
	ID          string
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
	CreatedAt   int64
	Delivered   bool
}

// CreatePrivateMessage stores a private message.
func (q *Queries) CreatePrivateMessage(ctx context.Context, arg CreatePrivateMessageParams) error {
	delivered := 0
	if arg.Delivered {
		delivered = 1
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO private_messages (id, sender_id, sender_name, recipient_id, content, created_at, delivered)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.SenderID, arg.SenderName, arg.RecipientID, arg.Content, arg.CreatedAt, delivered)
	return err
}

// ListUndeliveredMessages returns messages queued for recipientID in
// chronological order (ties broken by insertion order).
func (q *Queries) ListUndeliveredMessages(ctx context.Context, recipientID string) ([]PrivateMessage, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+privateMessageColumns+` FROM private_messages
WHERE recipient_id = ? AND delivered = 0
ORDER BY created_at ASC, seq ASC`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrivateMessages(rows)
}

// MarkMessagesDelivered flags the given message ids as delivered.
func (q *Queries) MarkMessagesDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE private_messages SET delivered = 1 WHERE id IN (%s)`, placeholders)
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

type ListConversationParams struct {
	UserID  string
	OtherID string
	Limit   int64
}

// ListConversation returns the most recent messages exchanged between two
// users, oldest first.
func (q *Queries) ListConversation(ctx context.Context, arg ListConversationParams) ([]PrivateMessage, error) {
	limit := arg.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT * FROM (
	SELECT `+privateMessageColumns+` FROM private_messages
	WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
	ORDER BY created_at DESC, seq DESC
	LIMIT ?
) ORDER BY created_at ASC, seq ASC`, arg.UserID, arg.OtherID, arg.OtherID, arg.UserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrivateMessages(rows)
}

// MarkConversationRead flags messages from otherID to userID as read.
func (q *Queries) MarkConversationRead(ctx context.Context, userID, otherID string) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE private_messages SET read = 1 WHERE recipient_id = ? AND sender_id = ?`, userID, otherID)
	return err
}

func collectPrivateMessages(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]PrivateMessage, error) {
	var out []PrivateMessage
	for rows.Next() {
		m, err := scanPrivateMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
