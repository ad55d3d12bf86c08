// Package store adapts the sqlite query layer to the interfaces of the
// membership, relay and runtime packages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/models"
	"github.com/dextop-world/dextop/internal/relay"
	sessionruntime "github.com/dextop-world/dextop/internal/session/runtime"
	"github.com/dextop-world/dextop/pkg/wire"
)

// SQLStore implements the durable store on top of models.Queries.
type SQLStore struct {
	db *sql.DB
	q  *models.Queries
}

var (
	_ relay.Store          = (*SQLStore)(nil)
	_ membership.Store     = (*SQLStore)(nil)
	_ sessionruntime.Store = (*SQLStore)(nil)
)

// New wraps an open database.
func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: models.New(db)}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return relay.ErrNotFound
	}
	return err
}

func toAccount(a models.Account) relay.Account {
	return relay.Account{ID: a.ID, Username: a.Username, ChatColor: a.ChatColor.String}
}

// EnsureAccount records an identity seen in a verified token.
func (s *SQLStore) EnsureAccount(ctx context.Context, userID, username string) error {
	if username == "" {
		username = userID
	}
	return s.q.UpsertAccount(ctx, models.UpsertAccountParams{ID: userID, Username: username})
}

func (s *SQLStore) AccountByID(ctx context.Context, id string) (relay.Account, error) {
	a, err := s.q.GetAccountByID(ctx, id)
	if err != nil {
		return relay.Account{}, notFound(err)
	}
	return toAccount(a), nil
}

func (s *SQLStore) AccountByUsername(ctx context.Context, username string) (relay.Account, error) {
	a, err := s.q.GetAccountByUsername(ctx, username)
	if err != nil {
		return relay.Account{}, notFound(err)
	}
	return toAccount(a), nil
}

// AccountExists satisfies membership.Store.
func (s *SQLStore) AccountExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.q.GetAccountByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) LoadDextopSnapshot(ctx context.Context, userID string) (wire.DesktopSnapshot, bool, error) {
	return s.q.LoadDextopSnapshot(ctx, userID)
}

func (s *SQLStore) SaveDextopSnapshot(ctx context.Context, userID string, snap wire.DesktopSnapshot) error {
	return s.q.SaveDextopSnapshot(ctx, userID, snap, time.Now())
}

func (s *SQLStore) SavePrivateMessage(ctx context.Context, msg wire.Message, delivered bool) error {
	return s.q.CreatePrivateMessage(ctx, models.CreatePrivateMessageParams{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		RecipientID: msg.RecipientID,
		Content:     msg.Content,
		CreatedAt:   msg.Timestamp,
		Delivered:   delivered,
	})
}

func toMessage(m models.PrivateMessage) wire.Message {
	return wire.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.CreatedAt,
		Kind:        wire.MessagePrivate,
		Read:        m.Read,
	}
}

func (s *SQLStore) UndeliveredMessages(ctx context.Context, recipientID string) ([]wire.Message, error) {
	rows, err := s.q.ListUndeliveredMessages(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (s *SQLStore) MarkDelivered(ctx context.Context, ids []string) error {
	return s.q.MarkMessagesDelivered(ctx, ids)
}

// Conversation returns the latest messages between two users, oldest first,
// and marks the ones addressed to userID as read.
func (s *SQLStore) Conversation(ctx context.Context, userID, otherID string, limit int) ([]wire.Message, error) {
	rows, err := s.q.ListConversation(ctx, models.ListConversationParams{UserID: userID, OtherID: otherID, Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	if err := s.q.MarkConversationRead(ctx, userID, otherID); err != nil {
		return nil, err
	}
	out := make([]wire.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (s *SQLStore) toFriendRequest(ctx context.Context, r models.FriendRequest) wire.FriendRequest {
	out := wire.FriendRequest{
		ID:         r.ID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		Status:     wire.FriendRequestStatus(r.Status),
		CreatedAt:  r.CreatedAt.UnixMilli(),
	}
	if r.RespondedAt.Valid {
		out.RespondedAt = r.RespondedAt.Time.UnixMilli()
	}
	if a, err := s.q.GetAccountByID(ctx, r.FromUserID); err == nil {
		out.FromUsername = a.Username
	}
	return out
}

func (s *SQLStore) CreateFriendRequest(ctx context.Context, req wire.FriendRequest) error {
	return s.q.CreateFriendRequest(ctx, models.CreateFriendRequestParams{
		ID:         req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		CreatedAt:  time.UnixMilli(req.CreatedAt),
	})
}

func (s *SQLStore) FriendRequest(ctx context.Context, id string) (wire.FriendRequest, error) {
	r, err := s.q.GetFriendRequest(ctx, id)
	if err != nil {
		return wire.FriendRequest{}, notFound(err)
	}
	return s.toFriendRequest(ctx, r), nil
}

func (s *SQLStore) PendingFriendRequest(ctx context.Context, fromUserID, toUserID string) (wire.FriendRequest, bool, error) {
	r, err := s.q.FindPendingFriendRequest(ctx, fromUserID, toUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.FriendRequest{}, false, nil
	}
	if err != nil {
		return wire.FriendRequest{}, false, err
	}
	return s.toFriendRequest(ctx, r), true, nil
}

func (s *SQLStore) PendingFriendRequests(ctx context.Context, toUserID string) ([]wire.FriendRequest, error) {
	rows, err := s.q.ListPendingFriendRequests(ctx, toUserID)
	if err != nil {
		return nil, err
	}
	out := make([]wire.FriendRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toFriendRequest(ctx, r))
	}
	return out, nil
}

func (s *SQLStore) AcceptFriendRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	qtx := s.q.WithTx(tx)
	n, err := qtx.UpdateFriendRequestStatus(ctx, models.UpdateFriendRequestStatusParams{
		ID: id, Status: string(wire.FriendRequestAccepted), RespondedAt: at,
	})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	r, err := qtx.GetFriendRequest(ctx, id)
	if err != nil {
		return false, err
	}
	if err := qtx.CreateFriendship(ctx, r.FromUserID, r.ToUserID); err != nil {
		return false, fmt.Errorf("create friendship: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) RejectFriendRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.q.UpdateFriendRequestStatus(ctx, models.UpdateFriendRequestStatusParams{
		ID: id, Status: string(wire.FriendRequestRejected), RespondedAt: at,
	})
	return n > 0, err
}

func (s *SQLStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	return s.q.AreFriends(ctx, a, b)
}

func (s *SQLStore) Friends(ctx context.Context, userID string) ([]relay.Account, error) {
	rows, err := s.q.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]relay.Account, 0, len(rows))
	for _, a := range rows {
		out = append(out, toAccount(a))
	}
	return out, nil
}
