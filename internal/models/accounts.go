package models

import (
	"context"
	"database/sql"
	"time"
)

// Account is a user account row. Accounts are provisioned by the external
// identity service; the server only reads them (and upserts on first sight).
type Account struct {
	ID          string
	Username    string
	DisplayName sql.NullString
	ChatColor   sql.NullString
	CreatedAt   time.Time
}

const accountColumns = `id, username, display_name, chat_color, created_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &a.ChatColor, &a.CreatedAt)
	return a, err
}

// GetAccountByID returns the account with the given id.
func (q *Queries) GetAccountByID(ctx context.Context, id string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

// GetAccountByUsername returns the account with the given username.
func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ? COLLATE NOCASE`, username))
}

type UpsertAccountParams struct {
	ID          string
	Username    string
	DisplayName sql.NullString
}

// UpsertAccount records an account seen in a verified token. An existing
// username is kept.
func (q *Queries) UpsertAccount(ctx context.Context, arg UpsertAccountParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO accounts (id, username, display_name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET display_name = COALESCE(excluded.display_name, accounts.display_name)`,
		arg.ID, arg.Username, arg.DisplayName)
	return err
}
