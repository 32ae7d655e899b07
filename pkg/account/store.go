package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"xpromo/pkg/quota"
)

// Store is the persistence boundary for accounts. The dispatcher writes
// usage and lock state synchronously through it so concurrent dispatch
// invocations observe up-to-date locks.
type Store interface {
	// FindAll returns every account, including track-only and locked ones.
	FindAll(ctx context.Context) ([]Account, error)

	// FindByID returns the account with the given bot ID, or nil when absent.
	FindByID(ctx context.Context, botID string) (*Account, error)

	// Upsert inserts or fully replaces the account record.
	Upsert(ctx context.Context, a *Account) error

	// RecordUse increments the usage counter for the operation class and
	// stamps the last-used time.
	RecordUse(ctx context.Context, botID string, op quota.OpClass, at time.Time) error

	// SetLock overwrites the runtime lock-until timestamp for the class.
	SetLock(ctx context.Context, botID string, op quota.OpClass, until time.Time) error
}

// SQLiteStore implements Store on a shared SQLite handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore creates the accounts table if needed and returns the store.
func NewStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			bot_id              TEXT PRIMARY KEY,
			role                TEXT NOT NULL DEFAULT 'all',
			api_key             TEXT NOT NULL,
			api_secret          TEXT NOT NULL,
			bearer_token        TEXT NOT NULL,
			access_token        TEXT NOT NULL,
			access_token_secret TEXT NOT NULL,
			plan                TEXT NOT NULL DEFAULT '',
			monthly_reset       INTEGER,
			next_fetch_reset    INTEGER,
			next_reply_reset    INTEGER,
			fetch_count         INTEGER NOT NULL DEFAULT 0,
			reply_count         INTEGER NOT NULL DEFAULT 0,
			last_used_at        INTEGER,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const accountColumns = `
	bot_id, role, api_key, api_secret, bearer_token,
	access_token, access_token_secret, plan,
	monthly_reset, next_fetch_reset, next_reply_reset,
	fetch_count, reply_count, last_used_at, created_at, updated_at`

// FindAll returns every account ordered by bot ID for stable rotation.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY bot_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// FindByID returns one account or nil when it does not exist.
func (s *SQLiteStore) FindByID(ctx context.Context, botID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE bot_id = ?`, botID)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Upsert inserts or replaces the full account record. CreatedAt is
// preserved for existing rows.
func (s *SQLiteStore) Upsert(ctx context.Context, a *Account) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot_id) DO UPDATE SET
			role = excluded.role,
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			bearer_token = excluded.bearer_token,
			access_token = excluded.access_token,
			access_token_secret = excluded.access_token_secret,
			plan = excluded.plan,
			monthly_reset = excluded.monthly_reset,
			updated_at = excluded.updated_at`,
		a.BotID, string(a.Role), a.APIKey, a.APISecret, a.BearerToken,
		a.AccessToken, a.AccessTokenSecret, a.Plan,
		unixPtr(a.MonthlyReset), unixPtr(a.NextFetchReset), unixPtr(a.NextReplyReset),
		a.FetchCount, a.ReplyCount, unixPtr(a.LastUsedAt),
		a.CreatedAt.Unix(), a.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", a.BotID, err)
	}

	return nil
}

// RecordUse bumps the per-class usage counter and stamps last-used.
func (s *SQLiteStore) RecordUse(ctx context.Context, botID string, op quota.OpClass, at time.Time) error {
	counter := "fetch_count"
	if op == quota.Reply {
		counter = "reply_count"
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET `+counter+` = `+counter+` + 1, last_used_at = ?, updated_at = ? WHERE bot_id = ?`,
		at.Unix(), at.Unix(), botID)
	if err != nil {
		return fmt.Errorf("failed to record %s use for %s: %w", op, botID, err)
	}

	return requireRow(res, botID)
}

// SetLock overwrites the lock-until timestamp for the class.
func (s *SQLiteStore) SetLock(ctx context.Context, botID string, op quota.OpClass, until time.Time) error {
	column := "next_fetch_reset"
	if op == quota.Reply {
		column = "next_reply_reset"
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET `+column+` = ?, updated_at = ? WHERE bot_id = ?`,
		until.Unix(), time.Now().Unix(), botID)
	if err != nil {
		return fmt.Errorf("failed to lock %s for %s: %w", botID, op, err)
	}

	return requireRow(res, botID)
}

func requireRow(res sql.Result, botID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s not found", botID)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*Account, error) {
	var (
		a          Account
		role       string
		monthly    sql.NullInt64
		fetchReset sql.NullInt64
		replyReset sql.NullInt64
		lastUsed   sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(
		&a.BotID, &role, &a.APIKey, &a.APISecret, &a.BearerToken,
		&a.AccessToken, &a.AccessTokenSecret, &a.Plan,
		&monthly, &fetchReset, &replyReset,
		&a.FetchCount, &a.ReplyCount, &lastUsed, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Role = Role(role)
	a.MonthlyReset = timePtr(monthly)
	a.NextFetchReset = timePtr(fetchReset)
	a.NextReplyReset = timePtr(replyReset)
	a.LastUsedAt = timePtr(lastUsed)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

func unixPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
