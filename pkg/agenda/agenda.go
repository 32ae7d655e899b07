// Package agenda persists promotion campaigns and their reply history.
//
// An agenda groups everything that happened for one prompt by one owner:
// the generated title and every reply posted on its behalf. The scheduler's
// reply handler appends here after each successful post.
package agenda

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agenda is one promotion campaign. Stance is the position the campaign
// argues for; it flavors query, classification and reply generation.
type Agenda struct {
	ID        string
	CreatedBy string
	Prompt    string
	Stance    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReplyRecord is one reply posted for an agenda.
type ReplyRecord struct {
	ID       int64
	AgendaID string
	TweetID  string
	ReplyID  string
	BotID    string
	Text     string
	PostedAt time.Time
}

// Store persists agendas and their reply history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the agenda tables if needed.
func NewStore(db *sql.DB) (*Store, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS agendas (
		id         TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		stance     TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(created_by, prompt)
	);
	CREATE TABLE IF NOT EXISTS agenda_replies (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		agenda_id TEXT NOT NULL REFERENCES agendas(id),
		tweet_id  TEXT NOT NULL,
		reply_id  TEXT NOT NULL,
		bot_id    TEXT NOT NULL,
		text      TEXT NOT NULL,
		posted_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agenda_replies_agenda ON agenda_replies(agenda_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create agenda tables: %w", err)
	}
	return &Store{db: db}, nil
}

// FindByID returns an agenda or nil when absent.
func (s *Store) FindByID(ctx context.Context, id string) (*Agenda, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_by, prompt, stance, title, created_at, updated_at
		FROM agendas WHERE id = ?`, id)
	return scanAgenda(row)
}

// FindOrCreate returns the agenda for (createdBy, prompt), creating it
// when none exists. The second return reports whether it was created.
// An existing agenda keeps its stored stance; the argument only applies
// on creation.
func (s *Store) FindOrCreate(ctx context.Context, createdBy, prompt, stance string) (*Agenda, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_by, prompt, stance, title, created_at, updated_at
		FROM agendas WHERE created_by = ? AND prompt = ?`, createdBy, prompt)
	existing, err := scanAgenda(row)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	a := &Agenda{
		ID:        uuid.NewString(),
		CreatedBy: createdBy,
		Prompt:    prompt,
		Stance:    stance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agendas (id, created_by, prompt, stance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedBy, a.Prompt, a.Stance, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create agenda: %w", err)
	}
	return a, true, nil
}

// SetTitle records the generated campaign title.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agendas SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set agenda title: %w", err)
	}
	return requireRow(res, id)
}

// Touch bumps the agenda's updated-at timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agendas SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch agenda: %w", err)
	}
	return requireRow(res, id)
}

// AppendReply appends a posted reply to the agenda's history.
func (s *Store) AppendReply(ctx context.Context, r *ReplyRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agenda_replies (agenda_id, tweet_id, reply_id, bot_id, text, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.AgendaID, r.TweetID, r.ReplyID, r.BotID, r.Text, r.PostedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append reply: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		r.ID = id
	}
	return s.Touch(ctx, r.AgendaID)
}

// Replies returns the agenda's reply history, oldest first.
func (s *Store) Replies(ctx context.Context, agendaID string) ([]ReplyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agenda_id, tweet_id, reply_id, bot_id, text, posted_at
		FROM agenda_replies WHERE agenda_id = ? ORDER BY id ASC`, agendaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load replies: %w", err)
	}
	defer rows.Close()

	var out []ReplyRecord
	for rows.Next() {
		var (
			r        ReplyRecord
			postedAt int64
		)
		if err := rows.Scan(&r.ID, &r.AgendaID, &r.TweetID, &r.ReplyID, &r.BotID, &r.Text, &postedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		r.PostedAt = time.Unix(postedAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanAgenda(row *sql.Row) (*Agenda, error) {
	var (
		a         Agenda
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&a.ID, &a.CreatedBy, &a.Prompt, &a.Stance, &a.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agenda: %w", err)
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("agenda %s not found", id)
	}
	return nil
}
