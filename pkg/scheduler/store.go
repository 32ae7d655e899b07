package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// JobStore persists scheduled jobs.
type JobStore interface {
	// Insert persists a new pending job
	Insert(ctx context.Context, job *Job) error

	// FindByID returns a job or nil when absent
	FindByID(ctx context.Context, id string) (*Job, error)

	// ClaimDue atomically moves due pending jobs to firing and returns
	// the claimed set. A job claimed by one sweep is invisible to the
	// next, which is what bounds firing to at most once per job while
	// the process lives.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// MarkDone finalizes a fired job
	MarkDone(ctx context.Context, id string, firedAt time.Time) error

	// MarkFailed records a handler failure; the job stays failed
	MarkFailed(ctx context.Context, id string, firedAt time.Time, cause string) error

	// RecoverFiring returns jobs stuck in firing to pending. Called once
	// at startup: a crash mid-fire may cause a re-fire.
	RecoverFiring(ctx context.Context) (int64, error)
}

// SQLiteJobStore implements JobStore on a SQLite database. Timestamps
// are stored as unix milliseconds.
type SQLiteJobStore struct {
	db *sql.DB
}

// NewStore creates the jobs table if needed and returns a store over db.
func NewStore(db *sql.DB) (*SQLiteJobStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		action     TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '{}',
		due_at     INTEGER NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending',
		last_error TEXT NOT NULL DEFAULT '',
		fired_at   INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_due ON jobs(status, due_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &SQLiteJobStore{db: db}, nil
}

func (s *SQLiteJobStore) Insert(ctx context.Context, job *Job) error {
	payload := job.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, action, payload, due_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Action, string(payload), job.DueAt.UnixMilli(), string(StatusPending), job.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteJobStore) FindByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, action, payload, due_at, status, last_error, fired_at, created_at
		FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, payload, due_at, status, last_error, fired_at, created_at
		FROM jobs
		WHERE status = ? AND due_at <= ?
		ORDER BY due_at ASC
		LIMIT ?`,
		string(StatusPending), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	var candidates []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		candidates = append(candidates, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due jobs: %w", err)
	}

	// The conditional update is the claim: a row another sweep already
	// moved out of pending is silently skipped.
	var claimed []Job
	for _, job := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ? WHERE id = ? AND status = ?`,
			string(StatusFiring), job.ID, string(StatusPending),
		)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		if n == 1 {
			job.Status = StatusFiring
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (s *SQLiteJobStore) MarkDone(ctx context.Context, id string, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, fired_at = ?, last_error = '' WHERE id = ?`,
		string(StatusDone), firedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", id, err)
	}
	return nil
}

func (s *SQLiteJobStore) MarkFailed(ctx context.Context, id string, firedAt time.Time, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, fired_at = ?, last_error = ? WHERE id = ?`,
		string(StatusFailed), firedAt.UnixMilli(), cause, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

func (s *SQLiteJobStore) RecoverFiring(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE status = ?`,
		string(StatusPending), string(StatusFiring),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover firing jobs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job       Job
		payload   string
		dueAt     int64
		status    string
		firedAt   sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&job.ID, &job.Action, &payload, &dueAt, &status, &job.LastError, &firedAt, &createdAt); err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	job.DueAt = time.UnixMilli(dueAt).UTC()
	job.Status = Status(status)
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	if firedAt.Valid {
		t := time.UnixMilli(firedAt.Int64).UTC()
		job.FiredAt = &t
	}
	return &job, nil
}
