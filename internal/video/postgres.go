package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the table backing PostgresStore. Applied by EnsureSchema at
// startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS videos (
    id                 TEXT PRIMARY KEY,
    title              TEXT NOT NULL,
    owner_id           TEXT NOT NULL DEFAULT '',
    input_key          TEXT NOT NULL,
    output_key         TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL DEFAULT 'uploaded',
    duration_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
    processed_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    failure_reason     TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS videos_status_idx ON videos (status);
`

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool. Status
// transitions are enforced in the WHERE clause of each update, so two
// workers racing on the same redelivered job cannot both commit a terminal
// outcome.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure videos schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, v *Video) error {
	if v.Status == "" {
		v.Status = StatusUploaded
	}
	if !v.Status.valid() {
		return fmt.Errorf("create video %s: invalid status %q", v.ID, v.Status)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO videos (id, title, owner_id, input_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		v.ID, v.Title, v.OwnerID, v.InputKey, v.Status)
	if err := row.Scan(&v.CreatedAt, &v.UpdatedAt); err != nil {
		return fmt.Errorf("create video %s: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Video, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, owner_id, input_key, output_key, status,
		       duration_seconds, processed_duration, failure_reason,
		       created_at, updated_at
		FROM videos WHERE id = $1`, id)

	var v Video
	err := row.Scan(&v.ID, &v.Title, &v.OwnerID, &v.InputKey, &v.OutputKey, &v.Status,
		&v.DurationSeconds, &v.ProcessedDuration, &v.FailureReason,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get video %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return &v, nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, `
		UPDATE videos SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status IN ('uploaded', 'processing')`, id)
}

func (s *PostgresStore) SetDuration(ctx context.Context, id string, seconds float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE videos SET duration_seconds = $2, updated_at = now()
		WHERE id = $1`, id, seconds)
	if err != nil {
		return fmt.Errorf("set duration for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set duration for %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id, outputKey string, duration float64) error {
	return s.transition(ctx, id, `
		UPDATE videos
		SET status = 'processed', output_key = $2, processed_duration = $3,
		    failure_reason = '', updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, outputKey, duration)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, `
		UPDATE videos
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, clampReason(reason))
}

func (s *PostgresStore) Reset(ctx context.Context, id string) error {
	return s.transition(ctx, id, `
		UPDATE videos
		SET status = 'uploaded', failure_reason = '', output_key = '',
		    processed_duration = 0, updated_at = now()
		WHERE id = $1 AND status IN ('failed', 'uploaded')`, id)
}

// transition runs a guarded status update. Zero rows affected means either
// the record is gone or the guard rejected the move; the two are
// distinguished with a follow-up read.
func (s *PostgresStore) transition(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("update video %s: %w", id, ErrInvalidTransition)
}
