package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postforge/core"
)

// Repository is the sqlite HistoryRecorder. One row per finished run.
type Repository struct {
	db *Database
}

// NewRepository wraps database.
func NewRepository(database *Database) *Repository {
	return &Repository{db: database}
}

// Append inserts s. It is synchronous: a nil return means the row is stored.
func (r *Repository) Append(ctx context.Context, s core.ResultSummary) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if s.ID == "" {
		return fmt.Errorf("history summary needs an id")
	}

	query := `
		INSERT INTO generation_history (
			id, request_id, topic, status, caption, hashtag_count, model_used,
			image_provider, image_error, engine, image_path, error_message,
			duration_ms, requested_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.exec(ctx, query,
		s.ID,
		s.RequestID,
		s.Topic,
		s.Status,
		s.Caption,
		s.HashtagCount,
		s.ModelUsed,
		s.ImageProvider,
		s.ImageError,
		string(s.Engine),
		s.ImagePath,
		s.ErrorMessage,
		s.DurationMs,
		formatTime(s.RequestedAt),
		formatTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation history: %w", err)
	}
	return nil
}

const historyColumns = `
	id, request_id, topic, status, COALESCE(caption, ''), COALESCE(hashtag_count, 0),
	COALESCE(model_used, ''), COALESCE(image_provider, ''), COALESCE(image_error, ''),
	COALESCE(engine, ''), COALESCE(image_path, ''), COALESCE(error_message, ''),
	COALESCE(duration_ms, 0), requested_at, completed_at`

// Recent returns the newest summaries first. limit defaults to 20.
func (r *Repository) Recent(ctx context.Context, limit int) ([]core.ResultSummary, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.query(ctx, "SELECT"+historyColumns+" FROM generation_history ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation history: %w", err)
	}
	defer rows.Close()

	var summaries []core.ResultSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation history rows: %w", err)
	}
	return summaries, nil
}

// Get returns the summary with id, or an error wrapping core.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (core.ResultSummary, error) {
	if r.db == nil {
		return core.ResultSummary{}, fmt.Errorf("database connection is nil")
	}
	rows, err := r.db.query(ctx, "SELECT"+historyColumns+" FROM generation_history WHERE id = ?", id)
	if err != nil {
		return core.ResultSummary{}, fmt.Errorf("failed to query generation history: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.ResultSummary{}, err
		}
		return core.ResultSummary{}, fmt.Errorf("history %s: %w", id, core.ErrNotFound)
	}
	return scanSummary(rows)
}

func scanSummary(rows *sql.Rows) (core.ResultSummary, error) {
	var (
		s                      core.ResultSummary
		engine                 string
		requestedAt, completed string
	)
	err := rows.Scan(
		&s.ID,
		&s.RequestID,
		&s.Topic,
		&s.Status,
		&s.Caption,
		&s.HashtagCount,
		&s.ModelUsed,
		&s.ImageProvider,
		&s.ImageError,
		&engine,
		&s.ImagePath,
		&s.ErrorMessage,
		&s.DurationMs,
		&requestedAt,
		&completed,
	)
	if err != nil {
		return core.ResultSummary{}, fmt.Errorf("failed to scan generation history row: %w", err)
	}
	s.Engine = core.Engine(engine)
	s.RequestedAt = parseTime(requestedAt)
	s.CompletedAt = parseTime(completed)
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsNotFound reports whether err wraps core.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
