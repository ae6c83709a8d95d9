package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult reports a retention pass.
type CleanupResult struct {
	HistoryDeleted int64
	JobsDeleted    int64
	Duration       time.Duration
}

// TotalDeleted sums the deleted rows.
func (r CleanupResult) TotalDeleted() int64 {
	return r.HistoryDeleted + r.JobsDeleted
}

// Cleanup deletes history rows and finished jobs older than retentionDays
// in one transaction, then vacuums. Zero keeps everything.
//
// Example:
//
//	result, err := database.Cleanup(ctx, 30)
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	var result CleanupResult

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return result, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := fmt.Sprintf("-%d days", retentionDays)
	statements := []struct {
		query string
		count *int64
	}{
		{"DELETE FROM generation_history WHERE created_at < datetime('now', ?)", &result.HistoryDeleted},
		{"DELETE FROM jobs WHERE status IN ('completed', 'failed') AND created_at < datetime('now', ?)", &result.JobsDeleted},
	}
	for _, st := range statements {
		res, err := tx.ExecContext(ctx, st.query, cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to clean up: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to count deleted rows: %w", err)
		}
		*st.count = n
	}
	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	if result.TotalDeleted() > 0 {
		if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
			return result, fmt.Errorf("failed to vacuum: %w", err)
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}
