package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postforge/core"
	"postforge/logging"
)

// JobRecord is the persisted snapshot of a tracked job. Result and Error
// hold JSON documents.
type JobRecord struct {
	ID          string
	Topic       string
	Status      string
	Percentage  int
	Step        string
	Message     string
	Result      string
	Error       string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// JobStore mirrors job snapshots into the jobs table. Progress updates are
// frequent, so Record queues them on an AsyncWriter; Save writes inline.
type JobStore struct {
	db     *Database
	writer *AsyncWriter[JobRecord]
	logger *logging.Logger
}

// NewJobStore starts the background writer.
func NewJobStore(database *Database, logger *logging.Logger) *JobStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &JobStore{db: database, logger: logger.Named("jobstore")}
	s.writer = NewAsyncWriter(DefaultChannelCapacity,
		func(rec JobRecord) error { return s.Save(context.Background(), rec) },
		func(rec JobRecord, err error) {
			s.logger.Warn("failed to persist job snapshot", zap.String("job_id", rec.ID), zap.Error(err))
		})
	s.writer.Start()
	return s
}

// Record queues rec. When the queue is full it is written inline.
func (s *JobStore) Record(rec JobRecord) {
	if s.writer.Write(rec) {
		return
	}
	if err := s.Save(context.Background(), rec); err != nil {
		s.logger.Warn("failed to persist job snapshot", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

// Save upserts rec.
func (s *JobStore) Save(ctx context.Context, rec JobRecord) error {
	query := `
		INSERT INTO jobs (id, topic, status, percentage, step, message, result, error, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			percentage = excluded.percentage,
			step = excluded.step,
			message = excluded.message,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at`

	_, err := s.db.exec(ctx, query,
		rec.ID, rec.Topic, rec.Status, rec.Percentage, rec.Step, rec.Message,
		rec.Result, rec.Error, formatTime(rec.SubmittedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads the job with id, or an error wrapping core.ErrNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (JobRecord, error) {
	rows, err := s.db.query(ctx, `
		SELECT id, topic, status, COALESCE(percentage, 0), COALESCE(step, ''), COALESCE(message, ''),
		       COALESCE(result, ''), COALESCE(error, ''), submitted_at, updated_at
		FROM jobs WHERE id = ?`, id)
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to query job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return JobRecord{}, err
		}
		return JobRecord{}, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}

	var (
		rec                  JobRecord
		submitted, updatedAt string
	)
	if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Status, &rec.Percentage, &rec.Step, &rec.Message,
		&rec.Result, &rec.Error, &submitted, &updatedAt); err != nil {
		return JobRecord{}, fmt.Errorf("failed to scan job row: %w", err)
	}
	rec.SubmittedAt = parseTime(submitted)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// Close drains queued snapshots.
func (s *JobStore) Close() error {
	if !s.writer.Stop(DefaultDrainTimeout) {
		return fmt.Errorf("job store: %d snapshots not written before timeout", s.writer.Pending())
	}
	return nil
}
