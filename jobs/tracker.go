// Package jobs runs post generations in the background and tracks their
// progress for polling.
//
// Submit validates and enqueues a request and returns at once. A fixed pool
// of workers runs queued jobs through a Runner with a context detached from
// the submitting request. Job state lives in memory and is mirrored to a
// Store when one is configured, so Poll still answers after a restart.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/db"
	"postforge/logging"
	"postforge/pipeline"
)

// Status is the coarse lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CodeRejected marks a job the queue refused.
const CodeRejected = "JOB_REJECTED"

// Progress is the last reported pipeline step.
type Progress struct {
	Percentage int    `json:"percentage"`
	Step       string `json:"step"`
	Message    string `json:"message"`
}

// Job is a point-in-time view of a submitted request.
type Job struct {
	ID          string                     `json:"id"`
	Topic       string                     `json:"topic"`
	Status      Status                     `json:"status"`
	Progress    Progress                   `json:"progress"`
	Result      *core.PostGenerationResult `json:"result,omitempty"`
	Error       *core.ErrorPayload         `json:"error,omitempty"`
	SubmittedAt time.Time                  `json:"submittedAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// Runner executes one request. *pipeline.Orchestrator implements it.
type Runner interface {
	GeneratePostWithProgress(ctx context.Context, req core.GenerationRequest, progress pipeline.ProgressFunc) (*core.PostGenerationResult, error)
}

// Store mirrors job snapshots. *db.JobStore implements it.
type Store interface {
	Record(rec db.JobRecord)
	Get(ctx context.Context, id string) (db.JobRecord, error)
}

// Observer receives job lifecycle events. The metrics package implements it.
type Observer interface {
	ObserveJob(status string, elapsed time.Duration)
	SetQueueDepth(depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(string, time.Duration) {}
func (nopObserver) SetQueueDepth(int)                {}

// Config sizes the pool.
type Config struct {
	// Workers is the number of concurrent jobs. Zero or less means 1.
	Workers    int
	// QueueSize bounds jobs waiting for a worker.
	QueueSize  int
	// JobTimeout bounds one run. Zero means no limit.
	JobTimeout time.Duration
	// Retention is how long finished jobs stay in memory.
	Retention  time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 100, JobTimeout: 10 * time.Minute, Retention: time.Hour}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore mirrors snapshots to s.
func WithStore(s Store) Option { return func(t *Tracker) { t.store = s } }

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) Option { return func(t *Tracker) { t.observer = o } }

// WithListener calls fn with every snapshot change, after it is mirrored.
// fn runs on the updating goroutine and must not block.
func WithListener(fn func(Job)) Option {
	return func(t *Tracker) { t.listeners = append(t.listeners, fn) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(t *Tracker) { t.logger = l } }

type entry struct {
	job     Job
	request core.GenerationRequest
}

// Tracker is the JobTracker. Safe for concurrent use.
type Tracker struct {
	runner   Runner
	cfg      Config
	queue    *queue
	store    Store
	observer Observer
	logger   *logging.Logger
	validate *validator.Validate
	now      func() time.Time

	listeners []func(Job)

	mu   sync.RWMutex
	jobs map[string]*entry

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a Tracker. Call Start before submitting.
func New(runner Runner, cfg Config, opts ...Option) *Tracker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		runner:   runner,
		cfg:      cfg,
		queue:    newQueue(cfg.QueueSize),
		observer: nopObserver{},
		logger:   logging.NewNop(),
		validate: core.NewValidator(),
		now:      time.Now,
		jobs:     make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("jobs")
	return t
}

// Start launches the workers. Calling it more than once has no effect.
func (t *Tracker) Start() {
	t.startOnce.Do(func() {
		t.logger.Info("starting job workers", zap.Int("workers", t.cfg.Workers), zap.Int("queue_size", t.cfg.QueueSize))
		for i := 0; i < t.cfg.Workers; i++ {
			t.wg.Add(1)
			go t.worker(i)
		}
	})
}

// Submit validates req and queues it. The returned id is used with Poll.
func (t *Tracker) Submit(req core.GenerationRequest) (string, error) {
	if err := core.ValidateStruct(t.validate, req); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if req.RequestID == "" {
		req.RequestID = id
	}
	now := t.now()
	e := &entry{
		request: req,
		job: Job{
			ID:          id,
			Topic:       req.Topic,
			Status:      StatusPending,
			Progress:    Progress{Step: string(pipeline.StateRequested), Message: "queued"},
			SubmittedAt: now,
			UpdatedAt:   now,
		},
	}

	t.mu.Lock()
	t.prune(now)
	t.jobs[id] = e
	pending := e.job
	t.mu.Unlock()
	t.mirror(pending)
	t.notify(pending)

	if err := t.queue.enqueue(id); err != nil {
		t.mu.Lock()
		delete(t.jobs, id)
		t.mu.Unlock()
		rejected := pending
		rejected.Status = StatusFailed
		rejected.Error = &core.ErrorPayload{Code: CodeRejected, Message: err.Error(), Retryable: true}
		t.mirror(rejected)
		t.notify(rejected)
		t.logger.Warn("job rejected", zap.String("topic", req.Topic), zap.Error(err))
		return "", err
	}
	t.observer.SetQueueDepth(t.queue.depth())
	t.logger.Debug("job queued", zap.String("job_id", id))
	return id, nil
}

// Poll returns the current view of a job. Unknown ids return an error
// wrapping core.ErrNotFound.
func (t *Tracker) Poll(ctx context.Context, id string) (Job, error) {
	t.mu.RLock()
	e, ok := t.jobs[id]
	var job Job
	if ok {
		job = e.job
	}
	t.mu.RUnlock()
	if ok {
		return job, nil
	}

	if t.store == nil {
		return Job{}, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return fromRecord(rec), nil
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// ctx expires first, running jobs are cancelled and ctx.Err is returned.
func (t *Tracker) Shutdown(ctx context.Context) error {
	var err error
	t.stopOnce.Do(func() {
		t.queue.close()
		done := make(chan struct{})
		go func() {
			t.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			t.logger.Warn("shutdown deadline reached, cancelling running jobs")
			t.cancel()
			<-done
			err = ctx.Err()
		}
		t.cancel()
		t.logger.Info("job workers stopped")
	})
	return err
}

func (t *Tracker) worker(n int) {
	defer t.wg.Done()
	for id := range t.queue.ids {
		t.observer.SetQueueDepth(t.queue.depth())
		t.run(id)
	}
	t.logger.Debug("worker exiting", zap.Int("worker", n))
}

func (t *Tracker) run(id string) {
	t.mu.RLock()
	e, ok := t.jobs[id]
	var req core.GenerationRequest
	if ok {
		req = e.request
	}
	t.mu.RUnlock()
	if !ok {
		return
	}

	ctx := t.ctx
	cancel := context.CancelFunc(func() {})
	if t.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.cfg.JobTimeout)
	}
	defer cancel()

	start := t.now()
	t.update(id, func(j *Job) { j.Status = StatusProcessing })

	result, err := t.runSafely(ctx, req, func(state pipeline.State, percentage int, message string) {
		t.update(id, func(j *Job) {
			if state != pipeline.StateFailed {
				j.Progress.Percentage = percentage
			}
			j.Progress.Step = string(state)
			j.Progress.Message = message
		})
	})

	elapsed := t.now().Sub(start)
	if err != nil {
		payload := core.ToPayload(err)
		t.update(id, func(j *Job) {
			j.Status = StatusFailed
			j.Error = &payload
		})
		t.observer.ObserveJob(string(StatusFailed), elapsed)
		t.logger.Warn("job failed", zap.String("job_id", id), zap.String("code", payload.Code), zap.Error(err))
		return
	}

	t.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = result
		j.Progress.Percentage = 100
	})
	t.observer.ObserveJob(string(StatusCompleted), elapsed)
	t.logger.Info("job completed", zap.String("job_id", id), zap.Duration("elapsed", elapsed))
}

// runSafely turns a runner panic into a failed job instead of a dead worker.
func (t *Tracker) runSafely(ctx context.Context, req core.GenerationRequest, progress pipeline.ProgressFunc) (res *core.PostGenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("job panicked", zap.Any("panic", r))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return t.runner.GeneratePostWithProgress(ctx, req, progress)
}

func (t *Tracker) update(id string, fn func(*Job)) {
	t.mu.Lock()
	e, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(&e.job)
	e.job.UpdatedAt = t.now()
	snapshot := e.job
	t.mu.Unlock()
	t.mirror(snapshot)
	t.notify(snapshot)
}

func (t *Tracker) notify(job Job) {
	for _, fn := range t.listeners {
		fn(job)
	}
}

// prune drops finished jobs older than the retention window. Callers hold mu.
func (t *Tracker) prune(now time.Time) {
	if t.cfg.Retention <= 0 {
		return
	}
	for id, e := range t.jobs {
		finished := e.job.Status == StatusCompleted || e.job.Status == StatusFailed
		if finished && now.Sub(e.job.UpdatedAt) > t.cfg.Retention {
			delete(t.jobs, id)
		}
	}
}

func (t *Tracker) mirror(job Job) {
	if t.store == nil {
		return
	}
	rec, err := toRecord(job)
	if err != nil {
		t.logger.Warn("failed to encode job snapshot", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	t.store.Record(rec)
}

func toRecord(job Job) (db.JobRecord, error) {
	rec := db.JobRecord{
		ID:          job.ID,
		Topic:       job.Topic,
		Status:      string(job.Status),
		Percentage:  job.Progress.Percentage,
		Step:        job.Progress.Step,
		Message:     job.Progress.Message,
		SubmittedAt: job.SubmittedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return db.JobRecord{}, err
		}
		rec.Result = string(data)
	}
	if job.Error != nil {
		data, err := json.Marshal(job.Error)
		if err != nil {
			return db.JobRecord{}, err
		}
		rec.Error = string(data)
	}
	return rec, nil
}

func fromRecord(rec db.JobRecord) Job {
	job := Job{
		ID:     rec.ID,
		Topic:  rec.Topic,
		Status: Status(rec.Status),
		Progress: Progress{
			Percentage: rec.Percentage,
			Step:       rec.Step,
			Message:    rec.Message,
		},
		SubmittedAt: rec.SubmittedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.Result != "" {
		var res core.PostGenerationResult
		if err := json.Unmarshal([]byte(rec.Result), &res); err == nil {
			job.Result = &res
		}
	}
	if rec.Error != "" {
		var payload core.ErrorPayload
		if err := json.Unmarshal([]byte(rec.Error), &payload); err == nil {
			job.Error = &payload
		}
	}
	// A job that was pending or processing when the process stopped will
	// never finish.
	if job.Status == StatusPending || job.Status == StatusProcessing {
		job.Status = StatusFailed
		job.Error = &core.ErrorPayload{Code: core.CodeInternal, Message: "job interrupted by restart", Retryable: true}
	}
	return job
}

// IsNotFound reports whether err is an unknown-job error.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
