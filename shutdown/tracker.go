package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTrackerClosed is returned when an operation starts after shutdown began.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// OperationTracker counts in-flight synchronous renders so shutdown can
// drain them before the browser and files go away.
//
//	if !tracker.Start() {
//	    return // shutting down
//	}
//	defer tracker.Done()
type OperationTracker struct {
	active atomic.Int64

	mu     sync.Mutex
	closed bool
	// idle is closed when active drops to zero after Close.
	idle chan struct{}
}

// NewOperationTracker returns an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{idle: make(chan struct{})}
}

// Start registers an operation. It returns false once the tracker is
// closed; otherwise the caller must call Done.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.active.Add(1)
	return true
}

// Done ends an operation.
func (t *OperationTracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active.Add(-1) == 0 && t.closed {
		t.signalIdle()
	}
}

// Close rejects new operations. Later calls are no-ops.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.active.Load() == 0 {
		t.signalIdle()
	}
}

// signalIdle closes idle once. Callers hold mu.
func (t *OperationTracker) signalIdle() {
	select {
	case <-t.idle:
	default:
		close(t.idle)
	}
}

// Wait closes the tracker and blocks until in-flight operations finish or
// ctx ends, returning ctx.Err in the latter case.
func (t *OperationTracker) Wait(ctx context.Context) error {
	t.Close()
	select {
	case <-t.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount returns the number of in-flight operations.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}

// IsClosed reports whether Close was called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
