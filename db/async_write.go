package db

import (
	"context"
	"sync"
	"time"
)

// Async writer defaults.
const (
	DefaultChannelCapacity = 100
	DefaultDrainTimeout    = 30 * time.Second
)

// AsyncWriter applies writes on a background goroutine fed by a buffered
// channel. Items are handled in queue order. Stop drains what is queued.
type AsyncWriter[T any] struct {
	items chan T
	handler func(T) error
	onError func(T, error)
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewAsyncWriter creates a writer with room for capacity queued items.
// onError may be nil.
func NewAsyncWriter[T any](capacity int, handler func(T) error, onError func(T, error)) *AsyncWriter[T] {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if onError == nil {
		onError = func(T, error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter[T]{
		items:   make(chan T, capacity),
		handler: handler,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background goroutine. Extra calls are no-ops.
func (w *AsyncWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.run()
}

func (w *AsyncWriter[T]) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case item := <-w.items:
			w.handle(item)
		}
	}
}

func (w *AsyncWriter[T]) drain() {
	for {
		select {
		case item := <-w.items:
			w.handle(item)
		default:
			return
		}
	}
}

func (w *AsyncWriter[T]) handle(item T) {
	if err := w.handler(item); err != nil {
		w.onError(item, err)
	}
}

// Write queues item without blocking. It returns false when the queue is
// full or the writer has stopped.
func (w *AsyncWriter[T]) Write(item T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.items <- item:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued items.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.items)
}

// Stop drains queued items and waits up to timeout. It reports whether the
// drain finished in time.
func (w *AsyncWriter[T]) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
