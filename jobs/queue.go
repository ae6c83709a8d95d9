package jobs

import (
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned by Submit after Shutdown.
	ErrQueueClosed = errors.New("job queue is closed")
)

// queue is a bounded FIFO of job ids feeding the worker pool.
type queue struct {
	mu     sync.RWMutex
	ids    chan string
	closed bool
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 1
	}
	return &queue{ids: make(chan string, size)}
}

// enqueue never blocks.
func (q *queue) enqueue(id string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ids <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// close stops new work. Workers drain what is already queued.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ids)
	}
}

func (q *queue) depth() int { return len(q.ids) }
