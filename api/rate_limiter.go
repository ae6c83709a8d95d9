package api

import (
	"context"
	"sync"
	"time"
)

// window counts requests from one client inside a fixed window.
type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter caps generation submissions per client IP with fixed windows.
// Post generation spends provider quota, so it is limited; reads are not.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	max     int
	period  time.Duration
	now     func() time.Time
}

// NewRateLimiter allows max requests per period per IP. max <= 0 disables
// limiting.
func NewRateLimiter(max int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]window),
		max:     max,
		period:  period,
		now:     time.Now,
	}
}

// Allow records a request from ip. When the window is exhausted it returns
// false and the time until the window resets.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	if r == nil || r.max <= 0 {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[ip]
	if !ok || !now.Before(w.resetAt) {
		r.windows[ip] = window{count: 1, resetAt: now.Add(r.period)}
		return true, 0
	}
	if w.count >= r.max {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	r.windows[ip] = w
	return true, 0
}

// Cleanup drops expired windows and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for ip, w := range r.windows {
		if !now.Before(w.resetAt) {
			delete(r.windows, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (r *RateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}
