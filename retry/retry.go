// Package retry holds the per-attempt decision logic shared by the text and
// image generation clients.
//
// A client classifies each failed attempt into an ErrorClass and asks its
// Policy what to do next. The answer is a Decision: retry the same provider
// after a delay, move to the next provider, or give up. Decisions are pure
// functions of (provider position, attempt number, error class), so retry
// chains are tested without network I/O.
package retry

import (
	"context"
	"fmt"
	"time"
)

// ErrorClass is the outcome category of a failed provider attempt.
type ErrorClass int

const (
	// ClassOther is any failure not covered by a more specific class.
	ClassOther ErrorClass = iota
	// ClassRateLimited is HTTP 429.
	ClassRateLimited
	// ClassServer is HTTP 500/502/503.
	ClassServer
	// ClassNetwork is a failure with no HTTP status: refused, reset, DNS, EOF.
	ClassNetwork
	// ClassContextLength means the prompt exceeds the model's context window.
	ClassContextLength
	// ClassPermanent is an auth, forbidden or malformed-request failure.
	ClassPermanent
	// ClassInvalidResponse is a well-formed reply whose payload is unusable.
	ClassInvalidResponse
)

var classNames = map[ErrorClass]string{
	ClassOther:           "other",
	ClassRateLimited:     "rate_limited",
	ClassServer:          "server_error",
	ClassNetwork:         "network",
	ClassContextLength:   "context_length",
	ClassPermanent:       "permanent",
	ClassInvalidResponse: "invalid_response",
}

func (c ErrorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Transient reports whether the class is worth retrying after a delay.
func (c ErrorClass) Transient() bool {
	return c == ClassRateLimited || c == ClassServer || c == ClassNetwork
}

// Action is what a client does after a failed attempt.
type Action int

const (
	RetrySame Action = iota
	SwitchProvider
	Terminal
)

func (a Action) String() string {
	switch a {
	case RetrySame:
		return "retry_same"
	case SwitchProvider:
		return "switch_provider"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the answer to "attempt N failed with class C".
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Policy maps a failed attempt on a single provider to a Decision. Attempt
// numbers start at 1. A Policy never returns Terminal by itself for a
// provider-local reason; Next turns SwitchProvider into Terminal when no
// provider is left.
type Policy interface {
	Decide(attempt int, class ErrorClass) Decision
	Attempts() int
}

// Next is the full decision function. providerIndex is the zero-based
// position in the fallback order and providerCount its length.
//
//	d := retry.Next(policy, 0, 2, 3, retry.ClassServer)
//	// d.Action == RetrySame, d.Delay == backoff for attempt 3
func Next(policy Policy, providerIndex, providerCount, attempt int, class ErrorClass) Decision {
	d := policy.Decide(attempt, class)
	if d.Action == SwitchProvider && providerIndex >= providerCount-1 {
		d.Action = Terminal
		d.Delay = 0
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const maxDelay = time.Duration(1<<63 - 1)

// exponential returns base*2^(attempt-1), capped at max when max > 0.
func exponential(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
		if delay <= 0 {
			return maxDelay
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
