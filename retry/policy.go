package retry

import (
	"math/rand"
	"sync"
	"time"
)

// TextPolicy is the text completion ladder: rate limit and server errors back
// off exponentially with jitter, context-length errors abandon the model at
// once, anything else retries immediately until MaxAttempts.
type TextPolicy struct {
	MaxAttempts    int
	Base           time.Duration
	Max            time.Duration
	JitterFraction float64

	// Rand returns a value in [0,1). Nil uses a process-wide source.
	Rand func() float64
}

// DefaultTextPolicy is 3 attempts per model, 1s doubling to a 30s cap with
// up to 10% jitter. Configuration defaults start from it.
func DefaultTextPolicy() TextPolicy {
	return TextPolicy{
		MaxAttempts:    3,
		Base:           time.Second,
		Max:            30 * time.Second,
		JitterFraction: 0.1,
	}
}

// Attempts implements Policy.
func (p TextPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Decide implements Policy.
func (p TextPolicy) Decide(attempt int, class ErrorClass) Decision {
	if class == ClassContextLength {
		return Decision{Action: SwitchProvider, Reason: "context length exceeded"}
	}
	if attempt >= p.Attempts() {
		return Decision{Action: SwitchProvider, Reason: "attempts exhausted"}
	}
	if class == ClassRateLimited || class == ClassServer {
		return Decision{Action: RetrySame, Delay: p.Backoff(attempt), Reason: class.String()}
	}
	return Decision{Action: RetrySame, Reason: class.String()}
}

// Backoff is min(Base*2^(attempt-1), Max) plus up to JitterFraction of it.
func (p TextPolicy) Backoff(attempt int) time.Duration {
	delay := exponential(p.Base, attempt, p.Max)
	if p.JitterFraction <= 0 || delay <= 0 {
		return delay
	}
	r := p.Rand
	if r == nil {
		r = defaultRand
	}
	return delay + time.Duration(r()*p.JitterFraction*float64(delay))
}

// ImagePolicy is the image generation ladder. Each transient class has its
// own base delay that doubles per attempt. Permanent and unusable responses
// leave the provider immediately.
type ImagePolicy struct {
	// MaxRetries counts retries after the first attempt, so a provider is
	// tried at most MaxRetries+1 times.
	MaxRetries      int
	RateLimitBase   time.Duration
	ServerErrorBase time.Duration
	NetworkBase     time.Duration

	// Max caps a single delay. Zero leaves the ladder uncapped.
	Max time.Duration
}

// DefaultImagePolicy is 10s for rate limits, 5s for server errors and 3s for
// network failures, doubling over 7 retries to a 320s cap. Configuration
// defaults start from it.
func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{
		MaxRetries:      7,
		RateLimitBase:   10 * time.Second,
		ServerErrorBase: 5 * time.Second,
		NetworkBase:     3 * time.Second,
		Max:             320 * time.Second,
	}
}

// Attempts implements Policy.
func (p ImagePolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Decide implements Policy.
func (p ImagePolicy) Decide(attempt int, class ErrorClass) Decision {
	var base time.Duration
	switch class {
	case ClassRateLimited:
		base = p.RateLimitBase
	case ClassServer:
		base = p.ServerErrorBase
	case ClassNetwork:
		base = p.NetworkBase
	default:
		return Decision{Action: SwitchProvider, Reason: class.String()}
	}
	if attempt >= p.Attempts() {
		return Decision{Action: SwitchProvider, Reason: "attempts exhausted"}
	}
	return Decision{Action: RetrySame, Delay: exponential(base, attempt, p.Max), Reason: class.String()}
}

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func defaultRand() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return randSrc.Float64()
}
