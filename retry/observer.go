package retry

import "time"

// Observer receives one call per provider attempt. The metrics package
// implements it with Prometheus collectors.
type Observer interface {
	ObserveAttempt(component, provider, model, outcome string, elapsed time.Duration)
}

// OutcomeSuccess is the outcome label for a successful attempt; failures use
// the ErrorClass name.
const OutcomeSuccess = "success"

// NopObserver discards observations.
type NopObserver struct{}

// ObserveAttempt implements Observer.
func (NopObserver) ObserveAttempt(string, string, string, string, time.Duration) {}
