package retry

import (
	"context"
	"testing"
	"time"
)

func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

// TestTextPolicy_Decide walks the text ladder for every class.
func TestTextPolicy_Decide(t *testing.T) {
	p := DefaultTextPolicy()
	p.Rand = fixedRand(0)

	tests := []struct {
		name    string
		attempt int
		class   ErrorClass
		action  Action
		delay   time.Duration
	}{
		{"rate limited first attempt", 1, ClassRateLimited, RetrySame, time.Second},
		{"server error second attempt", 2, ClassServer, RetrySame, 2 * time.Second},
		{"context length switches immediately", 1, ClassContextLength, SwitchProvider, 0},
		{"other error retries without delay", 1, ClassOther, RetrySame, 0},
		{"invalid response retries", 2, ClassInvalidResponse, RetrySame, 0},
		{"exhausted switches", 3, ClassRateLimited, SwitchProvider, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.attempt, tt.class)
			if d.Action != tt.action {
				t.Errorf("Action = %v, want %v", d.Action, tt.action)
			}
			if d.Delay != tt.delay {
				t.Errorf("Delay = %v, want %v", d.Delay, tt.delay)
			}
		})
	}
}

func TestTextPolicy_BackoffCapAndJitter(t *testing.T) {
	p := DefaultTextPolicy()
	p.MaxAttempts = 10

	p.Rand = fixedRand(0)
	if got := p.Backoff(6); got != 30*time.Second {
		t.Errorf("Backoff(6) = %v, want capped 30s", got)
	}
	if got := p.Backoff(5); got != 16*time.Second {
		t.Errorf("Backoff(5) = %v, want 16s", got)
	}

	p.Rand = fixedRand(0.999)
	got := p.Backoff(1)
	if got < time.Second || got > 1100*time.Millisecond {
		t.Errorf("Backoff(1) with jitter = %v, want within [1s, 1.1s]", got)
	}
}

// TestImagePolicy_Ladders checks each transient class uses its own base.
func TestImagePolicy_Ladders(t *testing.T) {
	p := DefaultImagePolicy()

	wantServer := []time.Duration{5, 10, 20, 40, 80, 160, 320}
	for i, want := range wantServer {
		d := p.Decide(i+1, ClassServer)
		if d.Action != RetrySame || d.Delay != want*time.Second {
			t.Errorf("server attempt %d = %v/%v, want retry/%v", i+1, d.Action, d.Delay, want*time.Second)
		}
	}

	if d := p.Decide(1, ClassRateLimited); d.Delay != 10*time.Second {
		t.Errorf("rate limit base = %v, want 10s", d.Delay)
	}
	if d := p.Decide(2, ClassNetwork); d.Delay != 6*time.Second {
		t.Errorf("network attempt 2 = %v, want 6s", d.Delay)
	}
	if d := p.Decide(8, ClassServer); d.Action != SwitchProvider {
		t.Errorf("attempt 8 action = %v, want switch", d.Action)
	}
}

// TestImagePolicy_RetriesFollowFirstAttempt checks MaxRetries counts retries,
// not attempts.
func TestImagePolicy_RetriesFollowFirstAttempt(t *testing.T) {
	tests := []struct {
		retries int
		want    int
	}{
		{-1, 1},
		{0, 1},
		{1, 2},
		{7, 8},
	}
	for _, tt := range tests {
		p := ImagePolicy{MaxRetries: tt.retries}
		if got := p.Attempts(); got != tt.want {
			t.Errorf("MaxRetries %d: Attempts() = %d, want %d", tt.retries, got, tt.want)
		}
	}

	p := DefaultImagePolicy()
	if p.Max != 320*time.Second {
		t.Errorf("default Max = %v, want 320s", p.Max)
	}
	if d := p.Decide(8, ClassRateLimited); d.Action != SwitchProvider {
		t.Errorf("rate limit attempt 8 = %v, want switch", d.Action)
	}
	if d := p.Decide(7, ClassRateLimited); d.Delay != 320*time.Second {
		t.Errorf("rate limit attempt 7 delay = %v, want capped 320s", d.Delay)
	}
}

func TestImagePolicy_PermanentLeavesProvider(t *testing.T) {
	p := DefaultImagePolicy()
	for _, class := range []ErrorClass{ClassPermanent, ClassInvalidResponse, ClassOther} {
		if d := p.Decide(1, class); d.Action != SwitchProvider || d.Delay != 0 {
			t.Errorf("%v: got %v/%v, want immediate switch", class, d.Action, d.Delay)
		}
	}
}

func TestImagePolicy_MaxCap(t *testing.T) {
	p := DefaultImagePolicy()
	p.Max = 15 * time.Second
	if d := p.Decide(3, ClassRateLimited); d.Delay != 15*time.Second {
		t.Errorf("capped delay = %v, want 15s", d.Delay)
	}
}

// TestNext_LastProviderIsTerminal verifies the switch on the final provider becomes terminal.
func TestNext_LastProviderIsTerminal(t *testing.T) {
	p := DefaultImagePolicy()

	if d := Next(p, 0, 2, 1, ClassPermanent); d.Action != SwitchProvider {
		t.Errorf("first of two providers: Action = %v, want switch", d.Action)
	}
	if d := Next(p, 1, 2, 1, ClassPermanent); d.Action != Terminal {
		t.Errorf("last provider: Action = %v, want terminal", d.Action)
	}
	if d := Next(p, 1, 2, 1, ClassServer); d.Action != RetrySame {
		t.Errorf("last provider transient: Action = %v, want retry", d.Action)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep() on cancelled context returned nil")
	}
}

func TestErrorClass_Transient(t *testing.T) {
	transient := map[ErrorClass]bool{
		ClassRateLimited:     true,
		ClassServer:          true,
		ClassNetwork:         true,
		ClassContextLength:   false,
		ClassPermanent:       false,
		ClassInvalidResponse: false,
		ClassOther:           false,
	}
	for class, want := range transient {
		if got := class.Transient(); got != want {
			t.Errorf("%v.Transient() = %v, want %v", class, got, want)
		}
	}
}
