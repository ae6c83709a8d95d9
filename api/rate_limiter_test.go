package api

import (
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	ok, wait := rl.Allow("10.0.0.1")
	if ok || wait != time.Minute {
		t.Fatalf("third request ok = %v wait = %v", ok, wait)
	}
	if ok, _ := rl.Allow("10.0.0.2"); !ok {
		t.Error("other client rejected")
	}

	now = now.Add(time.Minute)
	if ok, _ := rl.Allow("10.0.0.1"); !ok {
		t.Error("request after window reset rejected")
	}

	now = now.Add(2 * time.Minute)
	if removed := rl.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}
	if rl.Count() != 0 {
		t.Errorf("Count() = %d", rl.Count())
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if ok, _ := rl.Allow("ip"); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}
