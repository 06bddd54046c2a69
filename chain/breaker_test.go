package chain

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripAndHalfOpen(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	if b.RecordFailure(errors.New("x")) {
		t.Fatal("tripped after one failure")
	}
	if !b.RecordFailure(errors.New("y")) {
		t.Fatal("expected trip on second failure")
	}
	if b.Allow() {
		t.Fatal("tripped breaker allowed a call")
	}

	now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("breaker should be half-open after cooldown")
	}

	// A failed trial call re-arms the cooldown
	b.RecordFailure(errors.New("z"))
	if b.Allow() {
		t.Fatal("failed trial call should re-open the breaker")
	}

	now = now.Add(2 * time.Minute)
	b.RecordSuccess()
	failures, tripped, lastErr := b.State()
	if failures != 0 || tripped || lastErr != "" {
		t.Errorf("success did not reset: %d %v %q", failures, tripped, lastErr)
	}
}

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(0, 0)
	if b.maxFailures != maxRPCFailures || b.cooldown != rpcTripDuration {
		t.Errorf("defaults not applied: %d %v", b.maxFailures, b.cooldown)
	}
}

func TestBreakerStateFollowsCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	b.RecordFailure(errors.New("timeout"))
	if _, tripped, _ := b.State(); !tripped || b.Allow() {
		t.Fatal("breaker should be open inside the cooldown")
	}

	now = now.Add(time.Minute)
	failures, tripped, lastErr := b.State()
	if tripped || !b.Allow() {
		t.Errorf("half-open breaker reported tripped=%v allow=%v", tripped, b.Allow())
	}
	if failures != 1 || lastErr != "timeout" {
		t.Errorf("state lost history: %d %q", failures, lastErr)
	}

	b.RecordFailure(errors.New("again"))
	if _, tripped, _ := b.State(); !tripped {
		t.Error("failed half-open call should re-open the breaker")
	}
}
