package chain

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER - Skip endpoints after consecutive failures
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxRPCFailures  = 3
	rpcTripDuration = 5 * time.Minute
)

type Breaker struct {
	mu sync.Mutex

	// Configuration
	maxFailures int
	cooldown    time.Duration

	// State
	failures  int
	tripped   bool
	trippedAt time.Time
	lastErr   string

	now func() time.Time
}

// NewBreaker creates a breaker that opens after maxFailures consecutive errors
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = maxRPCFailures
	}
	if cooldown <= 0 {
		cooldown = rpcTripDuration
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow reports whether a call may go through. After the cooldown the breaker is
// half-open: calls are allowed and the next success closes it.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tripped {
		return true
	}
	return b.now().Sub(b.trippedAt) >= b.cooldown
}

// RecordSuccess closes the breaker
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.tripped = false
	b.lastErr = ""
}

// RecordFailure counts a failure and returns true if this call tripped the breaker
func (b *Breaker) RecordFailure(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if err != nil {
		b.lastErr = err.Error()
	}

	// Half-open trial call failed: re-arm the cooldown
	if b.tripped {
		b.trippedAt = b.now()
		return false
	}

	if b.failures >= b.maxFailures {
		b.tripped = true
		b.trippedAt = b.now()
		log.Warn().
			Int("failures", b.failures).
			Dur("cooldown", b.cooldown).
			Str("last_error", b.lastErr).
			Msg("🚨 RPC circuit breaker tripped")
		return true
	}
	return false
}

// State returns failures, whether calls are currently blocked and the last error.
// A half-open breaker reports tripped=false, matching Allow.
func (b *Breaker) State() (failures int, tripped bool, lastErr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	open := b.tripped && b.now().Sub(b.trippedAt) < b.cooldown
	return b.failures, open, b.lastErr
}
