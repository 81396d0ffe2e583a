// Package risk implements the process-wide circuit breaker ("panic mode").
// After a threshold of consecutive critical trade failures it refuses new
// trades until an operator explicitly resets it.
package risk

import (
	"log/slog"
	"sync"
)

// Breaker counts consecutive critical failures and trips once the threshold
// is reached. Safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	tripped     bool
	reason      string
	logger      *slog.Logger
}

// NewBreaker creates a Breaker that trips after threshold consecutive
// critical failures. A threshold below one defaults to one.
func NewBreaker(threshold int, logger *slog.Logger) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		logger:    logger.With(slog.String("component", "risk_breaker")),
	}
}

// Allow reports whether new trades may start.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped
}

// RecordFailure registers one critical failure (an unhedged outcome or a
// full gateway failure). It trips the breaker when the consecutive count
// reaches the threshold and returns true exactly on the trip transition.
func (b *Breaker) RecordFailure(reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		return false
	}

	b.consecutive++
	if b.consecutive < b.threshold {
		return false
	}

	b.tripped = true
	b.reason = reason
	b.logger.Error("risk breaker tripped, new trades halted",
		slog.Int("consecutive_failures", b.consecutive),
		slog.String("reason", reason),
	)
	return true
}

// RecordSuccess resets the consecutive-failure streak. It does not clear a
// tripped breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// Reason returns why the breaker tripped, or empty if it has not.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Reset clears the breaker and the failure streak. Operator action only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		b.logger.Warn("risk breaker manually reset",
			slog.String("previous_reason", b.reason),
		)
	}
	b.tripped = false
	b.reason = ""
	b.consecutive = 0
}
