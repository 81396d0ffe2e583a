// Package retry wraps fallible network calls with bounded exponential
// backoff plus jitter. It knows nothing about balances or trades.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/edgefold/crossarb/internal/domain"
)

// Policy bounds the retry loop. The delay before attempt n (0-based) is
// BaseDelay * 2^n plus up to BaseDelay of random jitter, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the configuration defaults: three attempts starting
// at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// StatusError carries an HTTP status code so the retry loop can classify
// venue responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Retryable reports whether err is worth another attempt: timeouts,
// temporary network faults, 5xx responses, and rate limits. Other 4xx
// responses and malformed-response errors surface immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrRateLimited) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// Do runs op under the policy, sleeping between attempts and surfacing the
// last error once attempts are exhausted or a non-retryable error occurs.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			logger.Debug("non-retryable failure",
				slog.String("op", name),
				slog.String("error", err.Error()),
			)
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.backoff(attempt)
		logger.Warn("retrying after failure",
			slog.String("op", name),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("retry: %s exhausted %d attempts: %w", name, attempts, lastErr)
}

// backoff returns base * 2^attempt plus up to one base delay of jitter,
// capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	delay := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(base)))
	delay += jitter

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
