package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int) *Breaker {
	return NewBreaker(threshold, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := newTestBreaker(3)

	assert.True(t, b.Allow())
	assert.False(t, b.RecordFailure("unhedged"))
	assert.False(t, b.RecordFailure("unhedged"))
	assert.True(t, b.Allow(), "breaker must not trip below threshold")

	assert.True(t, b.RecordFailure("unhedged"), "third failure trips")
	assert.False(t, b.Allow())
	assert.Equal(t, "unhedged", b.Reason())

	// Further failures while tripped do not re-trip.
	assert.False(t, b.RecordFailure("unhedged"))
}

func TestSuccessResetsStreak(t *testing.T) {
	b := newTestBreaker(2)

	b.RecordFailure("gateway failure")
	b.RecordSuccess()
	assert.False(t, b.RecordFailure("gateway failure"), "streak restarted after success")
	assert.True(t, b.Allow())

	assert.True(t, b.RecordFailure("gateway failure"))
	assert.False(t, b.Allow())
}

func TestResetClearsTrip(t *testing.T) {
	b := newTestBreaker(1)

	b.RecordFailure("unhedged")
	assert.False(t, b.Allow())

	b.Reset()
	assert.True(t, b.Allow())
	assert.Empty(t, b.Reason())
}

func TestThresholdFloorsAtOne(t *testing.T) {
	b := newTestBreaker(0)
	assert.True(t, b.RecordFailure("unhedged"))
	assert.False(t, b.Allow())
}
