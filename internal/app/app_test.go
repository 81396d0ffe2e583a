package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefold/crossarb/internal/config"
	"github.com/edgefold/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireDefaultsUseNopSinks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Balances = map[string]float64{"polymarket": 250, "kalshi": 100}

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Ledger)
	require.NotNil(t, deps.Breaker)
	assert.IsType(t, domain.NopAlertSink{}, deps.Alerts)
	assert.IsType(t, domain.NopMetricsSink{}, deps.Metrics)
	assert.Nil(t, deps.OutcomeStore)
	assert.Nil(t, deps.Archiver)

	bal := deps.Ledger.Balances("polymarket")
	assert.True(t, bal.Available.Equal(decimal.NewFromInt(250)))
}

func TestPaperVenueFillsCompletely(t *testing.T) {
	v := newPaperVenue("polymarket")

	res, err := v.Submit(context.Background(), domain.OrderRequest{
		Venue:    "polymarket",
		MarketID: "123",
		Side:     domain.OrderSideBuy,
		Price:    decimal.RequireFromString("0.40"),
		Size:     decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FillFilled, res.Status)
	assert.True(t, res.FilledSize.Equal(decimal.NewFromInt(50)))
	assert.NotEmpty(t, res.OrderID)
}

func TestPaperVenueBookStaysSane(t *testing.T) {
	v := newPaperVenue("kalshi")

	low := decimal.RequireFromString("0.02")
	high := decimal.RequireFromString("0.98")
	for i := 0; i < 200; i++ {
		snap, err := v.Depth(context.Background(), "TICKER-X")
		require.NoError(t, err)
		assert.True(t, snap.BestBid.LessThan(snap.BestAsk))
		assert.True(t, snap.BestBid.GreaterThanOrEqual(low))
		assert.True(t, snap.BestAsk.LessThanOrEqual(high))
		assert.True(t, snap.BidDepth.IsPositive())
	}
}

func TestSeedMidIsStableAndBounded(t *testing.T) {
	a := seedMid("polymarket", "123")
	b := seedMid("polymarket", "123")
	assert.True(t, a.Equal(b))

	assert.True(t, a.GreaterThanOrEqual(decimal.RequireFromString("0.35")))
	assert.True(t, a.LessThan(decimal.RequireFromString("0.65")))
}
