package finder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefold/crossarb/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubDepth struct {
	snaps map[string]domain.DepthSnapshot
	err   error
}

func (s *stubDepth) Depth(_ context.Context, marketID string) (domain.DepthSnapshot, error) {
	if s.err != nil {
		return domain.DepthSnapshot{}, s.err
	}
	return s.snaps[marketID], nil
}

func book(bid, bidDepth, ask, askDepth string) domain.DepthSnapshot {
	return domain.DepthSnapshot{
		BestBid:  dec(bid),
		BidDepth: dec(bidDepth),
		BestAsk:  dec(ask),
		AskDepth: dec(askDepth),
	}
}

func testPair() Pair {
	return Pair{
		Name:         "election-pair",
		BuyVenue:     "polymarket",
		BuyMarketID:  "tok-1",
		SellVenue:    "kalshi",
		SellMarketID: "PRES-24",
	}
}

func newTestFinder(buy, sell domain.DepthSnapshot, cfg Config) *Finder {
	depths := map[string]domain.DepthSource{
		"polymarket": &stubDepth{snaps: map[string]domain.DepthSnapshot{"tok-1": buy}},
		"kalshi":     &stubDepth{snaps: map[string]domain.DepthSnapshot{"PRES-24": sell}},
	}
	return New(depths, []Pair{testPair()}, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluateFindsEdgeAfterFees(t *testing.T) {
	// Buy at 0.40 ask, sell into a 0.45 bid, 1% fees each side.
	f := newTestFinder(
		book("0.39", "500", "0.40", "1000"),
		book("0.45", "800", "0.46", "100"),
		Config{
			MinEdgeBps:    50,
			MaxSize:       dec("100"),
			DepthFraction: dec("0.25"),
			FeeRates: map[string]decimal.Decimal{
				"polymarket": dec("0.01"),
				"kalshi":     dec("0.01"),
			},
		},
	)

	opp, ok, err := f.Evaluate(context.Background(), testPair())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, opp.BuyPrice.Equal(dec("0.40")))
	assert.True(t, opp.SellPrice.Equal(dec("0.45")))
	// Thinner side is the sell bid depth (500): 25% of it is 125, capped at 100.
	assert.True(t, opp.Size.Equal(dec("100")), "size = %s", opp.Size)
	assert.Greater(t, opp.NetEdgeBps, 50.0)
	require.NoError(t, opp.Validate())
}

func TestEvaluateFeesEatTheSpread(t *testing.T) {
	// 0.44 bid vs 0.40 ask looks like 400 bps gross, but 5% fees per side
	// push the net negative.
	f := newTestFinder(
		book("0.39", "500", "0.40", "1000"),
		book("0.44", "800", "0.45", "100"),
		Config{
			MinEdgeBps: 10,
			MaxSize:    dec("100"),
			FeeRates: map[string]decimal.Decimal{
				"polymarket": dec("0.05"),
				"kalshi":     dec("0.05"),
			},
		},
	)

	_, ok, err := f.Evaluate(context.Background(), testPair())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateBelowThresholdRejected(t *testing.T) {
	f := newTestFinder(
		book("0.39", "500", "0.40", "1000"),
		book("0.402", "800", "0.41", "100"),
		Config{MinEdgeBps: 100, MaxSize: dec("100")},
	)

	_, ok, err := f.Evaluate(context.Background(), testPair())
	require.NoError(t, err)
	assert.False(t, ok, "50 bps gross must not clear a 100 bps threshold")
}

func TestEvaluateSizesToThinnerSide(t *testing.T) {
	f := newTestFinder(
		book("0.39", "500", "0.40", "60"),
		book("0.45", "800", "0.46", "100"),
		Config{MinEdgeBps: 10, MaxSize: dec("1000"), DepthFraction: dec("0.25")},
	)

	opp, ok, err := f.Evaluate(context.Background(), testPair())
	require.NoError(t, err)
	require.True(t, ok)
	// Ask depth 60 is the thin side: 25% of 60.
	assert.True(t, opp.Size.Equal(dec("15")), "size = %s", opp.Size)
}

func TestEvaluateMissingVenue(t *testing.T) {
	f := New(map[string]domain.DepthSource{}, nil, nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, _, err := f.Evaluate(context.Background(), testPair())
	require.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestEvaluateEmptyBookIsNoOpportunity(t *testing.T) {
	f := newTestFinder(domain.DepthSnapshot{}, domain.DepthSnapshot{}, Config{MinEdgeBps: 10})

	_, ok, err := f.Evaluate(context.Background(), testPair())
	require.NoError(t, err)
	assert.False(t, ok)
}
