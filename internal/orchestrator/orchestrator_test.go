package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/ledger"
	"github.com/edgefold/crossarb/internal/risk"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubPlacer struct {
	venue string
	fill  domain.FillResult
	err   error

	mu      sync.Mutex
	calls   int
	lastReq domain.OrderRequest
}

func (s *stubPlacer) Venue() string { return s.venue }

func (s *stubPlacer) PlaceReserved(_ context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastReq = req
	return s.fill, s.err
}

type captureAlerts struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (c *captureAlerts) Send(_ context.Context, a domain.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureAlerts) critical() []domain.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Alert
	for _, a := range c.alerts {
		if a.Level == domain.AlertCritical {
			out = append(out, a)
		}
	}
	return out
}

type countMetrics struct {
	mu                                         sync.Mutex
	attempted, committed, rolledBack, unhedged int
	locked                                     map[string]decimal.Decimal
}

func (m *countMetrics) TradeAttempted(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempted++
}

func (m *countMetrics) TradeCommitted(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed++
}

func (m *countMetrics) TradeRolledBack(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolledBack++
}

func (m *countMetrics) TradeUnhedged(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhedged++
}

func (m *countMetrics) SetLockedBalance(_ context.Context, venue string, locked decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked == nil {
		m.locked = make(map[string]decimal.Decimal)
	}
	m.locked[venue] = locked
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-1",
		BuyVenue:     "alpha",
		SellVenue:    "beta",
		BuyMarketID:  "mkt-a",
		SellMarketID: "mkt-b",
		BuyPrice:     dec("0.40"),
		SellPrice:    dec("0.45"),
		Size:         dec("100"),
		DetectedAt:   time.Now(),
	}
}

type fixture struct {
	ledger  *ledger.Ledger
	buy     *stubPlacer
	sell    *stubPlacer
	breaker *risk.Breaker
	alerts  *captureAlerts
	metrics *countMetrics
	orch    *Orchestrator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	led := ledger.New(logger)
	led.Deposit("alpha", dec("500"))
	led.Deposit("beta", dec("500"))

	f := &fixture{
		ledger:  led,
		buy:     &stubPlacer{venue: "alpha"},
		sell:    &stubPlacer{venue: "beta"},
		breaker: risk.NewBreaker(3, logger),
		alerts:  &captureAlerts{},
		metrics: &countMetrics{},
	}
	f.orch = New(led, []LegPlacer{f.buy, f.sell}, f.breaker, f.alerts, f.metrics, cfg, logger)
	return f
}

func fullFill(size string) domain.FillResult {
	return domain.FillResult{
		OrderID:    "ord-" + size,
		Status:     domain.FillFilled,
		FilledSize: dec(size),
		PlacedAt:   time.Now(),
	}
}

func TestExecuteBothFilledCommitsBothReservations(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = fullFill("100")

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFilled, outcome.Kind)
	assert.NotEmpty(t, outcome.ID)

	for _, venue := range []string{"alpha", "beta"} {
		bal := f.ledger.Balances(venue)
		assert.True(t, bal.Available.Equal(dec("400")), "%s available = %s", venue, bal.Available)
		assert.True(t, bal.Locked.IsZero(), "%s locked = %s", venue, bal.Locked)
	}
	assert.Equal(t, 1, f.metrics.attempted)
	assert.Equal(t, 1, f.metrics.committed)
	assert.Empty(t, f.alerts.critical())
}

func TestExecuteBothRejectedRollsBackEverything(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = domain.FillResult{Status: domain.FillRejected, Message: "no liquidity"}
	f.sell.fill = domain.FillResult{Status: domain.FillRejected, Message: "no liquidity"}

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFailed, outcome.Kind)

	for _, venue := range []string{"alpha", "beta"} {
		bal := f.ledger.Balances(venue)
		assert.True(t, bal.Available.Equal(dec("500")), "%s available = %s", venue, bal.Available)
		assert.True(t, bal.Locked.IsZero())
	}
	assert.Equal(t, 1, f.metrics.rolledBack)
	assert.Empty(t, f.alerts.critical(), "rollback must not page anyone")
}

func TestExecuteTimedOutSellLegIsUnhedgedBuyOnly(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = domain.FillResult{Status: domain.FillUnknown}
	f.sell.err = errors.New("gateway: submit order: context deadline exceeded")

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhedgedBuyOnly, outcome.Kind)
	assert.True(t, outcome.Kind.Unhedged())

	// Buy reservation is spent, the unknown sell leg is resolved back to
	// available by this step and nowhere else.
	assert.True(t, f.ledger.Balances("alpha").Available.Equal(dec("400")))
	assert.True(t, f.ledger.Balances("alpha").Locked.IsZero())
	assert.True(t, f.ledger.Balances("beta").Available.Equal(dec("500")))
	assert.True(t, f.ledger.Balances("beta").Locked.IsZero())

	require.Len(t, f.alerts.critical(), 1)
	assert.Contains(t, f.alerts.critical()[0].Message, "unhedged")
	assert.Equal(t, 1, f.metrics.unhedged)
}

func TestExecuteFailedBuyFilledSellIsUnhedgedSellOnly(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = domain.FillResult{Status: domain.FillRejected}
	f.sell.fill = fullFill("100")

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhedgedSellOnly, outcome.Kind)
	require.Len(t, f.alerts.critical(), 1)

	assert.True(t, f.ledger.Balances("alpha").Available.Equal(dec("500")))
	assert.True(t, f.ledger.Balances("beta").Available.Equal(dec("400")))
}

func TestExecutePartialWithinToleranceCountsAsFilled(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = domain.FillResult{Status: domain.FillPartial, FilledSize: dec("99.5")}
	f.sell.fill = fullFill("100")

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFilled, outcome.Kind)

	// filled_only commits exactly what filled and frees the remainder.
	alpha := f.ledger.Balances("alpha")
	assert.True(t, alpha.Available.Equal(dec("400.5")), "alpha available = %s", alpha.Available)
	assert.True(t, alpha.Locked.IsZero())
}

func TestExecuteFullRequestedPolicyCommitsWholeReservation(t *testing.T) {
	f := newFixture(t, Config{CommitPolicy: CommitFullRequested})
	f.buy.fill = domain.FillResult{Status: domain.FillPartial, FilledSize: dec("99.5")}
	f.sell.fill = fullFill("100")

	_, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	alpha := f.ledger.Balances("alpha")
	assert.True(t, alpha.Available.Equal(dec("400")), "alpha available = %s", alpha.Available)
	assert.True(t, alpha.Locked.IsZero())
}

func TestExecutePartialBelowToleranceCommitsFilledReleasesRest(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = domain.FillResult{Status: domain.FillPartial, FilledSize: dec("30")}

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnhedgedBuyOnly, outcome.Kind)

	beta := f.ledger.Balances("beta")
	assert.True(t, beta.Available.Equal(dec("470")), "beta available = %s", beta.Available)
	assert.True(t, beta.Locked.IsZero())
	require.Len(t, f.alerts.critical(), 1)
}

func TestExecuteInsufficientSellBalanceReleasesBuyReservation(t *testing.T) {
	f := newFixture(t, Config{})
	f.ledger.ResetAll(map[string]domain.VenueBalance{
		"alpha": {Available: dec("500")},
		"beta":  {Available: dec("50")},
	})

	_, err := f.orch.Execute(context.Background(), testOpportunity())
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The buy-side reservation made before the failure must not leak.
	assert.True(t, f.ledger.Balances("alpha").Available.Equal(dec("500")))
	assert.True(t, f.ledger.Balances("alpha").Locked.IsZero())
	assert.Equal(t, 0, f.buy.calls)
	assert.Equal(t, 0, f.sell.calls)
}

func TestExecuteRejectsSameVenueDifferentCasing(t *testing.T) {
	f := newFixture(t, Config{})
	opp := testOpportunity()
	opp.BuyVenue = "Alpha"
	opp.SellVenue = "ALPHA"

	_, err := f.orch.Execute(context.Background(), opp)
	require.ErrorIs(t, err, domain.ErrInvalidOpportunity)

	assert.True(t, f.ledger.Balances("alpha").Available.Equal(dec("500")))
	assert.True(t, f.ledger.Balances("alpha").Locked.IsZero())
	assert.Equal(t, 0, f.buy.calls)
}

func TestExecuteUnknownVenueMakesNoReservation(t *testing.T) {
	f := newFixture(t, Config{})
	opp := testOpportunity()
	opp.SellVenue = "gamma"

	_, err := f.orch.Execute(context.Background(), opp)
	require.ErrorIs(t, err, domain.ErrUnknownVenue)
	assert.True(t, f.ledger.Balances("alpha").Available.Equal(dec("500")))
}

func TestExecuteStampsLegRequests(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = fullFill("100")

	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderSideBuy, f.buy.lastReq.Side)
	assert.Equal(t, "mkt-a", f.buy.lastReq.MarketID)
	assert.Equal(t, domain.OrderSideSell, f.sell.lastReq.Side)
	assert.Equal(t, "mkt-b", f.sell.lastReq.MarketID)
	assert.Equal(t, outcome.ID, f.buy.lastReq.TradeID)
	assert.Equal(t, outcome.ID, f.sell.lastReq.TradeID)
}

func TestBreakerTripsAfterConsecutiveUnhedgedOutcomes(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = domain.FillResult{Status: domain.FillRejected}

	for i := 0; i < 3; i++ {
		_, err := f.orch.Execute(context.Background(), testOpportunity())
		require.NoError(t, err)
	}

	_, err := f.orch.Execute(context.Background(), testOpportunity())
	require.ErrorIs(t, err, domain.ErrTradingHalted)
	assert.Len(t, f.alerts.critical(), 3)

	f.breaker.Reset()
	f.sell.fill = fullFill("100")
	outcome, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFilled, outcome.Kind)
}

func TestCommitResetsBreakerStreak(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = domain.FillResult{Status: domain.FillRejected}

	_, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	_, err = f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	f.sell.fill = fullFill("100")
	_, err = f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	f.sell.fill = domain.FillResult{Status: domain.FillRejected}
	_, err = f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	assert.True(t, f.breaker.Allow(), "streak must restart after a committed trade")
}

func TestExecutePublishesLockedBalanceGauge(t *testing.T) {
	f := newFixture(t, Config{})
	f.buy.fill = fullFill("100")
	f.sell.fill = fullFill("100")

	_, err := f.orch.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	require.Contains(t, f.metrics.locked, "alpha")
	require.Contains(t, f.metrics.locked, "beta")
	assert.True(t, f.metrics.locked["alpha"].IsZero())
	assert.True(t, f.metrics.locked["beta"].IsZero())
}

func TestExecuteLedgerInvariantsHoldAfterMixedOutcomes(t *testing.T) {
	f := newFixture(t, Config{})
	fills := []struct{ buy, sell domain.FillResult }{
		{fullFill("100"), fullFill("100")},
		{fullFill("100"), domain.FillResult{Status: domain.FillRejected}},
		{domain.FillResult{Status: domain.FillRejected}, domain.FillResult{Status: domain.FillRejected}},
		{domain.FillResult{Status: domain.FillPartial, FilledSize: dec("40")}, fullFill("100")},
	}

	for _, tc := range fills {
		f.breaker.Reset()
		f.buy.fill = tc.buy
		f.sell.fill = tc.sell
		_, err := f.orch.Execute(context.Background(), testOpportunity())
		require.NoError(t, err)
	}

	for venue, bal := range f.ledger.SnapshotAll() {
		assert.False(t, bal.Available.IsNegative(), "%s available went negative", venue)
		assert.True(t, bal.Locked.IsZero(), "%s left a dangling reservation", venue)
	}
}
