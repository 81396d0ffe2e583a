// Package orchestrator drives the full life of a two-sided arbitrage trade:
// validate, reserve capital on both venues, place both legs, then resolve
// every reservation exactly once against the ledger. All paths terminate in
// one of the four trade-outcome kinds or a pre-trade error; nothing escapes
// this boundary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/ledger"
	"github.com/edgefold/crossarb/internal/risk"
)

// LegPlacer is the slice of the order gateway the orchestrator uses. Only
// the reserved path is reachable from here: the ledger reservation is
// authoritative and the gateway must never re-derive a balance decision on
// funds this orchestrator already locked.
type LegPlacer interface {
	Venue() string
	PlaceReserved(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error)
}

// CommitPolicy selects how a within-tolerance partial fill resolves its
// reservation.
type CommitPolicy string

const (
	// CommitFilledOnly commits exactly the filled proportion and releases
	// the remainder. This is the default.
	CommitFilledOnly CommitPolicy = "filled_only"
	// CommitFullRequested commits the entire reserved amount.
	CommitFullRequested CommitPolicy = "full_requested"
)

// Config holds the immutable trading parameters. Nothing here is read from
// ambient state after construction.
type Config struct {
	// FillTolerance is the fraction of the requested size an order may miss
	// and still count as fully filled (default 0.01 = 1%).
	FillTolerance decimal.Decimal
	CommitPolicy  CommitPolicy
}

// Orchestrator executes trades against an injected ledger and a fixed set of
// venue gateways. Multiple trades may run concurrently; within one trade
// only the two leg placements run in parallel.
type Orchestrator struct {
	ledger   *ledger.Ledger
	gateways map[string]LegPlacer
	breaker  *risk.Breaker
	alerts   domain.AlertSink
	metrics  domain.MetricsSink
	store    domain.OutcomeStore // optional
	cfg      Config
	logger   *slog.Logger
}

// New creates an Orchestrator. alerts and metrics must be non-nil (use the
// domain nop implementations when unwired); store may be nil.
func New(
	led *ledger.Ledger,
	gateways []LegPlacer,
	breaker *risk.Breaker,
	alerts domain.AlertSink,
	metrics domain.MetricsSink,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.FillTolerance.IsZero() {
		cfg.FillTolerance = decimal.RequireFromString("0.01")
	}
	if cfg.CommitPolicy == "" {
		cfg.CommitPolicy = CommitFilledOnly
	}

	byVenue := make(map[string]LegPlacer, len(gateways))
	for _, g := range gateways {
		byVenue[strings.ToLower(g.Venue())] = g
	}

	return &Orchestrator{
		ledger:   led,
		gateways: byVenue,
		breaker:  breaker,
		alerts:   alerts,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// WithStore attaches an outcome store; outcomes are persisted best-effort.
func (o *Orchestrator) WithStore(store domain.OutcomeStore) *Orchestrator {
	o.store = store
	return o
}

// reservation tracks one leg's claim against the ledger. Each reservation is
// resolved exactly once; the outstanding flag is what makes a double
// release/commit impossible even on exceptional paths.
type reservation struct {
	venue       string
	amount      decimal.Decimal
	outstanding bool
}

func (r *reservation) release(led *ledger.Ledger) {
	if !r.outstanding {
		return
	}
	r.outstanding = false
	led.Release(r.venue, r.amount)
}

// resolveFill commits the committed portion and releases the rest.
func (r *reservation) resolveFill(led *ledger.Ledger, committed decimal.Decimal) {
	if !r.outstanding {
		return
	}
	r.outstanding = false

	if committed.GreaterThan(r.amount) {
		committed = r.amount
	}
	if committed.IsPositive() {
		led.Commit(r.venue, committed)
	}
	if rest := r.amount.Sub(committed); rest.IsPositive() {
		led.Release(r.venue, rest)
	}
}

// legResult is one placement's outcome plus the hedging decision derived
// from it.
type legResult struct {
	fill    domain.FillResult
	err     error
	success bool            // full fill within tolerance
	filled  decimal.Decimal // size actually filled, clamped to requested
}

// Execute runs one opportunity through the full state machine and returns
// its terminal outcome. Pre-trade failures (breaker, validation, reservation)
// return an error and have no ledger side effects beyond their own cleanup.
func (o *Orchestrator) Execute(ctx context.Context, opp domain.Opportunity) (domain.TradeOutcome, error) {
	// Validating.
	if !o.breaker.Allow() {
		return domain.TradeOutcome{}, fmt.Errorf("%w: %s", domain.ErrTradingHalted, o.breaker.Reason())
	}
	if err := opp.Validate(); err != nil {
		return domain.TradeOutcome{}, err
	}

	buyGW, ok := o.gateways[strings.ToLower(opp.BuyVenue)]
	if !ok {
		return domain.TradeOutcome{}, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, opp.BuyVenue)
	}
	sellGW, ok := o.gateways[strings.ToLower(opp.SellVenue)]
	if !ok {
		return domain.TradeOutcome{}, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, opp.SellVenue)
	}

	tradeID := uuid.New().String()
	log := o.logger.With(
		slog.String("trade_id", tradeID),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
		slog.String("size", opp.Size.String()),
	)
	o.metrics.TradeAttempted(ctx)

	// Reserving. Each leg's reservation state is tracked independently so
	// no code path can resolve one twice, and the deferred cleanup below
	// releases anything still outstanding if order construction panics or
	// errors before placement.
	buyRes := &reservation{venue: opp.BuyVenue, amount: opp.Size}
	sellRes := &reservation{venue: opp.SellVenue, amount: opp.Size}

	if err := o.ledger.Reserve(buyRes.venue, buyRes.amount); err != nil {
		return domain.TradeOutcome{}, err
	}
	buyRes.outstanding = true

	defer func() {
		buyRes.release(o.ledger)
		sellRes.release(o.ledger)
	}()

	if err := o.ledger.Reserve(sellRes.venue, sellRes.amount); err != nil {
		buyRes.release(o.ledger)
		return domain.TradeOutcome{}, err
	}
	sellRes.outstanding = true

	startedAt := time.Now().UTC()

	// Placing. The two legs are independent network operations and run
	// concurrently; each carries the already-reserved flag by construction,
	// because LegPlacer only exposes the reserved path.
	buyReq := domain.OrderRequest{
		MarketID: opp.BuyMarketID,
		Side:     domain.OrderSideBuy,
		Price:    opp.BuyPrice,
		Size:     opp.Size,
		TradeID:  tradeID,
	}
	sellReq := domain.OrderRequest{
		MarketID: opp.SellMarketID,
		Side:     domain.OrderSideSell,
		Price:    opp.SellPrice,
		Size:     opp.Size,
		TradeID:  tradeID,
	}

	var buyLeg, sellLeg legResult
	g := new(errgroup.Group)
	g.Go(func() error {
		buyLeg = o.placeLeg(ctx, buyGW, buyReq)
		return nil
	})
	g.Go(func() error {
		sellLeg = o.placeLeg(ctx, sellGW, sellReq)
		return nil
	})
	_ = g.Wait()

	// Resolving.
	outcome := o.resolve(ctx, tradeID, opp, buyRes, sellRes, buyLeg, sellLeg, startedAt, log)

	o.metrics.SetLockedBalance(ctx, opp.BuyVenue, o.ledger.Balances(opp.BuyVenue).Locked)
	o.metrics.SetLockedBalance(ctx, opp.SellVenue, o.ledger.Balances(opp.SellVenue).Locked)

	if o.store != nil {
		if err := o.store.Create(ctx, outcome); err != nil {
			log.Warn("outcome persistence failed", slog.String("error", err.Error()))
		}
	}
	return outcome, nil
}

// placeLeg submits one leg and classifies the fill for hedging purposes. A
// leg succeeds only on a full fill within tolerance; partial fills and
// unknown statuses count as failures, with the filled proportion recorded.
func (o *Orchestrator) placeLeg(ctx context.Context, gw LegPlacer, req domain.OrderRequest) legResult {
	fill, err := gw.PlaceReserved(ctx, req)
	res := legResult{fill: fill, err: err, filled: decimal.Zero}
	if err != nil {
		return res
	}

	switch fill.Status {
	case domain.FillFilled, domain.FillPartial:
		res.filled = fill.FilledSize
		if res.filled.GreaterThan(req.Size) {
			res.filled = req.Size
		}
		threshold := decimal.NewFromInt(1).Sub(o.cfg.FillTolerance)
		res.success = fill.FilledFraction(req.Size).GreaterThanOrEqual(threshold)
	case domain.FillRejected:
		// Known not filled; nothing at risk.
	default:
		// Unknown status: fail-safe, assume unfilled risk, never success.
	}
	return res
}

// resolve settles both reservations exactly once and produces the terminal
// outcome, alerting on unhedged exposure and feeding the risk breaker.
func (o *Orchestrator) resolve(
	ctx context.Context,
	tradeID string,
	opp domain.Opportunity,
	buyRes, sellRes *reservation,
	buyLeg, sellLeg legResult,
	startedAt time.Time,
	log *slog.Logger,
) domain.TradeOutcome {
	o.settleLeg(buyRes, buyLeg)
	o.settleLeg(sellRes, sellLeg)

	var kind domain.OutcomeKind
	switch {
	case buyLeg.success && sellLeg.success:
		kind = domain.OutcomeBothFilled
	case !buyLeg.success && !sellLeg.success && !buyLeg.filled.IsPositive() && !sellLeg.filled.IsPositive():
		kind = domain.OutcomeBothFailed
	case buyLeg.filled.IsPositive() && !sellLeg.success:
		kind = domain.OutcomeUnhedgedBuyOnly
	default:
		kind = domain.OutcomeUnhedgedSellOnly
	}

	outcome := domain.TradeOutcome{
		ID:          tradeID,
		Opportunity: opp,
		Kind:        kind,
		BuyFill:     buyLeg.fill,
		SellFill:    sellLeg.fill,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}

	switch kind {
	case domain.OutcomeBothFilled:
		o.metrics.TradeCommitted(ctx)
		o.breaker.RecordSuccess()
		log.Info("trade committed",
			slog.String("buy_order", buyLeg.fill.OrderID),
			slog.String("sell_order", sellLeg.fill.OrderID),
		)

	case domain.OutcomeBothFailed:
		o.metrics.TradeRolledBack(ctx)
		o.breaker.RecordFailure("both legs failed")
		outcome.Note = legFailureNote(buyLeg, sellLeg)
		log.Warn("trade rolled back", slog.String("note", outcome.Note))

	default:
		o.metrics.TradeUnhedged(ctx)
		outcome.Note = legFailureNote(buyLeg, sellLeg)

		msg := fmt.Sprintf(
			"unhedged exposure on trade %s: %s (buy %s on %s: %s, sell %s on %s: %s), manual remediation required",
			tradeID, kind,
			buyLeg.filled, opp.BuyVenue, buyLeg.fill.Status,
			sellLeg.filled, opp.SellVenue, sellLeg.fill.Status,
		)
		log.Error("unhedged exposure", slog.String("kind", string(kind)), slog.String("note", outcome.Note))

		// Exactly one CRITICAL alert per unhedged outcome.
		if err := o.alerts.Send(ctx, domain.Alert{
			Level:     domain.AlertCritical,
			Message:   msg,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			log.Error("critical alert delivery failed", slog.String("error", err.Error()))
		}
		o.breaker.RecordFailure(string(kind))
	}

	return outcome
}

// settleLeg resolves one reservation according to the leg's fill and the
// commit policy. Successful legs under CommitFullRequested spend the whole
// reservation; otherwise exactly the filled proportion is spent and the rest
// returns to available.
func (o *Orchestrator) settleLeg(res *reservation, leg legResult) {
	if leg.success && o.cfg.CommitPolicy == CommitFullRequested {
		res.resolveFill(o.ledger, res.amount)
		return
	}
	res.resolveFill(o.ledger, leg.filled)
}

func legFailureNote(buyLeg, sellLeg legResult) string {
	part := func(name string, leg legResult) string {
		switch {
		case leg.err != nil:
			return fmt.Sprintf("%s: %v", name, leg.err)
		case leg.success:
			return fmt.Sprintf("%s: filled %s", name, leg.filled)
		default:
			return fmt.Sprintf("%s: %s (filled %s)", name, leg.fill.Status, leg.filled)
		}
	}
	return part("buy", buyLeg) + "; " + part("sell", sellLeg)
}
