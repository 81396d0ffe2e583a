// Package finder polls order books across venues for matched market pairs
// and hands executable opportunities to the trade executor. It decides only
// whether an edge exists and how much to size; everything after that is the
// executor's problem.
package finder

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/edgefold/crossarb/internal/domain"
)

// Executor runs one opportunity end to end.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (domain.TradeOutcome, error)
}

// Pair is one matched market: the same real-world event listed on two
// venues. Matching is configured by an operator, not inferred.
type Pair struct {
	Name         string
	BuyVenue     string
	BuyMarketID  string
	SellVenue    string
	SellMarketID string
}

// Config holds the finder's trading thresholds.
type Config struct {
	// Interval between polling sweeps.
	Interval time.Duration
	// MinEdgeBps is the minimum net edge, in basis points of the buy price,
	// required to act.
	MinEdgeBps float64
	// MaxSize caps the per-leg USD notional.
	MaxSize decimal.Decimal
	// DepthFraction limits the order to a fraction of the visible top-level
	// notional so one trade does not walk the book.
	DepthFraction decimal.Decimal
	// FeeRates maps venue name to taker fee rate (e.g. 0.02 for 2%).
	FeeRates map[string]decimal.Decimal
}

// Finder sweeps the configured pairs on a fixed interval.
type Finder struct {
	depths   map[string]domain.DepthSource
	pairs    []Pair
	executor Executor
	cfg      Config
	logger   *slog.Logger
}

// New creates a Finder. depths maps venue name to its depth source.
func New(depths map[string]domain.DepthSource, pairs []Pair, executor Executor, cfg Config, logger *slog.Logger) *Finder {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.DepthFraction.IsZero() {
		cfg.DepthFraction = decimal.RequireFromString("0.25")
	}
	return &Finder{
		depths:   depths,
		pairs:    pairs,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "finder")),
	}
}

// Run polls until ctx is cancelled. Each sweep evaluates every pair; a
// failed evaluation or execution never stops the loop.
func (f *Finder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.logger.Info("finder started",
		slog.Int("pairs", len(f.pairs)),
		slog.Duration("interval", f.cfg.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.sweep(ctx)
		}
	}
}

func (f *Finder) sweep(ctx context.Context) {
	for _, pair := range f.pairs {
		opp, ok, err := f.Evaluate(ctx, pair)
		if err != nil {
			f.logger.Debug("pair evaluation failed",
				slog.String("pair", pair.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		f.logger.Info("opportunity detected",
			slog.String("pair", pair.Name),
			slog.String("size", opp.Size.String()),
			slog.String("spread", opp.Spread().String()),
			slog.Float64("net_edge_bps", opp.NetEdgeBps),
		)

		outcome, err := f.executor.Execute(ctx, opp)
		if err != nil {
			f.logger.Warn("execution refused",
				slog.String("pair", pair.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.logger.Info("execution finished",
			slog.String("pair", pair.Name),
			slog.String("outcome", string(outcome.Kind)),
		)
	}
}

// Evaluate fetches both books and decides whether the pair is currently
// executable. It returns the sized opportunity and ok=true only when the net
// edge clears the configured threshold.
func (f *Finder) Evaluate(ctx context.Context, pair Pair) (domain.Opportunity, bool, error) {
	buySource, ok := f.depths[pair.BuyVenue]
	if !ok {
		return domain.Opportunity{}, false, domain.ErrUnknownVenue
	}
	sellSource, ok := f.depths[pair.SellVenue]
	if !ok {
		return domain.Opportunity{}, false, domain.ErrUnknownVenue
	}

	var buyBook, sellBook domain.DepthSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buyBook, err = buySource.Depth(gctx, pair.BuyMarketID)
		return err
	})
	g.Go(func() error {
		var err error
		sellBook, err = sellSource.Depth(gctx, pair.SellMarketID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Opportunity{}, false, err
	}

	buyAsk := buyBook.BestAsk
	sellBid := sellBook.BestBid
	if !buyAsk.IsPositive() || !sellBid.IsPositive() {
		return domain.Opportunity{}, false, nil
	}

	// Net of taker fees on both legs: effective cost rises on the buy,
	// proceeds shrink on the sell.
	buyCost := buyAsk.Mul(decimal.NewFromInt(1).Add(f.feeRate(pair.BuyVenue)))
	sellProceeds := sellBid.Mul(decimal.NewFromInt(1).Sub(f.feeRate(pair.SellVenue)))

	net := sellProceeds.Sub(buyCost)
	if !net.IsPositive() {
		return domain.Opportunity{}, false, nil
	}
	edgeBps, _ := net.Div(buyCost).Mul(decimal.NewFromInt(10_000)).Float64()
	if edgeBps < f.cfg.MinEdgeBps {
		return domain.Opportunity{}, false, nil
	}

	size := f.sizeFor(buyBook, sellBook)
	if !size.IsPositive() {
		return domain.Opportunity{}, false, nil
	}

	return domain.Opportunity{
		ID:           pair.Name,
		BuyVenue:     pair.BuyVenue,
		SellVenue:    pair.SellVenue,
		BuyMarketID:  pair.BuyMarketID,
		SellMarketID: pair.SellMarketID,
		BuyPrice:     buyAsk,
		SellPrice:    sellBid,
		Size:         size,
		NetEdgeBps:   edgeBps,
		DetectedAt:   time.Now().UTC(),
	}, true, nil
}

// sizeFor limits notional to a fraction of the thinner side's visible
// depth, capped by MaxSize.
func (f *Finder) sizeFor(buyBook, sellBook domain.DepthSnapshot) decimal.Decimal {
	depth := buyBook.AskDepth
	if sellBook.BidDepth.LessThan(depth) {
		depth = sellBook.BidDepth
	}

	size := depth.Mul(f.cfg.DepthFraction)
	if f.cfg.MaxSize.IsPositive() && size.GreaterThan(f.cfg.MaxSize) {
		size = f.cfg.MaxSize
	}
	return size.Round(2)
}

func (f *Finder) feeRate(venue string) decimal.Decimal {
	if rate, ok := f.cfg.FeeRates[venue]; ok {
		return rate
	}
	return decimal.Zero
}
