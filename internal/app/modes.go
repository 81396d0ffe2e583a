package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/edgefold/crossarb/internal/crypto"
	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/feed"
	"github.com/edgefold/crossarb/internal/finder"
	"github.com/edgefold/crossarb/internal/gateway"
	"github.com/edgefold/crossarb/internal/orchestrator"
	"github.com/edgefold/crossarb/internal/platform/kalshi"
	"github.com/edgefold/crossarb/internal/platform/polymarket"
	"github.com/edgefold/crossarb/internal/retry"
)

// liveMode trades against the real venues. Both venue clients must be fully
// credentialed; configuration validation has already checked the fields
// exist, so failures here are API-level.
func (a *App) liveMode(ctx context.Context, deps *Dependencies) error {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Polymarket.ChainID)
	if err != nil {
		return fmt.Errorf("app: signer: %w", err)
	}

	pm := polymarket.NewClient(a.cfg.Polymarket.ClobHost, signer, nil)
	if err := pm.DeriveAPIKey(ctx); err != nil {
		return fmt.Errorf("app: polymarket api key: %w", err)
	}

	ks := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKeyID)
	rsaPEM, err := os.ReadFile(a.cfg.Kalshi.RsaPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("app: kalshi rsa key: %w", err)
	}
	if err := ks.SetRSAPrivateKey(rsaPEM); err != nil {
		return fmt.Errorf("app: kalshi rsa key: %w", err)
	}

	gateways, err := a.buildGateways(map[string]venueClient{
		"polymarket": {client: pm, marketIDPattern: `^[0-9]+$`},
		"kalshi":     {client: ks, marketIDPattern: `^[A-Za-z0-9._-]+$`},
	})
	if err != nil {
		return err
	}

	orch := a.buildOrchestrator(deps, gateways)

	// Polymarket depth streams over the market websocket with the REST book
	// as fallback for assets the feed has not seen yet. Kalshi depth is
	// polled directly.
	var assetIDs []string
	for _, p := range a.cfg.Pairs {
		if strings.EqualFold(p.BuyVenue, "polymarket") {
			assetIDs = append(assetIDs, p.BuyMarketID)
		}
		if strings.EqualFold(p.SellVenue, "polymarket") {
			assetIDs = append(assetIDs, p.SellMarketID)
		}
	}
	depthFeed := feed.New(a.cfg.Polymarket.WsHost, assetIDs, a.logger)

	depths := map[string]domain.DepthSource{
		"polymarket": &fallbackDepth{primary: depthFeed, fallback: pm},
		"kalshi":     ks,
	}

	fnd := finder.New(depths, a.pairs(), orch, a.finderConfig(), a.logger)

	g, ctx := errgroup.WithContext(ctx)
	if len(assetIDs) > 0 {
		g.Go(func() error { return depthFeed.Run(ctx) })
	}
	g.Go(func() error { return fnd.Run(ctx) })
	if deps.OutcomeStore != nil && deps.Archiver != nil {
		g.Go(func() error {
			return runArchiveLoop(ctx, deps.OutcomeStore, deps.Archiver, a.logger)
		})
	}
	return g.Wait()
}

// paperMode runs the full reservation and execution pipeline against
// simulated venues. Every order fills completely at its requested price, so
// paper sessions exercise the ledger, gateways, and orchestrator without
// touching an exchange.
func (a *App) paperMode(ctx context.Context, deps *Dependencies) error {
	venues := map[string]venueClient{}
	for _, p := range a.cfg.Pairs {
		for _, v := range []string{p.BuyVenue, p.SellVenue} {
			name := strings.ToLower(v)
			if _, ok := venues[name]; !ok {
				venues[name] = venueClient{client: newPaperVenue(name)}
			}
		}
	}
	if len(venues) == 0 {
		venues["polymarket"] = venueClient{client: newPaperVenue("polymarket")}
		venues["kalshi"] = venueClient{client: newPaperVenue("kalshi")}
	}

	gateways, err := a.buildGateways(venues)
	if err != nil {
		return err
	}
	orch := a.buildOrchestrator(deps, gateways)

	depths := make(map[string]domain.DepthSource, len(venues))
	for name, v := range venues {
		depths[name] = v.client.(*paperVenue)
	}

	fnd := finder.New(depths, a.pairs(), orch, a.finderConfig(), a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fnd.Run(ctx) })
	if deps.OutcomeStore != nil && deps.Archiver != nil {
		g.Go(func() error {
			return runArchiveLoop(ctx, deps.OutcomeStore, deps.Archiver, a.logger)
		})
	}
	return g.Wait()
}

type venueClient struct {
	client          gateway.VenueClient
	marketIDPattern string
}

func (a *App) buildGateways(venues map[string]venueClient) ([]orchestrator.LegPlacer, error) {
	policy := retry.Policy{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		BaseDelay:   a.cfg.Retry.BaseDelay.Duration,
		MaxDelay:    a.cfg.Retry.MaxDelay.Duration,
	}

	placers := make([]orchestrator.LegPlacer, 0, len(venues))
	for name, v := range venues {
		gw, err := gateway.New(gateway.Config{
			Venue:           name,
			MarketIDPattern: v.marketIDPattern,
			SubmitTimeout:   a.cfg.Retry.SubmitTimeout.Duration,
			Retry:           policy,
		}, v.client, nil, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: gateway %s: %w", name, err)
		}
		placers = append(placers, gw)
	}
	return placers, nil
}

func (a *App) buildOrchestrator(deps *Dependencies, gateways []orchestrator.LegPlacer) *orchestrator.Orchestrator {
	orch := orchestrator.New(
		deps.Ledger,
		gateways,
		deps.Breaker,
		deps.Alerts,
		deps.Metrics,
		orchestrator.Config{
			FillTolerance: decimal.NewFromFloat(a.cfg.Trading.FillTolerance),
			CommitPolicy:  orchestrator.CommitPolicy(a.cfg.Trading.CommitPolicy),
		},
		a.logger,
	)
	if deps.OutcomeStore != nil {
		orch = orch.WithStore(deps.OutcomeStore)
	}
	return orch
}

func (a *App) pairs() []finder.Pair {
	pairs := make([]finder.Pair, 0, len(a.cfg.Pairs))
	for _, p := range a.cfg.Pairs {
		pairs = append(pairs, finder.Pair{
			Name:         p.Name,
			BuyVenue:     strings.ToLower(p.BuyVenue),
			BuyMarketID:  p.BuyMarketID,
			SellVenue:    strings.ToLower(p.SellVenue),
			SellMarketID: p.SellMarketID,
		})
	}
	return pairs
}

func (a *App) finderConfig() finder.Config {
	fees := make(map[string]decimal.Decimal, len(a.cfg.Trading.FeeRates))
	for venue, rate := range a.cfg.Trading.FeeRates {
		fees[strings.ToLower(venue)] = decimal.NewFromFloat(rate)
	}
	return finder.Config{
		Interval:      a.cfg.Trading.PollInterval.Duration,
		MinEdgeBps:    a.cfg.Trading.MinEdgeBps,
		MaxSize:       decimal.NewFromFloat(a.cfg.Trading.MaxSize),
		DepthFraction: decimal.NewFromFloat(a.cfg.Trading.DepthFraction),
		FeeRates:      fees,
	}
}

// fallbackDepth consults the streaming feed first and falls back to a REST
// lookup when the feed has no fresh book for the asset.
type fallbackDepth struct {
	primary  domain.DepthSource
	fallback domain.DepthSource
}

func (d *fallbackDepth) Depth(ctx context.Context, marketID string) (domain.DepthSnapshot, error) {
	snap, err := d.primary.Depth(ctx, marketID)
	if err == nil {
		return snap, nil
	}
	return d.fallback.Depth(ctx, marketID)
}

// runArchiveLoop periodically ships outcomes the store has accumulated to
// long-term storage. Rows already shipped in this session are skipped.
func runArchiveLoop(ctx context.Context, store domain.OutcomeStore, archiver domain.OutcomeArchiver, logger *slog.Logger) error {
	const interval = 15 * time.Minute

	shipped := make(map[string]struct{})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		outcomes, err := store.ListRecent(ctx, 200)
		if err != nil {
			logger.WarnContext(ctx, "archive: listing outcomes failed", slog.String("error", err.Error()))
			continue
		}

		batch := outcomes[:0:0]
		for _, o := range outcomes {
			if _, ok := shipped[o.ID]; !ok {
				batch = append(batch, o)
			}
		}
		if len(batch) == 0 {
			continue
		}

		if err := archiver.Archive(ctx, batch); err != nil {
			logger.WarnContext(ctx, "archive: upload failed",
				slog.Int("outcomes", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, o := range batch {
			shipped[o.ID] = struct{}{}
		}
		logger.InfoContext(ctx, "archive: shipped outcomes", slog.Int("count", len(batch)))
	}
}

// paperVenue is an in-process venue simulator. Its book performs a small
// random walk around a per-market midpoint, and every submitted order fills
// completely at its requested price.
type paperVenue struct {
	name string

	mu   sync.Mutex
	rng  *rand.Rand
	mids map[string]decimal.Decimal
}

func newPaperVenue(name string) *paperVenue {
	return &paperVenue{
		name: name,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		mids: make(map[string]decimal.Decimal),
	}
}

func (v *paperVenue) Submit(_ context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	return domain.FillResult{
		OrderID:    "paper-" + uuid.NewString(),
		Status:     domain.FillFilled,
		FilledSize: req.Size,
		AvgPrice:   req.Price,
		PlacedAt:   time.Now().UTC(),
	}, nil
}

func (v *paperVenue) Depth(_ context.Context, marketID string) (domain.DepthSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	mid, ok := v.mids[marketID]
	if !ok {
		mid = seedMid(v.name, marketID)
	}
	step := decimal.NewFromFloat((v.rng.Float64() - 0.5) * 0.01)
	mid = clampProbability(mid.Add(step))
	v.mids[marketID] = mid

	halfSpread := decimal.RequireFromString("0.005")
	bid := clampProbability(mid.Sub(halfSpread))
	ask := clampProbability(mid.Add(halfSpread))
	depth := decimal.NewFromInt(500)

	return domain.DepthSnapshot{
		BestBid:   bid,
		BestAsk:   ask,
		BidDepth:  depth,
		AskDepth:  depth,
		Bids:      []domain.PriceLevel{{Price: bid, Size: depth}},
		Asks:      []domain.PriceLevel{{Price: ask, Size: depth}},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// seedMid derives a stable starting midpoint in [0.35, 0.65) from the venue
// and market names, so the same pair gets the same book across restarts.
func seedMid(venue, marketID string) decimal.Decimal {
	sum := sha256.Sum256([]byte(venue + "/" + marketID))
	n := binary.BigEndian.Uint64(sum[:8]) % 3000
	return decimal.NewFromInt(3500 + int64(n)).Div(decimal.NewFromInt(10000))
}

func clampProbability(p decimal.Decimal) decimal.Decimal {
	low := decimal.RequireFromString("0.02")
	high := decimal.RequireFromString("0.98")
	if p.LessThan(low) {
		return low
	}
	if p.GreaterThan(high) {
		return high
	}
	return p
}
