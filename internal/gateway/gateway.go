// Package gateway implements the per-venue order gateway: it validates an
// order request, stamps it with collision-resistant identifiers, submits it
// through the retry policy, and normalizes the venue's response into the
// closed fill-status set.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/crypto"
	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/retry"
)

// VenueClient signs and submits a prepared order to one venue, returning the
// venue's response already mapped into the closed FillStatus set.
type VenueClient interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error)
}

// BalanceFunc reports the funds the venue believes are available. It is
// consulted only on the unreserved placement path.
type BalanceFunc func(ctx context.Context) (decimal.Decimal, error)

// Config holds the per-venue gateway parameters.
type Config struct {
	Venue           string
	MarketIDPattern string // regexp the instrument identifier must match
	SubmitTimeout   time.Duration
	Retry           retry.Policy
}

// Gateway is one venue's order gateway. The placement API is split in two:
// Place runs the venue balance pre-check, PlaceReserved skips it. The
// orchestrator always uses PlaceReserved, because by the time it places an
// order the funds are already locked in the ledger and re-deriving a balance
// decision on them would be a guaranteed false negative.
type Gateway struct {
	venue    string
	client   VenueClient
	balance  BalanceFunc
	marketID *regexp.Regexp
	timeout  time.Duration
	policy   retry.Policy
	logger   *slog.Logger
}

// New creates a Gateway. balance may be nil, in which case Place behaves
// like PlaceReserved.
func New(cfg Config, client VenueClient, balance BalanceFunc, logger *slog.Logger) (*Gateway, error) {
	pattern := cfg.MarketIDPattern
	if pattern == "" {
		pattern = `^\S+$`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid market id pattern for %s: %w", cfg.Venue, err)
	}

	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Gateway{
		venue:    cfg.Venue,
		client:   client,
		balance:  balance,
		marketID: re,
		timeout:  timeout,
		policy:   cfg.Retry,
		logger:   logger.With(slog.String("component", "gateway"), slog.String("venue", cfg.Venue)),
	}, nil
}

// Venue returns the venue this gateway submits to.
func (g *Gateway) Venue() string {
	return g.venue
}

// Place submits an order after checking the venue balance covers its
// notional. Direct callers use this path; the orchestrator must not.
func (g *Gateway) Place(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if g.balance != nil {
		available, err := g.balance(ctx)
		if err != nil {
			return domain.FillResult{}, fmt.Errorf("gateway: %s balance check: %w", g.venue, err)
		}
		if available.LessThan(req.Size) {
			return domain.FillResult{}, &domain.InsufficientBalanceError{
				Venue:     g.venue,
				Requested: req.Size,
				Available: available,
			}
		}
	}
	return g.place(ctx, req)
}

// PlaceReserved submits an order whose funds are already reserved in the
// ledger. The reservation is authoritative; no balance is consulted here.
func (g *Gateway) PlaceReserved(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	return g.place(ctx, req)
}

func (g *Gateway) place(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if !g.marketID.MatchString(req.MarketID) {
		return domain.FillResult{}, fmt.Errorf("gateway: %s rejects market id %q: %w",
			g.venue, req.MarketID, domain.ErrInvalidOpportunity)
	}
	if !req.Price.IsPositive() || !req.Size.IsPositive() {
		return domain.FillResult{}, fmt.Errorf("gateway: %s rejects non-positive order (price=%s size=%s): %w",
			g.venue, req.Price, req.Size, domain.ErrInvalidOpportunity)
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("gateway: %s: %w", g.venue, err)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("gateway: %s: %w", g.venue, err)
	}
	req.Venue = g.venue
	req.Nonce = nonce
	req.Salt = salt

	start := time.Now()
	result, err := retry.Do(ctx, g.policy, g.logger, g.venue+" submit",
		func(ctx context.Context) (domain.FillResult, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return g.client.Submit(attemptCtx, req)
		})
	if err != nil {
		// A failed or timed-out submission surfaces as an unknown fill, never
		// as success; the caller decides how to resolve the reservation.
		g.logger.Warn("order submission failed",
			slog.String("market_id", req.MarketID),
			slog.String("side", string(req.Side)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return domain.FillResult{Status: domain.FillUnknown, Message: err.Error(), PlacedAt: start},
			fmt.Errorf("%w: %s: %w", domain.ErrGatewaySubmission, g.venue, err)
	}

	result.Status = normalizeStatus(result.Status)
	result.PlacedAt = start

	g.logger.Info("order placed",
		slog.String("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.String("order_id", result.OrderID),
		slog.String("status", string(result.Status)),
		slog.String("filled_size", result.FilledSize.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// normalizeStatus guards the closed status set at the gateway boundary: a
// client reporting anything outside the set becomes unknown, never filled.
func normalizeStatus(s domain.FillStatus) domain.FillStatus {
	switch s {
	case domain.FillFilled, domain.FillPartial, domain.FillRejected:
		return s
	default:
		return domain.FillUnknown
	}
}
