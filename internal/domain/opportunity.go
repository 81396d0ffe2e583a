// Package domain holds the shared types and collaborator interfaces of the
// crossarb trading core. It has no I/O of its own.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is one detected cross-venue spread, already matched to the same
// real-world event by the upstream event matcher. Prices are probabilities in
// (0,1); size is the USD notional to put on each leg.
type Opportunity struct {
	ID           string
	BuyVenue     string
	SellVenue    string
	BuyMarketID  string
	SellMarketID string
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	Size         decimal.Decimal
	NetEdgeBps   float64
	DetectedAt   time.Time
}

// Validate checks the structural invariants of an opportunity. A buy and
// sell on the same venue would double-check the same locked balance and is
// rejected here, before any reservation is made.
func (o Opportunity) Validate() error {
	if strings.TrimSpace(o.BuyVenue) == "" || strings.TrimSpace(o.SellVenue) == "" {
		return fmt.Errorf("%w: missing venue", ErrInvalidOpportunity)
	}
	if strings.EqualFold(o.BuyVenue, o.SellVenue) {
		return fmt.Errorf("%w: buy and sell venue are both %q", ErrInvalidOpportunity, o.BuyVenue)
	}
	if !o.BuyPrice.IsPositive() || !o.SellPrice.IsPositive() {
		return fmt.Errorf("%w: prices must be positive (buy=%s sell=%s)",
			ErrInvalidOpportunity, o.BuyPrice, o.SellPrice)
	}
	if !o.Size.IsPositive() {
		return fmt.Errorf("%w: size must be positive (size=%s)", ErrInvalidOpportunity, o.Size)
	}
	if o.BuyPrice.GreaterThanOrEqual(o.SellPrice) {
		return fmt.Errorf("%w: buy price %s is not below sell price %s",
			ErrInvalidOpportunity, o.BuyPrice, o.SellPrice)
	}
	return nil
}

// Spread returns sellPrice - buyPrice.
func (o Opportunity) Spread() decimal.Decimal {
	return o.SellPrice.Sub(o.BuyPrice)
}
