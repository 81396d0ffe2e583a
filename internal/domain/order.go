package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is one leg submission handed to an order gateway. Nonce and
// Salt are filled in by the gateway immediately before signing.
type OrderRequest struct {
	Venue    string
	MarketID string
	Side     OrderSide
	Price    decimal.Decimal
	Size     decimal.Decimal
	Nonce    string
	Salt     string
	TradeID  string
}

// FillStatus is the closed set of normalized venue responses. Anything a
// venue reports that does not map into this set becomes FillUnknown, which
// downstream code must treat as worst-case unfilled risk, never as success.
type FillStatus string

const (
	FillFilled   FillStatus = "filled"
	FillPartial  FillStatus = "partial"
	FillRejected FillStatus = "rejected"
	FillUnknown  FillStatus = "unknown"
)

// ParseFillStatus normalizes a raw venue status string. Unrecognized or
// empty values map to FillUnknown.
func ParseFillStatus(raw string) FillStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "filled", "matched", "executed", "complete":
		return FillFilled
	case "partial", "partially_filled", "partial_fill":
		return FillPartial
	case "rejected", "cancelled", "canceled", "failed", "expired":
		return FillRejected
	default:
		return FillUnknown
	}
}

// FillResult is the normalized outcome of one order submission.
type FillResult struct {
	OrderID    string
	Status     FillStatus
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	Message    string
	PlacedAt   time.Time
}

// FilledFraction returns FilledSize / requested, or zero when requested is
// not positive.
func (f FillResult) FilledFraction(requested decimal.Decimal) decimal.Decimal {
	if !requested.IsPositive() {
		return decimal.Zero
	}
	return f.FilledSize.Div(requested)
}
