package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one level of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// DepthSnapshot is a normalized order book view. Prices are probabilities in
// (0,1) regardless of how the venue quotes them; depths are USD notional.
type DepthSnapshot struct {
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidDepth  decimal.Decimal
	AskDepth  decimal.Decimal
	Bids      []PriceLevel
	Asks      []PriceLevel
	FetchedAt time.Time
}

// DepthSource provides order book snapshots for one venue. Implemented by
// the platform REST clients and by the websocket feed.
type DepthSource interface {
	Depth(ctx context.Context, marketID string) (DepthSnapshot, error)
}
