package kalshi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

var cents = decimal.New(1, 2)

// apiOrder is the order-creation request body. Prices are cents; count is
// whole contracts.
type apiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int64  `json:"count"`
	YesPriceCents int64  `json:"yes_price"`
}

// buildOrder converts one leg into a YES-side limit order. Contract count is
// the notional divided by the per-contract price, rounded down; a leg too
// small to buy one contract is rejected before hitting the wire.
func buildOrder(req domain.OrderRequest) (apiOrder, error) {
	if !req.Price.IsPositive() {
		return apiOrder{}, fmt.Errorf("kalshi: non-positive price %s", req.Price)
	}

	count := req.Size.Div(req.Price).IntPart()
	if count < 1 {
		return apiOrder{}, fmt.Errorf("kalshi: notional %s buys no contracts at %s", req.Size, req.Price)
	}

	action := "buy"
	if req.Side == domain.OrderSideSell {
		action = "sell"
	}

	return apiOrder{
		Ticker:        req.MarketID,
		ClientOrderID: req.TradeID + "-" + string(req.Side),
		Side:          "yes",
		Action:        action,
		Type:          "limit",
		Count:         count,
		YesPriceCents: req.Price.Mul(cents).Round(0).IntPart(),
	}, nil
}

type apiOrderResponse struct {
	Order apiOrderState `json:"order"`
}

// apiOrderState is the exchange's view of a placed order. Fill cost is in
// cents.
type apiOrderState struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	TakerFillCount int64  `json:"taker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"`
}

// toFillResult normalizes the order state. An order left resting with no
// fills is unknown risk: it may still match after we stop looking, so it
// must not be reported as rejected.
func (o apiOrderState) toFillResult(req domain.OrderRequest) domain.FillResult {
	res := domain.FillResult{
		OrderID:    o.OrderID,
		FilledSize: decimal.NewFromInt(o.TakerFillCost).Div(cents),
		AvgPrice:   req.Price,
		PlacedAt:   time.Now().UTC(),
	}

	switch o.Status {
	case "executed":
		res.Status = domain.FillFilled
		if res.FilledSize.IsZero() {
			res.FilledSize = req.Size
		}
	case "canceled", "cancelled":
		res.Status = domain.FillRejected
	case "resting", "pending":
		if o.TakerFillCount > 0 {
			res.Status = domain.FillPartial
		} else {
			res.Status = domain.FillUnknown
		}
	default:
		res.Status = domain.ParseFillStatus(o.Status)
	}
	return res
}

// apiOrderbook carries both sides as [priceCents, contractCount] pairs. The
// yes side holds YES bids; the no side holds NO bids.
type apiOrderbook struct {
	Yes [][2]int64 `json:"yes"`
	No  [][2]int64 `json:"no"`
}

// toSnapshot normalizes cents to probabilities. YES asks do not exist
// directly on Kalshi; a NO bid at p cents is willingness to sell YES at
// 100-p, so the ask side is the inverted NO book.
func (b apiOrderbook) toSnapshot() domain.DepthSnapshot {
	snap := domain.DepthSnapshot{FetchedAt: time.Now().UTC()}

	for _, level := range b.Yes {
		price := decimal.NewFromInt(level[0]).Div(cents)
		notional := price.Mul(decimal.NewFromInt(level[1]))
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: price, Size: decimal.NewFromInt(level[1])})
		snap.BidDepth = snap.BidDepth.Add(notional)
		if price.GreaterThan(snap.BestBid) {
			snap.BestBid = price
		}
	}

	for _, level := range b.No {
		price := decimal.NewFromInt(100 - level[0]).Div(cents)
		notional := price.Mul(decimal.NewFromInt(level[1]))
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: price, Size: decimal.NewFromInt(level[1])})
		snap.AskDepth = snap.AskDepth.Add(notional)
		if snap.BestAsk.IsZero() || price.LessThan(snap.BestAsk) {
			snap.BestAsk = price
		}
	}
	return snap
}
