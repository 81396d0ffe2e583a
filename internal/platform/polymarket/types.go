package polymarket

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

// apiOrderResult is the CLOB response to an order submission.
type apiOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
}

// toFillResult normalizes the API response. FilledSize is the matched USD
// notional: for buys that is the collateral spent (makingAmount), for sells
// the collateral received (takingAmount). A response whose status does not
// map to a known value yields FillUnknown.
func (r apiOrderResult) toFillResult(req domain.OrderRequest) domain.FillResult {
	res := domain.FillResult{
		OrderID:  r.OrderID,
		Message:  r.ErrorMsg,
		PlacedAt: time.Now().UTC(),
		AvgPrice: req.Price,
	}

	if !r.Success {
		res.Status = domain.FillRejected
		return res
	}

	res.Status = domain.ParseFillStatus(r.Status)

	raw := r.MakingAmount
	if req.Side == domain.OrderSideSell {
		raw = r.TakingAmount
	}
	if raw != "" {
		if amt, err := decimal.NewFromString(raw); err == nil {
			res.FilledSize = amt.Div(usdcScale)
		}
	}
	if res.Status == domain.FillFilled && res.FilledSize.IsZero() {
		// Some responses omit amounts on a full immediate match.
		res.FilledSize = req.Size
	}
	return res
}

// apiBook is the CLOB order book payload. Prices and sizes travel as
// strings; sizes are outcome tokens.
type apiBook struct {
	Market  string          `json:"market"`
	AssetID string          `json:"asset_id"`
	Bids    []apiPriceLevel `json:"bids"`
	Asks    []apiPriceLevel `json:"asks"`
}

type apiPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// toSnapshot converts the book into a normalized snapshot. Level notional is
// price * size; best bid is the highest bid, best ask the lowest ask.
func (b apiBook) toSnapshot() (domain.DepthSnapshot, error) {
	snap := domain.DepthSnapshot{FetchedAt: time.Now().UTC()}

	parse := func(levels []apiPriceLevel) ([]domain.PriceLevel, decimal.Decimal, error) {
		out := make([]domain.PriceLevel, 0, len(levels))
		depth := decimal.Zero
		for _, l := range levels {
			price, err := decimal.NewFromString(l.Price)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("polymarket: bad price %q: %w", l.Price, err)
			}
			size, err := decimal.NewFromString(l.Size)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("polymarket: bad size %q: %w", l.Size, err)
			}
			out = append(out, domain.PriceLevel{Price: price, Size: size})
			depth = depth.Add(price.Mul(size))
		}
		return out, depth, nil
	}

	var err error
	if snap.Bids, snap.BidDepth, err = parse(b.Bids); err != nil {
		return domain.DepthSnapshot{}, err
	}
	if snap.Asks, snap.AskDepth, err = parse(b.Asks); err != nil {
		return domain.DepthSnapshot{}, err
	}

	for _, l := range snap.Bids {
		if l.Price.GreaterThan(snap.BestBid) {
			snap.BestBid = l.Price
		}
	}
	for _, l := range snap.Asks {
		if snap.BestAsk.IsZero() || l.Price.LessThan(snap.BestAsk) {
			snap.BestAsk = l.Price
		}
	}
	return snap, nil
}
