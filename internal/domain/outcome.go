package domain

import "time"

// OutcomeKind classifies how a two-sided trade resolved.
type OutcomeKind string

const (
	OutcomeBothFilled       OutcomeKind = "both_filled"
	OutcomeBothFailed       OutcomeKind = "both_failed"
	OutcomeUnhedgedBuyOnly  OutcomeKind = "unhedged_buy_only"
	OutcomeUnhedgedSellOnly OutcomeKind = "unhedged_sell_only"
)

// Unhedged reports whether this kind leaves net market risk.
func (k OutcomeKind) Unhedged() bool {
	return k == OutcomeUnhedgedBuyOnly || k == OutcomeUnhedgedSellOnly
}

// TradeOutcome is the terminal record of one orchestrator invocation. One is
// produced per trade regardless of how the legs resolved; the caller persists
// it for PnL accounting.
type TradeOutcome struct {
	ID          string
	Opportunity Opportunity
	Kind        OutcomeKind
	BuyFill     FillResult
	SellFill    FillResult
	Note        string
	StartedAt   time.Time
	CompletedAt time.Time
}
