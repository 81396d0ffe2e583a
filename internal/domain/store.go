package domain

import "context"

// OutcomeStore persists trade outcomes for PnL accounting.
type OutcomeStore interface {
	Create(ctx context.Context, outcome TradeOutcome) error
	GetByID(ctx context.Context, id string) (TradeOutcome, error)
	ListRecent(ctx context.Context, limit int) ([]TradeOutcome, error)
}

// OutcomeArchiver writes outcome records to long-term storage.
type OutcomeArchiver interface {
	Archive(ctx context.Context, outcomes []TradeOutcome) error
}
