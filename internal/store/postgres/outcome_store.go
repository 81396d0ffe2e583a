package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL. Decimal
// columns travel as their canonical string form in both directions so no
// binary numeric adapter is needed.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeSelectCols = `id, kind, buy_venue, sell_venue, buy_market_id, sell_market_id,
	buy_price::text, sell_price::text, size::text, net_edge_bps,
	buy_order_id, buy_status, buy_filled::text,
	sell_order_id, sell_status, sell_filled::text,
	note, started_at, completed_at`

// Create inserts one outcome row. A duplicate trade ID is an error: trade
// IDs are generated once per execution and never reused.
func (s *OutcomeStore) Create(ctx context.Context, o domain.TradeOutcome) error {
	const query = `
		INSERT INTO trade_outcomes (
			id, kind, buy_venue, sell_venue, buy_market_id, sell_market_id,
			buy_price, sell_price, size, net_edge_bps,
			buy_order_id, buy_status, buy_filled,
			sell_order_id, sell_status, sell_filled,
			note, started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Kind),
		o.Opportunity.BuyVenue, o.Opportunity.SellVenue,
		o.Opportunity.BuyMarketID, o.Opportunity.SellMarketID,
		o.Opportunity.BuyPrice.String(), o.Opportunity.SellPrice.String(),
		o.Opportunity.Size.String(), o.Opportunity.NetEdgeBps,
		o.BuyFill.OrderID, string(o.BuyFill.Status), o.BuyFill.FilledSize.String(),
		o.SellFill.OrderID, string(o.SellFill.Status), o.SellFill.FilledSize.String(),
		o.Note, o.StartedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns one outcome, or domain.ErrNotFound.
func (s *OutcomeStore) GetByID(ctx context.Context, id string) (domain.TradeOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM trade_outcomes WHERE id = $1`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeOutcome{}, fmt.Errorf("%w: outcome %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.TradeOutcome{}, fmt.Errorf("postgres: get outcome %s: %w", id, err)
	}
	return o, nil
}

// ListRecent returns up to limit outcomes, newest first.
func (s *OutcomeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + outcomeSelectCols + ` FROM trade_outcomes ORDER BY completed_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.TradeOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func scanOutcome(row pgx.Row) (domain.TradeOutcome, error) {
	var (
		o                       domain.TradeOutcome
		kind                    string
		buyPrice, sellPrice     string
		size                    string
		buyStatus, sellStatus   string
		buyFilled, sellFilled   string
		buyOrderID, sellOrderID *string
		note                    *string
	)

	err := row.Scan(
		&o.ID, &kind,
		&o.Opportunity.BuyVenue, &o.Opportunity.SellVenue,
		&o.Opportunity.BuyMarketID, &o.Opportunity.SellMarketID,
		&buyPrice, &sellPrice, &size, &o.Opportunity.NetEdgeBps,
		&buyOrderID, &buyStatus, &buyFilled,
		&sellOrderID, &sellStatus, &sellFilled,
		&note, &o.StartedAt, &o.CompletedAt,
	)
	if err != nil {
		return domain.TradeOutcome{}, err
	}

	o.Kind = domain.OutcomeKind(kind)
	o.Opportunity.ID = o.ID

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{buyPrice, &o.Opportunity.BuyPrice},
		{sellPrice, &o.Opportunity.SellPrice},
		{size, &o.Opportunity.Size},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.TradeOutcome{}, fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
		*f.dst = d
	}

	bf, err := decimal.NewFromString(buyFilled)
	if err != nil {
		return domain.TradeOutcome{}, fmt.Errorf("parse numeric %q: %w", buyFilled, err)
	}
	sf, err := decimal.NewFromString(sellFilled)
	if err != nil {
		return domain.TradeOutcome{}, fmt.Errorf("parse numeric %q: %w", sellFilled, err)
	}

	o.BuyFill = domain.FillResult{Status: domain.FillStatus(buyStatus), FilledSize: bf}
	o.SellFill = domain.FillResult{Status: domain.FillStatus(sellStatus), FilledSize: sf}
	if buyOrderID != nil {
		o.BuyFill.OrderID = *buyOrderID
	}
	if sellOrderID != nil {
		o.SellFill.OrderID = *sellOrderID
	}
	if note != nil {
		o.Note = *note
	}
	return o, nil
}
