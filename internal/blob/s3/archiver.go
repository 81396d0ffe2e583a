package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

// Archiver implements domain.OutcomeArchiver: trade outcomes are serialized
// to JSONL and uploaded under a date-partitioned key. Deleting archived rows
// from the primary store is a separate, explicit step to run only after the
// archive has been verified.
type Archiver struct {
	writer ObjectPutter
	prefix string
	now    func() time.Time
}

// ObjectPutter is the slice of Writer the archiver needs.
type ObjectPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// NewArchiver creates an Archiver writing under the given key prefix
// (e.g. "outcomes").
func NewArchiver(writer ObjectPutter, prefix string) *Archiver {
	if prefix == "" {
		prefix = "outcomes"
	}
	return &Archiver{writer: writer, prefix: prefix, now: time.Now}
}

// archiveRecord is the flattened JSONL row. Decimals serialize as strings.
type archiveRecord struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	BuyVenue     string    `json:"buy_venue"`
	SellVenue    string    `json:"sell_venue"`
	BuyMarketID  string    `json:"buy_market_id"`
	SellMarketID string    `json:"sell_market_id"`
	BuyPrice     string    `json:"buy_price"`
	SellPrice    string    `json:"sell_price"`
	Size         string    `json:"size"`
	NetEdgeBps   float64   `json:"net_edge_bps"`
	BuyOrderID   string    `json:"buy_order_id,omitempty"`
	BuyStatus    string    `json:"buy_status"`
	BuyFilled    string    `json:"buy_filled"`
	SellOrderID  string    `json:"sell_order_id,omitempty"`
	SellStatus   string    `json:"sell_status"`
	SellFilled   string    `json:"sell_filled"`
	Note         string    `json:"note,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Archive uploads the outcomes as one JSONL object. An empty batch is a
// no-op.
func (a *Archiver) Archive(ctx context.Context, outcomes []domain.TradeOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range outcomes {
		if err := enc.Encode(toRecord(o)); err != nil {
			return fmt.Errorf("s3blob: encode outcome %s: %w", o.ID, err)
		}
	}

	ts := a.now().UTC()
	key := fmt.Sprintf("%s/%s/outcomes-%s.jsonl",
		a.prefix, ts.Format("2006/01/02"), ts.Format("150405"))

	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive %d outcomes: %w", len(outcomes), err)
	}
	return nil
}

func toRecord(o domain.TradeOutcome) archiveRecord {
	str := func(d decimal.Decimal) string { return d.String() }
	return archiveRecord{
		ID:           o.ID,
		Kind:         string(o.Kind),
		BuyVenue:     o.Opportunity.BuyVenue,
		SellVenue:    o.Opportunity.SellVenue,
		BuyMarketID:  o.Opportunity.BuyMarketID,
		SellMarketID: o.Opportunity.SellMarketID,
		BuyPrice:     str(o.Opportunity.BuyPrice),
		SellPrice:    str(o.Opportunity.SellPrice),
		Size:         str(o.Opportunity.Size),
		NetEdgeBps:   o.Opportunity.NetEdgeBps,
		BuyOrderID:   o.BuyFill.OrderID,
		BuyStatus:    string(o.BuyFill.Status),
		BuyFilled:    str(o.BuyFill.FilledSize),
		SellOrderID:  o.SellFill.OrderID,
		SellStatus:   string(o.SellFill.Status),
		SellFilled:   str(o.SellFill.FilledSize),
		Note:         o.Note,
		StartedAt:    o.StartedAt,
		CompletedAt:  o.CompletedAt,
	}
}
