// Package feed streams order books over websocket and serves the latest
// snapshot per market. It implements domain.DepthSource so the opportunity
// finder can read from the stream with the same interface it uses for REST
// polling.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/domain"
)

// maxStaleness bounds how old a cached snapshot may be before Depth refuses
// to serve it.
const maxStaleness = 30 * time.Second

// DepthFeed subscribes to CLOB-style book channels for a fixed set of asset
// IDs and keeps the newest snapshot per asset. It reconnects with backoff
// until its context is cancelled.
type DepthFeed struct {
	wsURL    string
	assetIDs []string
	logger   *slog.Logger

	mu    sync.RWMutex
	books map[string]domain.DepthSnapshot

	dial func(ctx context.Context, url string) (wsConn, error)
}

// wsConn is the subset of *websocket.Conn the feed uses.
type wsConn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// New creates a DepthFeed for the given websocket URL and asset IDs.
func New(wsURL string, assetIDs []string, logger *slog.Logger) *DepthFeed {
	return &DepthFeed{
		wsURL:    wsURL,
		assetIDs: assetIDs,
		logger:   logger.With(slog.String("component", "depth_feed")),
		books:    make(map[string]domain.DepthSnapshot),
		dial: func(ctx context.Context, url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Run connects, subscribes, and consumes book messages until ctx is
// cancelled. Disconnects trigger reconnection with doubling backoff capped
// at 30 seconds.
func (f *DepthFeed) Run(ctx context.Context) error {
	if len(f.assetIDs) == 0 {
		f.logger.Info("no assets to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	backoff := time.Second
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *DepthFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := f.dial(dialCtx, f.wsURL)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	sub := map[string]any{
		"type":       "subscribe",
		"channels":   []string{"book"},
		"assets_ids": f.assetIDs,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("subscribed", slog.Int("assets", len(f.assetIDs)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(raw)
	}
}

// bookMessage is the CLOB book event. The ws endpoint may deliver either a
// single event or an array of events per frame.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (f *DepthFeed) handleMessage(raw []byte) {
	var msgs []bookMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		var single bookMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			f.logger.Debug("unparseable frame", slog.String("error", err.Error()))
			return
		}
		msgs = []bookMessage{single}
	}

	for _, msg := range msgs {
		if msg.EventType != "book" || msg.AssetID == "" {
			continue
		}
		snap, err := msg.toSnapshot()
		if err != nil {
			f.logger.Warn("bad book message",
				slog.String("asset_id", msg.AssetID),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.mu.Lock()
		f.books[msg.AssetID] = snap
		f.mu.Unlock()
	}
}

func (m bookMessage) toSnapshot() (domain.DepthSnapshot, error) {
	snap := domain.DepthSnapshot{FetchedAt: time.Now().UTC()}

	parse := func(levels []wireLevel) ([]domain.PriceLevel, decimal.Decimal, error) {
		out := make([]domain.PriceLevel, 0, len(levels))
		depth := decimal.Zero
		for _, l := range levels {
			price, err := decimal.NewFromString(l.Price)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("price %q: %w", l.Price, err)
			}
			size, err := decimal.NewFromString(l.Size)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("size %q: %w", l.Size, err)
			}
			out = append(out, domain.PriceLevel{Price: price, Size: size})
			depth = depth.Add(price.Mul(size))
		}
		return out, depth, nil
	}

	var err error
	if snap.Bids, snap.BidDepth, err = parse(m.Bids); err != nil {
		return domain.DepthSnapshot{}, err
	}
	if snap.Asks, snap.AskDepth, err = parse(m.Asks); err != nil {
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

// Depth serves the latest streamed snapshot for the asset. A missing or
// stale snapshot returns domain.ErrNotFound so callers can fall back to
// REST.
func (f *DepthFeed) Depth(_ context.Context, marketID string) (domain.DepthSnapshot, error) {
	f.mu.RLock()
	snap, ok := f.books[marketID]
	f.mu.RUnlock()

	if !ok {
		return domain.DepthSnapshot{}, fmt.Errorf("%w: no book for %s", domain.ErrNotFound, marketID)
	}
	if time.Since(snap.FetchedAt) > maxStaleness {
		return domain.DepthSnapshot{}, fmt.Errorf("%w: book for %s is stale", domain.ErrNotFound, marketID)
	}
	return snap, nil
}
