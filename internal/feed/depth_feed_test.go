package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefold/crossarb/internal/domain"
)

func newTestFeed(t *testing.T) *DepthFeed {
	t.Helper()
	return New("wss://example.invalid/ws", []string{"tok-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMessageCachesBookSnapshot(t *testing.T) {
	f := newTestFeed(t)

	f.handleMessage(frame(t, bookMessage{
		EventType: "book",
		AssetID:   "tok-1",
		Bids:      []wireLevel{{Price: "0.40", Size: "100"}, {Price: "0.38", Size: "10"}},
		Asks:      []wireLevel{{Price: "0.45", Size: "50"}},
	}))

	snap, err := f.Depth(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, snap.BestBid.Equal(decimal.RequireFromString("0.40")))
	assert.True(t, snap.BestAsk.Equal(decimal.RequireFromString("0.45")))
	assert.Len(t, snap.Bids, 2)
}

func TestHandleMessageAcceptsEventArrays(t *testing.T) {
	f := newTestFeed(t)

	f.handleMessage(frame(t, []bookMessage{
		{EventType: "book", AssetID: "tok-1", Bids: []wireLevel{{Price: "0.30", Size: "5"}}},
		{EventType: "price_change", AssetID: "tok-1"},
	}))

	snap, err := f.Depth(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, snap.BestBid.Equal(decimal.RequireFromString("0.30")))
}

func TestDepthUnknownAssetIsNotFound(t *testing.T) {
	f := newTestFeed(t)

	_, err := f.Depth(context.Background(), "tok-9")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDepthStaleSnapshotIsNotFound(t *testing.T) {
	f := newTestFeed(t)
	f.books["tok-1"] = domain.DepthSnapshot{FetchedAt: time.Now().Add(-time.Minute)}

	_, err := f.Depth(context.Background(), "tok-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleMessageIgnoresMalformedLevels(t *testing.T) {
	f := newTestFeed(t)

	f.handleMessage(frame(t, bookMessage{
		EventType: "book",
		AssetID:   "tok-1",
		Bids:      []wireLevel{{Price: "not-a-number", Size: "1"}},
	}))

	_, err := f.Depth(context.Background(), "tok-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
