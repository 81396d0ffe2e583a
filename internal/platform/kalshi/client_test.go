package kalshi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefold/crossarb/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	client := NewClient(srv.URL, "key-id")
	require.NoError(t, client.SetRSAPrivateKey(pemBytes))
	return client
}

func buyRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Venue:    "kalshi",
		MarketID: "PRES-24",
		Side:     domain.OrderSideBuy,
		Price:    decimal.RequireFromString("0.40"),
		Size:     decimal.RequireFromString("100"),
		TradeID:  "trade-1",
	}
}

func TestSubmitConvertsNotionalToContracts(t *testing.T) {
	var captured apiOrder
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/orders", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(apiOrderResponse{Order: apiOrderState{
			OrderID: "o1", Status: "executed", TakerFillCount: 250, TakerFillCost: 10000,
		}})
	})

	res, err := client.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.FillFilled, res.Status)
	assert.True(t, res.FilledSize.Equal(decimal.RequireFromString("100")))

	// $100 at 40 cents = 250 contracts.
	assert.Equal(t, int64(250), captured.Count)
	assert.Equal(t, int64(40), captured.YesPriceCents)
	assert.Equal(t, "yes", captured.Side)
	assert.Equal(t, "buy", captured.Action)
}

func TestSubmitRestingUnfilledIsUnknown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiOrderResponse{Order: apiOrderState{OrderID: "o2", Status: "resting"}})
	})

	res, err := client.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.FillUnknown, res.Status)
	assert.True(t, res.FilledSize.IsZero())
}

func TestSubmitRestingWithFillsIsPartial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiOrderResponse{Order: apiOrderState{
			OrderID: "o3", Status: "resting", TakerFillCount: 100, TakerFillCost: 4000,
		}})
	})

	res, err := client.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.FillPartial, res.Status)
	assert.True(t, res.FilledSize.Equal(decimal.RequireFromString("40")))
}

func TestSubmitTinyNotionalRejectedLocally(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the venue")
	})

	req := buyRequest()
	req.Size = decimal.RequireFromString("0.10")
	_, err := client.Submit(context.Background(), req)
	require.Error(t, err)
}

func TestDepthInvertsNoSideIntoAsks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets/PRES-24/orderbook", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]apiOrderbook{
			"orderbook": {
				Yes: [][2]int64{{40, 100}, {39, 50}},
				No:  [][2]int64{{55, 200}, {50, 10}},
			},
		})
	})

	snap, err := client.Depth(context.Background(), "PRES-24")
	require.NoError(t, err)
	assert.True(t, snap.BestBid.Equal(decimal.RequireFromString("0.40")))
	// Best NO bid of 55 cents quotes YES at 45.
	assert.True(t, snap.BestAsk.Equal(decimal.RequireFromString("0.45")), "best ask = %s", snap.BestAsk)
	assert.Len(t, snap.Asks, 2)
	assert.True(t, snap.AskDepth.Equal(decimal.RequireFromString("95")), "ask depth = %s", snap.AskDepth)
}
