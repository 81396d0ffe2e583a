// Package polymarket is the REST client for Polymarket's CLOB (Central
// Limit Order Book) API. It signs orders with EIP-712, authenticates
// requests with HMAC headers, and normalizes fills and order books into the
// crossarb domain types.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefold/crossarb/internal/crypto"
	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/retry"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdcScale converts decimal amounts to the 6-decimal fixed-point units the
// CLOB expects for both collateral and outcome tokens.
var usdcScale = decimal.New(1, 6)

// Client talks to one CLOB endpoint on behalf of one wallet.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClient creates a CLOB client. baseURL is the API root, e.g.
// "https://clob.polymarket.com". hmac may be nil until DeriveAPIKey runs.
func NewClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// Submit signs and posts one order leg. The request's Size is USD notional;
// it is converted to maker/taker token amounts by side. The returned
// FilledSize is the notional actually matched, so callers can compare it
// directly against the requested size.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return domain.FillResult{}, err
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          sideWord(req.Side),
			"signatureType": payload.SignatureType,
			"signature":     sig,
		},
		"owner":     c.signer.Address().Hex(),
		"orderType": "FOK",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: post order: %w", err)
	}

	var apiRes apiOrderResult
	if err := json.Unmarshal(respBody, &apiRes); err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}

	return apiRes.toFillResult(req), nil
}

// Depth fetches the order book for one token. CLOB prices are already
// probabilities; level sizes are outcome tokens, converted here to USD
// notional per level.
func (c *Client) Depth(ctx context.Context, marketID string) (domain.DepthSnapshot, error) {
	path := "/book?token_id=" + url.QueryEscape(marketID)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("polymarket: get book %s: %w", marketID, err)
	}

	var book apiBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("polymarket: decode book: %w", err)
	}

	return book.toSnapshot()
}

// DeriveAPIKey runs the CLOB L1 auth flow: sign an auth message with the
// wallet key, exchange it for HMAC credentials, and install them on the
// client for subsequent requests.
func (c *Client) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()

	sig, err := c.signer.SignAuthMessage(address, timestamp, 0)
	if err != nil {
		return fmt.Errorf("polymarket: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket: auth failed: %w", &retry.StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// buildPayload converts one leg into the EIP-712 order struct. Notional and
// share amounts are scaled to 6-decimal integer units; buys spend collateral
// for tokens, sells the reverse.
func (c *Client) buildPayload(req domain.OrderRequest) (crypto.OrderPayload, error) {
	if !req.Price.IsPositive() {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket: non-positive price %s", req.Price)
	}

	notional := req.Size.Mul(usdcScale).Truncate(0)
	shares := req.Size.Div(req.Price).Mul(usdcScale).Truncate(0)

	payload := crypto.OrderPayload{
		Salt:          req.Salt,
		Maker:         c.signer.Address().Hex(),
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       req.MarketID,
		Expiration:    "0",
		Nonce:         req.Nonce,
		FeeRateBps:    "0",
		SignatureType: 0,
	}

	switch req.Side {
	case domain.OrderSideBuy:
		payload.Side = 0
		payload.MakerAmount = notional.String()
		payload.TakerAmount = shares.String()
	case domain.OrderSideSell:
		payload.Side = 1
		payload.MakerAmount = shares.String()
		payload.TakerAmount = notional.String()
	default:
		return crypto.OrderPayload{}, fmt.Errorf("polymarket: invalid side %q", req.Side)
	}
	return payload, nil
}

func sideWord(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

// doRequest builds, HMAC-signs, sends, and reads one API request, mapping
// non-2xx responses to classified errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		headers := c.hmacAuth.Headers("POLY", method, path, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to errors the retry loop can
// classify. Rate limits carry the domain sentinel so they retry regardless
// of how deep they are wrapped.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
	}
	return &retry.StatusError{Code: statusCode, Body: string(body)}
}
