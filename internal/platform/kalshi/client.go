// Package kalshi is the REST client for the Kalshi exchange. Requests are
// signed with RSA-PSS per Kalshi's API auth. Market prices are quoted in
// cents and normalized to probabilities at this boundary; YES-side asks are
// derived from NO-side bids.
package kalshi

import (
	"bytes"
	"context"
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/edgefold/crossarb/internal/domain"
	"github.com/edgefold/crossarb/internal/retry"
)

// Client talks to one Kalshi API endpoint.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a Kalshi client. baseURL is the API root including the
// version prefix, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads the PEM-encoded signing key. Both PKCS8 and PKCS1
// encodings are accepted.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// Submit places one leg as a YES-side limit order. The request's USD
// notional is converted to a contract count at the leg price; the returned
// FilledSize is the matched notional in dollars.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	order, err := buildOrder(req)
	if err != nil {
		return domain.FillResult{}, err
	}

	respBody, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp apiOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.FillResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	return resp.Order.toFillResult(req), nil
}

// Depth fetches and normalizes the order book for one market ticker.
func (c *Client) Depth(ctx context.Context, marketID string) (domain.DepthSnapshot, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(marketID))

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("kalshi: get orderbook %s: %w", marketID, err)
	}

	var resp struct {
		Orderbook apiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	return resp.Orderbook.toSnapshot(), nil
}

// doSignedRequest builds, RSA-signs, sends, and reads one API request. The
// signed message is timestamp + method + path (without query string), per
// Kalshi's auth scheme.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
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

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, stdcrypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses to errors the retry loop can classify.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
	}
	return &retry.StatusError{Code: statusCode, Body: string(body)}
}
