// Package kalshi is a minimal trading client for the Kalshi REST API:
// signed requests, market quotes, limit orders and balance.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second

	// Kalshi allows 10 req/s on the basic tier; stay under it.
	defaultRateLimit = rate.Limit(8)
	defaultRateBurst = 4
)

// Client talks to one Kalshi environment.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	limiter *rate.Limiter
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL overrides the environment base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(l rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(l, burst) }
}

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client for the environment. The signer may be nil for
// public, read-only endpoints.
func NewClient(env Environment, signer *Signer, opts ...Option) *Client {
	c := &Client{
		baseURL: env.BaseURL(),
		http:    &http.Client{Timeout: defaultTimeout},
		signer:  signer,
		limiter: rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kalshi: encode body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		if err := c.signer.Authorize(req, c.now()); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kalshi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error apiError `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("kalshi: %s %s: %d %s: %s",
				method, path, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("kalshi: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("kalshi: decode %s: %w", path, err)
	}
	return nil
}

type marketPayload struct {
	Market struct {
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
		Status string `json:"status"`
		YesBid int64  `json:"yes_bid"`
		YesAsk int64  `json:"yes_ask"`
	} `json:"market"`
}

// GetMarket fetches market metadata. Unlike GetQuote it does not need a
// usable book; a paused or not-yet-open market still returns its title.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	var payload marketPayload
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker, nil, &payload); err != nil {
		return Market{}, err
	}
	return Market{
		Ticker: payload.Market.Ticker,
		Title:  payload.Market.Title,
		Status: payload.Market.Status,
	}, nil
}

// GetQuote fetches the current two-sided quote for a market. A market with
// no usable book returns ErrQuoteUnavailable.
func (c *Client) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	var payload marketPayload
	if err := c.do(ctx, http.MethodGet, "/markets/"+ticker, nil, &payload); err != nil {
		return Quote{}, err
	}

	q := Quote{
		Ticker: ticker,
		YesBid: decimal.NewFromInt(payload.Market.YesBid),
		YesAsk: decimal.NewFromInt(payload.Market.YesAsk),
		At:     c.now(),
	}
	if payload.Market.Status != "" && payload.Market.Status != "active" {
		return Quote{}, fmt.Errorf("%w: market %s is %s", ErrQuoteUnavailable, ticker, payload.Market.Status)
	}
	if !q.Valid() {
		return Quote{}, fmt.Errorf("%w: %s bid=%s ask=%s", ErrQuoteUnavailable, ticker, q.YesBid, q.YesAsk)
	}
	return q, nil
}

type orderPayload struct {
	Order struct {
		OrderID     string `json:"order_id"`
		Status      string `json:"status"`
		FilledCount int64  `json:"filled_count"`
		YesPrice    int64  `json:"yes_price"`
	} `json:"order"`
}

// SubmitOrder places a limit order.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Contracts <= 0 {
		return OrderResult{}, fmt.Errorf("kalshi: order for %d contracts", req.Contracts)
	}
	if req.PriceCents < MinPriceCents || req.PriceCents > MaxPriceCents {
		return OrderResult{}, fmt.Errorf("kalshi: price %d outside [%d,%d]", req.PriceCents, MinPriceCents, MaxPriceCents)
	}

	body := map[string]any{
		"ticker":          req.Ticker,
		"client_order_id": req.ClientID,
		"side":            string(req.Side),
		"action":          string(req.Action),
		"count":           req.Contracts,
		"type":            "limit",
		"yes_price":       req.PriceCents,
	}

	var payload orderPayload
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", body, &payload); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		OrderID:   payload.Order.OrderID,
		Status:    OrderStatus(payload.Order.Status),
		FilledQty: payload.Order.FilledCount,
		AvgPrice:  decimal.NewFromInt(payload.Order.YesPrice),
		PlacedAt:  c.now(),
	}, nil
}

// GetBalance fetches the available cash balance.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	var payload struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, &payload); err != nil {
		return Balance{}, err
	}
	return Balance{AvailableCents: payload.Balance}, nil
}
