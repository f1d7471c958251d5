package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// Client is the REST client for the live venue. All order endpoints require
// HMAC authentication; discovery and book endpoints do not.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    domain.RateLimiter
}

var _ Venue = (*Client)(nil)

// NewClient creates a venue REST client.
//
// baseURL is the API root, e.g. "https://api.exchange.example.com".
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}
}

// SetRateLimiter attaches a distributed rate limiter. When set, the client
// waits for a slot before every order mutation so replicas share the venue's
// request budget.
func (c *Client) SetRateLimiter(l domain.RateLimiter) { c.limiter = l }

func (c *Client) waitForSlot(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, "venue:orders")
}

// ListMarkets returns active esports markets.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("tag", "esports")
	params.Set("active", "true")
	params.Set("limit", "200")

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("venue: list markets: %w", err)
	}

	var apiMarkets []apiMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("venue: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].toDomain())
	}
	return markets, nil
}

// GetQuote fetches the top of book for both outcome tokens of a market.
// Closed markets have no tradable book and are rejected up front.
func (c *Client) GetQuote(ctx context.Context, market domain.Market) (domain.MarketQuote, error) {
	if market.Status == domain.MarketStatusClosed {
		return domain.MarketQuote{}, fmt.Errorf("venue: market %s: %w", market.ID, domain.ErrMarketClosed)
	}
	quote := domain.MarketQuote{MarketID: market.ID, Timestamp: time.Now().UTC()}

	for i, tokenID := range market.TokenIDs {
		params := url.Values{}
		params.Set("token_id", tokenID)

		body, err := c.doGet(ctx, "/book?"+params.Encode())
		if err != nil {
			return domain.MarketQuote{}, fmt.Errorf("venue: get book %s: %w", tokenID, err)
		}

		var book apiBook
		if err := json.Unmarshal(body, &book); err != nil {
			return domain.MarketQuote{}, fmt.Errorf("venue: decode book: %w", err)
		}

		tq := book.toTokenQuote(tokenID)
		if i == 0 {
			quote.TokenA = tq
		} else {
			quote.TokenB = tq
		}
	}
	return quote, nil
}

// PlaceOrder submits a limit order. The idempotency key travels as a header
// so resubmissions after ambiguous failures deduplicate server-side.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := c.waitForSlot(ctx); err != nil {
		return OrderAck{}, fmt.Errorf("venue: place order: %w", err)
	}

	payload := map[string]any{
		"token_id": req.TokenID,
		"side":     string(req.Side),
		"size":     strconv.FormatFloat(req.Size, 'f', 2, 64),
		"price":    strconv.FormatFloat(req.Price, 'f', 4, 64),
	}

	body, err := c.doAuthenticated(ctx, http.MethodPost, "/order", payload, req.IdempotencyKey)
	if err != nil {
		return OrderAck{}, fmt.Errorf("venue: place order: %w", err)
	}

	var resp apiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderAck{}, fmt.Errorf("venue: decode order response: %w", err)
	}
	return resp.toAck(), nil
}

// OrderStatus polls a previously submitted order.
func (c *Client) OrderStatus(ctx context.Context, venueOrderID string) (OrderUpdate, error) {
	body, err := c.doAuthenticated(ctx, http.MethodGet, "/order/"+url.PathEscape(venueOrderID), nil, "")
	if err != nil {
		return OrderUpdate{}, fmt.Errorf("venue: order status %s: %w", venueOrderID, err)
	}

	var resp apiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderUpdate{}, fmt.Errorf("venue: decode order status: %w", err)
	}
	return OrderUpdate{
		VenueOrderID: resp.OrderID,
		Status:       resp.domainState(),
		FilledSize:   resp.filledSize(),
		AvgFillPrice: resp.avgPrice(),
	}, nil
}

// CancelOrder cancels the unfilled remainder of an order.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	if err := c.waitForSlot(ctx); err != nil {
		return fmt.Errorf("venue: cancel order %s: %w", venueOrderID, err)
	}

	body, err := c.doAuthenticated(ctx, http.MethodDelete, "/order/"+url.PathEscape(venueOrderID), nil, "")
	if err != nil {
		return fmt.Errorf("venue: cancel order %s: %w", venueOrderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"error_msg"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("venue: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("venue: cancel failed: %s: %w", result.ErrorMsg, domain.ErrOrderRejected)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", err, domain.ErrTransient)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doAuthenticated builds, signs, and sends a request against an order
// endpoint. It returns the raw response body.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, payload any, idempotencyKey string) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if payload != nil {
		jsonBody, err := json.Marshal(payload)
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
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.auth != nil {
		for k, v := range c.auth.RequestHeaders(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", err, domain.ErrTransient)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes onto the error taxonomy so
// callers can pick a recovery strategy with errors.Is.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("HTTP %d: %s: %w", statusCode, bodyStr, domain.ErrFatal)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", bodyStr, domain.ErrRateLimited)
	case statusCode == http.StatusBadRequest:
		return fmt.Errorf("HTTP 400: %s: %w", bodyStr, domain.ErrInvalidData)
	case statusCode == http.StatusConflict || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("HTTP %d: %s: %w", statusCode, bodyStr, domain.ErrOrderRejected)
	case statusCode >= 500:
		return fmt.Errorf("HTTP %d: %s: %w", statusCode, bodyStr, domain.ErrTransient)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
