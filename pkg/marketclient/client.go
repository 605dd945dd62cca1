// Package marketclient fetches execution quotes from the market data API.
// Concurrent lookups of the same symbol share one upstream request.
package marketclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/transfa/superapp-backend/pkg/breaker"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// Quote is a unit price in minor units.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  int64     `json:"price"`
	AsOf   time.Time `json:"as_of"`
}

// Client is a client for the market data API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	breaker    *breaker.Breaker
	group      singleflight.Group
}

// NewClient creates a new market data client.
func NewClient(baseURL, apiKey string, b *breaker.Breaker) *Client {
	if b == nil {
		b = breaker.New(breaker.Config{Name: "market_data"})
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: b,
	}
}

// Quote returns the current price of symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}

	result, err, _ := c.group.Do(symbol, func() (interface{}, error) {
		return breaker.Do(ctx, c.breaker, func(ctx context.Context) (*Quote, error) {
			return c.fetch(ctx, symbol)
		})
	})
	if err != nil {
		return nil, err
	}
	quote := *result.(*Quote)
	return &quote, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (*Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/quotes/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, breaker.Permanent(fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("market api returned status %d", resp.StatusCode)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	if quote.Price <= 0 {
		return nil, fmt.Errorf("market api returned non-positive price %d for %s", quote.Price, symbol)
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	return &quote, nil
}
