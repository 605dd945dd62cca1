/**
 * @description
 * This package provides a client for the card processor API: issuing virtual cards
 * and authorizing card transactions. A declined authorization is a normal answer
 * and is returned as a result, not as an error.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - pkg/breaker: Circuit breaker around the processor.
 */
package cardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/transfa/superapp-backend/pkg/breaker"
)

// Client is a client for the card processor API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	breaker    *breaker.Breaker
}

// NewClient creates a new card processor client.
func NewClient(baseURL, apiKey string, b *breaker.Breaker) *Client {
	if b == nil {
		b = breaker.New(breaker.Config{Name: "card_processor"})
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

// IssueCardRequest asks the processor for a new virtual card.
type IssueCardRequest struct {
	CustomerReference string `json:"customer_reference"`
	Currency          string `json:"currency"`
}

// IssuedCard is the processor's card handle.
type IssuedCard struct {
	CardID string `json:"card_id"`
	Last4  string `json:"last4"`
}

// AuthorizationRequest asks the processor to authorize a card transaction.
type AuthorizationRequest struct {
	CardID    string `json:"card_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Type      string `json:"type"`
	Merchant  string `json:"merchant,omitempty"`
	Reference string `json:"reference"`
}

// Authorization is the processor's decision.
type Authorization struct {
	Approved          bool   `json:"approved"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	DeclineReason     string `json:"decline_reason,omitempty"`
}

// APIError is a non-2xx response from the processor.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("card api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("card api returned status %d: %s", e.StatusCode, e.Message)
}

// IssueCard creates a virtual card at the processor.
func (c *Client) IssueCard(ctx context.Context, request IssueCardRequest) (*IssuedCard, error) {
	return breaker.Do(ctx, c.breaker, func(ctx context.Context) (*IssuedCard, error) {
		var card IssuedCard
		if err := c.do(ctx, http.MethodPost, c.BaseURL+"/cards", request, &card); err != nil {
			return nil, err
		}
		if len(card.Last4) != 4 || card.CardID == "" {
			return nil, fmt.Errorf("card api returned an incomplete card")
		}
		return &card, nil
	})
}

// Authorize asks the processor to approve a transaction.
func (c *Client) Authorize(ctx context.Context, request AuthorizationRequest) (*Authorization, error) {
	return breaker.Do(ctx, c.breaker, func(ctx context.Context) (*Authorization, error) {
		var auth Authorization
		if err := c.do(ctx, http.MethodPost, c.BaseURL+"/authorizations", request, &auth); err != nil {
			return nil, err
		}
		return &auth, nil
	})
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}, target interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal card request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create card request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute card request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read card response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(bodyBytes, apiErr)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return breaker.Permanent(apiErr)
		}
		return apiErr
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode card response: %w", err)
	}
	return nil
}
