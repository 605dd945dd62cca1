/**
 * @description
 * This package provides a client for the bank account verification API. It resolves
 * an account number at a bank to the account holder's name. Calls go through a
 * circuit breaker so a failing provider degrades to unverified links instead of
 * stalling requests.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - pkg/breaker: Circuit breaker around the provider.
 */
package bankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/transfa/superapp-backend/pkg/breaker"
)

var ErrAccountNotFound = errors.New("bank account not found at provider")

// Client is a client for the bank verification API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	breaker    *breaker.Breaker
}

// NewClient creates a new bank verification client.
func NewClient(baseURL, apiKey string, b *breaker.Breaker) *Client {
	if b == nil {
		b = breaker.New(breaker.Config{Name: "bank_verification"})
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

// VerifyRequest identifies the account to resolve.
type VerifyRequest struct {
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code,omitempty"`
}

// VerifyResponse is the provider's answer.
type VerifyResponse struct {
	Verified    bool   `json:"verified"`
	AccountName string `json:"account_name"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bank api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("bank api returned status %d: %s", e.StatusCode, e.Message)
}

// Verify resolves the account. A 404 returns ErrAccountNotFound; other 4xx
// responses are permanent and do not trip the breaker.
func (c *Client) Verify(ctx context.Context, request VerifyRequest) (*VerifyResponse, error) {
	return breaker.Do(ctx, c.breaker, func(ctx context.Context) (*VerifyResponse, error) {
		var response VerifyResponse
		if err := c.do(ctx, http.MethodPost, c.BaseURL+"/verify", request, &response); err != nil {
			return nil, err
		}
		return &response, nil
	})
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}, target interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal bank request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create bank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute bank request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read bank response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(bodyBytes, apiErr)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return breaker.Permanent(fmt.Errorf("%w: %s", ErrAccountNotFound, apiErr.Error()))
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
			return breaker.Permanent(apiErr)
		default:
			return apiErr
		}
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode bank response: %w", err)
	}
	return nil
}
