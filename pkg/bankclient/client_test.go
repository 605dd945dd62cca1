package bankclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/transfa/superapp-backend/pkg/breaker"
)

func TestVerifySendsRequestAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/verify" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Fatalf("missing api key header")
		}
		var body VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.AccountNumber != "0123456789" || body.BankName != "GTBank" {
			t.Fatalf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(VerifyResponse{Verified: true, AccountName: "ADA OBI"})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", nil)
	resp, err := client.Verify(context.Background(), VerifyRequest{AccountNumber: "0123456789", BankName: "GTBank"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Verified || resp.AccountName != "ADA OBI" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestVerifyNotFoundIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such account"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", breaker.New(breaker.Config{Name: "bank", ConsecutiveFailures: 1}))
	for i := 0; i < 3; i++ {
		_, err := client.Verify(context.Background(), VerifyRequest{AccountNumber: "0000000000", BankName: "GTBank"})
		if !errors.Is(err, ErrAccountNotFound) || !breaker.IsPermanent(err) {
			t.Fatalf("expected permanent not-found error, got %v", err)
		}
	}
}

func TestVerifyServerErrorTripsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", breaker.New(breaker.Config{Name: "bank", ConsecutiveFailures: 2}))
	for i := 0; i < 2; i++ {
		_, err := client.Verify(context.Background(), VerifyRequest{AccountNumber: "1", BankName: "x"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502 api error, got %v", err)
		}
	}
	if _, err := client.Verify(context.Background(), VerifyRequest{AccountNumber: "1", BankName: "x"}); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}
