package cardclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/transfa/superapp-backend/pkg/breaker"
)

func TestIssueCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cards" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(IssuedCard{CardID: "crd_1", Last4: "4242"})
	}))
	defer server.Close()

	card, err := NewClient(server.URL, "k", nil).IssueCard(context.Background(), IssueCardRequest{CustomerReference: "u1", Currency: "NGN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.CardID != "crd_1" || card.Last4 != "4242" {
		t.Fatalf("unexpected card %+v", card)
	}
}

func TestAuthorizeReturnsDeclineAsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AuthorizationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Amount > 1000 {
			_ = json.NewEncoder(w).Encode(Authorization{Approved: false, DeclineReason: "limit exceeded"})
			return
		}
		_ = json.NewEncoder(w).Encode(Authorization{Approved: true, AuthorizationCode: "A1B2"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", nil)

	approved, err := client.Authorize(context.Background(), AuthorizationRequest{CardID: "crd_1", Amount: 500})
	if err != nil || !approved.Approved || approved.AuthorizationCode != "A1B2" {
		t.Fatalf("expected approval, got %+v err=%v", approved, err)
	}

	declined, err := client.Authorize(context.Background(), AuthorizationRequest{CardID: "crd_1", Amount: 5000})
	if err != nil || declined.Approved || declined.DeclineReason != "limit exceeded" {
		t.Fatalf("expected decline, got %+v err=%v", declined, err)
	}
}

func TestAuthorizeClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"card blocked"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k", breaker.New(breaker.Config{Name: "card"})).Authorize(context.Background(), AuthorizationRequest{CardID: "crd_1", Amount: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "card blocked" || !breaker.IsPermanent(err) {
		t.Fatalf("expected permanent api error, got %v", err)
	}
}
