package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/pkg/bankclient"
	"github.com/transfa/superapp-backend/pkg/breaker"
)

type bankVerifierStub struct {
	resp *bankclient.VerifyResponse
	err  error
}

func (s bankVerifierStub) Verify(ctx context.Context, request bankclient.VerifyRequest) (*bankclient.VerifyResponse, error) {
	return s.resp, s.err
}

func TestLinkBankAccount(t *testing.T) {
	valid := domain.LinkBankAccountRequest{AccountNumber: "0123456789", BankName: "First Bank", BankCode: "011"}

	tests := []struct {
		name         string
		verifier     BankVerifier
		req          domain.LinkBankAccountRequest
		wantErr      error
		wantVerified bool
	}{
		{name: "no provider links unverified", req: valid},
		{name: "verified by provider", verifier: bankVerifierStub{resp: &bankclient.VerifyResponse{Verified: true, AccountName: "ADA OBI"}}, req: valid, wantVerified: true},
		{name: "provider rejects account", verifier: bankVerifierStub{err: bankclient.ErrAccountNotFound}, req: valid, wantErr: ErrInvalidBankAccount},
		{name: "provider down links unverified", verifier: bankVerifierStub{err: breaker.ErrOpen}, req: valid},
		{name: "short account number", req: domain.LinkBankAccountRequest{AccountNumber: "12345", BankName: "First Bank"}, wantErr: ErrInvalidBankAccount},
		{name: "missing bank name", req: domain.LinkBankAccountRequest{AccountNumber: "0123456789"}, wantErr: ErrInvalidBankAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepoStub()
			svc := newTestService(repo)
			if tt.verifier != nil {
				svc.SetBankVerifier(tt.verifier)
			}

			account, err := svc.LinkBankAccount(context.Background(), uuid.New(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account.IsVerified != tt.wantVerified {
				t.Fatalf("expected verified=%v, got %v", tt.wantVerified, account.IsVerified)
			}
			if account.MaskedNumber != domain.MaskAccountNumber(tt.req.AccountNumber) {
				t.Fatalf("expected masked number, got %q", account.MaskedNumber)
			}
		})
	}

	t.Run("duplicate link", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		userID := uuid.New()
		if _, err := svc.LinkBankAccount(context.Background(), userID, valid); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.LinkBankAccount(context.Background(), userID, valid); !errors.Is(err, store.ErrBankAccountLinked) {
			t.Fatalf("expected ErrBankAccountLinked, got %v", err)
		}
	})
}
