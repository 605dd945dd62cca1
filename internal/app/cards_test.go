package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/pkg/breaker"
	"github.com/transfa/superapp-backend/pkg/cardclient"
)

type cardProcessorStub struct {
	issued      *cardclient.IssuedCard
	issueErr    error
	auth        *cardclient.Authorization
	authErr     error
	authCalls   int
	onAuthorize func() // runs inside Authorize
}

func (s *cardProcessorStub) IssueCard(ctx context.Context, request cardclient.IssueCardRequest) (*cardclient.IssuedCard, error) {
	return s.issued, s.issueErr
}

func (s *cardProcessorStub) Authorize(ctx context.Context, request cardclient.AuthorizationRequest) (*cardclient.Authorization, error) {
	s.authCalls++
	if s.onAuthorize != nil {
		s.onAuthorize()
	}
	return s.auth, s.authErr
}

func activeCardUser(repo *repoStub, balance int64) *domain.User {
	user := repo.addUser("card@example.com", balance)
	repo.cards[user.ID] = &domain.Card{ID: uuid.New(), UserID: user.ID, Last4: "4242", ProcessorCardID: "card_1", Status: domain.CardStatusActive}
	return user
}

func TestIssueCard(t *testing.T) {
	t.Run("local card without processor", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		user := repo.addUser("issue@example.com", 0)

		card, err := svc.IssueCard(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if card.Status != domain.CardStatusInactive || len(card.Last4) != 4 {
			t.Fatalf("unexpected card: %+v", card)
		}
		if _, err := svc.IssueCard(context.Background(), user.ID); !errors.Is(err, store.ErrCardExists) {
			t.Fatalf("expected ErrCardExists on second issue, got %v", err)
		}
	})

	t.Run("processor failure is unavailable", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		svc.SetCardProcessor(&cardProcessorStub{issueErr: breaker.ErrOpen})
		user := repo.addUser("issue@example.com", 0)

		if _, err := svc.IssueCard(context.Background(), user.ID); !errors.Is(err, ErrCardProcessorDown) {
			t.Fatalf("expected ErrCardProcessorDown, got %v", err)
		}
	})
}

func TestCardTransaction(t *testing.T) {
	t.Run("approval keeps the hold", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		processor := &cardProcessorStub{auth: &cardclient.Authorization{Approved: true, AuthorizationCode: "A1B2C3"}}
		svc.SetCardProcessor(processor)
		user := activeCardUser(repo, 10000)

		resp, err := svc.CardTransaction(context.Background(), user.ID, domain.CardTransactionRequest{Amount: 2500, TransactionType: "purchase", Merchant: "Books"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Transaction.Status != domain.CardTransactionApproved || repo.approvedCode != "A1B2C3" {
			t.Fatalf("unexpected approval: %+v", resp)
		}
		if repo.wallets[user.ID].Balance != 7500 {
			t.Fatalf("expected held amount to stay debited, got %d", repo.wallets[user.ID].Balance)
		}
		if repo.writes[0].Transaction.Status != domain.TransactionStatusPending {
			t.Fatalf("expected hold to be recorded pending, got %s", repo.writes[0].Transaction.Status)
		}
	})

	declines := []struct {
		name       string
		processor  *cardProcessorStub
		wantReason string
	}{
		{name: "processor decline", processor: &cardProcessorStub{auth: &cardclient.Authorization{Approved: false, DeclineReason: "do_not_honor"}}, wantReason: "do_not_honor"},
		{name: "breaker open", processor: &cardProcessorStub{authErr: breaker.ErrOpen}, wantReason: declineReasonProcessorUnavailable},
		{name: "timeout", processor: &cardProcessorStub{authErr: breaker.ErrTimeout}, wantReason: declineReasonProcessorUnavailable},
	}
	for _, tt := range declines {
		t.Run(tt.name+" reverses the hold", func(t *testing.T) {
			repo := newRepoStub()
			svc := newTestService(repo)
			svc.SetCardProcessor(tt.processor)
			user := activeCardUser(repo, 10000)

			resp, err := svc.CardTransaction(context.Background(), user.ID, domain.CardTransactionRequest{Amount: 2500, TransactionType: "withdrawal"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Transaction.Status != domain.CardTransactionDeclined {
				t.Fatalf("expected declined transaction, got %s", resp.Transaction.Status)
			}
			if repo.declineWhy != tt.wantReason {
				t.Fatalf("expected reason %q, got %q", tt.wantReason, repo.declineWhy)
			}
			if repo.wallets[user.ID].Balance != 10000 {
				t.Fatalf("expected wallet restored, got %d", repo.wallets[user.ID].Balance)
			}
			if repo.system[domain.SystemAccountCards].Balance != 0 {
				t.Fatalf("expected card settlement account back to zero, got %d", repo.system[domain.SystemAccountCards].Balance)
			}
			if repo.declined.Transaction.Type != domain.TransactionTypeCardReversal {
				t.Fatalf("expected card_reversal transaction, got %s", repo.declined.Transaction.Type)
			}
		})
	}

	invalid := []domain.CardTransactionRequest{
		{Amount: 100, TransactionType: "refund"},
		{Amount: 100, TransactionType: "purchase"},
		{Amount: 0, TransactionType: "withdrawal"},
	}
	for _, req := range invalid {
		repo := newRepoStub()
		svc := newTestService(repo)
		user := activeCardUser(repo, 1000)
		if _, err := svc.CardTransaction(context.Background(), user.ID, req); !errors.Is(err, ErrInvalidCardTransaction) {
			t.Fatalf("expected ErrInvalidCardTransaction for %+v, got %v", req, err)
		}
	}

	t.Run("inactive card", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		user := activeCardUser(repo, 1000)
		repo.cards[user.ID].Status = domain.CardStatusInactive
		if _, err := svc.CardTransaction(context.Background(), user.ID, domain.CardTransactionRequest{Amount: 100, TransactionType: "withdrawal"}); !errors.Is(err, store.ErrCardNotActive) {
			t.Fatalf("expected ErrCardNotActive, got %v", err)
		}
	})

	t.Run("insufficient funds never reaches the processor", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		processor := &cardProcessorStub{auth: &cardclient.Authorization{Approved: true}}
		svc.SetCardProcessor(processor)
		user := activeCardUser(repo, 100)
		if _, err := svc.CardTransaction(context.Background(), user.ID, domain.CardTransactionRequest{Amount: 500, TransactionType: "withdrawal"}); !errors.Is(err, store.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if processor.authCalls != 0 {
			t.Fatalf("expected no authorization call, got %d", processor.authCalls)
		}
	})
}

func TestCardTransactionSettlesAfterClientCancels(t *testing.T) {
	tests := []struct {
		name       string
		processor  *cardProcessorStub
		wantStatus string
		wantWallet int64
	}{
		{
			name:       "approval",
			processor:  &cardProcessorStub{auth: &cardclient.Authorization{Approved: true, AuthorizationCode: "OK1234"}},
			wantStatus: domain.CardTransactionApproved,
			wantWallet: 7500,
		},
		{
			name:       "processor error",
			processor:  &cardProcessorStub{authErr: context.Canceled},
			wantStatus: domain.CardTransactionDeclined,
			wantWallet: 10000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepoStub()
			svc := newTestService(repo)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.processor.onAuthorize = cancel
			svc.SetCardProcessor(tt.processor)
			user := activeCardUser(repo, 10000)

			resp, err := svc.CardTransaction(ctx, user.ID, domain.CardTransactionRequest{Amount: 2500, TransactionType: "withdrawal"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Transaction.Status != tt.wantStatus || repo.cardTx.Status != tt.wantStatus {
				t.Fatalf("expected %s, got response %s and stored %s", tt.wantStatus, resp.Transaction.Status, repo.cardTx.Status)
			}
			if repo.wallets[user.ID].Balance != tt.wantWallet {
				t.Fatalf("expected wallet %d, got %d", tt.wantWallet, repo.wallets[user.ID].Balance)
			}
		})
	}
}

func TestReverseStaleCardHolds(t *testing.T) {
	ctx := context.Background()
	repo := newRepoStub()
	svc := newTestService(repo)
	user := activeCardUser(repo, 10000)
	settlement := repo.systemAccountFor(domain.SystemAccountCards)

	cardTx := &domain.CardTransaction{ID: uuid.New(), CardID: repo.cards[user.ID].ID, UserID: user.ID, Type: domain.CardTransactionPurchase, Amount: 2500}
	hold := store.LedgerWrite{
		Posting:     domain.NewTransferPosting(domain.TransactionTypeCardPurchase, cardTx.ID.String(), repo.wallets[user.ID].ID, settlement.ID, 2500),
		Transaction: domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeCardPurchase, Status: domain.TransactionStatusPending, Amount: 2500},
	}
	if _, err := repo.CreateCardTransaction(ctx, cardTx, hold); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	cardTx.CreatedAt = svc.now().Add(-time.Minute)
	if reversed, err := svc.ReverseStaleCardHolds(ctx, 10); err != nil || reversed != 0 {
		t.Fatalf("expected a fresh hold to stay, got %d, %v", reversed, err)
	}

	cardTx.CreatedAt = svc.now().Add(-time.Hour)
	reversed, err := svc.ReverseStaleCardHolds(ctx, 10)
	if err != nil || reversed != 1 {
		t.Fatalf("expected one reversal, got %d, %v", reversed, err)
	}
	if repo.wallets[user.ID].Balance != 10000 || settlement.Balance != 0 {
		t.Fatalf("expected hold released, wallet %d settlement %d", repo.wallets[user.ID].Balance, settlement.Balance)
	}
	if repo.declineWhy != declineReasonHoldExpired || repo.declined.Transaction.Type != domain.TransactionTypeCardReversal {
		t.Fatalf("unexpected reversal %q %+v", repo.declineWhy, repo.declined.Transaction)
	}

	if reversed, err := svc.ReverseStaleCardHolds(ctx, 10); err != nil || reversed != 0 {
		t.Fatalf("expected nothing left to reverse, got %d, %v", reversed, err)
	}
}
