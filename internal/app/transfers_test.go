package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
)

func TestTransfer(t *testing.T) {
	t.Run("moves funds and notifies both parties", func(t *testing.T) {
		repo := newRepoStub()
		svc := newTestService(repo)
		sender := repo.addUser("sender@example.com", 10000)
		receiver := repo.addUser("receiver@example.com", 0)

		resp, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{ReceiverEmail: "Receiver@example.com", Amount: 2500})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Balance != 7500 {
			t.Fatalf("expected sender balance 7500, got %d", resp.Balance)
		}
		if repo.wallets[receiver.ID].Balance != 2500 {
			t.Fatalf("expected receiver balance 2500, got %d", repo.wallets[receiver.ID].Balance)
		}

		write := repo.writes[0]
		if write.Transaction.Type != domain.TransactionTypeTransfer || *write.Transaction.ReceiverID != receiver.ID {
			t.Fatalf("unexpected transaction: %+v", write.Transaction)
		}
		var notifications int
		for _, event := range write.Events {
			if event.RoutingKey == domain.RoutingKeyNotificationRequested {
				notifications++
			}
		}
		if write.Events[0].RoutingKey != domain.RoutingKeyTransferCompleted || notifications != 2 {
			t.Fatalf("expected transfer.completed plus two notifications, got %+v", write.Events)
		}
	})

	tests := []struct {
		name    string
		email   string
		amount  int64
		wantErr error
	}{
		{name: "non positive amount", email: "receiver@example.com", amount: 0, wantErr: ErrInvalidAmount},
		{name: "amount above cap", email: "receiver@example.com", amount: config.DefaultMaxTransactionAmount + 1, wantErr: ErrInvalidAmount},
		{name: "blank receiver", email: "  ", amount: 100, wantErr: ErrInvalidEmail},
		{name: "malformed receiver", email: "receiver", amount: 100, wantErr: ErrInvalidEmail},
		{name: "pending receiver", email: "pending@example.com", amount: 100, wantErr: ErrReceiverNotFound},
		{name: "unknown receiver", email: "ghost@example.com", amount: 100, wantErr: ErrReceiverNotFound},
		{name: "self transfer", email: "sender@example.com", amount: 100, wantErr: ErrSelfTransfer},
		{name: "insufficient funds", email: "receiver@example.com", amount: 50000, wantErr: store.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepoStub()
			svc := newTestService(repo)
			sender := repo.addUser("sender@example.com", 1000)
			repo.addUser("receiver@example.com", 0)
			repo.addUser("pending@example.com", 0).Status = domain.UserStatusPending

			_, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{ReceiverEmail: tt.email, Amount: tt.amount})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.wallets[sender.ID].Balance != 1000 {
				t.Fatalf("expected balance untouched, got %d", repo.wallets[sender.ID].Balance)
			}
		})
	}
}

func TestDepositRequiresVerifiedBankAccount(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo)
	user := repo.addUser("saver@example.com", 0)

	unverified := &domain.BankAccount{ID: uuid.New(), UserID: user.ID, BankName: "Bank", AccountNumber: "0123456789"}
	repo.accounts[unverified.ID] = unverified

	if _, err := svc.Deposit(context.Background(), user.ID, domain.WalletMovementRequest{Amount: 500, BankAccountID: &unverified.ID}); !errors.Is(err, ErrBankAccountUnverified) {
		t.Fatalf("expected ErrBankAccountUnverified, got %v", err)
	}
	missing := uuid.New()
	if _, err := svc.Deposit(context.Background(), user.ID, domain.WalletMovementRequest{Amount: 500, BankAccountID: &missing}); !errors.Is(err, store.ErrBankAccountNotFound) {
		t.Fatalf("expected ErrBankAccountNotFound, got %v", err)
	}

	unverified.IsVerified = true
	resp, err := svc.Deposit(context.Background(), user.ID, domain.WalletMovementRequest{Amount: 500, BankAccountID: &unverified.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", resp.Balance)
	}
	if repo.system[domain.SystemAccountFunding].Balance != -500 {
		t.Fatalf("expected funding account to carry the offsetting leg, got %d", repo.system[domain.SystemAccountFunding].Balance)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo)
	user := repo.addUser("spender@example.com", 100)

	if _, err := svc.Withdraw(context.Background(), user.ID, domain.WalletMovementRequest{Amount: 101}); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	resp, err := svc.Withdraw(context.Background(), user.ID, domain.WalletMovementRequest{Amount: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Balance != 0 {
		t.Fatalf("expected empty wallet, got %d", resp.Balance)
	}
}
