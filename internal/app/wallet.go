package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

const (
	directionIncoming = "incoming"
	directionOutgoing = "outgoing"
)

// GetBalance returns the wallet balance.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.BalanceResponse, error) {
	account, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceResponse{Balance: account.Balance, Currency: account.Currency}, nil
}

// requireVerifiedBankAccount checks that bankAccountID, when given, is the user's verified account.
func (s *Service) requireVerifiedBankAccount(ctx context.Context, userID uuid.UUID, bankAccountID *uuid.UUID) error {
	if bankAccountID == nil {
		return nil
	}
	account, err := s.repo.FindBankAccountByID(ctx, userID, *bankAccountID)
	if err != nil {
		return err
	}
	if !account.IsVerified {
		return ErrBankAccountUnverified
	}
	return nil
}

// Deposit credits the wallet from the funding account.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, req domain.WalletMovementRequest) (*domain.MoneyMovementResponse, error) {
	if !s.validAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if err := s.requireVerifiedBankAccount(ctx, userID, req.BankAccountID); err != nil {
		return nil, err
	}

	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	funding, err := s.systemAccount(ctx, domain.SystemAccountFunding)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Wallet deposit"
	}
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeDeposit, txID.String(), funding.ID, wallet.ID, req.Amount),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeDeposit,
			Status:      domain.TransactionStatusCompleted,
			ReceiverID:  &userID,
			Amount:      req.Amount,
			Currency:    wallet.Currency,
			Description: &description,
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyDepositCompleted, domain.MoneyMovementEvent{
				TransactionID: txID,
				Type:          domain.TransactionTypeDeposit,
				ReceiverID:    &userID,
				BankAccountID: req.BankAccountID,
				Amount:        req.Amount,
				Currency:      wallet.Currency,
				OccurredAt:    s.now(),
			}),
			s.notification(userID, "wallet.deposit", "Deposit received",
				fmt.Sprintf("%s was added to your wallet.", formatAmount(req.Amount, wallet.Currency)), &txID),
		},
	}

	result, err := s.post(domain.TransactionTypeDeposit, func() (*store.PostingResult, error) {
		return s.repo.PostTransaction(ctx, write)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit completed", zap.String("endpoint", "wallet_deposit"), zap.String("outcome", "completed"), logUser(userID), zap.Int64("amount", req.Amount))
	return &domain.MoneyMovementResponse{
		Message:       "Deposit successful",
		TransactionID: result.Transaction.ID,
		Amount:        req.Amount,
		Balance:       result.Balances[wallet.ID],
		Currency:      wallet.Currency,
	}, nil
}

// Withdraw debits the wallet into the payouts account and asks the payout
// integration to send the money out.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, req domain.WalletMovementRequest) (*domain.MoneyMovementResponse, error) {
	if !s.validAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if err := s.requireVerifiedBankAccount(ctx, userID, req.BankAccountID); err != nil {
		return nil, err
	}

	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.systemAccount(ctx, domain.SystemAccountPayouts)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Wallet withdrawal"
	}
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeWithdrawal, txID.String(), wallet.ID, payouts.ID, req.Amount),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeWithdrawal,
			Status:      domain.TransactionStatusCompleted,
			SenderID:    &userID,
			Amount:      req.Amount,
			Currency:    wallet.Currency,
			Description: &description,
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyWithdrawalRequested, domain.MoneyMovementEvent{
				TransactionID: txID,
				Type:          domain.TransactionTypeWithdrawal,
				SenderID:      &userID,
				BankAccountID: req.BankAccountID,
				Amount:        req.Amount,
				Currency:      wallet.Currency,
				OccurredAt:    s.now(),
			}),
		},
	}

	result, err := s.post(domain.TransactionTypeWithdrawal, func() (*store.PostingResult, error) {
		return s.repo.PostTransaction(ctx, write)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal recorded", zap.String("endpoint", "wallet_withdraw"), zap.String("outcome", "completed"), logUser(userID), zap.Int64("amount", req.Amount))
	return &domain.MoneyMovementResponse{
		Message:       "Withdrawal successful",
		TransactionID: result.Transaction.ID,
		Amount:        req.Amount,
		Balance:       result.Balances[wallet.ID],
		Currency:      wallet.Currency,
	}, nil
}

// ListTransactions returns the user's history seen from the user's side.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.TransactionView, error) {
	opts.Type = strings.TrimSpace(opts.Type)
	items, err := s.repo.ListTransactionsByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	views := make([]domain.TransactionView, 0, len(items))
	for _, item := range items {
		views = append(views, transactionView(userID, item))
	}
	return views, nil
}

func transactionView(userID uuid.UUID, item domain.Transaction) domain.TransactionView {
	view := domain.TransactionView{
		ID:          item.ID,
		Type:        item.Type,
		Status:      item.Status,
		Amount:      item.Amount,
		Currency:    item.Currency,
		Description: item.Description,
		Date:        item.CreatedAt,
	}
	if item.SenderID != nil && *item.SenderID == userID {
		view.Direction = directionOutgoing
		view.Counterparty = item.ReceiverEmail
	} else {
		view.Direction = directionIncoming
		view.Counterparty = item.SenderEmail
	}
	return view
}
