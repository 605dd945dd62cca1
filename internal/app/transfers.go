package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

// Transfer moves amount from the sender's wallet to the receiver's wallet.
// /transfer and /send_money both land here.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest) (*domain.MoneyMovementResponse, error) {
	if !s.validAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}

	receiver, err := s.counterparty(ctx, req.ReceiverEmail, ErrReceiverNotFound)
	if err != nil {
		return nil, err
	}
	if receiver.ID == senderID {
		return nil, ErrSelfTransfer
	}

	senderWallet, err := s.wallet(ctx, senderID)
	if err != nil {
		return nil, err
	}
	receiverWallet, err := s.wallet(ctx, receiver.ID)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	description := strings.TrimSpace(req.Description)
	amountText := formatAmount(req.Amount, senderWallet.Currency)
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeTransfer, txID.String(), senderWallet.ID, receiverWallet.ID, req.Amount),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeTransfer,
			Status:      domain.TransactionStatusCompleted,
			SenderID:    &senderID,
			ReceiverID:  &receiver.ID,
			Amount:      req.Amount,
			Currency:    senderWallet.Currency,
			Description: stringPtr(description),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyTransferCompleted, domain.MoneyMovementEvent{
				TransactionID: txID,
				Type:          domain.TransactionTypeTransfer,
				SenderID:      &senderID,
				ReceiverID:    &receiver.ID,
				Amount:        req.Amount,
				Currency:      senderWallet.Currency,
				OccurredAt:    s.now(),
			}),
			s.notification(receiver.ID, "transfer.received", "Money received",
				fmt.Sprintf("You received %s.", amountText), &txID),
			s.notification(senderID, "transfer.sent", "Transfer sent",
				fmt.Sprintf("You sent %s to %s.", amountText, receiver.Email), &txID),
		},
	}

	result, err := s.post(domain.TransactionTypeTransfer, func() (*store.PostingResult, error) {
		return s.repo.PostTransaction(ctx, write)
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			s.logger.Info("transfer rejected", zap.String("endpoint", "transfer"), zap.String("outcome", "reject"), zap.String("reason", "insufficient_funds"), logUser(senderID))
		}
		return nil, err
	}

	s.logger.Info("transfer completed",
		zap.String("endpoint", "transfer"),
		zap.String("outcome", "completed"),
		logUser(senderID),
		zap.String("receiver_id", receiver.ID.String()),
		zap.Int64("amount", req.Amount),
	)
	return &domain.MoneyMovementResponse{
		Message:       "Transfer successful",
		TransactionID: result.Transaction.ID,
		Amount:        req.Amount,
		Balance:       result.Balances[senderWallet.ID],
		Currency:      senderWallet.Currency,
	}, nil
}
