package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

// CreateMoneyRequest asks the recipient to pay the requester.
func (s *Service) CreateMoneyRequest(ctx context.Context, requesterID uuid.UUID, req domain.CreateMoneyRequest) (*domain.MoneyRequest, error) {
	if !s.validAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}

	recipient, err := s.counterparty(ctx, req.RecipientEmail, ErrRecipientNotFound)
	if err != nil {
		return nil, err
	}
	if recipient.ID == requesterID {
		return nil, ErrSelfRequest
	}
	requester, err := s.repo.FindUserByID(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to find requester: %w", err)
	}

	var reminder *time.Time
	if req.ReminderDate != nil {
		value := req.ReminderDate.UTC()
		reminder = &value
	}

	item := &domain.MoneyRequest{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		RecipientID:    recipient.ID,
		RequesterEmail: requester.Email,
		RecipientEmail: recipient.Email,
		Amount:         req.Amount,
		Note:           stringPtr(strings.TrimSpace(req.Note)),
		Status:         domain.MoneyRequestPending,
		ReminderDate:   reminder,
	}
	events := []domain.OutboxEvent{
		s.event(domain.RoutingKeyMoneyRequestCreated, moneyRequestEvent(item, s.now())),
		s.notification(recipient.ID, "money_request.received", "Money request",
			fmt.Sprintf("%s requested %s from you.", requester.Email, formatAmount(item.Amount, s.currency)), &item.ID),
	}
	if err := s.repo.CreateMoneyRequest(ctx, item, events); err != nil {
		return nil, err
	}

	s.logger.Info("money request created", zap.String("endpoint", "money_request"), zap.String("outcome", "created"), logUser(requesterID), zap.String("request_id", item.ID.String()))
	return item, nil
}

// RequestMoney is the short form served by /request_money.
func (s *Service) RequestMoney(ctx context.Context, requesterID uuid.UUID, req domain.RequestMoneyRequest) (*domain.MoneyRequest, error) {
	return s.CreateMoneyRequest(ctx, requesterID, domain.CreateMoneyRequest{
		RecipientEmail: req.ReceiverEmail,
		Amount:         req.Amount,
	})
}

// ListMoneyRequests lists requests made by the user, or addressed to the user when opts.Incoming.
func (s *Service) ListMoneyRequests(ctx context.Context, userID uuid.UUID, opts domain.MoneyRequestListOptions) ([]domain.MoneyRequest, error) {
	items, err := s.repo.ListMoneyRequests(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list money requests: %w", err)
	}
	return items, nil
}

// PayMoneyRequest settles a pending request addressed to the payer.
func (s *Service) PayMoneyRequest(ctx context.Context, payerID uuid.UUID, requestID uuid.UUID) (*domain.MoneyMovementResponse, error) {
	item, err := s.repo.FindMoneyRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if item.RecipientID != payerID {
		return nil, store.ErrMoneyRequestNotFound
	}
	if item.Status != domain.MoneyRequestPending {
		return nil, store.ErrMoneyRequestNotPending
	}

	payerWallet, err := s.wallet(ctx, payerID)
	if err != nil {
		return nil, err
	}
	requesterWallet, err := s.wallet(ctx, item.RequesterID)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	description := "Money request payment"
	if item.Note != nil {
		description = *item.Note
	}
	paid := *item
	paid.Status = domain.MoneyRequestCompleted
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeMoneyRequest, item.ID.String(), payerWallet.ID, requesterWallet.ID, item.Amount),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeMoneyRequest,
			Status:      domain.TransactionStatusCompleted,
			SenderID:    &payerID,
			ReceiverID:  &item.RequesterID,
			Amount:      item.Amount,
			Currency:    payerWallet.Currency,
			Description: &description,
			Reference:   stringPtr(item.ID.String()),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyMoneyRequestPaid, moneyRequestEvent(&paid, s.now())),
			s.notification(item.RequesterID, "money_request.paid", "Money request paid",
				fmt.Sprintf("%s paid your request for %s.", item.RecipientEmail, formatAmount(item.Amount, payerWallet.Currency)), &item.ID),
		},
	}

	result, err := s.post(domain.TransactionTypeMoneyRequest, func() (*store.PostingResult, error) {
		return s.repo.PayMoneyRequest(ctx, requestID, payerID, write)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("money request paid", zap.String("endpoint", "pay_money_request"), zap.String("outcome", "completed"), logUser(payerID), zap.String("request_id", requestID.String()))
	return &domain.MoneyMovementResponse{
		Message:       "Money request paid",
		TransactionID: result.Transaction.ID,
		Amount:        item.Amount,
		Balance:       result.Balances[payerWallet.ID],
		Currency:      payerWallet.Currency,
	}, nil
}

// DeclineMoneyRequest lets the recipient refuse a pending request.
func (s *Service) DeclineMoneyRequest(ctx context.Context, recipientID uuid.UUID, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	item, err := s.repo.FindMoneyRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	events := []domain.OutboxEvent{
		s.notification(item.RequesterID, "money_request.declined", "Money request declined",
			fmt.Sprintf("%s declined your request for %s.", item.RecipientEmail, formatAmount(item.Amount, s.currency)), &item.ID),
	}
	return s.repo.DeclineMoneyRequest(ctx, requestID, recipientID, events)
}

// CancelMoneyRequest lets the requester withdraw a pending request.
func (s *Service) CancelMoneyRequest(ctx context.Context, requesterID uuid.UUID, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	item, err := s.repo.FindMoneyRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	events := []domain.OutboxEvent{
		s.notification(item.RecipientID, "money_request.cancelled", "Money request cancelled",
			fmt.Sprintf("%s cancelled their request for %s.", item.RequesterEmail, formatAmount(item.Amount, s.currency)), &item.ID),
	}
	return s.repo.CancelMoneyRequest(ctx, requestID, requesterID, events)
}

// SendMoneyRequestReminders notifies recipients of pending requests whose reminder
// date has passed. It returns how many reminders were sent.
func (s *Service) SendMoneyRequestReminders(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDueMoneyRequestReminders(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	sent := 0
	for _, item := range due {
		events := []domain.OutboxEvent{
			s.notification(item.RecipientID, "money_request.reminder", "Payment reminder",
				fmt.Sprintf("Reminder: %s is waiting for %s.", item.RequesterEmail, formatAmount(item.Amount, s.currency)), &item.ID),
		}
		ok, err := s.repo.MarkMoneyRequestReminded(ctx, item.ID, events)
		if err != nil {
			s.logger.Error("failed to send money request reminder", zap.String("request_id", item.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func moneyRequestEvent(item *domain.MoneyRequest, at time.Time) domain.MoneyRequestEvent {
	return domain.MoneyRequestEvent{
		RequestID:   item.ID,
		RequesterID: item.RequesterID,
		RecipientID: item.RecipientID,
		Amount:      item.Amount,
		Status:      item.Status,
		OccurredAt:  at,
	}
}
