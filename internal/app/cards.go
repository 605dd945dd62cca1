package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/pkg/cardclient"
	"go.uber.org/zap"
)

const (
	declineReasonProcessorUnavailable = "processor_unavailable"
	declineReasonHoldExpired          = "authorization_timeout"

	// cardSettleTimeout bounds the approve or reverse step once a hold is posted.
	cardSettleTimeout = 10 * time.Second
)

// IssueCard creates the user's virtual card in the inactive state.
func (s *Service) IssueCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	if existing, err := s.repo.FindCardByUserID(ctx, userID); err == nil {
		return existing, store.ErrCardExists
	} else if !errors.Is(err, store.ErrCardNotFound) {
		return nil, fmt.Errorf("failed to look up card: %w", err)
	}

	card := &domain.Card{
		ID:     uuid.New(),
		UserID: userID,
		Status: domain.CardStatusInactive,
	}
	if s.cards != nil {
		issued, err := s.cards.IssueCard(ctx, cardclient.IssueCardRequest{
			CustomerReference: userID.String(),
			Currency:          s.currency,
		})
		if err != nil {
			s.logger.Error("card processor failed to issue card", zap.String("endpoint", "card_issue"), logUser(userID), zap.Error(err))
			return nil, ErrCardProcessorDown
		}
		card.ProcessorCardID = issued.CardID
		card.Last4 = issued.Last4
	} else {
		last4, err := randomDigits(4)
		if err != nil {
			return nil, err
		}
		card.ProcessorCardID = "local_" + card.ID.String()
		card.Last4 = last4
	}

	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	s.logger.Info("card issued", zap.String("endpoint", "card_issue"), zap.String("outcome", "issued"), logUser(userID))
	return card, nil
}

// GetCard returns the user's card.
func (s *Service) GetCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	return s.repo.FindCardByUserID(ctx, userID)
}

// ActivateCard turns the user's card on.
func (s *Service) ActivateCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	return s.setCardStatus(ctx, userID, domain.CardStatusActive, domain.RoutingKeyCardActivated, "Card activated", "Your card is now active.")
}

// DeactivateCard turns the user's card off.
func (s *Service) DeactivateCard(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	return s.setCardStatus(ctx, userID, domain.CardStatusInactive, domain.RoutingKeyCardDeactivated, "Card deactivated", "Your card has been deactivated.")
}

func (s *Service) setCardStatus(ctx context.Context, userID uuid.UUID, status, routingKey, title, message string) (*domain.Card, error) {
	card, err := s.repo.FindCardByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	events := []domain.OutboxEvent{
		s.event(routingKey, domain.CardEvent{CardID: card.ID, UserID: userID, Status: status, OccurredAt: s.now()}),
		s.notification(userID, routingKey, title, message, &card.ID),
	}
	updated, err := s.repo.SetCardStatus(ctx, userID, status, events)
	if err != nil {
		return nil, err
	}
	s.logger.Info("card status changed", zap.String("endpoint", "card_status"), zap.String("outcome", status), logUser(userID))
	return updated, nil
}

// CardTransaction holds the amount on the wallet, asks the processor to authorize
// it and either finalizes the hold or reverses it. A decline is returned as a
// declined transaction with a nil error.
func (s *Service) CardTransaction(ctx context.Context, userID uuid.UUID, req domain.CardTransactionRequest) (*domain.CardTransactionResponse, error) {
	kind := strings.ToLower(strings.TrimSpace(req.TransactionType))
	merchant := strings.TrimSpace(req.Merchant)
	var txType string
	switch kind {
	case domain.CardTransactionPurchase:
		if merchant == "" {
			return nil, ErrInvalidCardTransaction
		}
		txType = domain.TransactionTypeCardPurchase
	case domain.CardTransactionWithdrawal:
		txType = domain.TransactionTypeCardWithdrawal
	default:
		return nil, ErrInvalidCardTransaction
	}
	if !s.validAmount(req.Amount) {
		return nil, ErrInvalidCardTransaction
	}

	card, err := s.repo.FindCardByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if card.Status != domain.CardStatusActive {
		return nil, store.ErrCardNotActive
	}
	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	settlement, err := s.systemAccount(ctx, domain.SystemAccountCards)
	if err != nil {
		return nil, err
	}

	cardTx := &domain.CardTransaction{
		ID:       uuid.New(),
		CardID:   card.ID,
		UserID:   userID,
		Type:     kind,
		Amount:   req.Amount,
		Merchant: stringPtr(merchant),
	}
	description := "Card " + kind
	if merchant != "" {
		description = fmt.Sprintf("Card %s at %s", kind, merchant)
	}
	hold := store.LedgerWrite{
		Posting: domain.NewTransferPosting(txType, cardTx.ID.String(), wallet.ID, settlement.ID, req.Amount),
		Transaction: domain.Transaction{
			ID:          uuid.New(),
			Type:        txType,
			Status:      domain.TransactionStatusPending,
			SenderID:    &userID,
			Amount:      req.Amount,
			Currency:    wallet.Currency,
			Description: &description,
			Reference:   stringPtr(cardTx.ID.String()),
		},
	}
	if _, err := s.post(txType, func() (*store.PostingResult, error) {
		return s.repo.CreateCardTransaction(ctx, cardTx, hold)
	}); err != nil {
		return nil, err
	}

	// The hold is committed, so settle it even if the client goes away.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cardSettleTimeout)
	defer cancel()

	auth, authErr := s.authorizeCard(ctx, card, cardTx, wallet.Currency)
	if authErr != nil {
		s.logger.Error("card authorization failed; reversing hold", zap.String("endpoint", "card_transaction"), logUser(userID), zap.Error(authErr))
		auth = &cardclient.Authorization{DeclineReason: declineReasonProcessorUnavailable}
	}

	if !auth.Approved {
		reason := strings.TrimSpace(auth.DeclineReason)
		if reason == "" {
			reason = "declined"
		}
		declined, err := s.declineCardTransaction(settleCtx, cardTx, hold, reason)
		if err != nil {
			return nil, err
		}
		s.logger.Info("card transaction declined", zap.String("endpoint", "card_transaction"), zap.String("outcome", "declined"), zap.String("reason", reason), logUser(userID))
		return &domain.CardTransactionResponse{Message: "Card transaction declined", Transaction: *declined}, nil
	}

	code := auth.AuthorizationCode
	events := []domain.OutboxEvent{
		s.event(domain.RoutingKeyCardTransactionApproved, domain.CardEvent{
			CardID:            card.ID,
			UserID:            userID,
			Status:            domain.CardTransactionApproved,
			CardTransactionID: &cardTx.ID,
			Amount:            req.Amount,
			AuthorizationCode: &code,
			OccurredAt:        s.now(),
		}),
		s.notification(userID, "card.transaction.approved", "Card transaction",
			fmt.Sprintf("%s: %s.", description, formatAmount(req.Amount, wallet.Currency)), &cardTx.ID),
	}
	approved, err := s.repo.ApproveCardTransaction(settleCtx, cardTx.ID, code, events)
	if err != nil {
		return nil, err
	}

	s.logger.Info("card transaction approved", zap.String("endpoint", "card_transaction"), zap.String("outcome", "approved"), logUser(userID), zap.Int64("amount", req.Amount))
	return &domain.CardTransactionResponse{Message: "Card transaction completed successfully", Transaction: *approved}, nil
}

// authorizeCard approves locally when no processor is configured.
func (s *Service) authorizeCard(ctx context.Context, card *domain.Card, cardTx *domain.CardTransaction, currency string) (*cardclient.Authorization, error) {
	if s.cards == nil {
		code, err := randomDigits(6)
		if err != nil {
			return nil, err
		}
		return &cardclient.Authorization{Approved: true, AuthorizationCode: code}, nil
	}
	merchant := ""
	if cardTx.Merchant != nil {
		merchant = *cardTx.Merchant
	}
	return s.cards.Authorize(ctx, cardclient.AuthorizationRequest{
		CardID:    card.ProcessorCardID,
		Amount:    cardTx.Amount,
		Currency:  currency,
		Type:      cardTx.Type,
		Merchant:  merchant,
		Reference: cardTx.ID.String(),
	})
}

// declineCardTransaction reverses the hold posted by CardTransaction.
func (s *Service) declineCardTransaction(ctx context.Context, cardTx *domain.CardTransaction, hold store.LedgerWrite, reason string) (*domain.CardTransaction, error) {
	description := "Card transaction reversal"
	reversal := store.LedgerWrite{
		Posting: hold.Posting.Reverse(domain.TransactionTypeCardReversal, cardTx.ID.String()),
		Transaction: domain.Transaction{
			ID:          uuid.New(),
			Type:        domain.TransactionTypeCardReversal,
			Status:      domain.TransactionStatusCompleted,
			ReceiverID:  &cardTx.UserID,
			Amount:      cardTx.Amount,
			Currency:    hold.Transaction.Currency,
			Description: &description,
			Reference:   stringPtr(cardTx.ID.String()),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyCardTransactionDeclined, domain.CardEvent{
				CardID:            cardTx.CardID,
				UserID:            cardTx.UserID,
				Status:            domain.CardTransactionDeclined,
				CardTransactionID: &cardTx.ID,
				Amount:            cardTx.Amount,
				Reason:            &reason,
				OccurredAt:        s.now(),
			}),
			s.notification(cardTx.UserID, "card.transaction.declined", "Card transaction declined",
				fmt.Sprintf("A card %s of %s was declined.", cardTx.Type, formatAmount(cardTx.Amount, hold.Transaction.Currency)), &cardTx.ID),
		},
	}

	var declined *domain.CardTransaction
	_, err := s.post(domain.TransactionTypeCardReversal, func() (*store.PostingResult, error) {
		item, err := s.repo.DeclineCardTransaction(ctx, cardTx.ID, reason, reversal)
		if err != nil {
			return nil, err
		}
		declined = item
		return &store.PostingResult{Transaction: reversal.Transaction}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reverse card hold: %w", err)
	}
	return declined, nil
}

// ReverseStaleCardHolds reverses pending card holds older than the configured hold
// timeout. A hold settled concurrently is skipped.
func (s *Service) ReverseStaleCardHolds(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListStaleCardTransactions(ctx, s.now().Add(-s.cardHoldMaxAge), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale card holds: %w", err)
	}
	settlement, err := s.systemAccount(ctx, domain.SystemAccountCards)
	if err != nil {
		return 0, err
	}

	reversed := 0
	for i := range stale {
		cardTx := &stale[i]
		wallet, err := s.wallet(ctx, cardTx.UserID)
		if err != nil {
			return reversed, err
		}
		txType := domain.TransactionTypeCardWithdrawal
		if cardTx.Type == domain.CardTransactionPurchase {
			txType = domain.TransactionTypeCardPurchase
		}
		hold := store.LedgerWrite{
			Posting:     domain.NewTransferPosting(txType, cardTx.ID.String(), wallet.ID, settlement.ID, cardTx.Amount),
			Transaction: domain.Transaction{Currency: wallet.Currency},
		}
		if _, err := s.declineCardTransaction(ctx, cardTx, hold, declineReasonHoldExpired); err != nil {
			if errors.Is(err, store.ErrCardTransactionNotFound) {
				continue
			}
			return reversed, err
		}
		reversed++
		s.logger.Warn("stale card hold reversed", zap.String("job", "card_hold_sweeper"), logUser(cardTx.UserID), zap.String("card_transaction_id", cardTx.ID.String()))
	}
	return reversed, nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate digits: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
