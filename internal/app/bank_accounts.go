package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/pkg/bankclient"
	"go.uber.org/zap"
)

var accountNumberPattern = regexp.MustCompile(`^\d{6,20}$`)

// LinkBankAccount validates and stores an external bank account. A provider that
// is down, or not configured, leaves the account unverified.
func (s *Service) LinkBankAccount(ctx context.Context, userID uuid.UUID, req domain.LinkBankAccountRequest) (*domain.BankAccount, error) {
	number := strings.TrimSpace(req.AccountNumber)
	bankName := strings.TrimSpace(req.BankName)
	bankCode := strings.TrimSpace(req.BankCode)
	if !accountNumberPattern.MatchString(number) || bankName == "" {
		return nil, ErrInvalidBankAccount
	}

	account := &domain.BankAccount{
		ID:            uuid.New(),
		UserID:        userID,
		BankName:      bankName,
		BankCode:      stringPtr(bankCode),
		AccountNumber: number,
	}

	if s.bank != nil {
		verified, err := s.bank.Verify(ctx, bankclient.VerifyRequest{
			AccountNumber: number,
			BankName:      bankName,
			BankCode:      bankCode,
		})
		switch {
		case err == nil:
			account.IsVerified = verified.Verified
			account.AccountName = stringPtr(strings.TrimSpace(verified.AccountName))
		case errors.Is(err, bankclient.ErrAccountNotFound):
			return nil, ErrInvalidBankAccount
		default:
			s.logger.Warn("bank verification unavailable; linking unverified",
				zap.String("endpoint", "link_bank_account"),
				zap.String("outcome", "degraded"),
				logUser(userID),
				zap.Error(err),
			)
		}
	}

	events := []domain.OutboxEvent{
		s.event(domain.RoutingKeyBankAccountLinked, domain.BankAccountLinkedEvent{
			BankAccountID: account.ID,
			UserID:        userID,
			BankName:      bankName,
			IsVerified:    account.IsVerified,
			OccurredAt:    s.now(),
		}),
	}
	if err := s.repo.CreateBankAccount(ctx, account, events); err != nil {
		return nil, err
	}

	s.logger.Info("bank account linked", zap.String("endpoint", "link_bank_account"), zap.Bool("verified", account.IsVerified), logUser(userID))
	return account, nil
}

// ListBankAccounts returns the user's linked accounts with masked numbers.
func (s *Service) ListBankAccounts(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error) {
	accounts, err := s.repo.ListBankAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	return accounts, nil
}
