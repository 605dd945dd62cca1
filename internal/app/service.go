/**
 * @description
 * This file contains the core of the superapp business layer. The `Service` struct
 * orchestrates every use case, coordinating between the repository, the outbound
 * integrations (bank verification, card processor, market data) and the rate limiter.
 *
 * Key features:
 * - Builds balanced ledger postings and hands them to the repository together with
 *   the user-facing transaction and the outbox events, so a money movement commits
 *   or rolls back as a whole.
 * - Integrations are optional. A nil integration degrades to the local behaviour
 *   described on each use case.
 *
 * @dependencies
 * - github.com/google/uuid: Identifiers.
 * - github.com/shopspring/decimal: Amount formatting in notification copy.
 * - go.uber.org/zap: Structured logging through internal/logging.
 * - internal/config, internal/domain, internal/store: Settings, models and data access.
 * - pkg/bankclient, pkg/cardclient, pkg/marketclient: Integration request/response types.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/pkg/bankclient"
	"github.com/transfa/superapp-backend/pkg/cardclient"
	"github.com/transfa/superapp-backend/pkg/marketclient"
	"go.uber.org/zap"
)

// BankVerifier confirms that an external bank account exists.
type BankVerifier interface {
	Verify(ctx context.Context, request bankclient.VerifyRequest) (*bankclient.VerifyResponse, error)
}

// CardProcessor issues cards and authorizes card transactions.
type CardProcessor interface {
	IssueCard(ctx context.Context, request cardclient.IssueCardRequest) (*cardclient.IssuedCard, error)
	Authorize(ctx context.Context, request cardclient.AuthorizationRequest) (*cardclient.Authorization, error)
}

// QuoteProvider returns execution prices for investment orders.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*marketclient.Quote, error)
}

// PostingObserver is told about every posting attempt.
type PostingObserver interface {
	ObservePosting(kind, outcome string)
}

type nopPostingObserver struct{}

func (nopPostingObserver) ObservePosting(string, string) {}

// Service provides the core business logic of the superapp.
type Service struct {
	repo    store.Repository
	logger  *logging.Logger
	bank    BankVerifier
	cards   CardProcessor
	market  QuoteProvider
	limiter RateLimiter
	metrics PostingObserver

	currency       string
	exchange       string
	jwtSecret      []byte
	accessTokenTTL time.Duration
	otpIssuer      string

	otpMaxAttempts    int
	otpLockoutSeconds int

	loginRateLimit int
	moneyRateLimit int

	maxAmount      int64
	cardHoldMaxAge time.Duration

	idempotencyTTL        time.Duration
	requireIdempotencyKey bool

	now func() time.Time
}

// NewService creates a new service instance.
func NewService(repo store.Repository, logger *logging.Logger, cfg config.Config) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "NGN"
	}
	maxAmount := cfg.MaxTransactionAmount
	if maxAmount <= 0 {
		maxAmount = config.DefaultMaxTransactionAmount
	}
	cardHoldMaxAge := time.Duration(cfg.CardHoldTimeoutMinutes) * time.Minute
	if cardHoldMaxAge <= 0 {
		cardHoldMaxAge = 15 * time.Minute
	}
	exchange := cfg.EventExchange
	if exchange == "" {
		exchange = "superapp.events"
	}
	return &Service{
		repo:                  repo,
		logger:                logger.Component("app"),
		limiter:               NewMemoryRateLimiter(),
		metrics:               nopPostingObserver{},
		currency:              currency,
		exchange:              exchange,
		jwtSecret:             []byte(cfg.JWTSecret),
		accessTokenTTL:        time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		otpIssuer:             cfg.OTPIssuer,
		otpMaxAttempts:        cfg.OTPMaxAttempts,
		otpLockoutSeconds:     cfg.OTPLockoutSeconds,
		loginRateLimit:        cfg.LoginRateLimitPerMinute,
		moneyRateLimit:        cfg.MoneyRateLimitPerMinute,
		maxAmount:             maxAmount,
		cardHoldMaxAge:        cardHoldMaxAge,
		idempotencyTTL:        time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute,
		requireIdempotencyKey: cfg.RequireIdempotencyKey,
		now:                   func() time.Time { return time.Now().UTC() },
	}
}

// SetBankVerifier enables bank account verification.
func (s *Service) SetBankVerifier(verifier BankVerifier) {
	s.bank = verifier
}

// SetCardProcessor routes card issuing and authorization to a processor.
func (s *Service) SetCardProcessor(processor CardProcessor) {
	s.cards = processor
}

// SetQuoteProvider prices investment orders from market data.
func (s *Service) SetQuoteProvider(provider QuoteProvider) {
	s.market = provider
}

// SetRateLimiter replaces the in-process limiter, typically with the Redis one.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	if limiter != nil {
		s.limiter = limiter
	}
}

// SetPostingObserver records posting outcomes, typically into Prometheus.
func (s *Service) SetPostingObserver(observer PostingObserver) {
	if observer != nil {
		s.metrics = observer
	}
}

// Currency is the ledger currency.
func (s *Service) Currency() string {
	return s.currency
}

// post runs a repository call that applies a posting and counts the outcome.
func (s *Service) post(kind string, fn func() (*store.PostingResult, error)) (*store.PostingResult, error) {
	result, err := fn()
	if err != nil {
		s.metrics.ObservePosting(kind, "rejected")
		return nil, err
	}
	s.metrics.ObservePosting(kind, "committed")
	return result, nil
}

func (s *Service) event(routingKey string, payload interface{}) domain.OutboxEvent {
	return domain.OutboxEvent{Exchange: s.exchange, RoutingKey: routingKey, Payload: payload}
}

func (s *Service) notification(userID uuid.UUID, category, title, message string, reference *uuid.UUID) domain.OutboxEvent {
	var ref *string
	if reference != nil {
		value := reference.String()
		ref = &value
	}
	return s.event(domain.RoutingKeyNotificationRequested, domain.NotificationEvent{
		DedupeKey:  uuid.NewString(),
		UserID:     userID,
		Category:   category,
		Title:      title,
		Message:    message,
		Reference:  ref,
		OccurredAt: s.now(),
	})
}

// validAmount reports whether amount is a positive movement within the configured cap.
func (s *Service) validAmount(amount int64) bool {
	return amount > 0 && amount <= s.maxAmount
}

// counterparty finds the active user behind email. Unknown and unverified users
// both return notFound.
func (s *Service) counterparty(ctx context.Context, email string, notFound error) (*domain.User, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, notFound
	}
	return user, nil
}

func (s *Service) wallet(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindWalletByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return account, nil
}

func (s *Service) systemAccount(ctx context.Context, code string) (*domain.Account, error) {
	account, err := s.repo.FindSystemAccount(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to find system account %s: %w", code, err)
	}
	return account, nil
}

// formatAmount renders minor units as "NGN 1,500.00" for notification copy.
func formatAmount(amount int64, currency string) string {
	major := decimal.New(amount, -2)
	whole := major.Truncate(0).Abs().String()
	fraction := major.Abs().Sub(major.Abs().Truncate(0)).StringFixed(2)[1:]

	grouped := make([]byte, 0, len(whole)+len(whole)/3)
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, whole[i])
	}
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s%s", currency, sign, grouped, fraction)
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func logUser(userID uuid.UUID) zap.Field {
	return zap.String("user_id", userID.String())
}
