/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the superapp needs. Operations that move money take a LedgerWrite so the
 * balanced posting, the user-facing transaction record and the outbox events commit
 * in one database transaction.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailTaken              = errors.New("email already registered")
	ErrOTPAlreadyUsed          = errors.New("otp already used or user not pending")
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrBankAccountNotFound     = errors.New("bank account not found")
	ErrBankAccountLinked       = errors.New("bank account already linked")
	ErrMoneyRequestNotFound    = errors.New("money request not found")
	ErrMoneyRequestNotPending  = errors.New("money request is not pending")
	ErrBillPaymentNotPayable   = errors.New("bill payment is not payable")
	ErrRecurringBillNotFound   = errors.New("recurring bill not found")
	ErrCardNotFound            = errors.New("card not found")
	ErrCardExists              = errors.New("card already issued")
	ErrCardAlreadyActive       = errors.New("card already active")
	ErrCardNotActive           = errors.New("card is not active")
	ErrCardTransactionNotFound = errors.New("card transaction not found")
	ErrProfileExists           = errors.New("profile already exists")
	ErrProfileNotFound         = errors.New("profile not found")
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrIdempotencyConflict     = errors.New("idempotency key reused with a different request")
	ErrIdempotencyInProgress   = errors.New("idempotency key is still being processed")
	ErrIdempotencyApplied      = errors.New("idempotency key was already applied")
)

// LedgerWrite is one balanced posting plus the records committed with it.
type LedgerWrite struct {
	Posting     domain.Posting
	Transaction domain.Transaction
	Events      []domain.OutboxEvent
}

// PostingResult reports the committed ledger transaction and the balances it left behind.
type PostingResult struct {
	LedgerTransactionID uuid.UUID
	Transaction         domain.Transaction
	Balances            map[uuid.UUID]int64
}

// IdempotentResponse is a stored response replayed for a repeated request.
type IdempotentResponse struct {
	StatusCode int
	Payload    []byte
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Users and authentication
	CreateUserWithWallet(ctx context.Context, user *domain.User, currency string, events []domain.OutboxEvent) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ActivateUser(ctx context.Context, userID uuid.UUID, otpStep int64, events []domain.OutboxEvent) error
	RecordFailedOTPAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (int, *time.Time, error)

	// Ledger and wallet
	FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	FindSystemAccount(ctx context.Context, code string) (*domain.Account, error)
	PostTransaction(ctx context.Context, write LedgerWrite) (*PostingResult, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)

	// Money requests
	CreateMoneyRequest(ctx context.Context, req *domain.MoneyRequest, events []domain.OutboxEvent) error
	ListMoneyRequests(ctx context.Context, userID uuid.UUID, opts domain.MoneyRequestListOptions) ([]domain.MoneyRequest, error)
	FindMoneyRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.MoneyRequest, error)
	PayMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, write LedgerWrite) (*PostingResult, error)
	DeclineMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error)
	CancelMoneyRequest(ctx context.Context, requestID uuid.UUID, requesterID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error)
	ListDueMoneyRequestReminders(ctx context.Context, asOf time.Time, limit int) ([]domain.MoneyRequest, error)
	MarkMoneyRequestReminded(ctx context.Context, requestID uuid.UUID, events []domain.OutboxEvent) (bool, error)

	// Bill pay
	CreateBillPayment(ctx context.Context, payment *domain.BillPayment, recurring *domain.RecurringBill, write *LedgerWrite) (*PostingResult, error)
	ListRecurringBills(ctx context.Context, userID uuid.UUID) ([]domain.RecurringBill, error)
	DeactivateRecurringBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) error
	ListDueBillPayments(ctx context.Context, asOf time.Time, limit int) ([]domain.BillPayment, error)
	PayScheduledBill(ctx context.Context, paymentID uuid.UUID, write LedgerWrite) (*PostingResult, error)
	MarkBillPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string, events []domain.OutboxEvent) error
	ListDueRecurringBills(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringBill, error)
	MaterializeRecurringBill(ctx context.Context, billID uuid.UUID, asOf time.Time) (*domain.BillPayment, error)

	// Cards
	CreateCard(ctx context.Context, card *domain.Card) error
	FindCardByUserID(ctx context.Context, userID uuid.UUID) (*domain.Card, error)
	SetCardStatus(ctx context.Context, userID uuid.UUID, status string, events []domain.OutboxEvent) (*domain.Card, error)
	CreateCardTransaction(ctx context.Context, cardTx *domain.CardTransaction, write LedgerWrite) (*PostingResult, error)
	ApproveCardTransaction(ctx context.Context, cardTxID uuid.UUID, authorizationCode string, events []domain.OutboxEvent) (*domain.CardTransaction, error)
	DeclineCardTransaction(ctx context.Context, cardTxID uuid.UUID, reason string, reversal LedgerWrite) (*domain.CardTransaction, error)
	ListStaleCardTransactions(ctx context.Context, cutoff time.Time, limit int) ([]domain.CardTransaction, error)

	// Investments
	ListOpenInvestments(ctx context.Context, userID uuid.UUID) ([]domain.Investment, error)
	BuyInvestment(ctx context.Context, lot *domain.Investment, write LedgerWrite) (*PostingResult, error)
	SellInvestment(ctx context.Context, sale *domain.InvestmentSale, write LedgerWrite) (*PostingResult, error)

	// Bank accounts
	CreateBankAccount(ctx context.Context, account *domain.BankAccount, events []domain.OutboxEvent) error
	ListBankAccounts(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error)
	FindBankAccountByID(ctx context.Context, userID uuid.UUID, bankAccountID uuid.UUID) (*domain.BankAccount, error)

	// Profiles
	CreateProfile(ctx context.Context, profile *domain.UserProfile) error
	FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile *domain.UserProfile) error

	// In-app notifications
	CreateNotification(ctx context.Context, item *domain.Notification, dedupeKey *string) (bool, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID uuid.UUID, notificationID uuid.UUID) (*domain.Notification, error)

	// Outbox
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error

	// Idempotency keys
	AcquireIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key, requestHash string, ttl, staleWindow time.Duration) (*IdempotentResponse, *IdempotencyRun, error)
	CompleteIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string, response IdempotentResponse) error
	ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string) error
}
