/**
 * @description
 * Core domain models for the superapp backend. A single User entity backs every
 * feature; balances live on ledger Accounts and every user-visible money movement
 * is a Transaction linked to the ledger posting that produced it.
 *
 * @dependencies
 * - strings, time: Masking and timestamps.
 * - github.com/google/uuid: Identifiers.
 * - github.com/shopspring/decimal: Investment quantities.
 */
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	UserStatusPending = "pending"
	UserStatusActive  = "active"
)

// User is the registered customer.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	OTPSecret         string     `json:"-"`
	OTPLastStep       *int64     `json:"-"`
	OTPFailedAttempts int        `json:"-"`
	OTPLockedUntil    *time.Time `json:"-"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}

const (
	AccountKindWallet = "wallet"
	AccountKindSystem = "system"
)

// System account codes seeded by the schema.
const (
	SystemAccountFunding     = "system:funding"
	SystemAccountPayouts     = "system:payouts"
	SystemAccountBills       = "system:bills"
	SystemAccountCards       = "system:cards"
	SystemAccountInvestments = "system:investments"
)

// Account is a ledger account. Wallets belong to a user; system accounts carry a code.
type Account struct {
	ID            uuid.UUID  `json:"id"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	Code          *string    `json:"code,omitempty"`
	Kind          string     `json:"kind"`
	Currency      string     `json:"currency"`
	Balance       int64      `json:"balance"`
	AllowNegative bool       `json:"-"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const (
	TransactionTypeDeposit        = "deposit"
	TransactionTypeWithdrawal     = "withdrawal"
	TransactionTypeTransfer       = "transfer"
	TransactionTypeMoneyRequest   = "money_request_payment"
	TransactionTypeBillPayment    = "bill_payment"
	TransactionTypeCardPurchase   = "card_purchase"
	TransactionTypeCardWithdrawal = "card_withdrawal"
	TransactionTypeCardReversal   = "card_reversal"
	TransactionTypeInvestmentBuy  = "investment_buy"
	TransactionTypeInvestmentSell = "investment_sell"

	TransactionStatusCompleted = "completed"
	TransactionStatusPending   = "pending"
	TransactionStatusReversed  = "reversed"
)

// Transaction is the user-facing record of a money movement.
type Transaction struct {
	ID                  uuid.UUID  `json:"id"`
	LedgerTransactionID *uuid.UUID `json:"ledger_transaction_id,omitempty"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	SenderID            *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverID          *uuid.UUID `json:"receiver_id,omitempty"`
	SenderEmail         *string    `json:"sender_email,omitempty"`
	ReceiverEmail       *string    `json:"receiver_email,omitempty"`
	Amount              int64      `json:"amount"`
	Currency            string     `json:"currency"`
	Description         *string    `json:"description,omitempty"`
	Reference           *string    `json:"reference,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

const (
	BillStatusScheduled = "scheduled"
	BillStatusCompleted = "completed"
	BillStatusFailed    = "failed"

	BillFrequencyWeekly  = "weekly"
	BillFrequencyMonthly = "monthly"
)

// BillPayment is a single payment to a payee, immediate or scheduled.
type BillPayment struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Payee           string     `json:"payee"`
	Amount          int64      `json:"amount"`
	DueDate         time.Time  `json:"due_date"`
	IsRecurring     bool       `json:"is_recurring"`
	RecurringBillID *uuid.UUID `json:"recurring_bill_id,omitempty"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	TransactionID   *uuid.UUID `json:"transaction_id,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RecurringBill materializes a BillPayment every period.
type RecurringBill struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Payee       string    `json:"payee"`
	Amount      int64     `json:"amount"`
	Frequency   string    `json:"frequency"`
	NextDueDate time.Time `json:"next_due_date"`
	AnchorDay   int       `json:"anchor_day"` // day of month monthly periods aim for
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	CardStatusInactive = "inactive"
	CardStatusActive   = "active"

	CardTransactionPurchase   = "purchase"
	CardTransactionWithdrawal = "withdrawal"

	CardTransactionPending  = "pending"
	CardTransactionApproved = "approved"
	CardTransactionDeclined = "declined"
)

// Card is the user's virtual card.
type Card struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Last4           string     `json:"last4"`
	ProcessorCardID string     `json:"-"`
	Status          string     `json:"status"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CardTransaction is a purchase or cash withdrawal made with a card.
type CardTransaction struct {
	ID                uuid.UUID  `json:"id"`
	CardID            uuid.UUID  `json:"card_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Type              string     `json:"transaction_type"`
	Amount            int64      `json:"amount"`
	Merchant          *string    `json:"merchant,omitempty"`
	Status            string     `json:"status"`
	AuthorizationCode *string    `json:"authorization_code,omitempty"`
	DeclineReason     *string    `json:"decline_reason,omitempty"`
	TransactionID     *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Investment is one purchase lot. RemainingQuantity shrinks as the lot is sold.
type Investment struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	InvestmentType    string          `json:"investment_type"`
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	PurchasePrice     int64           `json:"purchase_price"`
	PurchaseDate      time.Time       `json:"purchase_date"`
}

// Holding aggregates open lots of one symbol.
type Holding struct {
	Symbol         string          `json:"symbol"`
	InvestmentType string          `json:"investment_type"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasis      int64           `json:"cost_basis"`
}

// InvestmentSale records a sell order filled against FIFO lots.
type InvestmentSale struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	SellingPrice  int64           `json:"selling_price"`
	Proceeds      int64           `json:"proceeds"`
	CostBasis     int64           `json:"cost_basis"`
	RealizedGain  int64           `json:"realized_gain"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BankAccount is an external account linked by the user.
type BankAccount struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	BankName      string    `json:"bank_name"`
	BankCode      *string   `json:"bank_code,omitempty"`
	AccountNumber string    `json:"-"`
	MaskedNumber  string    `json:"account_number"`
	AccountName   *string   `json:"account_name,omitempty"`
	IsVerified    bool      `json:"is_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	MoneyRequestPending   = "pending"
	MoneyRequestCompleted = "completed"
	MoneyRequestCancelled = "cancelled"
	MoneyRequestDeclined  = "declined"
)

// MoneyRequest asks another user to pay the requester.
type MoneyRequest struct {
	ID                   uuid.UUID  `json:"id"`
	RequesterID          uuid.UUID  `json:"requester_id"`
	RecipientID          uuid.UUID  `json:"recipient_id"`
	RequesterEmail       string     `json:"requester,omitempty"`
	RecipientEmail       string     `json:"recipient,omitempty"`
	Amount               int64      `json:"amount"`
	Note                 *string    `json:"note,omitempty"`
	Status               string     `json:"status"`
	ReminderDate         *time.Time `json:"reminder_date,omitempty"`
	ReminderSentAt       *time.Time `json:"reminder_sent_at,omitempty"`
	SettledTransactionID *uuid.UUID `json:"settled_transaction_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Category  string     `json:"category"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Reference *string    `json:"reference,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const (
	PrivacyPublic   = "public"
	PrivacyContacts = "contacts"
	PrivacyPrivate  = "private"
)

// UserProfile holds personal details shown in the app.
type UserProfile struct {
	UserID            uuid.UUID  `json:"user_id"`
	FullName          string     `json:"full_name"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	Address           *string    `json:"address,omitempty"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	PrivacySetting    string     `json:"privacy_setting"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListOptions is the common pagination input.
type ListOptions struct {
	Limit  int
	Offset int
}

// MaskAccountNumber keeps the last four digits visible.
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
