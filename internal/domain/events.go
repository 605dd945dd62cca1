package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the event exchange.
const (
	RoutingKeyUserRegistered          = "user.registered"
	RoutingKeyUserActivated           = "user.activated"
	RoutingKeyDepositCompleted        = "wallet.deposit.completed"
	RoutingKeyWithdrawalRequested     = "wallet.withdrawal.requested"
	RoutingKeyTransferCompleted       = "transfer.completed"
	RoutingKeyMoneyRequestCreated     = "money_request.created"
	RoutingKeyMoneyRequestPaid        = "money_request.paid"
	RoutingKeyBillPaymentCompleted    = "bill.payment.completed"
	RoutingKeyCardActivated           = "card.activated"
	RoutingKeyCardDeactivated         = "card.deactivated"
	RoutingKeyCardTransactionApproved = "card.transaction.approved"
	RoutingKeyCardTransactionDeclined = "card.transaction.declined"
	RoutingKeyInvestmentOrderFilled   = "investment.order.filled"
	RoutingKeyBankAccountLinked       = "bank_account.linked"
	RoutingKeyNotificationRequested   = "notification.requested"
)

// OutboxEvent is written to event_outbox in the same transaction as the change it describes.
type OutboxEvent struct {
	Exchange   string
	RoutingKey string
	Payload    interface{}
}

// OutboxMessage is a claimed outbox row awaiting publish.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// NotificationEvent asks the notification consumer to store and deliver a message.
// DedupeKey makes redelivery of the same event a no-op.
type NotificationEvent struct {
	DedupeKey  string    `json:"dedupe_key"`
	UserID     uuid.UUID `json:"user_id"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Reference  *string   `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// UserEvent is published on registration and activation.
type UserEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MoneyMovementEvent describes a completed ledger-backed movement.
type MoneyMovementEvent struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	Type          string     `json:"type"`
	SenderID      *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverID    *uuid.UUID `json:"receiver_id,omitempty"`
	BankAccountID *uuid.UUID `json:"bank_account_id,omitempty"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Reference     string     `json:"reference,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// BillPaymentEvent notifies the biller integration.
type BillPaymentEvent struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	UserID     uuid.UUID `json:"user_id"`
	Payee      string    `json:"payee"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CardEvent covers card state changes and card transactions.
type CardEvent struct {
	CardID            uuid.UUID  `json:"card_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Status            string     `json:"status"`
	CardTransactionID *uuid.UUID `json:"card_transaction_id,omitempty"`
	Amount            int64      `json:"amount,omitempty"`
	AuthorizationCode *string    `json:"authorization_code,omitempty"`
	Reason            *string    `json:"reason,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

// InvestmentOrderEvent describes a filled buy or sell.
type InvestmentOrderEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	Side          string    `json:"side"`
	Symbol        string    `json:"symbol"`
	Quantity      string    `json:"quantity"`
	Price         int64     `json:"price"`
	Amount        int64     `json:"amount"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BankAccountLinkedEvent is published when an external account is linked.
type BankAccountLinkedEvent struct {
	BankAccountID uuid.UUID `json:"bank_account_id"`
	UserID        uuid.UUID `json:"user_id"`
	BankName      string    `json:"bank_name"`
	IsVerified    bool      `json:"is_verified"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// MoneyRequestEvent covers money request lifecycle changes.
type MoneyRequestEvent struct {
	RequestID   uuid.UUID `json:"request_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}
