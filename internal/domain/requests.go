package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse carries the provisioning URI for the authenticator app.
type RegisterResponse struct {
	UserID             uuid.UUID `json:"user_id"`
	Email              string    `json:"email"`
	Status             string    `json:"status"`
	OTPProvisioningURI string    `json:"otp_provisioning_uri"`
	Message            string    `json:"message"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the bearer token issued on login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// VerifyOTPRequest is the body of POST /verify-otp.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// BalanceResponse is returned by GET /wallet/balance.
type BalanceResponse struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// WalletMovementRequest is the body of deposit and withdraw.
type WalletMovementRequest struct {
	Amount        int64      `json:"amount"`
	BankAccountID *uuid.UUID `json:"bank_account_id,omitempty"`
	Description   string     `json:"description,omitempty"`
}

// TransferRequest is the body of POST /transfer and POST /send_money.
type TransferRequest struct {
	ReceiverEmail string `json:"receiver_email"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description,omitempty"`
}

// MoneyMovementResponse is returned by every endpoint that moves wallet funds.
type MoneyMovementResponse struct {
	Message       string    `json:"message"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	Currency      string    `json:"currency"`
}

// TransactionView is one row of GET /transactions, seen from the caller.
type TransactionView struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Direction    string    `json:"direction"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Counterparty *string   `json:"counterparty,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Date         time.Time `json:"date"`
}

// TransactionListOptions filters GET /transactions.
type TransactionListOptions struct {
	ListOptions
	Type string
}

// CreateMoneyRequest is the body of POST /money/request.
type CreateMoneyRequest struct {
	RecipientEmail string     `json:"recipient_email"`
	Amount         int64      `json:"amount"`
	ReminderDate   *time.Time `json:"reminder_date,omitempty"`
	Note           string     `json:"note,omitempty"`
}

// RequestMoneyRequest is the body of POST /request_money.
type RequestMoneyRequest struct {
	ReceiverEmail string `json:"receiver_email"`
	Amount        int64  `json:"amount"`
}

// MoneyRequestListOptions filters GET /money/requests.
type MoneyRequestListOptions struct {
	ListOptions
	Incoming bool
}

// BillPayRequest is the body of POST /bill/pay.
type BillPayRequest struct {
	Payee       string `json:"payee"`
	Amount      int64  `json:"amount"`
	DueDate     string `json:"due_date"`
	IsRecurring bool   `json:"is_recurring"`
	Frequency   string `json:"frequency,omitempty"`
}

// BillPayResponse is returned by POST /bill/pay.
type BillPayResponse struct {
	Message       string         `json:"message"`
	Payment       BillPayment    `json:"payment"`
	RecurringBill *RecurringBill `json:"recurring_bill,omitempty"`
}

// CardTransactionRequest is the body of POST /card/transaction.
type CardTransactionRequest struct {
	Amount          int64  `json:"amount"`
	TransactionType string `json:"transaction_type"`
	Merchant        string `json:"merchant,omitempty"`
}

// CardTransactionResponse is returned by POST /card/transaction.
type CardTransactionResponse struct {
	Message     string          `json:"message"`
	Transaction CardTransaction `json:"transaction"`
}

// BuyInvestmentRequest is the body of POST /investments/buy.
type BuyInvestmentRequest struct {
	InvestmentType string          `json:"investment_type"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	PurchasePrice  int64           `json:"purchase_price"`
}

// SellInvestmentRequest is the body of POST /investments/sell.
type SellInvestmentRequest struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice int64           `json:"selling_price"`
}

// BuyInvestmentResponse is returned by POST /investments/buy.
type BuyInvestmentResponse struct {
	Message    string     `json:"message"`
	Investment Investment `json:"investment"`
	Cost       int64      `json:"cost"`
}

// SellInvestmentResponse is returned by POST /investments/sell.
type SellInvestmentResponse struct {
	Message string         `json:"message"`
	Sale    InvestmentSale `json:"sale"`
}

// InvestmentsResponse is returned by GET /investments.
type InvestmentsResponse struct {
	Investments []Investment `json:"investments"`
	Holdings    []Holding    `json:"holdings"`
}

// LinkBankAccountRequest is the body of POST /link_bank_account.
type LinkBankAccountRequest struct {
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code,omitempty"`
}

// ProfileRequest is the body of POST and PUT /profile. Nil fields are left unchanged on PUT.
type ProfileRequest struct {
	FullName          *string `json:"full_name"`
	DateOfBirth       *string `json:"date_of_birth"`
	Address           *string `json:"address"`
	ProfilePictureURL *string `json:"profile_picture_url"`
	PrivacySetting    *string `json:"privacy_setting"`
}

// NotificationListOptions filters GET /notifications.
type NotificationListOptions struct {
	ListOptions
	UnreadOnly bool
}
