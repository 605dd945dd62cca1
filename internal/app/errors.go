package app

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidEmail           = errors.New("invalid email format")
	ErrWeakPassword           = errors.New("weak password")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrUserNotActive          = errors.New("user not active")
	ErrInvalidUserStatus      = errors.New("invalid user or user status")
	ErrInvalidOTP             = errors.New("invalid otp code")
	ErrInvalidToken           = errors.New("invalid access token")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrSelfTransfer           = errors.New("cannot transfer to yourself")
	ErrSelfRequest            = errors.New("cannot request money from yourself")
	ErrReceiverNotFound       = errors.New("receiver not found")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrBankAccountUnverified  = errors.New("bank account is not verified")
	ErrInvalidBillPayment     = errors.New("invalid bill payment details")
	ErrInvalidCardTransaction = errors.New("invalid card transaction details")
	ErrInvalidInvestment      = errors.New("invalid investment details")
	ErrInvalidSell            = errors.New("invalid sell details")
	ErrQuoteAboveLimit        = errors.New("market price is above the limit price")
	ErrQuoteBelowLimit        = errors.New("market price is below the limit price")
	ErrMarketUnavailable      = errors.New("market data unavailable")
	ErrCardProcessorDown      = errors.New("card processor unavailable")
	ErrInvalidBankAccount     = errors.New("invalid bank account details")
	ErrInvalidProfile         = errors.New("invalid profile details")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
)

// OTPLockedError is returned while OTP verification is locked after repeated failures.
type OTPLockedError struct {
	Until time.Time
}

func (e *OTPLockedError) Error() string {
	return fmt.Sprintf("otp verification locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// RetryAfterSeconds is the remaining lockout rounded up.
func (e *OTPLockedError) RetryAfterSeconds(now time.Time) int {
	return ceilSeconds(e.Until.Sub(now))
}

// RateLimitError is returned when a caller exceeds a rate limit.
type RateLimitError struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry after %ds", e.Scope, e.RetryAfterSeconds)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	seconds := int(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return seconds
}
