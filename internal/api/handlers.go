/**
 * @description
 * This file contains the shared pieces of the superapp HTTP handlers: the handler
 * set, JSON helpers, the mapping from service and store errors to HTTP status codes,
 * and the Idempotency-Key wrapper used by every money-moving endpoint.
 *
 * @dependencies
 * - encoding/json, errors, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models and sentinel errors.
 * - go.uber.org/zap: Structured request logging.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/app"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

const (
	maxRequestBodyBytes  = 1 << 20
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	logger  *logging.Logger
	now     func() time.Time
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		service: service,
		logger:  logger.Component("api"),
		now:     time.Now,
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handlers) writeMessage(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}

// decodeJSON reads a bounded request body into dst and writes a 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, endpoint string, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("rejected request body",
			zap.String("endpoint", endpoint),
			zap.String("outcome", "reject"),
			zap.String("reason", "invalid_json"),
			zap.Error(err),
		)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// userID returns the authenticated user's ID. AuthMiddleware guarantees it is set.
func (h *Handlers) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// listOptions reads limit and offset. Out-of-range values fall back to the store defaults.
func listOptions(r *http.Request) domain.ListOptions {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return domain.ListOptions{Limit: limit, Offset: offset}
}

// runIdempotent executes fn under the request's Idempotency-Key and writes the
// stored or fresh response.
func (h *Handlers) runIdempotent(w http.ResponseWriter, r *http.Request, endpoint string, userID uuid.UUID, request interface{}, fn app.IdempotentFunc) {
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	result, err := h.service.RunIdempotent(r.Context(), userID, endpoint, key, request, fn)
	if err != nil {
		h.writeServiceError(w, endpoint, userID, err)
		return
	}
	if result.Replayed {
		w.Header().Set(replayedHeader, "true")
		h.logger.Info("replayed idempotent response", zap.String("endpoint", endpoint), zap.String("outcome", "replayed"), zap.String("user_id", userID.String()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	w.Write(result.Payload)
}

// writeServiceError maps service and store errors to responses. Unknown errors are
// logged and hidden behind a generic 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, userID uuid.UUID, err error) {
	var locked *app.OTPLockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", strconv.Itoa(locked.RetryAfterSeconds(h.now())))
		h.writeError(w, http.StatusLocked, "Too many invalid OTP attempts. Try again later.")
		return
	}
	var limited *app.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Try again later.")
		return
	}

	status, message := errorResponse(err)
	fields := []zap.Field{zap.String("endpoint", endpoint), zap.Int("status", status), zap.Error(err)}
	if userID != uuid.Nil {
		fields = append(fields, zap.String("user_id", userID.String()))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", append(fields, zap.String("outcome", "error"))...)
	} else {
		h.logger.Warn("request rejected", append(fields, zap.String("outcome", "reject"))...)
	}
	h.writeError(w, status, message)
}

type errorMapping struct {
	err     error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{app.ErrInvalidEmail, http.StatusBadRequest, "Invalid email format"},
	{app.ErrWeakPassword, http.StatusBadRequest, "Weak password. Use at least 8 characters with upper and lower case letters and a digit."},
	{app.ErrInvalidAmount, http.StatusBadRequest, "Invalid amount"},
	{domain.ErrAmountOutOfRange, http.StatusBadRequest, "Invalid amount"},
	{app.ErrSelfTransfer, http.StatusBadRequest, "Cannot transfer to yourself"},
	{app.ErrSelfRequest, http.StatusBadRequest, "Cannot request money from yourself"},
	{app.ErrInvalidBillPayment, http.StatusBadRequest, "Invalid bill payment details"},
	{app.ErrInvalidCardTransaction, http.StatusBadRequest, "Invalid card transaction details"},
	{app.ErrInvalidInvestment, http.StatusBadRequest, "Invalid investment details"},
	{app.ErrInvalidSell, http.StatusBadRequest, "Invalid sell details"},
	{app.ErrInvalidBankAccount, http.StatusBadRequest, "Invalid bank account details"},
	{app.ErrInvalidProfile, http.StatusBadRequest, "Invalid profile details"},
	{app.ErrIdempotencyKeyRequired, http.StatusBadRequest, "Idempotency-Key header is required"},
	{app.ErrInvalidIdempotencyKey, http.StatusBadRequest, "Invalid Idempotency-Key header"},
	{store.ErrProfileExists, http.StatusBadRequest, "Profile already exists"},

	{app.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{app.ErrUserNotActive, http.StatusUnauthorized, "User not active"},
	{app.ErrInvalidUserStatus, http.StatusUnauthorized, "Invalid user or user status"},
	{app.ErrInvalidOTP, http.StatusUnauthorized, "Invalid OTP code"},
	{store.ErrOTPAlreadyUsed, http.StatusUnauthorized, "Invalid OTP code"},
	{app.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},

	{store.ErrInsufficientFunds, http.StatusPaymentRequired, "Insufficient funds"},

	{store.ErrCardNotActive, http.StatusForbidden, "Card is not active"},

	{app.ErrReceiverNotFound, http.StatusNotFound, "Receiver not found"},
	{app.ErrRecipientNotFound, http.StatusNotFound, "Recipient not found"},
	{store.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{store.ErrAccountNotFound, http.StatusNotFound, "Wallet not found"},
	{store.ErrBankAccountNotFound, http.StatusNotFound, "Bank account not found"},
	{store.ErrMoneyRequestNotFound, http.StatusNotFound, "Money request not found"},
	{store.ErrRecurringBillNotFound, http.StatusNotFound, "Recurring bill not found"},
	{store.ErrCardNotFound, http.StatusNotFound, "Card not found"},
	{store.ErrProfileNotFound, http.StatusNotFound, "Profile not found"},
	{store.ErrNotificationNotFound, http.StatusNotFound, "Notification not found"},
	{store.ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},

	{store.ErrEmailTaken, http.StatusConflict, "Email already registered"},
	{store.ErrBankAccountLinked, http.StatusConflict, "Bank account already linked"},
	{app.ErrBankAccountUnverified, http.StatusConflict, "Bank account is not verified"},
	{store.ErrMoneyRequestNotPending, http.StatusConflict, "Money request is no longer pending"},
	{store.ErrBillPaymentNotPayable, http.StatusConflict, "Bill payment is not payable"},
	{store.ErrCardExists, http.StatusConflict, "Card already issued"},
	{store.ErrCardAlreadyActive, http.StatusConflict, "Card is already active"},
	{domain.ErrInsufficientHoldings, http.StatusConflict, "Insufficient holdings"},
	{app.ErrQuoteAboveLimit, http.StatusConflict, "Market price is above your limit price"},
	{app.ErrQuoteBelowLimit, http.StatusConflict, "Market price is below your limit price"},
	{store.ErrIdempotencyConflict, http.StatusConflict, "Idempotency-Key was already used with a different request"},
	{store.ErrIdempotencyInProgress, http.StatusConflict, "A request with this Idempotency-Key is still being processed"},
	{store.ErrIdempotencyApplied, http.StatusConflict, "A request with this Idempotency-Key was already applied"},

	{app.ErrMarketUnavailable, http.StatusServiceUnavailable, "Market data is temporarily unavailable"},
	{app.ErrCardProcessorDown, http.StatusServiceUnavailable, "Card processor is temporarily unavailable"},
}

// errorResponse returns the status and client message for err.
func errorResponse(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.err) {
			return mapping.status, mapping.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}
