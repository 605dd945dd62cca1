package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/transfa/superapp-backend/internal/domain"
)

// BalanceHandler returns the wallet balance.
func (h *Handlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "wallet_balance", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// DepositHandler funds the wallet.
func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.WalletMovementRequest
	if !h.decodeJSON(w, r, "wallet_deposit", &req) {
		return
	}

	h.runIdempotent(w, r, "wallet_deposit", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.Deposit(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}

// WithdrawHandler moves funds out of the wallet to the payout account.
func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.WalletMovementRequest
	if !h.decodeJSON(w, r, "wallet_withdraw", &req) {
		return
	}

	h.runIdempotent(w, r, "wallet_withdraw", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.Withdraw(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}

// TransferHandler sends money to another user by email.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, "transfer", "")
}

// SendMoneyHandler is the short form of TransferHandler.
func (h *Handlers) SendMoneyHandler(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, "send_money", "Money sent successfully")
}

func (h *Handlers) transfer(w http.ResponseWriter, r *http.Request, endpoint, message string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if !h.decodeJSON(w, r, endpoint, &req) {
		return
	}

	h.runIdempotent(w, r, endpoint, userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.Transfer(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		if message != "" {
			resp.Message = message
		}
		return http.StatusOK, resp, nil
	})
}

// ListTransactionsHandler returns the user's transaction history.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	opts := domain.TransactionListOptions{
		ListOptions: listOptions(r),
		Type:        strings.TrimSpace(r.URL.Query().Get("type")),
	}

	items, err := h.service.ListTransactions(r.Context(), userID, opts)
	if err != nil {
		h.writeServiceError(w, "list_transactions", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": items})
}
