package api

import (
	"context"
	"net/http"

	"github.com/transfa/superapp-backend/internal/domain"
)

// ListInvestmentsHandler returns open lots and per-symbol holdings.
func (h *Handlers) ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ListInvestments(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_investments", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// BuyInvestmentHandler buys a lot.
func (h *Handlers) BuyInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.BuyInvestmentRequest
	if !h.decodeJSON(w, r, "investment_buy", &req) {
		return
	}

	h.runIdempotent(w, r, "investment_buy", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.BuyInvestment(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}

// SellInvestmentHandler sells from the oldest lots first.
func (h *Handlers) SellInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.SellInvestmentRequest
	if !h.decodeJSON(w, r, "investment_sell", &req) {
		return
	}

	h.runIdempotent(w, r, "investment_sell", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.SellInvestment(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}
