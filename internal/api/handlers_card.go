package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
)

type cardResponse struct {
	Message string      `json:"message,omitempty"`
	Card    domain.Card `json:"card"`
}

// IssueCardHandler issues the user's virtual card.
func (h *Handlers) IssueCardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	card, err := h.service.IssueCard(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "card_issue", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cardResponse{Message: "Card issued successfully", Card: *card})
}

// GetCardHandler returns the user's card.
func (h *Handlers) GetCardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	card, err := h.service.GetCard(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "card_get", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cardResponse{Card: *card})
}

// ActivateCardHandler turns the card on.
func (h *Handlers) ActivateCardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	card, err := h.service.ActivateCard(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "card_activate", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cardResponse{Message: "Card activated successfully", Card: *card})
}

// DeactivateCardHandler turns the card off.
func (h *Handlers) DeactivateCardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	card, err := h.service.DeactivateCard(r.Context(), userID)
	if err != nil {
		// Deactivating an inactive card is a state conflict, not a forbidden use.
		if errors.Is(err, store.ErrCardNotActive) {
			h.writeError(w, http.StatusConflict, "Card is not active")
			return
		}
		h.writeServiceError(w, "card_deactivate", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cardResponse{Message: "Card deactivated successfully", Card: *card})
}

// CardTransactionHandler authorizes a purchase or withdrawal. A decline is a 402
// carrying the declined transaction.
func (h *Handlers) CardTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.CardTransactionRequest
	if !h.decodeJSON(w, r, "card_transaction", &req) {
		return
	}

	h.runIdempotent(w, r, "card_transaction", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.CardTransaction(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		if resp.Transaction.Status == domain.CardTransactionDeclined {
			return http.StatusPaymentRequired, resp, nil
		}
		return http.StatusOK, resp, nil
	})
}
