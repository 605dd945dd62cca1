package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/transfa/superapp-backend/internal/domain"
)

type moneyRequestResponse struct {
	Message string              `json:"message"`
	Request domain.MoneyRequest `json:"request"`
}

// CreateMoneyRequestHandler asks another user for money.
func (h *Handlers) CreateMoneyRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.CreateMoneyRequest
	if !h.decodeJSON(w, r, "money_request", &req) {
		return
	}

	item, err := h.service.CreateMoneyRequest(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "money_request", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, moneyRequestResponse{Message: "Money request sent successfully", Request: *item})
}

// RequestMoneyHandler is the short form served by /request_money.
func (h *Handlers) RequestMoneyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.RequestMoneyRequest
	if !h.decodeJSON(w, r, "request_money", &req) {
		return
	}

	item, err := h.service.RequestMoney(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "request_money", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, moneyRequestResponse{Message: "Money request sent successfully", Request: *item})
}

// ListMoneyRequestsHandler lists outgoing requests, or incoming ones with direction=incoming.
func (h *Handlers) ListMoneyRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	direction := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("direction")))
	if direction != "" && direction != "incoming" && direction != "outgoing" {
		h.writeError(w, http.StatusBadRequest, "direction must be incoming or outgoing")
		return
	}

	items, err := h.service.ListMoneyRequests(r.Context(), userID, domain.MoneyRequestListOptions{
		ListOptions: listOptions(r),
		Incoming:    direction == "incoming",
	})
	if err != nil {
		h.writeServiceError(w, "list_money_requests", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": items})
}

// PayMoneyRequestHandler settles a request addressed to the user.
func (h *Handlers) PayMoneyRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	requestID, ok := h.pathID(w, r, "requestID", "money request")
	if !ok {
		return
	}

	h.runIdempotent(w, r, "pay_money_request", userID, map[string]string{"request_id": requestID.String()}, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.PayMoneyRequest(ctx, userID, requestID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}

// DeclineMoneyRequestHandler refuses a request addressed to the user.
func (h *Handlers) DeclineMoneyRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	requestID, ok := h.pathID(w, r, "requestID", "money request")
	if !ok {
		return
	}

	item, err := h.service.DeclineMoneyRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, "decline_money_request", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, moneyRequestResponse{Message: "Money request declined", Request: *item})
}

// CancelMoneyRequestHandler withdraws a request the user made.
func (h *Handlers) CancelMoneyRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	requestID, ok := h.pathID(w, r, "requestID", "money request")
	if !ok {
		return
	}

	item, err := h.service.CancelMoneyRequest(r.Context(), userID, requestID)
	if err != nil {
		h.writeServiceError(w, "cancel_money_request", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, moneyRequestResponse{Message: "Money request cancelled", Request: *item})
}
