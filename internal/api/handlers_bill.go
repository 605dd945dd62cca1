package api

import (
	"context"
	"net/http"

	"github.com/transfa/superapp-backend/internal/domain"
)

// PayBillHandler pays a bill now or schedules it for its due date.
func (h *Handlers) PayBillHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.BillPayRequest
	if !h.decodeJSON(w, r, "bill_pay", &req) {
		return
	}

	h.runIdempotent(w, r, "bill_pay", userID, req, func(ctx context.Context) (int, interface{}, error) {
		resp, err := h.service.PayBill(ctx, userID, req)
		if err != nil {
			return 0, nil, err
		}
		if resp.Payment.Status == domain.BillStatusScheduled {
			return http.StatusAccepted, resp, nil
		}
		return http.StatusOK, resp, nil
	})
}

// ListRecurringBillsHandler returns the user's active recurring bills.
func (h *Handlers) ListRecurringBillsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	bills, err := h.service.ListRecurringBills(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_recurring_bills", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"recurring_bills": bills})
}

// CancelRecurringBillHandler deactivates one recurring bill.
func (h *Handlers) CancelRecurringBillHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	billID, ok := h.pathID(w, r, "billID", "recurring bill")
	if !ok {
		return
	}
	if err := h.service.CancelRecurringBill(r.Context(), userID, billID); err != nil {
		h.writeServiceError(w, "cancel_recurring_bill", userID, err)
		return
	}
	h.writeMessage(w, http.StatusOK, "Recurring bill cancelled")
}
