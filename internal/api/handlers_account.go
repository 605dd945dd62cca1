package api

import (
	"net/http"
	"strconv"

	"github.com/transfa/superapp-backend/internal/domain"
)

type bankAccountResponse struct {
	Message     string             `json:"message"`
	BankAccount domain.BankAccount `json:"bank_account"`
}

// LinkBankAccountHandler links and, when possible, verifies an external account.
func (h *Handlers) LinkBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.LinkBankAccountRequest
	if !h.decodeJSON(w, r, "link_bank_account", &req) {
		return
	}

	account, err := h.service.LinkBankAccount(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "link_bank_account", userID, err)
		return
	}
	message := "Bank account linked successfully. Verification is pending."
	if account.IsVerified {
		message = "Bank account linked and verified successfully"
	}
	h.writeJSON(w, http.StatusCreated, bankAccountResponse{Message: message, BankAccount: *account})
}

// ListBankAccountsHandler lists linked accounts with masked numbers.
func (h *Handlers) ListBankAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListBankAccounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_bank_accounts", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"bank_accounts": accounts})
}

// GetProfileHandler returns the user's profile.
func (h *Handlers) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "profile_get", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// CreateProfileHandler creates the user's profile.
func (h *Handlers) CreateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.ProfileRequest
	if !h.decodeJSON(w, r, "profile_create", &req) {
		return
	}
	profile, err := h.service.CreateProfile(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "profile_create", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, profile)
}

// UpdateProfileHandler applies the fields present in the body.
func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.ProfileRequest
	if !h.decodeJSON(w, r, "profile_update", &req) {
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "profile_update", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// ListNotificationsHandler lists notifications newest first.
func (h *Handlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread_only"))
	items, err := h.service.ListNotifications(r.Context(), userID, domain.NotificationListOptions{
		ListOptions: listOptions(r),
		UnreadOnly:  unreadOnly,
	})
	if err != nil {
		h.writeServiceError(w, "list_notifications", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

// MarkNotificationReadHandler marks one of the user's notifications read.
func (h *Handlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	notificationID, ok := h.pathID(w, r, "notificationID", "notification")
	if !ok {
		return
	}
	item, err := h.service.MarkNotificationRead(r.Context(), userID, notificationID)
	if err != nil {
		h.writeServiceError(w, "notification_read", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}
