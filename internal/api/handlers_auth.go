package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"go.uber.org/zap"
)

// RegisterHandler creates a pending user and returns the OTP provisioning URI.
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !h.decodeJSON(w, r, "register", &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "register", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// LoginHandler exchanges credentials for an access token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !h.decodeJSON(w, r, "login", &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "login", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// VerifyOTPHandler activates a pending user with a TOTP code.
func (h *Handlers) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if !h.decodeJSON(w, r, "verify_otp", &req) {
		return
	}

	if err := h.service.VerifyOTP(r.Context(), req); err != nil {
		h.writeServiceError(w, "verify_otp", uuid.Nil, err)
		return
	}
	h.logger.Info("otp verified", zap.String("endpoint", "verify_otp"), zap.String("outcome", "activated"))
	h.writeMessage(w, http.StatusOK, "OTP verified successfully. Your account is now active.")
}
