package handlers

import (
	"errors"
	"net/http"

	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
)

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		case errors.Is(err, service.ErrRateLimited):
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
		case errors.Is(err, service.ErrEmailDelivery):
			http.Error(w, "Failed to send reset email", http.StatusInternalServerError)
		default:
			h.logger.ErrorContext(r.Context(), "forgot password failed", logger.Op("auth.ForgotPassword"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset email sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, msgMissingFields, http.StatusBadRequest)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			http.Error(w, "Invalid or expired token", http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(r.Context(), "reset password failed", logger.Op("auth.ResetPassword"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful"})
}
