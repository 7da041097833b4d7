package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
)

const msgMissingFields = "Missing required fields"

var emailMessages = fieldMessages{
	"Email.email": "Please enter a valid email address.",
}

type AuthHandler struct {
	authService *service.AuthService
	cfg         *config.Config
	logger      *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg, logger: log}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Name: u.Name, Email: u.Email, Role: u.Role}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, validationMessage(err, emailMessages, msgMissingFields), http.StatusBadRequest)
		return
	}

	user, err := h.authService.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserExists):
			http.Error(w, "User already exists", http.StatusBadRequest)
		case errors.Is(err, service.ErrEmailDelivery):
			http.Error(w, "Failed to send verification email", http.StatusInternalServerError)
		default:
			h.logger.ErrorContext(r.Context(), "register failed", logger.Op("auth.Register"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{Name: user.Name, Email: user.Email})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, msgMissingFields, http.StatusBadRequest)
		return
	}

	if _, err := h.authService.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			http.Error(w, "Invalid verification code", http.StatusBadRequest)
		case errors.Is(err, service.ErrCodeExpired):
			http.Error(w, "Verification code has expired", http.StatusBadRequest)
		case errors.Is(err, service.ErrRateLimited):
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
		default:
			h.logger.ErrorContext(r.Context(), "verify failed", logger.Op("auth.Verify"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		case errors.Is(err, service.ErrAlreadyVerified):
			http.Error(w, "Email already verified", http.StatusBadRequest)
		case errors.Is(err, service.ErrRateLimited):
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
		case errors.Is(err, service.ErrEmailDelivery):
			http.Error(w, "Failed to send verification email", http.StatusInternalServerError)
		default:
			h.logger.ErrorContext(r.Context(), "resend verification failed", logger.Op("auth.ResendVerification"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Verification code sent"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, msgMissingFields, http.StatusBadRequest)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, service.ErrRateLimited):
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
		default:
			h.logger.ErrorContext(r.Context(), "login failed", logger.Op("auth.Login"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.writeSession(w, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.authService.Logout(r.Context(), session); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", logger.Op("auth.Logout"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	clearSessionCookie(w, h.cfg.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the identity behind the presented token.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUser(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(r.Context(), "session lookup failed", logger.Op("auth.Session"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := toUserResponse(user)
	// The token's role is authoritative until refresh.
	resp.Role = session.Role
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.authService.RefreshSession(r.Context(), session)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(r.Context(), "refresh failed", logger.Op("auth.Refresh"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeSession(w, result)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, result *service.SignInResult) {
	setSessionCookie(w, result.Token, result.ExpiresAt, h.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, SessionResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}
