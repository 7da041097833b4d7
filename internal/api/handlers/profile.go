package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
)

var profileMessages = fieldMessages{
	"Name.required":  "Name must be at least 2 characters.",
	"Name.min":       "Name must be at least 2 characters.",
	"Email.required": "Please enter a valid email address.",
	"Email.email":    "Please enter a valid email address.",
}

type ProfileHandler struct {
	profileService *service.ProfileService
	logger         *slog.Logger
}

func NewProfileHandler(profileService *service.ProfileService, log *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, logger: log}
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// UpdateProfile handles PATCH /user/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: validationMessage(err, profileMessages, "Invalid request body"),
		})
		return
	}

	user, err := h.profileService.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailInUse):
			http.Error(w, "Email already in use", http.StatusBadRequest)
		case errors.Is(err, service.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			h.logger.ErrorContext(r.Context(), "profile update failed", logger.Op("profile.UpdateProfile"), logger.Err(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListUsers handles GET /admin/users?limit=&offset=
func (h *ProfileHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.profileService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list users failed", logger.Op("profile.ListUsers"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}
