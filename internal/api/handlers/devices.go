package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SessionRevokedHeader tells the client to drop its token because the device it
// just deleted was its own.
const SessionRevokedHeader = "X-Session-Revoked"

type DeviceHandler struct {
	deviceService *service.DeviceService
	cfg           *config.Config
	logger        *slog.Logger
}

func NewDeviceHandler(deviceService *service.DeviceService, cfg *config.Config, log *slog.Logger) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService, cfg: cfg, logger: log}
}

// List handles GET /user/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	devices, err := h.deviceService.List(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list devices failed", logger.Op("devices.List"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, domain.Summaries(devices))
}

// Delete handles DELETE /user/devices/{id}
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	device, err := h.deviceService.Delete(r.Context(), session.UserID, deviceID)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "delete device failed", logger.Op("devices.Delete"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if isCurrentDevice(session, device, r) {
		clearSessionCookie(w, h.cfg.SecureCookies)
		w.Header().Set(SessionRevokedHeader, "true")
	}
	w.WriteHeader(http.StatusNoContent)
}

// isCurrentDevice matches on the device bound to the token. Tokens issued while
// device tracking failed carry no device and fall back to the user agent; such
// a token is not revoked server-side but can no longer be refreshed.
func isCurrentDevice(session *service.Session, device *domain.Device, r *http.Request) bool {
	if session.HasDevice() {
		return session.DeviceID == device.ID
	}
	return device.UserAgent == r.UserAgent()
}
