package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey  contextKey = "userID"
	SessionKey contextKey = "session"

	SessionCookie = "session_token"
)

// DeviceChecker reports whether the device a session is bound to still exists.
type DeviceChecker interface {
	IsActive(ctx context.Context, userID, deviceID uuid.UUID) (bool, error)
}

// Auth accepts a session token from the Authorization header, the session
// cookie, or a token query parameter (for EventSource and websocket clients that
// cannot set headers). A token whose device was deleted is rejected.
func Auth(sessions *service.SessionManager, devices DeviceChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := sessions.Read(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if session.HasDevice() {
				active, err := devices.IsActive(r.Context(), session.UserID, session.DeviceID)
				if err != nil {
					log.ErrorContext(r.Context(), "device check failed",
						logger.Op("middleware.Auth"),
						logger.Err(err),
					)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				if !active {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
			ctx = context.WithValue(ctx, SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after Auth.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSession(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if session.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

func GetSession(ctx context.Context) (*service.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*service.Session)
	return session, ok
}
