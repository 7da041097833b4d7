package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/oauth"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

type OAuthHandler struct {
	providers   *oauth.Registry
	authService *service.AuthService
	cfg         *config.Config
	logger      *slog.Logger
}

func NewOAuthHandler(providers *oauth.Registry, authService *service.AuthService, cfg *config.Config, log *slog.Logger) *OAuthHandler {
	return &OAuthHandler{providers: providers, authService: authService, cfg: cfg, logger: log}
}

// Start handles GET /login/oauth/{provider}
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "generate oauth state failed", logger.Op("oauth.Start"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(stateTTL),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /login/oauth/{provider}/callback
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, msgMissingFields, http.StatusBadRequest)
		return
	}

	identity, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WarnContext(r.Context(), "oauth exchange failed",
			logger.Op("oauth.Callback"),
			slog.String("provider", provider.Name),
			logger.Err(err),
		)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	result, err := h.authService.LoginFederated(r.Context(), identity, clientInfo(r))
	if err != nil {
		if errors.Is(err, service.ErrAccountNotLinked) {
			http.Error(w, "Email is registered with another sign-in method", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(r.Context(), "federated login failed", logger.Op("oauth.Callback"), logger.Err(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, result.Token, result.ExpiresAt, h.cfg.SecureCookies)
	http.Redirect(w, r, h.cfg.AppURL, http.StatusFound)
}
