package api

import (
	"log/slog"
	"net/http"

	"github.com/MilkywayRides/AuthE/internal/api/handlers"
	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/devicefeed"
	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/oauth"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(services *service.Services, feed *devicefeed.Feed, providers *oauth.Registry, m *metrics.Metrics, cfg *config.Config, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RedactQuery("token"))
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth, cfg, log)
	profileHandler := handlers.NewProfileHandler(services.Profile, log)
	deviceHandler := handlers.NewDeviceHandler(services.Devices, cfg, log)
	eventsHandler := handlers.NewDeviceEventsHandler(feed, cfg.CORSAllowedOrigins, log)
	oauthHandler := handlers.NewOAuthHandler(providers, services.Auth, cfg, log)

	requireSession := middleware.Auth(services.Sessions, services.Devices, log)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/register", authHandler.Register)
		r.Post("/verify", authHandler.Verify)
		r.Post("/verify/resend", authHandler.ResendVerification)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)
		r.Get("/login/oauth/{provider}", oauthHandler.Start)
		r.Get("/login/oauth/{provider}/callback", oauthHandler.Callback)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Get("/session", authHandler.Session)
			r.Post("/session/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)

			r.Route("/user", func(r chi.Router) {
				r.Patch("/profile", profileHandler.UpdateProfile)
				r.Get("/devices", deviceHandler.List)
				r.Get("/devices/events", eventsHandler.Stream)
				r.Get("/devices/ws", eventsHandler.WebSocket)
				r.Delete("/devices/{id}", deviceHandler.Delete)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))
				r.Get("/users", profileHandler.ListUsers)
			})
		})
	})

	return r
}
