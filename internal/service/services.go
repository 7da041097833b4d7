package service

import (
	"log/slog"

	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/event"
	"github.com/MilkywayRides/AuthE/internal/mail"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/ratelimit"
	"github.com/MilkywayRides/AuthE/internal/repository"
)

// Infra bundles the process-wide collaborators built once in main.
type Infra struct {
	Mailer    mail.Mailer
	Limiter   ratelimit.Limiter
	Publisher event.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Services struct {
	Auth       *AuthService
	Challenges *ChallengeService
	Sessions   *SessionManager
	Devices    *DeviceService
	Profile    *ProfileService
}

func NewServices(repos *repository.Repositories, infra Infra, cfg *config.Config) (*Services, error) {
	challenges := NewChallengeService(repos.Challenge, repos.User, cfg, infra.Metrics)
	sessions := NewSessionManager(cfg.JWTSecret, cfg.SessionTTL)
	devices := NewDeviceService(repos.Device, repos.User, infra.Publisher, infra.Logger)

	auth, err := NewAuthService(AuthDeps{
		Users:      repos.User,
		Accounts:   repos.Account,
		Challenges: challenges,
		Devices:    devices,
		Sessions:   sessions,
		Mailer:     infra.Mailer,
		Limiter:    infra.Limiter,
		Publisher:  infra.Publisher,
		Metrics:    infra.Metrics,
		Logger:     infra.Logger,
	}, cfg)
	if err != nil {
		return nil, err
	}

	return &Services{
		Auth:       auth,
		Challenges: challenges,
		Sessions:   sessions,
		Devices:    devices,
		Profile:    NewProfileService(repos.User),
	}, nil
}
