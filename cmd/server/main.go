package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MilkywayRides/AuthE/internal/api"
	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/devicefeed"
	"github.com/MilkywayRides/AuthE/internal/event"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/mail"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/oauth"
	"github.com/MilkywayRides/AuthE/internal/ratelimit"
	"github.com/MilkywayRides/AuthE/internal/repository/postgres"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/redis/go-redis/v9"
	gormLogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}

	log := logger.New("authe", cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", logger.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Initialize database
	dbLogLevel := gormLogger.Warn
	if cfg.LogLevel == "debug" {
		dbLogLevel = gormLogger.Info
	}
	db, err := postgres.NewConnection(cfg.DatabaseURL, dbLogLevel)
	if err != nil {
		return err
	}

	repos := postgres.NewRepositories(db)
	m := metrics.New()

	// Mail
	var mailer mail.Mailer = mail.NewLogMailer(log)
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Timeout:  cfg.SMTPTimeout,
		})
	}
	mailer = mail.NewBreakerMailer(mailer, mail.DefaultBreakerConfig(), log)

	// Rate limiting
	var limiter ratelimit.Limiter = ratelimit.NopLimiter{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, ratelimit.DefaultRules())
	} else {
		log.Warn("REDIS_URL not set, rate limiting disabled")
	}

	// Audit events
	var publisher event.Publisher = event.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	}
	defer publisher.Close()

	services, err := service.NewServices(repos, service.Infra{
		Mailer:    mailer,
		Limiter:   limiter,
		Publisher: publisher,
		Metrics:   m,
		Logger:    log,
	}, cfg)
	if err != nil {
		return err
	}

	feed := devicefeed.New(services.Devices, cfg.DeviceFeedInterval, log, m)
	router := api.NewRouter(services, feed, providersFromConfig(cfg), m, cfg, log)

	// Long-lived streams hang off this context so shutdown can end them.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	cancelStreams()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

func providersFromConfig(cfg *config.Config) *oauth.Registry {
	var providers []*oauth.Provider
	if cfg.GoogleClientID != "" {
		providers = append(providers, oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.AppURL+"/api/v1/login/oauth/google/callback"))
	}
	if cfg.GitHubClientID != "" {
		providers = append(providers, oauth.NewGitHub(cfg.GitHubClientID, cfg.GitHubClientSecret,
			cfg.AppURL+"/api/v1/login/oauth/github/callback"))
	}
	return oauth.NewRegistry(providers...)
}
