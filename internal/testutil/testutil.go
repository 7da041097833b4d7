package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
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
	"github.com/MilkywayRides/AuthE/internal/repository"
	repoPostgres "github.com/MilkywayRides/AuthE/internal/repository/postgres"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// NewSQLiteDB returns a migrated in-memory database private to the test. It is
// limited to one connection, so code must not query outside an open
// transaction while holding it.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB starts PostgreSQL in a container. Skipped with -short.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_authe"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := repoPostgres.NewConnection(dsn, gormLogger.Silent)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to database: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		_ = tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	err := tdb.DB.Exec("TRUNCATE TABLE accounts, password_reset_challenges, verification_challenges, devices, users CASCADE").Error
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// OpenPostgres is used by tests that need a second pool against the container.
func (tdb *TestDB) OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gormPostgres.Open(tdb.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Environment:         "test",
		LogLevel:            "error",
		AppURL:              "http://localhost:3000",
		CORSAllowedOrigins:  []string{"*"},
		JWTSecret:           "test-jwt-secret-key-for-testing-only",
		SessionTTL:          30 * 24 * time.Hour,
		BcryptCost:          bcrypt.MinCost,
		VerificationCodeTTL: 10 * time.Minute,
		ResetTokenTTL:       time.Hour,
		DeviceFeedInterval:  50 * time.Millisecond,
		MailFrom:            "Auth System <noreply@test>",
		KafkaTopic:          "auth.events",
	}
}

// NewTestServices wires services against db with a recording mailer and no
// external infrastructure.
func NewTestServices(t *testing.T, db *gorm.DB) (*service.Services, *RecordingMailer) {
	t.Helper()

	mailer := NewRecordingMailer()
	services, err := service.NewServices(repoPostgres.NewRepositories(db), service.Infra{
		Mailer:    mailer,
		Limiter:   ratelimit.NopLimiter{},
		Publisher: event.NopPublisher{},
		Metrics:   metrics.New(),
		Logger:    logger.Discard(),
	}, TestConfig())
	if err != nil {
		t.Fatalf("failed to build services: %v", err)
	}
	return services, mailer
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *gorm.DB
	Repos    *repository.Repositories
	Services *service.Services
	Mailer   *RecordingMailer
	Metrics  *metrics.Metrics
	Config   *config.Config
}

type serverOptions struct {
	mailer    mail.Mailer
	limiter   ratelimit.Limiter
	providers []*oauth.Provider
}

type ServerOption func(*serverOptions)

func WithMailer(m mail.Mailer) ServerOption {
	return func(o *serverOptions) { o.mailer = m }
}

func WithLimiter(l ratelimit.Limiter) ServerOption {
	return func(o *serverOptions) { o.limiter = l }
}

func WithOAuthProvider(p *oauth.Provider) ServerOption {
	return func(o *serverOptions) { o.providers = append(o.providers, p) }
}

// NewTestServer creates a complete test server backed by in-memory sqlite
func NewTestServer(t *testing.T, opts ...ServerOption) *TestServer {
	t.Helper()

	recorder := NewRecordingMailer()
	o := serverOptions{mailer: recorder, limiter: ratelimit.NopLimiter{}}
	for _, opt := range opts {
		opt(&o)
	}

	db := NewSQLiteDB(t)
	cfg := TestConfig()
	log := logger.Discard()
	m := metrics.New()

	repos := repoPostgres.NewRepositories(db)
	services, err := service.NewServices(repos, service.Infra{
		Mailer:    o.mailer,
		Limiter:   o.limiter,
		Publisher: event.NopPublisher{},
		Metrics:   m,
		Logger:    log,
	}, cfg)
	if err != nil {
		t.Fatalf("failed to build services: %v", err)
	}

	feed := devicefeed.New(services.Devices, cfg.DeviceFeedInterval, log, m)
	router := api.NewRouter(services, feed, oauth.NewRegistry(o.providers...), m, cfg, log)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Repos:    repos,
		Services: services,
		Mailer:   recorder,
		Metrics:  m,
		Config:   cfg,
	}

	t.Cleanup(func() {
		server.CloseClientConnections()
		server.Close()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the device feed websocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/api/v1/user/devices/ws?token=%s", wsURL, token)
}
