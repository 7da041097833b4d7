package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/event"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/oauth"
	"github.com/MilkywayRides/AuthE/internal/ratelimit"
	"github.com/MilkywayRides/AuthE/internal/repository"
	"github.com/MilkywayRides/AuthE/internal/repository/postgres"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/MilkywayRides/AuthE/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var browser = service.ClientInfo{IPAddress: "203.0.113.7", UserAgent: testutil.DefaultUserAgent}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, db *gorm.DB)
		wantErr error
	}{
		{
			name: "new email",
		},
		{
			name: "unverified email is replaced",
			setup: func(t *testing.T, db *gorm.DB) {
				testutil.NewUserBuilder().WithEmail("a@x.com").Unverified().Build(t, db)
			},
		},
		{
			name: "verified email",
			setup: func(t *testing.T, db *gorm.DB) {
				testutil.NewUserBuilder().WithEmail("a@x.com").Build(t, db)
			},
			wantErr: service.ErrUserExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewSQLiteDB(t)
			services, mailer := testutil.NewTestServices(t, db)

			if tt.setup != nil {
				tt.setup(t, db)
			}

			user, err := services.Auth.Register(ctx, service.RegisterInput{
				Name:     "Alice",
				Email:    "a@x.com",
				Password: "pw123456",
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, mailer.Sent())
				return
			}
			require.NoError(t, err)

			testutil.AssertUserCount(t, db, "a@x.com", 1)
			assert.False(t, user.IsVerified())
			assert.Equal(t, domain.RoleUser, user.Role)
			assert.NotEqual(t, "pw123456", user.PasswordHash)

			var challenge domain.VerificationChallenge
			require.NoError(t, db.First(&challenge, "user_id = ?", user.ID).Error)
			assert.WithinDuration(t, time.Now().Add(10*time.Minute), challenge.ExpiresAt, 5*time.Second)
			assert.Len(t, mailer.LastCode("a@x.com"), 6)
		})
	}
}

func TestAuthService_Register_ReplacesStaleRow(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)
	ctx := context.Background()
	input := service.RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw123456"}

	first, err := services.Auth.Register(ctx, input)
	require.NoError(t, err)
	second, err := services.Auth.Register(ctx, input)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	testutil.AssertUserCount(t, db, "a@x.com", 1)

	var challenges int64
	require.NoError(t, db.Model(&domain.VerificationChallenge{}).Count(&challenges).Error)
	assert.Equal(t, int64(1), challenges)
}

func TestAuthService_Register_MailFailureRollsBack(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	mailer.SetFailing(true)

	_, err := services.Auth.Register(context.Background(), service.RegisterInput{
		Name: "Alice", Email: "a@x.com", Password: "pw123456",
	})
	assert.ErrorIs(t, err, service.ErrEmailDelivery)

	testutil.AssertUserCount(t, db, "a@x.com", 0)
	var challenges int64
	require.NoError(t, db.Model(&domain.VerificationChallenge{}).Count(&challenges).Error)
	assert.Equal(t, int64(0), challenges)
}

func TestAuthService_RegisterVerifyLogin(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	ctx := context.Background()

	_, err := services.Auth.Register(ctx, service.RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	// Unverified users cannot sign in.
	_, err = services.Auth.Login(ctx, "a@x.com", "pw123456", browser)
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	user, err := services.Auth.VerifyEmail(ctx, "a@x.com", mailer.LastCode("a@x.com"))
	require.NoError(t, err)
	assert.True(t, user.IsVerified())

	result, err := services.Auth.Login(ctx, "a@x.com", "pw123456", browser)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	require.NotNil(t, result.Device)

	session, err := services.Sessions.Read(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, result.Device.ID, session.DeviceID)

	stored, err := services.Auth.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastIPAddress)
	assert.Equal(t, "203.0.113.7", *stored.LastIPAddress)
}

func TestAuthService_Authorize_UniformFailure(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)
	ctx := context.Background()

	testutil.NewUserBuilder().WithEmail("a@x.com").WithPassword("right").Build(t, db)
	testutil.NewUserBuilder().WithEmail("u@x.com").WithPassword("right").Unverified().Build(t, db)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "a@x.com", password: "wrong"},
		{name: "unknown email", email: "nobody@x.com", password: "right"},
		{name: "unverified", email: "u@x.com", password: "right"},
		{name: "empty password", email: "a@x.com", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := services.Auth.Authorize(ctx, tt.email, tt.password)
			assert.Nil(t, user)
			assert.Equal(t, service.ErrInvalidCredentials, err)
		})
	}

	user, err := services.Auth.Authorize(ctx, "a@x.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
}

func TestAuthService_ForgotAndResetPassword(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	ctx := context.Background()

	testutil.NewUserBuilder().WithEmail("a@x.com").WithPassword("oldpw").Build(t, db)

	assert.ErrorIs(t, services.Auth.ForgotPassword(ctx, "nobody@x.com"), service.ErrUserNotFound)

	require.NoError(t, services.Auth.ForgotPassword(ctx, "a@x.com"))
	token := mailer.LastResetToken("a@x.com")
	require.Len(t, token, 64)

	var challenge domain.PasswordResetChallenge
	require.NoError(t, db.First(&challenge).Error)
	assert.WithinDuration(t, time.Now().Add(time.Hour), challenge.ExpiresAt, 5*time.Second)
	assert.NotEqual(t, token, challenge.TokenHash)

	require.NoError(t, services.Auth.ResetPassword(ctx, token, "newpw"))
	assert.ErrorIs(t, services.Auth.ResetPassword(ctx, token, "newpw2"), service.ErrInvalidResetToken)

	_, err := services.Auth.Authorize(ctx, "a@x.com", "newpw")
	assert.NoError(t, err)
	_, err = services.Auth.Authorize(ctx, "a@x.com", "oldpw")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestAuthService_ResetPassword_FailedUpdateKeepsToken(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	ctx := context.Background()

	testutil.NewUserBuilder().WithEmail("a@x.com").WithPassword("oldpw").Build(t, db)
	require.NoError(t, services.Auth.ForgotPassword(ctx, "a@x.com"))
	token := mailer.LastResetToken("a@x.com")

	failUserUpdates := true
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_user_update", func(tx *gorm.DB) {
		if failUserUpdates && tx.Statement.Table == "users" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	err := services.Auth.ResetPassword(ctx, token, "newpw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrInvalidResetToken)
	var pending int64
	require.NoError(t, db.Model(&domain.PasswordResetChallenge{}).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)

	_, err = services.Auth.Authorize(ctx, "a@x.com", "oldpw")
	require.NoError(t, err)

	failUserUpdates = false
	require.NoError(t, services.Auth.ResetPassword(ctx, token, "newpw"))
	require.NoError(t, db.Model(&domain.PasswordResetChallenge{}).Count(&pending).Error)
	assert.Equal(t, int64(0), pending)

	_, err = services.Auth.Authorize(ctx, "a@x.com", "newpw")
	assert.NoError(t, err)
}

func TestAuthService_ResetPassword_Expired(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	ctx := context.Background()

	testutil.NewUserBuilder().WithEmail("a@x.com").Build(t, db)
	require.NoError(t, services.Auth.ForgotPassword(ctx, "a@x.com"))

	require.NoError(t, db.Model(&domain.PasswordResetChallenge{}).
		Where("1 = 1").
		Update("expires_at", time.Now().Add(-time.Minute).UTC()).Error)

	err := services.Auth.ResetPassword(ctx, mailer.LastResetToken("a@x.com"), "newpw")
	assert.ErrorIs(t, err, service.ErrInvalidResetToken)
	assert.ErrorIs(t, services.Auth.ResetPassword(ctx, "not-a-token", "newpw"), service.ErrInvalidResetToken)
}

func TestAuthService_ResendVerification(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, mailer := testutil.NewTestServices(t, db)
	ctx := context.Background()

	_, err := services.Auth.Register(ctx, service.RegisterInput{Name: "Alice", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)
	first := mailer.LastCode("a@x.com")

	require.NoError(t, services.Auth.ResendVerification(ctx, "a@x.com"))
	second := mailer.LastCode("a@x.com")
	assert.Len(t, mailer.Sent(), 2)

	if first != second {
		_, err = services.Auth.VerifyEmail(ctx, "a@x.com", first)
		assert.ErrorIs(t, err, service.ErrInvalidCode)
	}
	_, err = services.Auth.VerifyEmail(ctx, "a@x.com", second)
	require.NoError(t, err)

	assert.ErrorIs(t, services.Auth.ResendVerification(ctx, "a@x.com"), service.ErrAlreadyVerified)
	assert.ErrorIs(t, services.Auth.ResendVerification(ctx, "nobody@x.com"), service.ErrUserNotFound)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, ratelimit.Scope, string) (bool, error) { return false, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, ratelimit.Scope, string) (bool, error) {
	return false, ratelimit.ErrRedisUnavailable
}

func newServicesWith(t *testing.T, repos *repository.Repositories, limiter ratelimit.Limiter) (*service.Services, *testutil.RecordingMailer) {
	t.Helper()

	mailer := testutil.NewRecordingMailer()
	services, err := service.NewServices(repos, service.Infra{
		Mailer:    mailer,
		Limiter:   limiter,
		Publisher: event.NopPublisher{},
		Metrics:   metrics.New(),
		Logger:    logger.Discard(),
	}, testutil.TestConfig())
	require.NoError(t, err)
	return services, mailer
}

func TestAuthService_RateLimit(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	testutil.NewUserBuilder().WithEmail("a@x.com").WithPassword("pw").Build(t, db)

	denied, _ := newServicesWith(t, postgres.NewRepositories(db), denyLimiter{})
	_, err := denied.Auth.Login(ctx, "a@x.com", "pw", browser)
	assert.ErrorIs(t, err, service.ErrRateLimited)
	assert.ErrorIs(t, denied.Auth.ForgotPassword(ctx, "a@x.com"), service.ErrRateLimited)
	_, err = denied.Auth.VerifyEmail(ctx, "a@x.com", "123456")
	assert.ErrorIs(t, err, service.ErrRateLimited)

	// An unreachable limiter does not lock users out.
	failOpen, _ := newServicesWith(t, postgres.NewRepositories(db), brokenLimiter{})
	_, err = failOpen.Auth.Login(ctx, "a@x.com", "pw", browser)
	assert.NoError(t, err)
}

type failingDeviceRepo struct{}

func (failingDeviceRepo) Upsert(context.Context, uuid.UUID, string, string, time.Time) (*domain.Device, error) {
	return nil, errors.New("devices table unavailable")
}

func (failingDeviceRepo) ListByUserID(context.Context, uuid.UUID) ([]*domain.Device, error) {
	return nil, errors.New("devices table unavailable")
}

func (failingDeviceRepo) ExistsForUser(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, errors.New("devices table unavailable")
}

func (failingDeviceRepo) DeleteForUser(context.Context, uuid.UUID, uuid.UUID) (*domain.Device, error) {
	return nil, errors.New("devices table unavailable")
}

func TestAuthService_SignIn_DeviceFailureDoesNotFail(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repos := postgres.NewRepositories(db)
	repos.Device = failingDeviceRepo{}
	services, _ := newServicesWith(t, repos, ratelimit.NopLimiter{})

	testutil.NewUserBuilder().WithEmail("a@x.com").WithPassword("pw").Build(t, db)

	result, err := services.Auth.Login(context.Background(), "a@x.com", "pw", browser)
	require.NoError(t, err)
	assert.Nil(t, result.Device)

	session, err := services.Sessions.Read(result.Token)
	require.NoError(t, err)
	assert.False(t, session.HasDevice())
}

func TestAuthService_RefreshSession_PicksUpRoleChange(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().WithPassword("pw").Build(t, db)
	result, err := services.Auth.Login(ctx, user.Email, "pw", browser)
	require.NoError(t, err)

	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", user.ID).Update("role", domain.RoleAdmin).Error)

	// The issued token keeps its role.
	session, err := services.Sessions.Read(result.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, session.Role)

	refreshed, err := services.Auth.RefreshSession(ctx, session)
	require.NoError(t, err)

	session, err = services.Sessions.Read(refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, session.Role)
	assert.Equal(t, result.Device.ID, session.DeviceID)
}

func TestAuthService_RefreshSession_RejectsUnboundSession(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)

	user, _ := testutil.NewUserBuilder().Build(t, db)
	token, _, err := services.Sessions.Issue(user, uuid.Nil)
	require.NoError(t, err)

	session, err := services.Sessions.Read(token)
	require.NoError(t, err)

	_, err = services.Auth.RefreshSession(context.Background(), session)
	assert.ErrorIs(t, err, service.ErrInvalidSession)
}

func TestAuthService_Logout_RevokesDevice(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().WithPassword("pw").Build(t, db)
	result, err := services.Auth.Login(ctx, user.Email, "pw", browser)
	require.NoError(t, err)

	session, err := services.Sessions.Read(result.Token)
	require.NoError(t, err)
	require.NoError(t, services.Auth.Logout(ctx, session))

	active, err := services.Devices.IsActive(ctx, user.ID, session.DeviceID)
	require.NoError(t, err)
	assert.False(t, active)

	// Logging out twice is harmless.
	assert.NoError(t, services.Auth.Logout(ctx, session))
}

func TestAuthService_LoginFederated(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	services, _ := testutil.NewTestServices(t, db)
	ctx := context.Background()

	identity := oauth.Identity{
		Provider:          "github",
		ProviderAccountID: "42",
		Email:             "gh@x.com",
		Name:              "Octo",
		Raw:               []byte(`{"id":42}`),
	}

	first, err := services.Auth.LoginFederated(ctx, identity, browser)
	require.NoError(t, err)
	assert.True(t, first.User.IsVerified())
	assert.False(t, first.User.HasPassword())
	require.NotNil(t, first.Device)

	second, err := services.Auth.LoginFederated(ctx, identity, browser)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	testutil.AssertDeviceCount(t, db, first.User.ID, 1)

	// Federated users have no password to sign in with.
	_, err = services.Auth.Authorize(ctx, "gh@x.com", "")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	testutil.NewUserBuilder().WithEmail("taken@x.com").Build(t, db)
	_, err = services.Auth.LoginFederated(ctx, oauth.Identity{
		Provider: "google", ProviderAccountID: "g-1", Email: "taken@x.com", Name: "Other",
	}, browser)
	assert.ErrorIs(t, err, service.ErrAccountNotLinked)
}
