package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/event"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/mail"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/oauth"
	"github.com/MilkywayRides/AuthE/internal/ratelimit"
	"github.com/MilkywayRides/AuthE/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuthService struct {
	users      repository.UserRepository
	accounts   repository.AccountRepository
	challenges *ChallengeService
	devices    *DeviceService
	sessions   *SessionManager
	mailer     mail.Mailer
	limiter    ratelimit.Limiter
	publisher  event.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        *config.Config

	// dummyHash is compared against when the email is unknown so both failure
	// paths cost one bcrypt comparison.
	dummyHash []byte
}

type AuthDeps struct {
	Users      repository.UserRepository
	Accounts   repository.AccountRepository
	Challenges *ChallengeService
	Devices    *DeviceService
	Sessions   *SessionManager
	Mailer     mail.Mailer
	Limiter    ratelimit.Limiter
	Publisher  event.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func NewAuthService(deps AuthDeps, cfg *config.Config) (*AuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}

	return &AuthService{
		users:      deps.Users,
		accounts:   deps.Accounts,
		challenges: deps.Challenges,
		devices:    deps.Devices,
		sessions:   deps.Sessions,
		mailer:     deps.Mailer,
		limiter:    deps.Limiter,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
		dummyHash:  dummy,
	}, nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// SignInResult is returned by every successful sign-in path.
type SignInResult struct {
	User      *domain.User
	Device    *domain.Device
	Token     string
	ExpiresAt time.Time
}

// Register creates an unverified user and emails a verification code. A prior
// unverified registration for the same email is replaced. If the code cannot be
// issued or delivered the new user is deleted again.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	existing, err := s.users.GetByEmail(ctx, input.Email)
	switch {
	case err == nil && existing.IsVerified():
		return nil, ErrUserExists
	case err == nil:
		if err := s.users.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("delete stale registration: %w", err)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	if err := s.sendVerificationCode(ctx, user); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back registration",
				logger.Op("auth.Register"),
				logger.Err(delErr),
			)
		}
		return nil, err
	}

	s.publish(ctx, event.New(event.UserRegistered, user.ID, nil))
	return user, nil
}

// ResendVerification issues a fresh code to a still unverified user.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	if err := s.allow(ctx, ratelimit.ScopeVerify, email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	return s.sendVerificationCode(ctx, user)
}

func (s *AuthService) sendVerificationCode(ctx context.Context, user *domain.User) error {
	code, err := s.challenges.IssueVerificationCode(ctx, user)
	if err != nil {
		return err
	}

	html, err := mail.RenderVerification(mail.VerificationData{
		Name:    user.Name,
		Code:    code,
		Minutes: int(s.cfg.VerificationCodeTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, mail.SubjectVerification, html); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			logger.Op("auth.sendVerificationCode"),
			logger.Err(err),
		)
		return ErrEmailDelivery
	}
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*domain.User, error) {
	if err := s.allow(ctx, ratelimit.ScopeVerify, email); err != nil {
		return nil, err
	}

	user, err := s.challenges.ConsumeVerificationCode(ctx, email, code)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.UserVerified, user.ID, nil))
	return user, nil
}

// ForgotPassword emails a reset link to a known user.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := s.allow(ctx, ratelimit.ScopeForgot, email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	token, err := s.challenges.IssueResetToken(ctx, user)
	if err != nil {
		return err
	}

	html, err := mail.RenderReset(mail.ResetData{
		Name:    user.Name,
		URL:     s.cfg.AppURL + "/reset-password?token=" + url.QueryEscape(token),
		Minutes: int(s.cfg.ResetTokenTTL.Minutes()),
	})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, mail.SubjectReset, html); err != nil {
		s.logger.ErrorContext(ctx, "failed to send reset email",
			logger.Op("auth.ForgotPassword"),
			logger.Err(err),
		)
		return ErrEmailDelivery
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	user, err := s.challenges.ConsumeResetToken(ctx, token, string(hash))
	if err != nil {
		return err
	}

	s.publish(ctx, event.New(event.PasswordReset, user.ID, nil))
	return nil
}

// Authorize checks email and password. Unknown email, wrong password, missing
// password and unverified email all return ErrInvalidCredentials.
func (s *AuthService) Authorize(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified() {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// AuthorizeFederated trusts the provider's identity assertion. A known account
// signs in its user; a new identity creates a verified user unless the email
// already belongs to someone who has not linked this provider.
func (s *AuthService) AuthorizeFederated(ctx context.Context, id oauth.Identity) (*domain.User, error) {
	account, err := s.accounts.GetByProvider(ctx, id.Provider, id.ProviderAccountID)
	if err == nil {
		if err := s.accounts.UpdateProfile(ctx, account.ID, id.Raw); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh provider profile",
				logger.Op("auth.AuthorizeFederated"),
				logger.Err(err),
			)
		}
		if account.User != nil {
			return account.User, nil
		}
		return s.users.GetByID(ctx, account.UserID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, id.Email); err == nil {
		return nil, ErrAccountNotLinked
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		Name:          id.Name,
		Email:         id.Email,
		Role:          domain.RoleUser,
		EmailVerified: &now,
	}
	if id.Image != "" {
		image := id.Image
		user.Image = &image
	}
	account = &domain.Account{
		Provider:          id.Provider,
		ProviderAccountID: id.ProviderAccountID,
		Profile:           datatypes.JSON(id.Raw),
	}
	if err := s.accounts.CreateWithUser(ctx, user, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAccountNotLinked
		}
		return nil, err
	}

	s.publish(ctx, event.New(event.UserRegistered, user.ID, map[string]string{"provider": id.Provider}))
	return user, nil
}

// SignIn runs the post-authentication side effects and issues a session. Device
// tracking failures are logged and never fail the sign-in.
func (s *AuthService) SignIn(ctx context.Context, user *domain.User, client ClientInfo) (*SignInResult, error) {
	var deviceID uuid.UUID
	device, err := s.devices.RecordSignIn(ctx, user.ID, client)
	if err != nil {
		s.logger.ErrorContext(ctx, "device tracking failed",
			logger.Op("auth.SignIn"),
			logger.Err(err),
		)
	}
	if device != nil {
		deviceID = device.ID
	}

	token, expiresAt, err := s.sessions.Issue(user, deviceID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &SignInResult{
		User:      user,
		Device:    device,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*SignInResult, error) {
	if err := s.allow(ctx, ratelimit.ScopeLogin, email); err != nil {
		s.metrics.AuthAttempt("credentials", "rate_limited")
		return nil, err
	}

	user, err := s.Authorize(ctx, email, password)
	if err != nil {
		s.metrics.AuthAttempt("credentials", "failure")
		return nil, err
	}

	s.metrics.AuthAttempt("credentials", "success")
	return s.SignIn(ctx, user, client)
}

func (s *AuthService) LoginFederated(ctx context.Context, id oauth.Identity, client ClientInfo) (*SignInResult, error) {
	user, err := s.AuthorizeFederated(ctx, id)
	if err != nil {
		s.metrics.AuthAttempt(id.Provider, "failure")
		return nil, err
	}

	s.metrics.AuthAttempt(id.Provider, "success")
	return s.SignIn(ctx, user, client)
}

// RefreshSession re-issues the caller's token for the same device with the role
// currently stored for the user.
func (s *AuthService) RefreshSession(ctx context.Context, session *Session) (*SignInResult, error) {
	// A token without a device cannot be revoked, so it is never extended.
	if !session.HasDevice() {
		return nil, ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	token, expiresAt, err := s.sessions.Issue(user, session.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &SignInResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout deletes the device bound to the session, which revokes the token.
func (s *AuthService) Logout(ctx context.Context, session *Session) error {
	if !session.HasDevice() {
		return nil
	}
	_, err := s.devices.Delete(ctx, session.UserID, session.DeviceID)
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// allow fails open when the limiter backend is unreachable.
func (s *AuthService) allow(ctx context.Context, scope ratelimit.Scope, key string) error {
	ok, err := s.limiter.Allow(ctx, scope, key)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable",
			logger.Op("auth.allow"),
			slog.String("scope", string(scope)),
			logger.Err(err),
		)
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func (s *AuthService) publish(ctx context.Context, e event.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "audit event not published",
			logger.Op("auth.publish"),
			slog.String("event_type", e.Type),
			logger.Err(err),
		)
	}
}
