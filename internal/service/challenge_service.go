package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/MilkywayRides/AuthE/internal/config"
	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/MilkywayRides/AuthE/internal/repository"
	"gorm.io/gorm"
)

const (
	codeMin        = 100000
	codeSpan       = 900000
	resetTokenSize = 32

	kindVerification = "verification"
	kindReset        = "reset"
)

// ChallengeService issues and consumes the single-use secrets that prove control
// of an email address. Only hashes are persisted.
type ChallengeService struct {
	challenges repository.ChallengeRepository
	users      repository.UserRepository
	cfg        *config.Config
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewChallengeService(challenges repository.ChallengeRepository, users repository.UserRepository, cfg *config.Config, m *metrics.Metrics) *ChallengeService {
	return &ChallengeService{
		challenges: challenges,
		users:      users,
		cfg:        cfg,
		metrics:    m,
		now:        time.Now,
	}
}

// IssueVerificationCode replaces any outstanding code for the user with a fresh
// 6-digit one.
func (s *ChallengeService) IssueVerificationCode(ctx context.Context, user *domain.User) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+codeMin)

	challenge := &domain.VerificationChallenge{
		UserID:    user.ID,
		CodeHash:  hashSecret(code),
		ExpiresAt: s.now().Add(s.cfg.VerificationCodeTTL).UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.challenges.SaveVerification(ctx, challenge); err != nil {
		return "", fmt.Errorf("save verification challenge: %w", err)
	}

	s.metrics.ChallengeIssued(kindVerification)
	return code, nil
}

func (s *ChallengeService) IssueResetToken(ctx context.Context, user *domain.User) (string, error) {
	b := make([]byte, resetTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	challenge := &domain.PasswordResetChallenge{
		UserID:    user.ID,
		TokenHash: hashSecret(token),
		ExpiresAt: s.now().Add(s.cfg.ResetTokenTTL).UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.challenges.SaveReset(ctx, challenge); err != nil {
		return "", fmt.Errorf("save reset challenge: %w", err)
	}

	s.metrics.ChallengeIssued(kindReset)
	return token, nil
}

// ConsumeVerificationCode marks the user verified if code matches the outstanding
// challenge. An expired challenge is cleared and keeps reporting ErrCodeExpired.
func (s *ChallengeService) ConsumeVerificationCode(ctx context.Context, email, code string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.ChallengeConsumed(kindVerification, "invalid")
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	challenge, err := s.challenges.GetVerificationByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.ChallengeConsumed(kindVerification, "invalid")
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	now := s.now()
	if challenge.ExpiredAt(now) {
		if !challenge.Cleared() {
			if err := s.challenges.ClearVerification(ctx, challenge.ID); err != nil {
				return nil, fmt.Errorf("clear expired challenge: %w", err)
			}
		}
		s.metrics.ChallengeConsumed(kindVerification, "expired")
		return nil, ErrCodeExpired
	}

	codeHash := hashSecret(code)
	if challenge.Cleared() || subtle.ConstantTimeCompare([]byte(codeHash), []byte(challenge.CodeHash)) != 1 {
		s.metrics.ChallengeConsumed(kindVerification, "invalid")
		return nil, ErrInvalidCode
	}

	ok, err := s.challenges.ConsumeVerification(ctx, challenge, codeHash, now)
	if err != nil {
		return nil, fmt.Errorf("consume verification challenge: %w", err)
	}
	if !ok {
		s.metrics.ChallengeConsumed(kindVerification, "invalid")
		return nil, ErrInvalidCode
	}

	verifiedAt := now.UTC()
	user.EmailVerified = &verifiedAt
	s.metrics.ChallengeConsumed(kindVerification, "success")
	return user, nil
}

// ConsumeResetToken invalidates an unexpired token and sets passwordHash on its
// owner atomically. Wrong and expired tokens are both ErrInvalidResetToken.
func (s *ChallengeService) ConsumeResetToken(ctx context.Context, token, passwordHash string) (*domain.User, error) {
	user, err := s.challenges.ConsumeResetAndSetPassword(ctx, hashSecret(token), s.now(), passwordHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.ChallengeConsumed(kindReset, "invalid")
			return nil, ErrInvalidResetToken
		}
		return nil, fmt.Errorf("consume reset challenge: %w", err)
	}

	s.metrics.ChallengeConsumed(kindReset, "success")
	return user, nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
