package repository

import (
	"context"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastIP(ctx context.Context, id uuid.UUID, ip string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*domain.User, error)
}

// DeviceRepository stores device rows. Upsert must be a single statement against
// the (user_id, user_agent) unique index so concurrent sign-ins never duplicate.
type DeviceRepository interface {
	Upsert(ctx context.Context, userID uuid.UUID, userAgent, ip string, at time.Time) (*domain.Device, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error)
	ExistsForUser(ctx context.Context, userID, deviceID uuid.UUID) (bool, error)
	DeleteForUser(ctx context.Context, userID, deviceID uuid.UUID) (*domain.Device, error)
}

type ChallengeRepository interface {
	SaveVerification(ctx context.Context, challenge *domain.VerificationChallenge) error
	GetVerificationByUserID(ctx context.Context, userID uuid.UUID) (*domain.VerificationChallenge, error)
	ClearVerification(ctx context.Context, id uuid.UUID) error
	// ConsumeVerification deletes the challenge only if it still holds codeHash and
	// marks the user verified in the same transaction. It reports whether this
	// call won the consumption.
	ConsumeVerification(ctx context.Context, challenge *domain.VerificationChallenge, codeHash string, verifiedAt time.Time) (bool, error)

	SaveReset(ctx context.Context, challenge *domain.PasswordResetChallenge) error
	// ConsumeResetAndSetPassword deletes the unexpired challenge with tokenHash and
	// stores passwordHash for its user in the same transaction.
	ConsumeResetAndSetPassword(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*domain.User, error)
}

type AccountRepository interface {
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*domain.Account, error)
	CreateWithUser(ctx context.Context, user *domain.User, account *domain.Account) error
	UpdateProfile(ctx context.Context, id uuid.UUID, profile []byte) error
}

type Repositories struct {
	User      UserRepository
	Device    DeviceRepository
	Challenge ChallengeRepository
	Account   AccountRepository
}
