package postgres

import (
	"context"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type challengeRepository struct {
	db *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) *challengeRepository {
	return &challengeRepository{db: db}
}

// SaveVerification replaces any outstanding verification challenge of the user.
func (r *challengeRepository) SaveVerification(ctx context.Context, challenge *domain.VerificationChallenge) error {
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "code_hash", "expires_at", "created_at"}),
	}).Create(challenge).Error
}

func (r *challengeRepository) GetVerificationByUserID(ctx context.Context, userID uuid.UUID) (*domain.VerificationChallenge, error) {
	var challenge domain.VerificationChallenge
	err := r.db.WithContext(ctx).First(&challenge, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *challengeRepository) ClearVerification(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&domain.VerificationChallenge{}).
		Where("id = ?", id).
		Update("code_hash", "").Error
}

func (r *challengeRepository) ConsumeVerification(ctx context.Context, challenge *domain.VerificationChallenge, codeHash string, verifiedAt time.Time) (bool, error) {
	consumed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND code_hash = ?", challenge.ID, codeHash).
			Delete(&domain.VerificationChallenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err := tx.Model(&domain.User{}).
			Where("id = ?", challenge.UserID).
			Update("email_verified", verifiedAt.UTC()).Error
		if err != nil {
			return err
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// SaveReset replaces any outstanding reset challenge of the user.
func (r *challengeRepository) SaveReset(ctx context.Context, challenge *domain.PasswordResetChallenge) error {
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "token_hash", "expires_at", "created_at"}),
	}).Create(challenge).Error
}

// ConsumeResetAndSetPassword returns gorm.ErrRecordNotFound when no unexpired challenge holds
// tokenHash, including when a concurrent call consumed it first.
func (r *challengeRepository) ConsumeResetAndSetPassword(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge domain.PasswordResetChallenge
		err := tx.First(&challenge, "token_hash = ? AND expires_at > ?", tokenHash, now.UTC()).Error
		if err != nil {
			return err
		}

		res := tx.Where("id = ? AND token_hash = ?", challenge.ID, tokenHash).
			Delete(&domain.PasswordResetChallenge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		res = tx.Model(&domain.User{}).Where("id = ?", challenge.UserID).Update("password_hash", passwordHash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.First(&user, "id = ?", challenge.UserID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
