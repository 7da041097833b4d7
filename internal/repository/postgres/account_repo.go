package postgres

import (
	"context"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *accountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByProvider(ctx context.Context, provider, providerAccountID string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).
		Preload("User").
		First(&account, "provider = ? AND provider_account_id = ?", provider, providerAccountID).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateWithUser stores a new user and its first linked account atomically.
func (r *accountRepository) CreateWithUser(ctx context.Context, user *domain.User, account *domain.Account) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		account.UserID = user.ID
		return tx.Omit("User").Create(account).Error
	})
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id uuid.UUID, profile []byte) error {
	return r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Update("profile", datatypes.JSON(profile)).Error
}
