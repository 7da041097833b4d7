package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account links a user to an identity at a federated provider.
type Account struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID      `json:"userId" gorm:"type:uuid;not null;index"`
	Provider          string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:idx_accounts_provider_account"`
	ProviderAccountID string         `json:"providerAccountId" gorm:"not null;uniqueIndex:idx_accounts_provider_account"`
	Profile           datatypes.JSON `json:"-"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
