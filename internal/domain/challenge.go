package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationChallenge is the outstanding email-verification code of a user.
// Only the SHA-256 of the code is stored. An expired challenge keeps its row with
// an empty CodeHash so later attempts still report expiry.
type VerificationChallenge struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	CodeHash  string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (c *VerificationChallenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *VerificationChallenge) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cleared reports whether the code was wiped and can no longer be consumed.
func (c *VerificationChallenge) Cleared() bool {
	return c.CodeHash == ""
}

// PasswordResetChallenge is the outstanding password-reset token of a user.
type PasswordResetChallenge struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	TokenHash string    `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (c *PasswordResetChallenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
