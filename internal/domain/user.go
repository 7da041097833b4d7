package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string     `json:"name" gorm:"not null"`
	Email         string     `json:"email" gorm:"uniqueIndex;not null"`
	Image         *string    `json:"image,omitempty"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role" gorm:"type:varchar(16);not null"`
	EmailVerified *time.Time `json:"emailVerified"`
	LastIPAddress *string    `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BeforeCreate assigns the primary key and default role.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsVerified reports whether the user has proven ownership of their email.
func (u *User) IsVerified() bool {
	return u.EmailVerified != nil
}

// HasPassword is false for accounts created through a federated provider only.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
