package service

import (
	"context"
	"errors"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxListLimit = 100

type ProfileService struct {
	users repository.UserRepository
}

func NewProfileService(users repository.UserRepository) *ProfileService {
	return &ProfileService{users: users}
}

type UpdateProfileInput struct {
	Name  string
	Email string
}

// UpdateProfile changes the caller's name and email. The email must not belong
// to any other user.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if input.Email != user.Email {
		other, err := s.users.GetByEmail(ctx, input.Email)
		if err == nil && other.ID != user.ID {
			return nil, ErrEmailInUse
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	user.Name = input.Name
	user.Email = input.Email
	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, ErrEmailInUse
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListUsers pages through all users, newest first.
func (s *ProfileService) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}
