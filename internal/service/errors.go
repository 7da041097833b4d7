package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrInvalidResetToken  = errors.New("invalid or expired token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrEmailInUse         = errors.New("email already in use")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrEmailDelivery      = errors.New("email delivery failed")
	ErrRateLimited        = errors.New("too many attempts")
	ErrAccountNotLinked   = errors.New("email is registered with another sign-in method")
)
