package service

import (
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of a session token. DeviceID is empty when device
// tracking failed at sign-in.
type Claims struct {
	Role     domain.Role `json:"role"`
	DeviceID string      `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// Session is a verified session token.
type Session struct {
	UserID    uuid.UUID
	Role      domain.Role
	DeviceID  uuid.UUID
	ExpiresAt time.Time
}

// HasDevice reports whether the session is bound to a device row.
func (s *Session) HasDevice() bool {
	return s.DeviceID != uuid.Nil
}

// SessionManager issues and verifies stateless HS256 session tokens. It keeps no
// state; revocation is enforced by checking the bound device on each request.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *SessionManager) Issue(user *domain.User, deviceID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if deviceID != uuid.Nil {
		claims.DeviceID = deviceID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (m *SessionManager) Read(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, ErrInvalidSession
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, ErrInvalidSession
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}
	role, err := domain.ParseRole(string(claims.Role))
	if err != nil {
		return nil, ErrInvalidSession
	}

	session := &Session{
		UserID:    userID,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.DeviceID != "" {
		session.DeviceID, err = uuid.Parse(claims.DeviceID)
		if err != nil {
			return nil, ErrInvalidSession
		}
	}
	return session, nil
}
