package service

import (
	"testing"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-key-for-testing-only"

func TestSessionManager_IssueAndRead(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	user := &domain.User{ID: uuid.New(), Role: domain.RoleAdmin}
	deviceID := uuid.New()

	token, expiresAt, err := m.Issue(user, deviceID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	session, err := m.Read(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, domain.RoleAdmin, session.Role)
	assert.Equal(t, deviceID, session.DeviceID)
	assert.True(t, session.HasDevice())
	assert.WithinDuration(t, expiresAt, session.ExpiresAt, time.Second)

	unbound, _, err := m.Issue(user, uuid.Nil)
	require.NoError(t, err)
	session, err = m.Read(unbound)
	require.NoError(t, err)
	assert.False(t, session.HasDevice())
}

func TestSessionManager_Read_Rejects(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Role: domain.RoleUser}
	m := NewSessionManager(testSecret, time.Hour)

	sign := func(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := func() Claims {
		return Claims{
			Role: domain.RoleUser,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user.ID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty",
			token: func(t *testing.T) string { return "" },
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not.a.token" },
		},
		{
			name: "other secret",
			token: func(t *testing.T) string {
				other := NewSessionManager("another-secret-another-secret-xx", time.Hour)
				token, _, err := other.Issue(user, uuid.Nil)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				past := NewSessionManager(testSecret, time.Hour)
				past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
				token, _, err := past.Issue(user, uuid.Nil)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "alg none",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())
			},
		},
		{
			name: "different hmac",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS512, []byte(testSecret), valid())
			},
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := valid()
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "unknown role",
			token: func(t *testing.T) string {
				c := valid()
				c.Role = "ROOT"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "bad subject",
			token: func(t *testing.T) string {
				c := valid()
				c.Subject = "42"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "bad device",
			token: func(t *testing.T) string {
				c := valid()
				c.DeviceID = "laptop"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := m.Read(tt.token(t))
			assert.Nil(t, session)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}
