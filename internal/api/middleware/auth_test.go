package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDevices struct {
	active bool
	err    error
}

func (s stubDevices) IsActive(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.active, s.err
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		build  func(r *http.Request)
		target string
		want   string
	}{
		{
			name:  "bearer header",
			build: func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
			want:  "abc",
		},
		{
			name: "non-bearer header wins over cookie",
			build: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic abc")
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "c"})
			},
			want: "",
		},
		{
			name:  "cookie",
			build: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"}) },
			want:  "from-cookie",
		},
		{
			name:   "query",
			target: "/?token=from-query",
			want:   "from-query",
		},
		{
			name:   "cookie beats query",
			build:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"}) },
			target: "/?token=from-query",
			want:   "from-cookie",
		},
		{
			name: "nothing",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.target
			if target == "" {
				target = "/"
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.build != nil {
				tt.build(r)
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestAuth(t *testing.T) {
	sessions := service.NewSessionManager("test-jwt-secret-key-for-testing-only", time.Hour)
	user := &domain.User{ID: uuid.New(), Role: domain.RoleUser}

	bound, _, err := sessions.Issue(user, uuid.New())
	require.NoError(t, err)
	unbound, _, err := sessions.Issue(user, uuid.Nil)
	require.NoError(t, err)

	tests := []struct {
		name           string
		token          string
		devices        stubDevices
		expectedStatus int
	}{
		{name: "no token", devices: stubDevices{active: true}, expectedStatus: http.StatusUnauthorized},
		{name: "invalid token", token: "nope", devices: stubDevices{active: true}, expectedStatus: http.StatusUnauthorized},
		{name: "active device", token: bound, devices: stubDevices{active: true}, expectedStatus: http.StatusOK},
		{name: "revoked device", token: bound, devices: stubDevices{active: false}, expectedStatus: http.StatusUnauthorized},
		{name: "device check fails", token: bound, devices: stubDevices{err: errors.New("db down")}, expectedStatus: http.StatusInternalServerError},
		{name: "token without device", token: unbound, devices: stubDevices{err: errors.New("not called")}, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			Auth(sessions, tt.devices, logger.Discard())(next).ServeHTTP(w, r)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, user.ID, gotUser)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name           string
		session        *service.Session
		expectedStatus int
	}{
		{name: "no session", expectedStatus: http.StatusUnauthorized},
		{name: "user", session: &service.Session{Role: domain.RoleUser}, expectedStatus: http.StatusForbidden},
		{name: "admin", session: &service.Session{Role: domain.RoleAdmin}, expectedStatus: http.StatusOK},
		{name: "super admin", session: &service.Session{Role: domain.RoleSuperAdmin}, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.session != nil {
				r = r.WithContext(context.WithValue(r.Context(), SessionKey, tt.session))
			}
			w := httptest.NewRecorder()

			RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)(next).ServeHTTP(w, r)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("listed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()

		CORS([]string{"https://app.example.com"})(next).ServeHTTP(w, r)

		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "X-Session-Revoked", w.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()

		CORS([]string{"https://app.example.com"})(next).ServeHTTP(w, r)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		w := httptest.NewRecorder()

		CORS([]string{"*"})(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
