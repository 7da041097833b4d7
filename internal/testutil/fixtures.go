package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	name       string
	email      string
	password   string
	role       domain.Role
	unverified bool
}

// NewUserBuilder creates a verified USER with a unique email
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		name:     "Test User " + suffix,
		email:    fmt.Sprintf("user_%s@example.com", suffix),
		password: "testpassword123",
		role:     domain.RoleUser,
	}
}

func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.name = name
	return b
}

func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

func (b *UserBuilder) WithRole(role domain.Role) *UserBuilder {
	b.role = role
	return b
}

// Unverified leaves emailVerified unset
func (b *UserBuilder) Unverified() *UserBuilder {
	b.unverified = true
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Name:         b.name,
		Email:        b.email,
		PasswordHash: string(hashedPassword),
		Role:         b.role,
	}
	if !b.unverified {
		now := time.Now().UTC()
		user.EmailVerified = &now
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// LoginResponse matches the API login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// BuildAndAuthenticate creates the user in the database and signs in through the
// API, returning the user and its session token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	user, password := b.Build(t, ts.DB)
	return user, ts.Login(t, user.Email, password, DefaultUserAgent)
}

// Login signs in with the given user agent and returns the session token
func (ts *TestServer) Login(t *testing.T, email, password, userAgent string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequest(http.MethodPost, ts.APIURL("/login"), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status code: %d", resp.StatusCode)
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return loginResp.Token
}

// CreateDevice inserts a device row directly
func CreateDevice(t *testing.T, db *gorm.DB, userID uuid.UUID, userAgent string) *domain.Device {
	t.Helper()

	device := &domain.Device{
		UserID:      userID,
		UserAgent:   userAgent,
		IPAddress:   "203.0.113.7",
		LastLoginAt: time.Now().UTC(),
	}
	if err := db.Create(device).Error; err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	return device
}
