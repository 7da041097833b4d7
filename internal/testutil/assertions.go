package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies error response with expected status and message
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	// Error responses are plain text in this API
	assert.Contains(t, string(body), expectedMessage, "error message mismatch")
}

// AssertDeviceCount checks how many device rows a user has
func AssertDeviceCount(t *testing.T, db *gorm.DB, userID uuid.UUID, expected int) {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&domain.Device{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(expected), count, "unexpected device count")
}

// AssertUserCount checks how many user rows hold the email
func AssertUserCount(t *testing.T, db *gorm.DB, email string, expected int) {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&domain.User{}).Where("email = ?", email).Count(&count).Error)
	assert.Equal(t, int64(expected), count, "unexpected user count")
}
