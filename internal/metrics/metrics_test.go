package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/user/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/devices/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/user/devices/{id}", "404")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.AuthAttempt("credentials", "success")
	m.ChallengeIssued("verification")
	m.ChallengeConsumed("reset", "invalid")
	m.FeedSubscribed()
	m.FeedSubscribed()
	m.FeedUnsubscribed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("credentials", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.challengesIssued.WithLabelValues("verification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.challengesUsed.WithLabelValues("reset", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedSubscribers))
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New()
	m.AuthAttempt("credentials", "failure")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_attempts_total")
}
