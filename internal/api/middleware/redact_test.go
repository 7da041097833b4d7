package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLogged string
		wantToken  string
	}{
		{
			name:       "token masked",
			target:     "/api/v1/user/devices/events?token=secret-jwt",
			wantLogged: "/api/v1/user/devices/events?token=REDACTED",
			wantToken:  "secret-jwt",
		},
		{
			name:       "other params kept",
			target:     "/api/v1/user/devices?token=secret-jwt&page=2",
			wantLogged: "/api/v1/user/devices?page=2&token=REDACTED",
			wantToken:  "secret-jwt",
		},
		{
			name:       "no token",
			target:     "/api/v1/user/devices?page=2",
			wantLogged: "/api/v1/user/devices?page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logMiddleware := chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{
				Logger:  log.New(&buf, "", 0),
				NoColor: true,
			})

			var gotToken string
			handler := RedactQuery("token")(logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotToken = r.URL.Query().Get("token")
			})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, tt.wantToken, gotToken)
			assert.Contains(t, buf.String(), tt.wantLogged)
			assert.NotContains(t, buf.String(), "secret-jwt")
		})
	}
}
