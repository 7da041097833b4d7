package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MilkywayRides/AuthE/internal/api/middleware"
	"github.com/MilkywayRides/AuthE/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst. An empty body decodes as {} so the
// following validation reports the missing fields.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// fieldMessages maps "Field.tag" to the message shown for that failure.
type fieldMessages map[string]string

// validationMessage returns the message for the first failing field, or fallback
// when the failure has no specific message.
func validationMessage(err error, messages fieldMessages, fallback string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fallback
	}
	if msg, ok := messages[verrs[0].StructField()+"."+verrs[0].Tag()]; ok {
		return msg
	}
	return fallback
}

// clientInfo relies on chi's RealIP having rewritten RemoteAddr from
// X-Forwarded-For or X-Real-IP.
func clientInfo(r *http.Request) service.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
