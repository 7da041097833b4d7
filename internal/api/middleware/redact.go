package middleware

import (
	"net/http"
	"net/url"
)

const redacted = "REDACTED"

// RedactQuery masks the named query parameters in r.RequestURI, which is what
// request loggers print. r.URL is untouched so handlers still see the values.
func RedactQuery(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}

			query := r.URL.Query()
			changed := false
			for _, p := range params {
				if query.Has(p) {
					query.Set(p, redacted)
					changed = true
				}
			}
			if !changed {
				next.ServeHTTP(w, r)
				return
			}

			masked := url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: query.Encode()}
			r = r.WithContext(r.Context())
			r.RequestURI = masked.RequestURI()
			next.ServeHTTP(w, r)
		})
	}
}
