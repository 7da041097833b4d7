package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/MilkywayRides/AuthE/internal/testutil"
	"github.com/stretchr/testify/require"
)

// doRequest sends body as JSON with the default browser user agent and, when
// token is set, a bearer token.
func doRequest(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()

	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		raw = b
	}
	return doRawRequest(t, method, url, token, raw)
}

// doRawRequest is doRequest with the body sent as given.
func doRawRequest(t *testing.T, method, url, token string, raw []byte) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if raw != nil {
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testutil.DefaultUserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// noRedirect is a client that returns redirects to the caller.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}
