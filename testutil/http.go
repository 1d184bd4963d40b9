package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// StartHTTPServer serves handler until the test ends and returns its base
// URL.
func StartHTTPServer(t testing.TB, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}
