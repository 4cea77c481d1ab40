package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRequest(t *testing.T, mw func(http.Handler) http.Handler, method, origin string, preflight bool) (*httptest.ResponseRecorder, *bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/health", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec, &called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://example.com"}})
	rec, called := corsRequest(t, mw, http.MethodGet, "https://example.com", false)

	require.True(t, *called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://example.com"}})
	rec, _ := corsRequest(t, mw, http.MethodGet, "https://unknown.example", false)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	mw := CORS(CORSOptions{AllowedOrigins: []string{"*"}})
	rec, _ := corsRequest(t, mw, http.MethodGet, "https://random.example", false)

	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSCustomHeaderAllowlist(t *testing.T) {
	mw := CORS(CORSOptions{
		AllowedOrigins: []string{"https://example.com"},
		AllowedHeaders: []string{"Content-Type", "X-Custom-Token"},
	})
	rec, _ := corsRequest(t, mw, http.MethodGet, "https://example.com", false)

	got := rec.Header().Get("Access-Control-Allow-Headers")
	assert.Equal(t, "Content-Type, X-Custom-Token", got)
}

func TestCORSHandlesPreflight(t *testing.T) {
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://example.com"}})
	rec, called := corsRequest(t, mw, http.MethodOptions, "https://example.com", true)

	assert.False(t, *called, "preflight must not reach the handler")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
