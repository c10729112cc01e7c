package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

func testServer(t *testing.T) *server {
	t.Helper()
	cfg := &Config{
		Session:   SessionConfig{Secret: "s3cret", TTL: time.Hour, CookieName: "sid"},
		RateLimit: RateLimitConfig{Max: 1, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"https://shop.example"}, AllowCredentials: true},
	}
	return newServer("test", zap.NewNop(), cfg)
}

func TestServer_Chain(t *testing.T) {
	s := testServer(t)
	s.router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, httpmiddleware.RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	s.router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := s.handler()

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpmiddleware.RequestIDHeader))
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_Readiness(t *testing.T) {
	s := testServer(t)
	h := s.handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.monitor.SetReady(true)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Helpers(t *testing.T) {
	s := testServer(t)

	c := s.cookies()
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, time.Hour, c.MaxAge)

	tok, _, err := s.tokens().Issue(7)
	require.NoError(t, err)
	id, err := s.tokens().Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	require.NotNil(t, s.limiter())
	assert.Len(t, s.workers, 1)
}
