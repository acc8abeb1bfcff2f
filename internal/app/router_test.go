package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicum-hub/practicum/internal/observability"
	"github.com/practicum-hub/practicum/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stackEnv struct {
	router   http.Handler
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
}

func newStackEnv(t *testing.T) stackEnv {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "practicum_session", time.Hour, false)
	csrf := shared.NewCSRFManager("secret")
	cfg := &Config{RateLimitRequests: 100, RateLimitWindow: time.Minute, AppRequestTimeout: time.Second}

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         discardLogger(),
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Metrics:        observability.NewMetrics(),
	}) {
		r.Use(mw)
	}
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		require.NoError(t, err)
		_, _ = io.WriteString(w, token)
	})
	r.Post("/action", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return stackEnv{router: r, sessions: sessions, redis: srv}
}

func (e stackEnv) issueToken(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/token", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "practicum_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	return cookies[0], rec.Body.String()
}

func TestSessionMiddlewarePersistsSession(t *testing.T) {
	env := newStackEnv(t)
	cookie, token := env.issueToken(t)
	require.NotEmpty(t, token)
	assert.True(t, env.redis.Exists("practicum:session:"+cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, token, rec.Body.String())
}

func TestCSRFMiddleware(t *testing.T) {
	env := newStackEnv(t)
	cookie, token := env.issueToken(t)

	post := func(header, form string) *httptest.ResponseRecorder {
		var body io.Reader
		if form != "" {
			body = strings.NewReader(url.Values{shared.CSRFFormField: {form}}.Encode())
		}
		req := httptest.NewRequest(http.MethodPost, "/action", body)
		req.AddCookie(cookie)
		if form != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if header != "" {
			req.Header.Set(shared.CSRFHeader, header)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := post("", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "missing csrf token")

	rec = post("forged", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "mismatch")

	assert.Equal(t, http.StatusNoContent, post(token, "").Code)
	assert.Equal(t, http.StatusNoContent, post("", token).Code)
}

func TestSessionStoreUnavailable(t *testing.T) {
	env := newStackEnv(t)
	cookie, _ := env.issueToken(t)
	env.redis.Close()

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterProbes(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	failing := errors.New("backend down")
	backendUp := true
	router := NewRouter(RouterParams{
		Logger:         discardLogger(),
		Config:         &Config{RateLimitRequests: 100, RateLimitWindow: time.Minute},
		SessionManager: shared.NewSessionManager(client, "practicum_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("secret"),
		Metrics:        observability.NewMetrics(),
		Readiness: map[string]HealthChecker{
			"backend": func(ctx context.Context) error {
				if backendUp {
					return nil
				}
				return failing
			},
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	backendUp = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["backend"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/registration", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "practicum_http_requests_total")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, time.Second, discardLogger()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
