package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillgate/skillgate/pkg/observability"
)

func TestServerAttachesRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := doGet(env, "/auth/whoami", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServerUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	w := doGet(env, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerRecordsHTTPMetrics(t *testing.T) {
	db := setupTestDB(t)
	logger := testLogger()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	env := newTestEnv(t)
	server := NewServer(Options{
		DB:       db,
		Guard:    env.guard,
		Issuer:   env.issuer,
		Verifier: nil,
		Sessions: env.sessions,
		Limiter:  env.limiter,
		Logger:   logger,
		Metrics:  metrics,
	})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/auth/whoami", "401"))
	assert.Equal(t, 1.0, count)
}

func TestServerCORSPreflight(t *testing.T) {
	db := setupTestDB(t)
	env := newTestEnv(t)
	server := NewServer(Options{
		DB:          db,
		Guard:       env.guard,
		Issuer:      env.issuer,
		Sessions:    env.sessions,
		Limiter:     env.limiter,
		Logger:      testLogger(),
		CORSOrigins: []string{"*"},
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	r.Header.Set("Origin", "https://app.example.com")
	server.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
