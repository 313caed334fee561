package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gorelay/pkg/config"
	"github.com/mihaimyh/gorelay/pkg/relay"
	"github.com/mihaimyh/gorelay/pkg/server"
	"github.com/mihaimyh/gorelay/storage/memory"
	"github.com/mihaimyh/gorelay/storage/postgrest"
)

var baseEnv = map[string]string{
	"STRIPE_SECRET_KEY":         "sk_test_1234567890",
	"STRIPE_PRICE_ID":           "price_123",
	"STRIPE_WEBHOOK_SECRET":     "whsec_1234567890",
	"SUPABASE_URL":              "https://project.supabase.example.com",
	"SUPABASE_SERVICE_ROLE_KEY": "service-role-key",
	"APP_URL":                   "https://app.example.com",
	"GEMINI_API_KEY":            "gemini-key-123",
	"ANALYTICS_API_KEY":         "analytics-key-123",
}

func testConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := make(map[string]string, len(baseEnv)+len(overrides))
	for k, v := range baseEnv {
		env[k] = v
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.FromEnv(func(key string) string { return env[key] })
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(testConfig(t, map[string]string{"LOG_LEVEL": "warn"}), &buf)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "gorelay", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(testConfig(t, map[string]string{"LOG_FORMAT": "console"}), &buf)

	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, testConfig(t, map[string]string{"PROFILE_STORE": "memory"}), nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, store)
	assert.NoError(t, closeStore())

	store, closeStore, err = openStore(ctx, testConfig(t, nil), nil)
	require.NoError(t, err)
	assert.IsType(t, &postgrest.Storage{}, store)
	assert.NoError(t, closeStore())
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, map[string]string{"PROFILE_STORE": "redis", "REDIS_URL": "not a url"})
	_, closeStore, err := openStore(ctx, cfg, nil)
	assert.ErrorIs(t, err, relay.ErrConfig)
	assert.NotNil(t, closeStore)

	cfg = testConfig(t, nil)
	cfg.ProfileStore = "sqlite"
	_, _, err = openStore(ctx, cfg, nil)
	assert.ErrorIs(t, err, relay.ErrConfig)
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t, map[string]string{"PROFILE_STORE": "memory"})

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, server.PathHealth, http.StatusOK},
		{http.MethodGet, server.PathMetrics, http.StatusOK},
		{http.MethodPost, server.PathCheckout, http.StatusUnauthorized},
		{http.MethodPost, server.PathPortal, http.StatusUnauthorized},
		{http.MethodPost, server.PathGeneration, http.StatusUnauthorized},
		{http.MethodPost, server.PathAnalytics, http.StatusUnauthorized},
		{http.MethodPost, server.PathWebhook, http.StatusBadRequest},
		{http.MethodOptions, server.PathCheckout, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestNewApp_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, map[string]string{"PROFILE_STORE": "memory", "METRICS_ENABLED": "false"})

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.PathMetrics, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_ShutsDownWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := server.New("127.0.0.1:0", http.NotFoundHandler())

	done := make(chan error, 1)
	go func() { done <- run(ctx, srv, time.Second, zerolog.Nop()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, server.PathHealth, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	ctx := context.Background()
	assert.NoError(t, checkHealth(ctx, healthy.URL+server.PathHealth))
	assert.ErrorContains(t, checkHealth(ctx, unhealthy.URL+server.PathHealth), "status 503")
}

func TestConfigCheck(t *testing.T) {
	for k, v := range baseEnv {
		t.Setenv(k, v)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "check"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "STRIPE_SECRET_KEY=sk_t****\n")
	assert.Contains(t, out.String(), "PORT=3001\n")
	assert.NotContains(t, out.String(), "sk_test_1234567890")
}

func TestConfigCheck_Missing(t *testing.T) {
	for k, v := range baseEnv {
		t.Setenv(k, v)
	}
	t.Setenv("STRIPE_PRICE_ID", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "check"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, relay.ErrConfig)
	assert.ErrorContains(t, err, "STRIPE_PRICE_ID")
}
