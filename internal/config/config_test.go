package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "local", cfg.Routing.Provider)
	assert.Equal(t, 4, cfg.Routing.MaxConcurrent)
	assert.Equal(t, "dispatch-draft", cfg.DraftPrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.DraftTTL)
	assert.Equal(t, "dev", cfg.AuthMode)
	assert.True(t, cfg.DBMigrate)
	assert.Empty(t, cfg.WebhookURLs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROUTING_PROVIDER", "google")
	t.Setenv("ROUTING_API_KEY", "k")
	t.Setenv("ROUTING_RPS", "2.5")
	t.Setenv("DRAFT_TTL", "48h")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("WEBHOOK_URLS", "http://a.example/hook, http://b.example/hook,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "google", cfg.Routing.Provider)
	assert.Equal(t, 2.5, cfg.Routing.RPS)
	assert.Equal(t, 48*time.Hour, cfg.DraftTTL)
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, []string{"http://a.example/hook", "http://b.example/hook"}, cfg.WebhookURLs)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
log_level: debug
routing:
  provider: local
  speed_kph: 25
webhook_urls:
  - http://hooks.example/dispatch
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 25.0, cfg.Routing.SpeedKPH)
	assert.Equal(t, []string{"http://hooks.example/dispatch"}, cfg.WebhookURLs)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"google without key", map[string]string{"ROUTING_PROVIDER": "google"}, "ROUTING_API_KEY"},
		{"unknown provider", map[string]string{"ROUTING_PROVIDER": "osrm"}, "ROUTING_PROVIDER"},
		{"hmac without secret", map[string]string{"AUTH_MODE": "hmac"}, "AUTH_HMAC_SECRET"},
		{"jwks without url", map[string]string{"AUTH_MODE": "jwks"}, "AUTH_JWKS_URL"},
		{"missing file", map[string]string{"CONFIG_FILE": "/nonexistent/fleetdesk.yaml"}, "fleetdesk.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
