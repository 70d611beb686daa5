package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "CORS_ORIGINS",
		"BIBLE_API_URL", "BIBLE_API_TIMEOUT", "BIBLE_API_IDLE_TIMEOUT",
		"MAX_RESULTS_CAP", "DEFAULT_TRANSLATION", "SEARCH_CACHE_SIZE",
		"CREDENTIALS_PATH", "HISTORY_ENABLED", "HISTORY_PATH",
		"HISTORY_WORKERS", "HISTORY_BUFFER_SIZE",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_REPORT_CALLER",
		"CIRCUIT_BREAKER_ENABLED", "CIRCUIT_BREAKER_FAILURE_THRESHOLD",
		"CIRCUIT_BREAKER_SUCCESS_THRESHOLD", "CIRCUIT_BREAKER_TIMEOUT",
		"CIRCUIT_BREAKER_MAX_REQUESTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadYAML_Defaults(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 90*time.Second, cfg.API.IdleTimeout)
	assert.Equal(t, 100, cfg.API.MaxResultsCap)
	assert.Equal(t, "NIV", cfg.API.DefaultVersion)
	assert.Equal(t, 256, cfg.Cache.SearchResults)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 2, cfg.History.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.FailureThreshold)
}

func TestLoadYAML_FromFile(t *testing.T) {
	clearEnvOverrides(t)

	yamlContent := `
server:
  host: "127.0.0.1"
  port: "8080"
  cors_origins:
    - "https://example.com"
api:
  base_url: "https://bible.example.com"
  timeout: 10s
  idle_timeout: 45s
  max_results_cap: 25
cache:
  search_results: 64
history:
  enabled: false
logging:
  level: debug
  format: json
circuit_breaker:
  enabled: false
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := LoadYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CorsOrigins)
	assert.Equal(t, "https://bible.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 45*time.Second, cfg.API.IdleTimeout)
	assert.Equal(t, 25, cfg.API.MaxResultsCap)
	assert.Equal(t, 64, cfg.Cache.SearchResults)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.CircuitBreaker.Enabled)
}

func TestLoadYAML_EnvironmentOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BIBLE_API_URL", "http://api.internal:8000")
	t.Setenv("BIBLE_API_TIMEOUT", "15s")
	t.Setenv("MAX_RESULTS_CAP", "50")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("HISTORY_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")

	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://api.internal:8000", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 50, cfg.API.MaxResultsCap)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CorsOrigins)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, uint32(9), cfg.CircuitBreaker.FailureThreshold)
}

func TestLoadYAML_EnvExpansionInFile(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("UPSTREAM_HOST", "bible.internal")

	yamlContent := `
api:
  base_url: "http://${UPSTREAM_HOST}:8000"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "http://bible.internal:8000", cfg.API.BaseURL)
}

func TestLoadYAML_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "non-http base url",
			yaml:    "api:\n  base_url: \"ftp://example.com\"\n",
			wantErr: "must be an http(s) URL",
		},
		{
			name:    "max results cap out of range",
			yaml:    "api:\n  max_results_cap: 500\n",
			wantErr: "max_results_cap must be between 1 and 100",
		},
		{
			name:    "negative cache size",
			yaml:    "cache:\n  search_results: -1\n",
			wantErr: "cannot be negative",
		},
		{
			name:    "history enabled without path",
			yaml:    "history:\n  enabled: true\n  path: \"\"\n",
			wantErr: "history path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvOverrides(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := LoadYAML(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
