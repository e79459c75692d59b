package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 12*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 8*time.Second, cfg.OracleTimeout)
	assert.Equal(t, 2*time.Second, cfg.RailDelay)
	assert.Equal(t, 30, cfg.ContributionRateLimit)
	assert.Equal(t, "@every 1h", cfg.AuditSchedule)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "Bolt")
	t.Setenv("RAIL_DELAY", "250ms")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://bailaid.ke")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "bolt", cfg.Store)
	assert.Equal(t, 250*time.Millisecond, cfg.RailDelay)
	assert.Equal(t, []string{"http://localhost:3000", "https://bailaid.ke"}, cfg.CORSOrigins)
}

func TestLoadConfig_APIKeyAlias(t *testing.T) {
	t.Setenv("API_KEY", "from-alias")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-alias", cfg.GeminiAPIKey)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ORACLE_TIMEOUT=3s\n"), 0o600))
	// godotenv writes into the process environment; undo it for later tests.
	t.Cleanup(func() { os.Unsetenv("ORACLE_TIMEOUT") })

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.OracleTimeout)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"STORE": "mongo"}},
		{"postgres without dsn", map[string]string{"STORE": "postgres"}},
		{"negative rate limit", map[string]string{"CONTRIBUTION_RATE_LIMIT": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestValidate_WarnsOnUnsafeDefaults(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	Config{JWTSecret: defaultJWTSecret, ContributionRateLimit: 30}.Validate(zap.New(core))

	assert.Equal(t, 3, logs.Len())
}

func TestValidate_QuietWhenConfigured(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	Config{
		JWTSecret:             "real",
		GeminiAPIKey:          "key",
		RedisURL:              "redis://localhost:6379/0",
		ContributionRateLimit: 30,
	}.Validate(zap.New(core))

	assert.Equal(t, 0, logs.Len())
}
