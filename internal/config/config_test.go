package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY", "PAGE_MODEL",
		"CHEMISTRY_MODEL", "SERVER_HOST", "SERVER_PORT", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini-2.5-flash", cfg.Extraction.PageModel)
	assert.Equal(t, "gemini-3-pro-preview", cfg.Extraction.ChemistryModel)
	assert.Equal(t, "memory", cfg.Events.Driver)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
extraction:
  page_model: from-file
  page_timeout: 30s
observability:
  log_level: debug
`), 0o600))

	t.Setenv("PAGE_MODEL", "from-env")
	t.Setenv("GOOGLE_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Extraction.PageModel)
	assert.Equal(t, 30*time.Second, cfg.Extraction.PageTimeout)
	assert.Equal(t, 3*time.Minute, cfg.Extraction.ChemistryTimeout)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)

	key, err := cfg.RequireAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "third")
	t.Setenv("GEMINI_API_KEY", "first")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Extraction.APIKey)
}

func TestLoad_RedisURLSwitchesDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://cache:6380")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Events.Driver)
	assert.Equal(t, "cache:6380", cfg.Events.Redis.Addr)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unclosed"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no upload budget", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
		{"missing model", func(c *Config) { c.Extraction.ChemistryModel = "" }},
		{"zero timeout", func(c *Config) { c.Extraction.PageTimeout = 0 }},
		{"unknown driver", func(c *Config) { c.Events.Driver = "kafka" }},
		{"zero buffer", func(c *Config) { c.Events.Buffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
		})
	}
}

func TestRequireAPIKey_Missing(t *testing.T) {
	_, err := DefaultConfig().RequireAPIKey()
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}
