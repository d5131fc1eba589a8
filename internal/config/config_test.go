package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, file string) (*Config, error) {
	t.Helper()
	v, err := New(file)
	require.NoError(t, err)
	return Load(v)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biblio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "./data/biblio.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Search.ProviderTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Search.SessionTTL)
	assert.Equal(t, 500, cfg.Search.MaxSessions)
	assert.Equal(t, 10, cfg.Jobs.MaxPages)
	assert.Equal(t, 20, cfg.Jobs.MaxRunning)
	assert.True(t, cfg.Providers.DNB.Enabled)
	assert.Equal(t, 5.0, cfg.Providers.GoogleBooks.RateLimit)
	assert.Equal(t, "gemini-1.5-flash", cfg.CoverScan.Model)
	assert.Equal(t, int64(50*1024*1024), cfg.CoverScan.MaxUploadBytes)
}

func TestConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  url: 127.0.0.1:9000
log:
  level: debug
search:
  provider_timeout: 3s
jobs:
  max_pages: 2
providers:
  google_books:
    api_key: from-file
  dnb:
    enabled: false
    base_url: http://localhost:1234/sru
`)

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 3*time.Second, cfg.Search.ProviderTimeout)
	assert.Equal(t, 2, cfg.Jobs.MaxPages)
	assert.Equal(t, "from-file", cfg.Providers.GoogleBooks.APIKey)
	assert.False(t, cfg.Providers.DNB.Enabled)
	assert.Equal(t, "http://localhost:1234/sru", cfg.Providers.DNB.BaseURL)
	assert.True(t, cfg.Providers.OpenLibrary.Enabled)

	level, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "providers:\n  google_books:\n    api_key: from-file\n")
	t.Setenv("BIBLIO_PROVIDERS_GOOGLE_BOOKS_API_KEY", "from-env")
	t.Setenv("BIBLIO_COVERSCAN_API_KEY", "gemini-env")
	t.Setenv("BIBLIO_SERVER_PORT", "9999")
	t.Setenv("BIBLIO_SEARCH_SESSION_TTL", "1h")

	cfg, err := loadFrom(t, path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.GoogleBooks.APIKey)
	assert.Equal(t, ":9999", cfg.Addr())
	assert.Equal(t, time.Hour, cfg.Search.SessionTTL)
	assert.Equal(t, map[string]string{"google_books": "from-env", "gemini": "gemini-env"}, cfg.KeyFallback())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero pages", "jobs:\n  max_pages: 0\n", "jobs.max_pages"},
		{"negative rate", "providers:\n  dnb:\n    rate_limit: -1\n", "providers.dnb.rate_limit"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"empty db path", "database:\n  path: \"\"\n", "database.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
