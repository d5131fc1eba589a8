// Package config loads biblio's settings from defaults, an optional YAML
// file and BIBLIO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, with dots in keys
// replaced by underscores (search.session_ttl -> BIBLIO_SEARCH_SESSION_TTL)
const EnvPrefix = "BIBLIO"

// Config is the typed configuration of a biblio server
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Providers ProvidersConfig `mapstructure:"providers"`
	CoverScan CoverScanConfig `mapstructure:"coverscan"`
}

type ServerConfig struct {
	URL             string        `mapstructure:"url"` // bind address, wins over Port
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SearchConfig struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	MaxSessions     int           `mapstructure:"max_sessions"`
}

type JobsConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxPages   int           `mapstructure:"max_pages"`
	MaxRunning int           `mapstructure:"max_running"`
}

// ProviderConfig configures one external provider. A zero RateLimit
// disables limiting.
type ProviderConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	APIKey    string  `mapstructure:"api_key"`
	BaseURL   string  `mapstructure:"base_url"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second
	Burst     int     `mapstructure:"burst"`
}

type ProvidersConfig struct {
	GoogleBooks ProviderConfig `mapstructure:"google_books"`
	OpenLibrary ProviderConfig `mapstructure:"open_library"`
	DNB         ProviderConfig `mapstructure:"dnb"`
}

type CoverScanConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheSize      int           `mapstructure:"cache_size"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to apply on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")

	v.SetDefault("database.path", "./data/biblio.db")

	v.SetDefault("search.provider_timeout", "10s")
	v.SetDefault("search.session_ttl", "15m")
	v.SetDefault("search.max_sessions", 500)

	v.SetDefault("jobs.ttl", "15m")
	v.SetDefault("jobs.max_pages", 10)
	v.SetDefault("jobs.max_running", 20)

	for _, p := range []string{"google_books", "open_library", "dnb"} {
		v.SetDefault("providers."+p+".enabled", true)
		v.SetDefault("providers."+p+".api_key", "")
		v.SetDefault("providers."+p+".base_url", "")
		v.SetDefault("providers."+p+".burst", 1)
	}
	v.SetDefault("providers.google_books.rate_limit", 5)
	v.SetDefault("providers.open_library.rate_limit", 2)
	v.SetDefault("providers.dnb.rate_limit", 2)

	v.SetDefault("coverscan.api_key", "")
	v.SetDefault("coverscan.model", "gemini-1.5-flash")
	v.SetDefault("coverscan.timeout", "30s")
	v.SetDefault("coverscan.cache_size", 128)
	v.SetDefault("coverscan.max_upload_bytes", 50*1024*1024)
}

// New returns a viper instance with defaults and environment overrides
// installed and the config file read. Without configFile, biblio.yaml is
// looked up in the working directory and ~/.config/biblio; a missing file
// is not an error.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("biblio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "biblio"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}
	if c.Search.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("search.provider_timeout must be positive"))
	}
	if c.Search.SessionTTL <= 0 {
		errs = append(errs, errors.New("search.session_ttl must be positive"))
	}
	if c.Jobs.MaxPages < 1 {
		errs = append(errs, errors.New("jobs.max_pages must be at least 1"))
	}
	if c.Jobs.MaxRunning < 1 {
		errs = append(errs, errors.New("jobs.max_running must be at least 1"))
	}
	for name, p := range c.Providers.All() {
		if p.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.rate_limit must not be negative", name))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// All returns the provider settings keyed by provider name
func (p ProvidersConfig) All() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"google_books": p.GoogleBooks,
		"open_library": p.OpenLibrary,
		"dnb":          p.DNB,
	}
}

// Addr is the address the HTTP server binds to
func (c *Config) Addr() string {
	if c.Server.URL != "" {
		return c.Server.URL
	}
	return ":" + c.Server.Port
}

// KeyFallback maps key names to keys from configuration. Keys saved
// through the settings API take precedence over these.
func (c *Config) KeyFallback() map[string]string {
	return map[string]string{
		"google_books": c.Providers.GoogleBooks.APIKey,
		"gemini":       c.CoverScan.APIKey,
	}
}

// ParseLevel maps a level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
