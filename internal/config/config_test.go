package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  port: "9090"
  origin: "https://kodeenhunter.com"
  log_level: "debug"
  pretty_logs: true
redis:
  addr: "redis:6379"
  db: 2
api:
  base_url: "https://api.kodeenhunter.com"
  user_agent: "storefront-test/1.0"
  max_attempts: 4
  base_backoff: 250ms
cache:
  prefix: "kodeen"
  version: "v2"
  manifest:
    - "/"
    - "/index.html"
  api_marker: "/api/"
  dynamic_max_entries: 50
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, ":9090", cfg.App.GetAppAddress())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 4, cfg.API.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.API.BaseBackoff)
	assert.Equal(t, []string{"/", "/index.html"}, cfg.Cache.Manifest)
	assert.Equal(t, 50, cfg.Cache.DynamicMaxEntries)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, `
api:
  base_url: "https://api.kodeenhunter.com"
  max_attempts: 0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.max_attempts must be >= 1")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ORIGIN_URL", "https://staging.kodeenhunter.com")
	t.Setenv("API_BASE_URL", "https://api.staging.kodeenhunter.com")
	t.Setenv("API_BASE_BACKOFF", "2s")
	t.Setenv("CACHE_MANIFEST", "/,/shop")
	t.Setenv("CACHE_VERSION", "v9")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.kodeenhunter.com", cfg.App.Origin)
	assert.Equal(t, 2*time.Second, cfg.API.BaseBackoff)
	assert.Equal(t, []string{"/", "/shop"}, cfg.Cache.Manifest)
	assert.Equal(t, "kodeen", cfg.Cache.Prefix)
	assert.Equal(t, "/api/", cfg.Cache.APIMarker)
}

func validConfig() Config {
	return Config{
		App:   AppConfig{Port: "8080", Origin: "https://kodeenhunter.com", LogLevel: "info"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		API: APIConfig{
			BaseURL:     "https://api.kodeenhunter.com",
			UserAgent:   "storefront-test/1.0",
			MaxAttempts: 3,
			BaseBackoff: time.Second,
		},
		Cache: CacheConfig{Prefix: "kodeen", Version: "v1", APIMarker: "/api/"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing origin", func(c *Config) { c.App.Origin = "" }, "app.origin is required"},
		{"relative origin", func(c *Config) { c.App.Origin = "kodeenhunter.com" }, "app.origin must be an absolute URL"},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url is required"},
		{"zero attempts", func(c *Config) { c.API.MaxAttempts = 0 }, "api.max_attempts must be >= 1"},
		{"negative backoff", func(c *Config) { c.API.BaseBackoff = -time.Second }, "api.base_backoff must not be negative"},
		{"negative cap", func(c *Config) { c.Cache.DynamicMaxEntries = -1 }, "cache.dynamic_max_entries must not be negative"},
		{"missing version", func(c *Config) { c.Cache.Version = "" }, "cache.prefix and cache.version are required"},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }, "redis.addr is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.App.LogLevel = "warn"
	cfg.Cache.Manifest = []string{"/"}
	cfg.Cache.DynamicMaxEntries = 25

	logCfg := cfg.App.ToLoggingConfig()
	assert.Equal(t, logging.LevelWarn, logCfg.Level)

	clientCfg := cfg.API.ToClientConfig()
	assert.Equal(t, "https://api.kodeenhunter.com", clientCfg.BaseURL)
	assert.Equal(t, 3, clientCfg.MaxAttempts)
	assert.Equal(t, "csrftoken", clientCfg.CSRFCookieName)

	offlineCfg := cfg.Cache.ToOfflineConfig(cfg.App.Origin)
	assert.Equal(t, "kodeen-static-v1", offlineCfg.StaticCacheName())
	assert.Equal(t, "kodeen-dynamic-v1", offlineCfg.DynamicCacheName())
	assert.Equal(t, []string{"/"}, offlineCfg.Manifest)
	assert.Equal(t, 25, offlineCfg.DynamicMaxEntries)

	opts := cfg.Redis.ToRedisOptions()
	assert.Equal(t, "localhost:6379", opts.Addr)
}
