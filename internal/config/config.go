// Package config loads the storefront runtime configuration from a YAML file
// and/or environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/offline"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
)

// Config is the full runtime configuration.
type Config struct {
	App   AppConfig   `yaml:"app"`
	Redis RedisConfig `yaml:"redis"`
	API   APIConfig   `yaml:"api"`
	Cache CacheConfig `yaml:"cache"`
}

// AppConfig configures the proxy process.
type AppConfig struct {
	Port       string `yaml:"port" env:"PORT" env-default:"8080"`
	Origin     string `yaml:"origin" env:"ORIGIN_URL" env-default:"https://kodeenhunter.com"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs bool   `yaml:"pretty_logs" env:"LOG_PRETTY" env-default:"false"`
}

// RedisConfig configures the Redis connection backing storage and caches.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_URL" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// APIConfig configures the REST API client.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url" env:"API_BASE_URL" env-default:"http://localhost:8000"`
	UserAgent   string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"storefront-proxy/1.0"`
	MaxAttempts int           `yaml:"max_attempts" env:"API_MAX_ATTEMPTS" env-default:"3"`
	BaseBackoff time.Duration `yaml:"base_backoff" env:"API_BASE_BACKOFF" env-default:"1s"`
}

// CacheConfig configures the offline cache controller.
type CacheConfig struct {
	Prefix            string   `yaml:"prefix" env:"CACHE_PREFIX" env-default:"kodeen"`
	Version           string   `yaml:"version" env:"CACHE_VERSION" env-default:"v1"`
	Manifest          []string `yaml:"manifest" env:"CACHE_MANIFEST" env-separator:"," env-default:"/,/index.html,/favicon.svg"`
	APIMarker         string   `yaml:"api_marker" env:"CACHE_API_MARKER" env-default:"/api/"`
	DynamicMaxEntries int      `yaml:"dynamic_max_entries" env:"CACHE_DYNAMIC_MAX_ENTRIES" env-default:"0"`
}

// Load reads the configuration file at cfgPath; environment variables fill
// in anything the file leaves unset.
func Load(cfgPath string) (*Config, error) {
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", cfgPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv reads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error reading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.App.Port == "" {
		return fmt.Errorf("app.port is required")
	}
	if err := validateURL("app.origin", c.App.Origin); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if c.API.MaxAttempts < 1 {
		return fmt.Errorf("api.max_attempts must be >= 1 (got %d)", c.API.MaxAttempts)
	}
	if c.API.BaseBackoff < 0 {
		return fmt.Errorf("api.base_backoff must not be negative")
	}
	if c.Cache.Prefix == "" || c.Cache.Version == "" {
		return fmt.Errorf("cache.prefix and cache.version are required")
	}
	if c.Cache.DynamicMaxEntries < 0 {
		return fmt.Errorf("cache.dynamic_max_entries must not be negative (got %d)", c.Cache.DynamicMaxEntries)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL (got %q)", field, raw)
	}
	return nil
}

// GetAppAddress returns the listen address, e.g. ":8080".
func (c *AppConfig) GetAppAddress() string {
	return ":" + c.Port
}

// ToLoggingConfig converts to the logger configuration.
func (c *AppConfig) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.PrettyLogs
	return cfg
}

// ToRedisOptions converts to go-redis options.
func (c *RedisConfig) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// ToClientConfig converts to the API client configuration.
func (c *APIConfig) ToClientConfig() client.Config {
	cfg := client.DefaultConfig(c.BaseURL, c.UserAgent)
	cfg.MaxAttempts = c.MaxAttempts
	cfg.BaseBackoff = c.BaseBackoff
	return cfg
}

// ToOfflineConfig converts to the offline controller configuration for origin.
func (c *CacheConfig) ToOfflineConfig(origin string) offline.Config {
	cfg := offline.DefaultConfig(origin)
	cfg.Prefix = c.Prefix
	cfg.Version = c.Version
	if len(c.Manifest) > 0 {
		cfg.Manifest = append([]string(nil), c.Manifest...)
	}
	cfg.APIMarker = c.APIMarker
	cfg.DynamicMaxEntries = c.DynamicMaxEntries
	return cfg
}
