package offline

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the controller configuration.
type Config struct {
	// Origin is the site the controller serves, e.g. "https://kodeenhunter.com".
	Origin string

	// Prefix and Version form the partition names "<prefix>-static-<version>"
	// and "<prefix>-dynamic-<version>". Bumping Version retires old partitions
	// on the next activation.
	Prefix  string
	Version string

	// Manifest lists the origin paths stored at install time.
	Manifest []string

	// APIMarker identifies API requests by URL substring.
	APIMarker string

	// DynamicMaxEntries caps the dynamic partition (LRU). Zero means unbounded.
	DynamicMaxEntries int

	// Precache controls manifest fetching during install.
	Precache PrecacheConfig
}

// PrecacheConfig bounds manifest fetching.
type PrecacheConfig struct {
	// MaxConcurrency is the maximum number of parallel manifest fetches
	MaxConcurrency int

	// Timeout per manifest fetch. Zero means the install context governs.
	Timeout time.Duration
}

// DefaultConfig returns the production configuration for origin.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:    origin,
		Prefix:    "kodeen",
		Version:   "v1",
		Manifest:  []string{"/", "/index.html", "/favicon.svg"},
		APIMarker: "/api/",
		Precache: PrecacheConfig{
			MaxConcurrency: 4,
			Timeout:        15 * time.Second,
		},
	}
}

// StaticCacheName returns the install-time partition name.
func (c Config) StaticCacheName() string {
	return c.Prefix + "-static-" + c.Version
}

// DynamicCacheName returns the fetch-time partition name.
func (c Config) DynamicCacheName() string {
	return c.Prefix + "-dynamic-" + c.Version
}

func (c Config) validate() (*url.URL, error) {
	if c.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}
	origin, err := url.Parse(strings.TrimRight(c.Origin, "/"))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", c.Origin)
	}
	if c.Prefix == "" || c.Version == "" {
		return nil, fmt.Errorf("cache prefix and version are required")
	}
	if c.APIMarker == "" {
		return nil, fmt.Errorf("api marker is required")
	}
	if c.DynamicMaxEntries < 0 {
		return nil, fmt.Errorf("dynamic_max_entries must not be negative (got %d)", c.DynamicMaxEntries)
	}
	return origin, nil
}
