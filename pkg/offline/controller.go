// Package offline implements the offline cache controller: a request router
// that sits between the storefront pages and the network.
//
// The controller precaches the app shell at install time, retires stale cache
// partitions at activation and then answers requests:
//
//   - non-GET requests go straight to the network
//   - API requests always go to the network; a transport failure yields a
//     synthesized 503 JSON body
//   - everything else is served cache-first, with 200 same-origin responses
//     written to the dynamic partition and navigations falling back to the
//     cached root document when offline
//
// A Controller is an http.RoundTripper, so it can back an http.Client, and an
// http.Handler that proxies to the configured origin.
package offline

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Controller is the offline cache controller.
type Controller struct {
	config    Config
	origin    *url.URL
	storage   *cache.Storage
	transport http.RoundTripper
	notifier  Notifier
	logger    zerolog.Logger

	// Coalesces concurrent misses for the same key into one network fetch
	group singleflight.Group

	mu          sync.RWMutex
	state       State
	controlling bool
	static      *cache.Partition
	dynamic     *cache.Partition

	hooksMu      sync.RWMutex
	syncHandlers map[string]SyncHandler
}

// Option configures a Controller.
type Option func(*Controller)

// WithTransport sets the network transport (default http.DefaultTransport).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Controller) {
		c.transport = rt
	}
}

// WithNotifier sets the push notification sink (default: log only).
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller in the parsed state.
func New(cfg Config, storage *cache.Storage, opts ...Option) (*Controller, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}
	origin, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		config:       cfg,
		origin:       origin,
		storage:      storage,
		transport:    http.DefaultTransport,
		logger:       log.With().Str("component", "offline").Logger(),
		state:        StateParsed,
		syncHandlers: make(map[string]SyncHandler),
	}
	c.notifier = LogNotifier{Logger: c.logger}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// resolve turns an origin path into an absolute URL.
func (c *Controller) resolve(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	return c.origin.ResolveReference(ref)
}

func (c *Controller) rootKey() cache.CacheKey {
	return cache.CacheKey{Method: http.MethodGet, URL: c.resolve("/").String()}
}
