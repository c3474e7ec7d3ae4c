package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"golang.org/x/sync/errgroup"
)

// State is the controller lifecycle state.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"

	// StateRedundant follows a failed install. Install may be retried.
	StateRedundant State = "redundant"
)

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Controlling reports whether the controller has claimed request handling.
// Until then every request goes straight to the network.
func (c *Controller) Controlling() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controlling
}

// transition moves from one of the allowed states to next.
func (c *Controller) transition(next State, allowed ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range allowed {
		if c.state == s {
			c.logger.Debug().
				Str("from", string(c.state)).
				Str("to", string(next)).
				Msg("Lifecycle transition")
			c.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, next)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start installs and then activates the controller.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Install opens the static partition and stores every manifest URL in it.
// Any failed fetch aborts the whole install and nothing is stored; the
// controller becomes redundant and Install may be called again.
//
// A successful install does not wait for a previous controller to release
// its pages: Activate may follow immediately.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.transition(StateInstalling, StateParsed, StateRedundant); err != nil {
		return err
	}

	start := time.Now()
	c.logger.Info().
		Str("partition", c.config.StaticCacheName()).
		Int("assets", len(c.config.Manifest)).
		Msg("Installing offline controller")

	fail := func(err error) error {
		c.setState(StateRedundant)
		offlineLifecycleTotal.WithLabelValues("install", "failure").Inc()
		c.logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	static, err := c.storage.Open(ctx, c.config.StaticCacheName())
	if err != nil {
		return fail(err)
	}

	entries, err := c.precache(ctx)
	if err != nil {
		return fail(err)
	}

	if err := static.AddAll(ctx, entries); err != nil {
		return fail(err)
	}

	c.mu.Lock()
	c.static = static
	c.state = StateInstalled
	c.mu.Unlock()

	offlineLifecycleTotal.WithLabelValues("install", "success").Inc()
	c.logger.Info().
		Int("assets", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Install complete")

	return nil
}

// precache fetches every manifest URL with bounded parallelism. The first
// failure cancels the remaining fetches.
func (c *Controller) precache(ctx context.Context) (map[cache.CacheKey]*cache.CacheEntry, error) {
	results := make(map[cache.CacheKey]*cache.CacheEntry, len(c.config.Manifest))
	var resultsMutex sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if n := c.config.Precache.MaxConcurrency; n > 0 {
		g.SetLimit(n)
	}

	for _, path := range c.config.Manifest {
		path := path // per-iteration copy; go directive is 1.21
		target := c.resolve(path)
		g.Go(func() error {
			entry, err := c.fetchAsset(gctx, target.String())
			if err != nil {
				return fmt.Errorf("precache %s: %w", path, err)
			}

			resultsMutex.Lock()
			results[cache.CacheKey{Method: http.MethodGet, URL: target.String()}] = entry
			resultsMutex.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchAsset downloads one manifest URL. Only 2xx responses are accepted.
func (c *Controller) fetchAsset(ctx context.Context, target string) (*cache.CacheEntry, error) {
	if timeout := c.config.Precache.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return cache.ResponseToEntry(resp)
}

// Activate deletes every partition that is neither the current static nor
// the current dynamic one, then claims control. Failures to delete a stale
// partition are logged and do not block activation.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.transition(StateActivating, StateInstalled); err != nil {
		return err
	}

	staticName := c.config.StaticCacheName()
	dynamicName := c.config.DynamicCacheName()

	names, err := c.storage.Keys(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to list cache partitions")
	}
	for _, name := range names {
		if name == staticName || name == dynamicName {
			continue
		}
		if _, err := c.storage.Delete(ctx, name); err != nil {
			c.logger.Warn().Err(err).Str("partition", name).Msg("Failed to delete stale partition")
			continue
		}
		c.logger.Info().Str("partition", name).Msg("Deleted stale partition")
	}

	var opts []cache.PartitionOption
	if c.config.DynamicMaxEntries > 0 {
		opts = append(opts, cache.WithMaxEntries(c.config.DynamicMaxEntries))
	}
	dynamic, err := c.storage.Open(ctx, dynamicName, opts...)
	if err != nil {
		// Requests are still served; dynamic writes are skipped
		c.logger.Warn().Err(err).Str("partition", dynamicName).Msg("Failed to open dynamic partition")
		dynamic = nil
	}

	c.mu.Lock()
	c.dynamic = dynamic
	c.controlling = true
	c.state = StateActivated
	c.mu.Unlock()

	offlineLifecycleTotal.WithLabelValues("activate", "success").Inc()
	c.logger.Info().Msg("Offline controller activated and controlling")

	return nil
}
