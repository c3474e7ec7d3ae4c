package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/cache"
)

// Route is the router decision for a request.
type Route string

const (
	// RoutePassthrough sends the request to the network untouched.
	RoutePassthrough Route = "passthrough"

	// RouteAPI sends the request to the network with a 503 fallback.
	RouteAPI Route = "api"

	// RouteAsset serves the request cache-first.
	RouteAsset Route = "asset"
)

// ResponseType classifies a network response for caching.
type ResponseType string

const (
	// ResponseBasic is a same-origin response.
	ResponseBasic ResponseType = "basic"

	// ResponseOpaque is a cross-origin response; it is never cached.
	ResponseOpaque ResponseType = "opaque"

	// ResponseError is a missing response.
	ResponseError ResponseType = "error"
)

// offlineAPIBody is returned for API requests that fail at the transport.
const offlineAPIBody = `{"error":"Offline - API unavailable"}`

// Classify returns the route for req.
func (c *Controller) Classify(req *http.Request) Route {
	if req.Method != http.MethodGet {
		return RoutePassthrough
	}
	if strings.Contains(req.URL.String(), c.config.APIMarker) {
		return RouteAPI
	}
	return RouteAsset
}

// RoundTrip implements http.RoundTripper.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Handle(req)
}

// Handle answers req. Before the controller is controlling, every request
// goes straight to the network.
func (c *Controller) Handle(req *http.Request) (*http.Response, error) {
	if !c.Controlling() {
		offlineRequestsTotal.WithLabelValues("uncontrolled", "network").Inc()
		return c.transport.RoundTrip(req)
	}

	switch route := c.Classify(req); route {
	case RoutePassthrough:
		offlineRequestsTotal.WithLabelValues(string(route), "network").Inc()
		return c.transport.RoundTrip(req)
	case RouteAPI:
		return c.handleAPI(req)
	default:
		return c.handleAsset(req)
	}
}

// handleAPI always goes to the network. Only transport failures are
// converted; non-2xx API responses are returned unchanged.
func (c *Controller) handleAPI(req *http.Request) (*http.Response, error) {
	resp, err := c.transport.RoundTrip(req)
	if err == nil {
		offlineRequestsTotal.WithLabelValues(string(RouteAPI), "network").Inc()
		return resp, nil
	}

	c.logger.Warn().
		Err(err).
		Str("url", req.URL.String()).
		Msg("API request failed, answering offline")
	offlineRequestsTotal.WithLabelValues(string(RouteAPI), "synthesized").Inc()

	return synthesize(req, http.StatusServiceUnavailable, "application/json", []byte(offlineAPIBody)), nil
}

// fetchResult is what concurrent misses for one key share.
type fetchResult struct {
	entry        *cache.CacheEntry
	responseType ResponseType
}

// handleAsset serves req cache-first.
func (c *Controller) handleAsset(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := cache.KeyFromRequest(req)
	closeBody(req)

	entry, err := c.storage.Match(ctx, key)
	if err == nil {
		offlineRequestsTotal.WithLabelValues(string(RouteAsset), "hit").Inc()
		return cache.EntryToResponse(entry, req), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache lookup failed, treating as miss")
	}

	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		return c.fetchAndStore(ctx, req, key)
	})
	if err != nil {
		return c.offlineFallback(req, err)
	}

	result := v.(*fetchResult)
	if shared {
		c.logger.Debug().Str("cache_key", key.String()).Msg("Shared in-flight fetch")
	}
	return cache.EntryToResponse(result.entry, req), nil
}

// fetchAndStore fetches req and stores the response in the dynamic partition
// when it is a same-origin 200.
func (c *Controller) fetchAndStore(ctx context.Context, req *http.Request, key cache.CacheKey) (*fetchResult, error) {
	outbound := req.Clone(ctx)
	outbound.Body = nil

	resp, err := c.transport.RoundTrip(outbound)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no response")
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, err
	}
	entry.URL = req.URL.String()

	result := &fetchResult{entry: entry, responseType: c.responseType(req, resp)}

	if resp.StatusCode != http.StatusOK || result.responseType != ResponseBasic {
		offlineRequestsTotal.WithLabelValues(string(RouteAsset), "uncached").Inc()
		return result, nil
	}

	c.store(ctx, key, entry)
	offlineRequestsTotal.WithLabelValues(string(RouteAsset), "stored").Inc()
	return result, nil
}

// store writes entry into the dynamic partition. Failures only degrade
// offline capability and are never surfaced.
func (c *Controller) store(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) {
	c.mu.RLock()
	dynamic := c.dynamic
	c.mu.RUnlock()

	if dynamic == nil {
		return
	}
	if err := dynamic.Put(ctx, key, entry); err != nil {
		c.logger.Warn().
			Err(err).
			Str("partition", dynamic.Name()).
			Str("cache_key", key.String()).
			Msg("Failed to store response")
	}
}

// offlineFallback answers a failed asset fetch: navigations get the cached
// root document, everything else fails.
func (c *Controller) offlineFallback(req *http.Request, fetchErr error) (*http.Response, error) {
	if IsNavigation(req) {
		entry, err := c.storage.Match(req.Context(), c.rootKey())
		if err == nil {
			offlineRequestsTotal.WithLabelValues(string(RouteAsset), "fallback").Inc()
			c.logger.Info().Str("url", req.URL.String()).Msg("Offline, serving cached root document")
			return cache.EntryToResponse(entry, req), nil
		}
	}

	offlineRequestsTotal.WithLabelValues(string(RouteAsset), "offline").Inc()
	c.logger.Debug().Err(fetchErr).Str("url", req.URL.String()).Msg("Request failed offline")
	return nil, fmt.Errorf("%w: %w", ErrOffline, fetchErr)
}

// responseType reports whether resp came from the controller's origin.
func (c *Controller) responseType(req *http.Request, resp *http.Response) ResponseType {
	if resp == nil {
		return ResponseError
	}
	u := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL
	}
	if strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host) {
		return ResponseBasic
	}
	return ResponseOpaque
}

// IsNavigation reports whether req loads a document: Sec-Fetch-Dest is
// "document", Sec-Fetch-Mode is "navigate", or the first Accept media type
// is text/html.
func IsNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Dest") == "document" || req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}

	accept := req.Header.Get("Accept")
	if accept == "" {
		return false
	}
	first, _, _ := strings.Cut(accept, ",")
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(first))
	return err == nil && mediaType == "text/html"
}

// synthesize builds a local response for req.
func synthesize(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
