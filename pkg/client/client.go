// Package client provides the storefront REST API client with CSRF handling,
// 5xx retries and bounded error logging.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/errlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// APIPrefix is prepended to every endpoint path.
const APIPrefix = "/api"

// Client is the storefront API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	errorLog   *errlog.Log
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API origin, e.g. "https://api.kodeenhunter.com".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Retry
	MaxAttempts int
	BaseBackoff time.Duration

	// CSRF: the cookie holding the token and the header that echoes it.
	CSRFCookieName string
	CSRFHeaderName string

	// ErrorLog receives every failure surfaced to callers (optional).
	ErrorLog *errlog.Log

	// Timeout bounds a single attempt. Zero means no timeout; callers
	// control deadlines through the request context.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      userAgent,
		MaxAttempts:    3,
		BaseBackoff:    1 * time.Second,
		CSRFCookieName: "csrftoken",
		CSRFHeaderName: "X-CSRFToken",
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.BaseBackoff < 0 {
		return nil, fmt.Errorf("base_backoff must not be negative")
	}

	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = "csrftoken"
	}
	if cfg.CSRFHeaderName == "" {
		cfg.CSRFHeaderName = "X-CSRFToken"
	}

	// The jar carries session and CSRF cookies, i.e. "credentials: include".
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		baseURL:  base,
		config:   cfg,
		errorLog: cfg.ErrorLog,
		logger:   log.With().Str("component", "api-client").Logger(),
	}, nil
}

// RequestOption customizes a single request.
type RequestOption func(h http.Header)

// WithIdempotencyKey attaches an Idempotency-Key header.
func WithIdempotencyKey(key string) RequestOption {
	return func(h http.Header) {
		if key != "" {
			h.Set("Idempotency-Key", key)
		}
	}
}

// Get performs a GET request to an API endpoint and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

// Post performs a POST request with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, payload, out, opts...)
}

// do executes a request with CSRF handling and 5xx retries. Every failure is
// written to the error log before it is returned.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, out any, opts ...RequestOption) error {
	target := c.endpointURL(endpoint)
	metricEndpoint := endpointLabel(endpoint)

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(metricEndpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing API request")

	var body []byte
	err := retryWithBackoff(ctx, c.retryConfig(), func(attempt int) error {
		req, err := c.newRequest(ctx, method, target, payload, opts)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("HTTP request failed")
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(metricEndpoint, "network_error").Inc()
			return fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
		defer resp.Body.Close()

		apiRequestsTotal.WithLabelValues(metricEndpoint, strconv.Itoa(resp.StatusCode)).Inc()

		data, readErr := io.ReadAll(resp.Body)
		if class := classifyStatus(resp.StatusCode); class != "" {
			apiErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("API request error")

			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: class,
				Endpoint:   endpoint,
				Message:    errorMessage(resp.Status, data),
			}
		}
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}

		body = data
		return nil
	})
	if err != nil {
		c.recordFailure(ctx, target, endpoint, err)
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		decodeErr := fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
		c.recordFailure(ctx, target, endpoint, decodeErr)
		return decodeErr
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, payload []byte, opts []RequestOption) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.csrfToken(); token != "" {
		req.Header.Set(c.config.CSRFHeaderName, token)
	}
	for _, opt := range opts {
		opt(req.Header)
	}

	return req, nil
}

// csrfToken returns the CSRF cookie value for the API origin, if any.
func (c *Client) csrfToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == c.config.CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) recordFailure(ctx context.Context, target, endpoint string, err error) {
	if c.errorLog == nil {
		return
	}
	if status, ok := StatusCode(err); ok {
		c.errorLog.LogAPIError(ctx, endpoint, status, err.Error())
		return
	}
	c.errorLog.LogNetworkError(ctx, target, err)
}

func (c *Client) retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: c.config.MaxAttempts,
		BaseBackoff: c.config.BaseBackoff,
	}
}

func (c *Client) endpointURL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL.String() + APIPrefix + endpoint
}

// SetCookie stores a cookie for the API origin (e.g. a CSRF token handed out
// by the page that embeds the client).
func (c *Client) SetCookie(cookie *http.Cookie) {
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{cookie})
}

// SetHTTPClient sets a custom HTTP client (for testing). The cookie jar is kept
// when the replacement has none.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client.Jar == nil {
		client.Jar = c.httpClient.Jar
	}
	c.httpClient = client
}

// slugCollections are the collections addressed by a per-item slug.
// Fixed sub-resources listed here keep their own label.
var slugCollections = map[string][]string{
	"/portfolio/projects/": {"featured"},
	"/shop/products/":      {"featured"},
}

// endpointLabel strips the query string and folds per-item slugs into
// {slug} so metric cardinality stays bounded.
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	for collection, fixed := range slugCollections {
		rest, ok := strings.CutPrefix(endpoint, collection)
		if !ok || rest == "" {
			continue
		}
		segment, _, _ := strings.Cut(rest, "/")
		if slices.Contains(fixed, segment) {
			return endpoint
		}
		return collection + "{slug}/"
	}
	return endpoint
}

// errorMessage prefers an {"error": "..."} body over the status line.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return status
}
