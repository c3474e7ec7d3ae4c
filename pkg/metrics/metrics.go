// Package metrics provides the centralized Prometheus metrics registry for the
// storefront client. Metrics are defined in their owning packages (client,
// cache, offline, cart, ratelimit) to keep packages modular and avoid import
// cycles.
//
// This package documents every exported metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the storefront client.
// All metrics are registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// API Client Metrics (pkg/client):
//   - storefront_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - storefront_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - storefront_api_errors_total{class} (Counter): Errors by class (client, server, network)
//   - storefront_api_retries_total (Counter): Retry attempts after 5xx responses
//   - storefront_api_retry_backoff_seconds (Histogram): Linear backoff waits
//   - storefront_api_retry_exhausted_total (Counter): Requests that exhausted max attempts
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{partition} (Counter): Cache hits by partition
//   - storefront_cache_misses_total (Counter): Lookups that matched no partition
//   - storefront_cache_evictions_total (Counter): LRU evictions
//   - storefront_cache_errors_total{operation} (Counter): Cache operation errors
//
// Offline Controller Metrics (pkg/offline):
//   - storefront_offline_requests_total{route, outcome} (Counter): Router decisions
//   - storefront_offline_lifecycle_total{step, result} (Counter): install/activate runs
//   - storefront_offline_hook_events_total{hook, result} (Counter): sync and push events
//
// Cart Metrics (pkg/cart):
//   - storefront_cart_mutations_total{action} (Counter): Dispatched cart actions
//   - storefront_cart_rejected_total{action} (Counter): Cart actions rejected for an invalid payload
//   - storefront_checkouts_total{result} (Counter): Checkout outcomes
//
// Rate Limit Metrics (pkg/ratelimit):
//   - storefront_rate_limit_blocks_total{key} (Counter): Attempts rejected by the limiter
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Offline API fallbacks
//   rate(storefront_offline_requests_total{route="api",outcome="synthesized"}[5m])
//
//   # Checkout failure ratio
//   sum(rate(storefront_checkouts_total{result!="success"}[1h])) /
//   sum(rate(storefront_checkouts_total[1h]))
//
//   # P95 API Latency
//   histogram_quantile(0.95, rate(storefront_api_request_duration_seconds_bucket[5m]))
