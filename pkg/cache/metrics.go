package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by partition name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"partition"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "match", "put", "add_all", "delete"
	)

	// CacheEvictions tracks entries dropped by the LRU cap
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_evictions_total",
			Help: "Total number of entries evicted by the per-partition LRU cap",
		},
	)
)
