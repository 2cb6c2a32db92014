package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"backend"}, // "memory", "freecache", "redis", "disk"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ps_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheEntries tracks the number of entries held by in-process backends
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ps_cache_entries",
			Help: "Current number of cached responses",
		},
		[]string{"backend"},
	)

	// CacheEvictions tracks evictions by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps_cache_evictions_total",
			Help: "Total number of evicted cache entries",
		},
		[]string{"reason"}, // "capacity", "expired", "idle", "size"
	)

	// CacheStores tracks entries written by the client
	CacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ps_cache_stores_total",
			Help: "Total number of responses stored in the cache",
		},
	)

	// ConditionalRequests tracks requests sent with If-None-Match
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ps_conditional_requests_total",
			Help: "Total number of conditional revalidation requests",
		},
	)

	// NotModified tracks 304 Not Modified responses
	NotModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ps_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ps_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
