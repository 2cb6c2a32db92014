// Package metrics provides the Prometheus registry and handler for ps-bridge.
// All metrics are defined in their respective packages (client, cache,
// session, xmlstream) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by ps-bridge.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics of Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - ps_cache_hits_total{backend} (Counter): Cache hits by backend (memory, freecache, redis, disk)
//   - ps_cache_misses_total (Counter): Cache misses
//   - ps_cache_entries{backend} (Gauge): Entries held by in-process backends
//   - ps_cache_evictions_total{reason} (Counter): Evictions by reason (capacity, expired, idle, size)
//   - ps_cache_stores_total (Counter): Responses stored by the client
//   - ps_conditional_requests_total (Counter): Requests sent with If-None-Match
//   - ps_304_responses_total (Counter): 304 Not Modified responses
//   - ps_cache_errors_total{operation} (Counter): Cache backend errors by operation
//
// Request Metrics (pkg/client):
//   - ps_requests_total{method, status} (Counter): Requests by method and response status
//   - ps_request_duration_seconds{method} (Histogram): Time until headers arrived
//
// Retry Metrics (pkg/client):
//   - ps_retries_total{status} (Counter): Retry attempts by status
//   - ps_retry_backoff_seconds{status} (Histogram): Backoff duration by status
//   - ps_retry_exhausted_total{status} (Counter): Calls that exhausted max retries
//
// Session Metrics (pkg/session):
//   - ps_sessions_refreshed_total (Counter): Sessions issued or replaced by the server
//   - ps_sessions_stale_total (Counter): Sessions dropped after the validity window
//
// XML Metrics (pkg/xmlstream):
//   - ps_xml_dispatch_total{route} (Counter): Parsed bodies by route (content, error, duplex)
//
// Proxy Metrics (cmd/ps-proxy):
//   - ps_proxy_requests_total{status} (Counter): Proxied requests by response status
//
// Example Prometheus Queries:
//
//	# Revalidation Hit Rate
//	rate(ps_304_responses_total[5m]) / rate(ps_conditional_requests_total[5m])
//
//	# Cache Hit Rate
//	sum(rate(ps_cache_hits_total[5m])) /
//	(sum(rate(ps_cache_hits_total[5m])) + sum(rate(ps_cache_misses_total[5m])))
//
//	# Server Error Rate
//	rate(ps_requests_total{status="ServerError"}[5m])
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(ps_request_duration_seconds_bucket[5m]))
