// Package metrics exposes the Prometheus metrics of the pager.
// Each metric is defined next to the code that records it (loader, cache,
// client) and registered via promauto on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every pager metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the gathered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Loader Metrics (pkg/loader):
//   - pager_page_loads_total{view, source} (Counter): Pages applied, source is "fetch" or "cache"
//   - pager_fetch_failures_total{view, op} (Counter): Failed fetches, op is "fetch" or "count"
//   - pager_stale_discards_total{view} (Counter): Completions discarded because a newer request won
//   - pager_fetch_duration_seconds{view} (Histogram): Page fetch duration
//   - pager_full_replaces_total{view} (Counter): Applies that replaced the whole collection
//   - pager_prefetched_pages_total{view} (Counter): Pages stored ahead of navigation
//
// Remote Cache Metrics (pkg/cache):
//   - pager_remote_cache_hits_total{kind} (Counter): Redis hits, kind is "page" or "count"
//   - pager_remote_cache_misses_total{kind} (Counter): Redis misses
//   - pager_remote_cache_errors_total{operation} (Counter): Redis or decode errors
//   - pager_remote_cache_written_bytes_total (Counter): Bytes written to Redis
//
// Record API Metrics (pkg/client):
//   - pager_api_requests_total{collection, status} (Counter): Requests by collection and HTTP status
//   - pager_api_request_duration_seconds{collection} (Histogram): Request duration including retries
//   - pager_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pager_api_retries_total{error_class} (Counter): Retry attempts
//   - pager_api_retry_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - pager_api_retry_exhausted_total{error_class} (Counter): Requests that ran out of attempts
//
// Shared Quota Metrics (pkg/ratelimit):
//   - pager_api_rate_limit_remaining (Gauge): Requests left in the API's current window
//   - pager_api_rate_limit_blocks_total (Counter): Requests blocked while the quota was exhausted
//   - pager_api_rate_limit_throttles_total (Counter): Requests delayed while the quota was low
//
// Example Prometheus Queries:
//
//   # Page cache hit ratio per view
//   sum by (view) (rate(pager_page_loads_total{source="cache"}[5m])) /
//   sum by (view) (rate(pager_page_loads_total[5m]))
//
//   # Share of loads overtaken by newer navigation
//   rate(pager_stale_discards_total[5m]) / rate(pager_page_loads_total{source="fetch"}[5m])
//
//   # P95 fetch latency
//   histogram_quantile(0.95, rate(pager_fetch_duration_seconds_bucket[5m]))
