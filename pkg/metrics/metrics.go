// Package metrics exposes the Prometheus registry shared by the loader
// packages. Metrics are declared with promauto next to the code that
// records them (cache, ratelimit, client, pagination, entity, loader);
// this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - cms_requests_total{collection, status} (Counter): requests by collection and HTTP status, cache_hit or rate_limited
//   - cms_request_duration_seconds{collection} (Histogram): request duration including cache lookups
//   - cms_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//   - cms_items_dropped_total (Counter): draft or archived items dropped from list pages
//
// Cache Metrics (pkg/cache):
//   - cms_cache_hits_total{layer} (Counter): hits by layer (memory, redis)
//   - cms_cache_misses_total (Counter): misses across both layers
//   - cms_cache_size_bytes{layer} (Gauge): bytes written per layer
//   - cms_304_responses_total (Counter): revalidations answered with 304
//   - cms_cache_errors_total{operation} (Counter): Redis get/set/delete failures
//
// Rate Limit Metrics (pkg/ratelimit):
//   - cms_rate_limit_remaining (Gauge): requests left in the current window
//   - cms_rate_limit_blocks_total (Counter): requests held by the critical threshold
//   - cms_rate_limit_throttles_total (Counter): requests delayed by the warning threshold
//
// Loader Metrics (pkg/pagination, pkg/entity, pkg/loader):
//   - cms_pages_fetched_total{outcome} (Counter): page fetches by outcome
//   - cms_page_items_total (Counter): primary items received
//   - cms_page_fetch_duration_seconds (Histogram): page fetch duration
//   - cms_entity_fetches_total{outcome} (Counter): entity fetches by outcome
//   - cms_entity_cache_hits_total (Counter): references already resolved
//   - cms_filter_evaluations_total (Counter): filtered view recomputations
//   - cms_filter_duration_seconds (Histogram): recomputation duration
//   - cms_items_revealed_total{kind} (Counter): items handed to the renderer
//   - cms_fetch_in_flight_rejections_total (Counter): advances rejected during a fetch
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(cms_cache_hits_total[5m])) /
//   (sum(rate(cms_cache_hits_total[5m])) + sum(rate(cms_cache_misses_total[5m])))
//
//   # Entity failure ratio
//   sum(rate(cms_entity_fetches_total{outcome="failure"}[5m])) / sum(rate(cms_entity_fetches_total[5m]))
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(cms_page_fetch_duration_seconds_bucket[5m]))
