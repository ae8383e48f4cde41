// Package metrics provides the centralized Prometheus metrics registry for
// the propcache engine. Metrics are defined in the cache package next to
// the code that increments them; this package documents the full surface
// and exposes the registry binaries should serve.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in pkg/cache.
var Registry = prometheus.DefaultRegisterer

// Handler returns an HTTP handler serving the engine's metrics, for
// binaries that expose a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - propcache_hits_total{tier} (Counter): Cache hits by tier (volatile, durable)
//   - propcache_misses_total{tier} (Counter): Cache misses by tier
//   - propcache_writes_total{class} (Counter): Cache writes by data class
//   - propcache_request_duration_seconds (Histogram): Lookup duration including fallthrough
//   - propcache_cost_saved_dollars_total (Counter): Estimated upstream spend avoided
//   - propcache_tier_faults_total{tier,operation} (Counter): Absorbed tier faults
//   - propcache_promotions_total (Counter): Durable-hit promotions into the volatile tier
//   - propcache_invalidations_total (Counter): Entries removed by pattern invalidation
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(propcache_hits_total[5m])) /
//   (sum(rate(propcache_hits_total[5m])) + sum(rate(propcache_misses_total{tier="durable"}[5m])))
//
//   # Cost Savings Rate (USD/hour)
//   rate(propcache_cost_saved_dollars_total[1h]) * 3600
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(propcache_request_duration_seconds_bucket[5m]))
//
//   # Tier Fault Rate
//   rate(propcache_tier_faults_total[5m])
