package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by tier (volatile, durable)
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propcache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// cacheMisses tracks cache misses by tier
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propcache_misses_total",
			Help: "Total number of cache misses by tier",
		},
		[]string{"tier"},
	)

	// cacheWrites tracks cache writes by data class
	cacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propcache_writes_total",
			Help: "Total number of cache writes by data class",
		},
		[]string{"class"},
	)

	// requestDuration tracks engine Get latency
	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "propcache_request_duration_seconds",
			Help:    "Cache lookup duration including tier fallthrough",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// costSaved accumulates estimated upstream provider spend avoided
	costSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propcache_cost_saved_dollars_total",
			Help: "Estimated upstream provider cost avoided by cache hits (USD)",
		},
	)

	// tierFaults tracks absorbed tier I/O faults by tier and operation
	tierFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propcache_tier_faults_total",
			Help: "Total number of absorbed tier faults by tier and operation",
		},
		[]string{"tier", "operation"},
	)

	// promotions tracks durable-to-volatile cache warming events
	promotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propcache_promotions_total",
			Help: "Total number of durable-hit promotions into the volatile tier",
		},
	)

	// invalidations tracks pattern-invalidation deletions
	invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propcache_invalidations_total",
			Help: "Total number of durable entries removed by pattern invalidation",
		},
	)
)
