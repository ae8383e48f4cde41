package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/homescout/propcache/pkg/logging"
)

// DefaultHitRateFloor is the hit rate below which the collector emits an
// advisory warning. Telemetry only; control flow never depends on it.
const DefaultHitRateFloor = 0.5

// hitRateMinSamples is the minimum number of requests before the advisory
// warning can fire, so cold starts don't alarm.
const hitRateMinSamples = 20

// Stats is a flat snapshot of collector state. The field set is stable
// across calls so external dashboards can poll it on an interval.
type Stats struct {
	Requests       int64   `json:"requests"`
	VolatileHits   int64   `json:"volatile_hits"`
	VolatileMisses int64   `json:"volatile_misses"`
	DurableHits    int64   `json:"durable_hits"`
	DurableMisses  int64   `json:"durable_misses"`
	Writes         int64   `json:"writes"`
	HitRate        float64 `json:"hit_rate"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	CostSavings    float64 `json:"cost_savings"`
}

// StatsCollector accumulates hit/miss/write counters, a running latency
// mean, and cumulative estimated cost savings. Collectors are injected into
// the manager rather than shared process-wide, so independent engines keep
// independent books.
//
// Counters are atomics and therefore exactly consistent under concurrency;
// the latency mean and cost savings are float aggregates guarded by a small
// mutex. Every recording method also mirrors into the package's Prometheus
// metrics.
type StatsCollector struct {
	requests       atomic.Int64
	volatileHits   atomic.Int64
	volatileMisses atomic.Int64
	durableHits    atomic.Int64
	durableMisses  atomic.Int64
	writes         atomic.Int64

	mu             sync.Mutex
	avgLatencyMs   float64
	latencySamples int64
	costSavings    float64

	hitRateFloor float64
	logger       zerolog.Logger
}

// NewStatsCollector creates a collector. A non-positive hitRateFloor uses
// DefaultHitRateFloor.
func NewStatsCollector(hitRateFloor float64) *StatsCollector {
	if hitRateFloor <= 0 {
		hitRateFloor = DefaultHitRateFloor
	}
	return &StatsCollector{
		hitRateFloor: hitRateFloor,
		logger:       logging.NewLogger("stats"),
	}
}

// RecordVolatileHit records a volatile-tier hit and the upstream cost it
// avoided.
func (s *StatsCollector) RecordVolatileHit(costSavedDollars float64) {
	s.volatileHits.Add(1)
	cacheHits.WithLabelValues(string(FaultTierVolatile)).Inc()
	s.addSavings(costSavedDollars)
}

// RecordVolatileMiss records a volatile-tier miss.
func (s *StatsCollector) RecordVolatileMiss() {
	s.volatileMisses.Add(1)
	cacheMisses.WithLabelValues(string(FaultTierVolatile)).Inc()
}

// RecordDurableHit records a durable-tier hit and the upstream cost it
// avoided.
func (s *StatsCollector) RecordDurableHit(costSavedDollars float64) {
	s.durableHits.Add(1)
	cacheHits.WithLabelValues(string(FaultTierDurable)).Inc()
	s.addSavings(costSavedDollars)
}

// RecordDurableMiss records a durable-tier miss.
func (s *StatsCollector) RecordDurableMiss() {
	s.durableMisses.Add(1)
	cacheMisses.WithLabelValues(string(FaultTierDurable)).Inc()
}

// RecordWrite records a cache write for class.
func (s *StatsCollector) RecordWrite(class Class) {
	s.writes.Add(1)
	cacheWrites.WithLabelValues(string(class)).Inc()
}

// RecordRequestLatency records one completed lookup and folds its elapsed
// time into the running mean via the incremental-average formula
// avg += (sample - avg) / n.
func (s *StatsCollector) RecordRequestLatency(elapsed time.Duration) {
	s.requests.Add(1)
	requestDuration.Observe(elapsed.Seconds())

	sampleMs := float64(elapsed.Microseconds()) / 1000.0
	s.mu.Lock()
	s.latencySamples++
	s.avgLatencyMs += (sampleMs - s.avgLatencyMs) / float64(s.latencySamples)
	s.mu.Unlock()
}

// addSavings accumulates estimated avoided upstream spend.
func (s *StatsCollector) addSavings(dollars float64) {
	if dollars <= 0 {
		return
	}
	s.mu.Lock()
	s.costSavings += dollars
	s.mu.Unlock()
	costSaved.Add(dollars)
}

// Snapshot returns the current stats. When the overall hit rate has fallen
// below the configured floor (and enough requests have been seen), an
// advisory warning is logged; nothing else changes.
func (s *StatsCollector) Snapshot() Stats {
	s.mu.Lock()
	avgLatency := s.avgLatencyMs
	savings := s.costSavings
	s.mu.Unlock()

	stats := Stats{
		Requests:       s.requests.Load(),
		VolatileHits:   s.volatileHits.Load(),
		VolatileMisses: s.volatileMisses.Load(),
		DurableHits:    s.durableHits.Load(),
		DurableMisses:  s.durableMisses.Load(),
		Writes:         s.writes.Load(),
		AvgLatencyMs:   avgLatency,
		CostSavings:    savings,
	}
	if stats.Requests > 0 {
		stats.HitRate = float64(stats.VolatileHits+stats.DurableHits) / float64(stats.Requests)
	}

	if stats.Requests >= hitRateMinSamples && stats.HitRate < s.hitRateFloor {
		s.logger.Warn().
			Float64("hit_rate", stats.HitRate).
			Float64("floor", s.hitRateFloor).
			Int64("requests", stats.Requests).
			Msg("Cache hit rate below advisory floor")
	}

	return stats
}
