// Package cache implements a multi-tier, cost-aware cache engine for
// property data fetched from costly, rate-limited upstream providers.
//
// The engine sits between request handlers and the providers but never
// calls a provider itself: callers fetch on a miss and hand the payload
// back via Set. Components:
//
//   - Normalizer: canonicalizes request parameters into stable keys and
//     content hashes
//   - TTLPolicy: static data-class table of volatile/durable TTLs and
//     estimated unit costs
//   - StatsCollector: injected hit/miss/write/latency/cost accounting
//   - Manager: tiered get/set with durable-hit promotion and volatile
//     corruption self-healing
//   - Warmer: batch cache population with fixed-batch backpressure
//   - InvalidationManager: glob-pattern deletion against the durable tier
//
// # Basic Usage
//
//	volatile := tier.NewRedisVolatile(redisClient)
//	durable, err := tier.NewSQLiteDurable("propcache.db")
//	if err != nil {
//		return err
//	}
//	manager := cache.NewManager(volatile, durable, cache.ManagerOptions{
//		KeyPrefix: "prop",
//	})
//
//	res, err := manager.Get(ctx, cache.ClassDiscovery, params, cache.GetOptions{})
//	if err != nil {
//		return err // malformed params; the only propagating error
//	}
//	if !res.Cached {
//		payload := fetchFromProvider(ctx, params)
//		_ = manager.Set(ctx, cache.ClassDiscovery, params, payload, cache.SetOptions{})
//	}
//
// # Failure Semantics
//
// Only NormalizationError propagates to callers. Every tier I/O fault
// (connectivity, timeout, corruption) is absorbed: reads degrade to a miss,
// writes are logged and skipped. The engine is never less available than
// running with no cache at all; faults cost latency and accounting
// accuracy, never correctness.
//
// # Metrics
//
// The package exports Prometheus metrics alongside the injected
// StatsCollector:
//
//   - propcache_hits_total{tier} / propcache_misses_total{tier}
//   - propcache_writes_total{class}
//   - propcache_request_duration_seconds
//   - propcache_cost_saved_dollars_total
//   - propcache_tier_faults_total{tier,operation}
//   - propcache_promotions_total, propcache_invalidations_total
package cache
