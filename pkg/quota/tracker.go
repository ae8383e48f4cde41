package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/homescout/propcache/pkg/cache"
	"github.com/homescout/propcache/pkg/logging"
)

// Prometheus metrics for quota gating.
var (
	quotaBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propcache_quota_blocks_total",
		Help: "Total number of requests blocked by an exhausted budget",
	}, []string{"scope"})

	quotaWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propcache_quota_warnings_total",
		Help: "Total number of requests allowed while near the budget limit",
	}, []string{"scope"})
)

// windowSeconds is the budget window granularity. It matches the hour-bucket
// granularity of rate_counter keys.
const windowSeconds = 3600

// Counter is the increment capability the tracker needs from a volatile
// backend. Both tier implementations provide it.
type Counter interface {
	// Incr atomically increments the counter at key and returns the new
	// value. The TTL applies from the first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Config configures a Tracker.
type Config struct {
	// Scope names the guarded resource, e.g. "owner_lookup".
	Scope string

	// PerHour is the allowed number of requests per subject per hour.
	PerHour int64

	// KeyPrefix namespaces the counter keys. Use the same prefix as the
	// cache manager so counters live alongside the cache keyspace.
	KeyPrefix string
}

// Tracker gates requests against per-subject hourly budgets.
//
// Gating is advisory and fails open: when the counter backend is
// unreachable the request is allowed and the fault logged, mirroring the
// engine's tier fault semantics. A budget must never make the system less
// available than running without one.
type Tracker struct {
	counter    Counter
	normalizer *cache.Normalizer
	cfg        Config
	logger     zerolog.Logger
}

// NewTracker creates a quota tracker.
func NewTracker(counter Counter, cfg Config) *Tracker {
	if counter == nil {
		panic("counter backend cannot be nil")
	}
	if cfg.Scope == "" {
		panic("quota scope cannot be empty")
	}
	if cfg.PerHour <= 0 {
		panic("quota must be positive")
	}
	return &Tracker{
		counter:    counter,
		normalizer: cache.NewNormalizer(cfg.KeyPrefix),
		cfg:        cfg,
		logger:     logging.NewLogger("quota"),
	}
}

// Allow consumes one unit of subject's budget and reports whether the
// request may proceed. The returned state reflects consumption including
// this request.
func (t *Tracker) Allow(ctx context.Context, subject string) (bool, *State, error) {
	key, err := t.normalizer.GenerateKey(cache.ClassRateCounter,
		map[string]any{"scope": t.cfg.Scope},
		cache.KeyOptions{UserID: subject, HourBucket: true})
	if err != nil {
		return false, nil, fmt.Errorf("quota key: %w", err)
	}

	resetAt := windowReset(time.Now())
	used, err := t.counter.Incr(ctx, key.String(), time.Until(resetAt))
	if err != nil {
		// Fail open: an unreachable counter backend must not block traffic.
		t.logger.Warn().
			Err(err).
			Str("scope", t.cfg.Scope).
			Str("subject", subject).
			Msg("Quota counter unavailable, allowing request")
		return true, nil, nil
	}

	state := &State{
		Subject: subject,
		Scope:   t.cfg.Scope,
		Used:    used,
		Limit:   t.cfg.PerHour,
		ResetAt: resetAt,
	}

	if state.Exhausted() {
		quotaBlocks.WithLabelValues(t.cfg.Scope).Inc()
		t.logger.Warn().
			Str("scope", t.cfg.Scope).
			Str("subject", subject).
			Int64("used", state.Used).
			Int64("limit", state.Limit).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("Budget exhausted, blocking request")
		return false, state, nil
	}

	if state.NearLimit() {
		quotaWarnings.WithLabelValues(t.cfg.Scope).Inc()
		t.logger.Warn().
			Str("scope", t.cfg.Scope).
			Str("subject", subject).
			Int64("remaining", state.Remaining()).
			Msg("Budget nearly exhausted")
	}

	return true, state, nil
}

// windowReset returns the start of the next hour window after now.
func windowReset(now time.Time) time.Time {
	bucket := now.Unix() / windowSeconds
	return time.Unix((bucket+1)*windowSeconds, 0)
}
