package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/homescout/propcache/pkg/logging"
	"github.com/homescout/propcache/pkg/tier"
)

// DefaultDurableTimeout bounds every durable-tier query so a degraded store
// affects tail latency by at most this much before degrading to a miss.
const DefaultDurableTimeout = 5 * time.Second

// backgroundOpTimeout bounds fire-and-forget work (promotions, access-count
// touches) that outlives the caller's context.
const backgroundOpTimeout = 3 * time.Second

// GetOptions controls a single lookup.
type GetOptions struct {
	// UserID scopes the key to one user.
	UserID string

	// HourBucket requests hour-granularity key partitioning.
	HourBucket bool
}

// SetOptions controls a single write.
type SetOptions struct {
	// UserID scopes the key to one user.
	UserID string

	// HourBucket requests hour-granularity key partitioning.
	HourBucket bool

	// VolatileTTL overrides the class policy's volatile TTL when positive.
	// The volatile ceiling still applies.
	VolatileTTL time.Duration

	// DurableTTL overrides the class policy's durable TTL when positive.
	DurableTTL time.Duration

	// Priority set to PriorityHigh forces a durable write regardless of
	// class policy.
	Priority Priority

	// Warmed marks the write as produced by the cache warmer.
	Warmed bool
}

// Result is the outcome of a lookup.
type Result struct {
	// Cached is true when any tier (or a single-flight fetch) produced data.
	Cached bool

	// Source is the tier that satisfied the read.
	Source Source

	// Payload is the cached domain data, nil on a full miss.
	Payload json.RawMessage

	// Warmed is true when a durable hit triggered re-population of the
	// volatile tier.
	Warmed bool
}

// FetchFunc is the caller-supplied upstream fetch collaborator. The engine
// only ever invokes it inside GetOrFetch and the Warmer; plain Get/Set never
// reach upstream.
type FetchFunc func(ctx context.Context, params map[string]any) (any, error)

// ManagerOptions configures a Manager. Zero values take defaults.
type ManagerOptions struct {
	// Policy is the TTL policy table (default: DefaultTTLPolicy).
	Policy *TTLPolicy

	// Stats is the injected stats collector (default: a fresh collector
	// with the default hit-rate floor).
	Stats *StatsCollector

	// KeyPrefix namespaces all generated keys.
	KeyPrefix string

	// DurableTimeout bounds durable-tier queries (default:
	// DefaultDurableTimeout).
	DurableTimeout time.Duration
}

// Manager orchestrates lookups and writes across the volatile and durable
// tiers: tiered fallthrough with promotion, per-class TTL policy, selective
// durability, corruption self-healing, and hit/miss/cost accounting.
//
// The manager is safe for concurrent use. Tier faults are absorbed: a read
// fault degrades to a miss and a write fault is logged and skipped, so the
// engine is never less available than running without a cache. Only
// NormalizationError reaches callers.
type Manager struct {
	volatile   tier.Volatile
	durable    tier.Durable
	normalizer *Normalizer
	policy     *TTLPolicy
	stats      *StatsCollector

	durableTimeout time.Duration
	logger         zerolog.Logger
	flight         singleflight.Group
}

// NewManager creates a cache manager. The volatile tier is required; a nil
// durable tier yields a volatile-only engine (every durable lookup is a
// miss, durable writes are skipped).
func NewManager(volatile tier.Volatile, durable tier.Durable, opts ManagerOptions) *Manager {
	if volatile == nil {
		panic("volatile tier cannot be nil")
	}
	if opts.Policy == nil {
		opts.Policy = DefaultTTLPolicy()
	}
	if opts.Stats == nil {
		opts.Stats = NewStatsCollector(DefaultHitRateFloor)
	}
	if opts.DurableTimeout <= 0 {
		opts.DurableTimeout = DefaultDurableTimeout
	}
	return &Manager{
		volatile:       volatile,
		durable:        durable,
		normalizer:     NewNormalizer(opts.KeyPrefix),
		policy:         opts.Policy,
		stats:          opts.Stats,
		durableTimeout: opts.DurableTimeout,
		logger:         logging.NewLogger("cache-manager"),
	}
}

// Stats returns the injected stats collector.
func (m *Manager) Stats() *StatsCollector {
	return m.stats
}

// Policy returns the TTL policy table.
func (m *Manager) Policy() *TTLPolicy {
	return m.policy
}

// DurableTier exposes the durable tier handle for collaborators such as the
// InvalidationManager. Nil for volatile-only engines.
func (m *Manager) DurableTier() tier.Durable {
	return m.durable
}

// Get looks up class+params across the tiers.
//
// Volatile hit: returns the payload with Source=volatile. A corrupted
// volatile value is deleted and the lookup falls through to the durable
// tier (self-healing). Durable hit: returns Source=durable and
// asynchronously re-populates the volatile tier. Full miss: Cached=false;
// the caller owns the upstream fetch and the subsequent Set.
func (m *Manager) Get(ctx context.Context, class Class, params map[string]any, opts GetOptions) (Result, error) {
	key, err := m.normalizer.GenerateKey(class, params, KeyOptions{
		UserID:     opts.UserID,
		HourBucket: opts.HourBucket,
	})
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	defer func() {
		m.stats.RecordRequestLatency(time.Since(start))
	}()

	keyStr := key.String()

	// Volatile tier first.
	entry, found := m.readVolatile(ctx, keyStr)
	if found {
		cost := entry.EstimatedUnitCost
		m.stats.RecordVolatileHit(cost)
		go m.touchVolatile(*entry)

		m.logger.Debug().
			Str("key", keyStr).
			Str("class", string(class)).
			Str("source", string(SourceVolatile)).
			Msg("Cache hit")
		return Result{Cached: true, Source: SourceVolatile, Payload: entry.Payload}, nil
	}
	m.stats.RecordVolatileMiss()

	// Durable tier fallthrough.
	record := m.readDurable(ctx, key)
	if record != nil {
		policy := m.policy.For(class)
		m.stats.RecordDurableHit(policy.EstimatedUnitCost)

		warmTTL := m.policy.VolatileTTL(class, 0)
		go m.promote(*record, warmTTL)

		m.logger.Debug().
			Str("key", keyStr).
			Str("class", string(class)).
			Str("source", string(SourceDurable)).
			Dur("warm_ttl", warmTTL).
			Msg("Cache hit (promoting to volatile)")
		return Result{Cached: true, Source: SourceDurable, Payload: record.Payload, Warmed: true}, nil
	}
	m.stats.RecordDurableMiss()

	m.logger.Debug().
		Str("key", keyStr).
		Str("class", string(class)).
		Msg("Cache miss")
	return Result{Cached: false, Source: SourceNone}, nil
}

// Set writes payload for class+params. The volatile tier always receives a
// copy; the durable tier only when the class is durable-eligible or the
// write carries PriorityHigh. Tier faults are logged and skipped.
func (m *Manager) Set(ctx context.Context, class Class, params map[string]any, payload any, opts SetOptions) error {
	key, err := m.normalizer.GenerateKey(class, params, KeyOptions{
		UserID:     opts.UserID,
		HourBucket: opts.HourBucket,
	})
	if err != nil {
		return err
	}

	payloadJSON, err := marshalPayload(class, payload)
	if err != nil {
		return err
	}

	policy := m.policy.For(class)
	volatileTTL := m.policy.VolatileTTL(class, opts.VolatileTTL)
	durableTTL := m.policy.DurableTTL(class, opts.DurableTTL)

	priority := opts.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	now := time.Now()
	keyStr := key.String()
	meta := Metadata{
		Class:             class,
		Priority:          priority,
		EstimatedUnitCost: policy.EstimatedUnitCost,
		PayloadBytes:      len(payloadJSON),
		WrittenAt:         now,
		Warmed:            opts.Warmed,
	}

	entry := Entry{
		Key:               keyStr,
		Class:             class,
		Payload:           payloadJSON,
		TTLSeconds:        int64(volatileTTL.Seconds()),
		CreatedAt:         now,
		LastAccessedAt:    now,
		AccessCount:       1,
		EstimatedUnitCost: policy.EstimatedUnitCost,
		Metadata:          meta,
	}
	m.writeVolatile(ctx, entry, volatileTTL)

	if m.durable != nil && (policy.DurableEligible || priority == PriorityHigh) {
		metaJSON, merr := json.Marshal(meta)
		if merr != nil {
			metaJSON = []byte("{}")
		}
		record := tier.Record{
			Key:              keyStr,
			Class:            string(class),
			UserID:           key.UserID,
			HourBucket:       key.HourBucket,
			NormalizedParams: key.CanonicalParams(),
			Payload:          payloadJSON,
			Metadata:         metaJSON,
			ExpiresAt:        now.Add(durableTTL),
			CreatedAt:        now,
			LastAccessedAt:   now,
			AccessCount:      1,
		}
		dctx, cancel := context.WithTimeout(ctx, m.durableTimeout)
		if uerr := m.durable.Upsert(dctx, record); uerr != nil {
			tierFaults.WithLabelValues(string(FaultTierDurable), "set").Inc()
			m.logger.Warn().
				Err(uerr).
				Str("key", keyStr).
				Msg("Durable write failed, continuing")
		}
		cancel()
	}

	m.stats.RecordWrite(class)
	return nil
}

// Delete removes the exact entry for class+params from both tiers.
func (m *Manager) Delete(ctx context.Context, class Class, params map[string]any, opts GetOptions) error {
	key, err := m.normalizer.GenerateKey(class, params, KeyOptions{
		UserID:     opts.UserID,
		HourBucket: opts.HourBucket,
	})
	if err != nil {
		return err
	}
	keyStr := key.String()

	if derr := m.volatile.Delete(ctx, keyStr); derr != nil {
		tierFaults.WithLabelValues(string(FaultTierVolatile), "delete").Inc()
		m.logger.Warn().Err(derr).Str("key", keyStr).Msg("Volatile delete failed, continuing")
	}
	if m.durable != nil {
		dctx, cancel := context.WithTimeout(ctx, m.durableTimeout)
		defer cancel()
		if derr := m.durable.Delete(dctx, keyStr); derr != nil {
			tierFaults.WithLabelValues(string(FaultTierDurable), "delete").Inc()
			m.logger.Warn().Err(derr).Str("key", keyStr).Msg("Durable delete failed, continuing")
		}
	}
	return nil
}

// GetOrFetch is Get with single-flight miss handling: on a full miss the
// fetch function runs at most once per key across concurrent callers, its
// result is written through Set, and every waiter shares the outcome.
// Fetch errors are the caller's own and are returned unwrapped.
func (m *Manager) GetOrFetch(ctx context.Context, class Class, params map[string]any, opts GetOptions, fetch FetchFunc) (Result, error) {
	res, err := m.Get(ctx, class, params, opts)
	if err != nil || res.Cached {
		return res, err
	}

	key, err := m.normalizer.GenerateKey(class, params, KeyOptions{
		UserID:     opts.UserID,
		HourBucket: opts.HourBucket,
	})
	if err != nil {
		return Result{}, err
	}

	payload, err, _ := m.flight.Do(key.String(), func() (any, error) {
		data, ferr := fetch(ctx, params)
		if ferr != nil {
			return nil, ferr
		}
		if serr := m.Set(ctx, class, params, data, SetOptions{
			UserID:     opts.UserID,
			HourBucket: opts.HourBucket,
		}); serr != nil {
			return nil, serr
		}
		return marshalPayload(class, data)
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Cached:  false,
		Source:  SourceUpstream,
		Payload: payload.(json.RawMessage),
	}, nil
}

// readVolatile reads and deserializes the volatile entry for key. Faults
// degrade to a miss; a corrupted value is deleted so the durable tier can
// heal it on the next write-through.
func (m *Manager) readVolatile(ctx context.Context, key string) (*Entry, bool) {
	data, err := m.volatile.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, tier.ErrNotFound) {
			tierFaults.WithLabelValues(string(FaultTierVolatile), "get").Inc()
			m.logger.Warn().Err(err).Str("key", key).Msg("Volatile read failed, treating as miss")
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		tierFaults.WithLabelValues(string(FaultTierVolatile), "get").Inc()
		m.logger.Warn().
			Err(err).
			Str("key", key).
			Msg("Corrupted volatile entry, deleting and falling through")
		if derr := m.volatile.Delete(ctx, key); derr != nil {
			m.logger.Warn().Err(derr).Str("key", key).Msg("Failed to delete corrupted entry")
		}
		return nil, false
	}
	return &entry, true
}

// readDurable queries the durable tier under the configured timeout.
// Faults and timeouts degrade to a miss.
func (m *Manager) readDurable(ctx context.Context, key Key) *tier.Record {
	if m.durable == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, m.durableTimeout)
	defer cancel()

	keyStr := key.String()
	record, err := m.durable.FindByParams(dctx, tier.Lookup{
		Key:              keyStr,
		Class:            string(key.Class),
		UserID:           key.UserID,
		HourBucket:       key.HourBucket,
		NormalizedParams: key.CanonicalParams(),
	})
	if err != nil {
		if !errors.Is(err, tier.ErrNotFound) {
			tierFaults.WithLabelValues(string(FaultTierDurable), "get").Inc()
			m.logger.Warn().Err(err).Str("key", keyStr).Msg("Durable read failed, treating as miss")
		}
		return nil
	}
	return record
}

// promote re-populates the volatile tier from a durable record. Runs in the
// background; the read that triggered it has already returned.
func (m *Manager) promote(record tier.Record, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
	defer cancel()

	var meta Metadata
	_ = json.Unmarshal(record.Metadata, &meta)

	now := time.Now()
	entry := Entry{
		Key:               record.Key,
		Class:             Class(record.Class),
		Payload:           record.Payload,
		TTLSeconds:        int64(ttl.Seconds()),
		CreatedAt:         now,
		LastAccessedAt:    now,
		AccessCount:       record.AccessCount,
		EstimatedUnitCost: meta.EstimatedUnitCost,
		Metadata:          meta,
	}
	if entry.EstimatedUnitCost == 0 {
		entry.EstimatedUnitCost = m.policy.For(entry.Class).EstimatedUnitCost
	}

	m.writeVolatile(ctx, entry, ttl)
	promotions.Inc()
}

// touchVolatile rewrites a hit entry with a bumped access count, preserving
// its remaining TTL. Best-effort: a lost touch only understates accounting.
func (m *Manager) touchVolatile(entry Entry) {
	remaining := entry.RemainingTTL()
	if remaining <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
	defer cancel()

	entry.Touch()
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := m.volatile.Set(ctx, entry.Key, data, remaining); err != nil {
		tierFaults.WithLabelValues(string(FaultTierVolatile), "set").Inc()
		m.logger.Warn().Err(err).Str("key", entry.Key).Msg("Volatile touch failed")
	}
}

// writeVolatile serializes and stores an entry. Faults are logged and
// skipped.
func (m *Manager) writeVolatile(ctx context.Context, entry Entry, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err != nil {
		tierFaults.WithLabelValues(string(FaultTierVolatile), "set").Inc()
		m.logger.Warn().Err(err).Str("key", entry.Key).Msg("Entry serialization failed")
		return
	}
	if err := m.volatile.Set(ctx, entry.Key, data, ttl); err != nil {
		tierFaults.WithLabelValues(string(FaultTierVolatile), "set").Inc()
		m.logger.Warn().Err(err).Str("key", entry.Key).Msg("Volatile write failed, continuing")
	}
}

// marshalPayload serializes the caller's payload. Raw JSON passes through
// untouched; anything unserializable is reported as a NormalizationError
// because it is a caller-input defect, not a tier fault.
func marshalPayload(class Class, payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		if json.Valid(p) {
			return json.RawMessage(p), nil
		}
		return nil, newNormalizationError(class, "payload bytes are not valid JSON", nil)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, newNormalizationError(class, fmt.Sprintf("payload not serializable (%T)", payload), err)
		}
		return json.RawMessage(data), nil
	}
}
