package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homescout/propcache/pkg/logging"
)

// WarmerConfig holds batch warming configuration.
type WarmerConfig struct {
	// BatchSize is the number of param sets processed concurrently.
	// Batches run sequentially to respect upstream rate limits.
	BatchSize int

	// BatchDelay is the fixed pause between batches.
	BatchDelay time.Duration
}

// DefaultWarmerConfig returns safe defaults for rate-limited property
// providers.
func DefaultWarmerConfig() WarmerConfig {
	return WarmerConfig{
		BatchSize:  10,
		BatchDelay: 1 * time.Second,
	}
}

// WarmOutcome classifies the result of warming one param set.
type WarmOutcome string

const (
	// OutcomeWarmed means the entry was fetched upstream and cached.
	OutcomeWarmed WarmOutcome = "warmed"

	// OutcomeAlreadyCached means a tier already held the entry.
	OutcomeAlreadyCached WarmOutcome = "already_cached"

	// OutcomeError means the fetch or write failed for this item.
	OutcomeError WarmOutcome = "error"
)

// WarmItemResult is the per-item outcome of a warming run.
type WarmItemResult struct {
	Index   int         `json:"index"`
	Outcome WarmOutcome `json:"outcome"`
	Source  Source      `json:"source,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WarmResult summarizes a warming run.
type WarmResult struct {
	Total         int              `json:"total"`
	Warmed        int              `json:"warmed"`
	AlreadyCached int              `json:"already_cached"`
	Errors        int              `json:"errors"`
	Items         []WarmItemResult `json:"items"`
}

// Warmer batch-populates the cache from an injected fetch function. It is
// the only engine component that imposes deliberate backpressure: a fixed
// batch size bounds concurrency toward the upstream provider, and a fixed
// delay separates batches.
type Warmer struct {
	manager *Manager
	config  WarmerConfig
	logger  zerolog.Logger
}

// NewWarmer creates a warmer driving the given manager. Non-positive config
// fields take defaults.
func NewWarmer(manager *Manager, config WarmerConfig) *Warmer {
	if manager == nil {
		panic("manager cannot be nil")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWarmerConfig().BatchSize
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = DefaultWarmerConfig().BatchDelay
	}
	return &Warmer{
		manager: manager,
		config:  config,
		logger:  logging.NewLogger("cache-warmer"),
	}
}

// Warm processes paramsList in fixed-size batches: concurrent within a
// batch, sequential between batches with the configured delay. Each item is
// checked against the cache first; only misses invoke fetch. Per-item
// failures are recorded and never abort the run. Returns early with partial
// results if ctx is cancelled between batches.
func (w *Warmer) Warm(ctx context.Context, class Class, paramsList []map[string]any, fetch FetchFunc) (WarmResult, error) {
	jobID := uuid.NewString()
	start := time.Now()

	result := WarmResult{
		Total: len(paramsList),
		Items: make([]WarmItemResult, len(paramsList)),
	}

	w.logger.Info().
		Str("job_id", jobID).
		Str("class", string(class)).
		Int("total", result.Total).
		Int("batch_size", w.config.BatchSize).
		Msg("Starting cache warming")

	for batchStart := 0; batchStart < len(paramsList); batchStart += w.config.BatchSize {
		batchEnd := batchStart + w.config.BatchSize
		if batchEnd > len(paramsList) {
			batchEnd = len(paramsList)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				// Items write to distinct indices, no mutex needed
				result.Items[idx] = w.warmOne(ctx, class, idx, paramsList[idx], fetch)
			}(i)
		}
		wg.Wait()

		if batchEnd < len(paramsList) {
			select {
			case <-ctx.Done():
				w.tally(&result)
				w.logger.Warn().
					Str("job_id", jobID).
					Int("processed", batchEnd).
					Int("total", result.Total).
					Msg("Warming cancelled, returning partial results")
				return result, ctx.Err()
			case <-time.After(w.config.BatchDelay):
			}
		}
	}

	w.tally(&result)
	w.logger.Info().
		Str("job_id", jobID).
		Str("class", string(class)).
		Int("warmed", result.Warmed).
		Int("already_cached", result.AlreadyCached).
		Int("errors", result.Errors).
		Dur("duration", time.Since(start)).
		Msg("Cache warming complete")

	return result, nil
}

// warmOne warms a single param set.
func (w *Warmer) warmOne(ctx context.Context, class Class, idx int, params map[string]any, fetch FetchFunc) WarmItemResult {
	res, err := w.manager.Get(ctx, class, params, GetOptions{})
	if err != nil {
		return WarmItemResult{Index: idx, Outcome: OutcomeError, Error: err.Error()}
	}
	if res.Cached {
		return WarmItemResult{Index: idx, Outcome: OutcomeAlreadyCached, Source: res.Source}
	}

	payload, err := fetch(ctx, params)
	if err != nil {
		w.logger.Warn().
			Err(err).
			Int("index", idx).
			Str("class", string(class)).
			Msg("Upstream fetch failed for warm item")
		return WarmItemResult{Index: idx, Outcome: OutcomeError, Error: err.Error()}
	}

	if err := w.manager.Set(ctx, class, params, payload, SetOptions{Warmed: true}); err != nil {
		return WarmItemResult{Index: idx, Outcome: OutcomeError, Error: err.Error()}
	}
	return WarmItemResult{Index: idx, Outcome: OutcomeWarmed}
}

// tally folds the per-item outcomes into the run counters.
func (w *Warmer) tally(result *WarmResult) {
	result.Warmed = 0
	result.AlreadyCached = 0
	result.Errors = 0
	for _, item := range result.Items {
		switch item.Outcome {
		case OutcomeWarmed:
			result.Warmed++
		case OutcomeAlreadyCached:
			result.AlreadyCached++
		case OutcomeError:
			result.Errors++
		}
	}
}
