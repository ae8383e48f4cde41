package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/homescout/propcache/pkg/logging"
	"github.com/homescout/propcache/pkg/tier"
)

// InvalidationManager performs pattern-based deletion against the durable
// tier. Patterns use glob syntax (* and ? wildcards) matched against the
// full key string.
//
// Known limitation: pattern deletion against the volatile tier is not
// supported. Most volatile backends lack a cheap pattern scan (Redis SCAN
// walks the whole keyspace), so stale volatile shadows simply age out at
// their TTL, which the volatile ceiling bounds at a few hours. A production
// deployment wanting targeted volatile invalidation should maintain a
// secondary keys-by-class index rather than scanning.
type InvalidationManager struct {
	durable tier.Durable
	logger  zerolog.Logger
}

// NewInvalidationManager creates an invalidation manager over the durable
// tier handle, typically obtained via Manager.DurableTier.
func NewInvalidationManager(durable tier.Durable) *InvalidationManager {
	if durable == nil {
		panic("durable tier cannot be nil")
	}
	return &InvalidationManager{
		durable: durable,
		logger:  logging.NewLogger("invalidation"),
	}
}

// Invalidate deletes durable entries whose key matches the glob pattern and
// returns the number removed.
func (im *InvalidationManager) Invalidate(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, fmt.Errorf("invalidation pattern cannot be empty")
	}

	count, err := im.durable.DeleteMatching(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate %q: %w", pattern, err)
	}

	invalidations.Add(float64(count))
	im.logger.Info().
		Str("pattern", pattern).
		Int64("deleted", count).
		Msg("Durable entries invalidated")
	return count, nil
}

// InvalidateClass deletes every durable entry of one data class. The prefix
// must match the manager's key prefix ("" when none).
func (im *InvalidationManager) InvalidateClass(ctx context.Context, prefix string, class Class) (int64, error) {
	pattern := fmt.Sprintf("%s:*", class)
	if prefix != "" {
		pattern = fmt.Sprintf("%s:%s:*", prefix, class)
	}
	return im.Invalidate(ctx, pattern)
}

// PurgeExpired reclaims durable rows whose TTL has elapsed. Intended to be
// driven periodically by the caller's scheduler.
func (im *InvalidationManager) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := im.durable.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	if count > 0 {
		im.logger.Info().Int64("purged", count).Msg("Expired durable entries purged")
	}
	return count, nil
}
