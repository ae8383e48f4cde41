package cache

import "time"

// Class is a named category of cached property data. The class governs TTL,
// durability eligibility, and the estimated upstream cost used for savings
// accounting.
type Class string

// Known data classes.
const (
	// ClassAddressVerification holds verified address records. The
	// underlying reality is stable; re-verification within a week is waste.
	ClassAddressVerification Class = "address_verification"

	// ClassListingPhotos holds listing image galleries. Galleries change
	// rarely once published.
	ClassListingPhotos Class = "listing_photos"

	// ClassOwnerLookup holds property owner lookups, the most expensive
	// upstream call. Ownership changes on the scale of months.
	ClassOwnerLookup Class = "owner_lookup"

	// ClassDiscovery holds discovery search results, which reflect
	// daily-changing aggregate market state.
	ClassDiscovery Class = "discovery"

	// ClassSearchHistory holds per-user recent search state. Ephemeral and
	// user-scoped; never worth durable storage.
	ClassSearchHistory Class = "search_history"

	// ClassRateCounter holds short-lived rate-limit counters.
	ClassRateCounter Class = "rate_counter"
)

// ClassPolicy is one row of the TTL policy table.
type ClassPolicy struct {
	// VolatileTTL is the desired volatile-tier TTL before the ceiling is
	// applied.
	VolatileTTL time.Duration

	// DurableTTL is the durable-tier TTL. Must be at least the volatile
	// ceiling so durable entries always outlive their volatile shadow.
	DurableTTL time.Duration

	// DurableEligible marks whether writes of this class reach the durable
	// tier. Ephemeral classes live only in the volatile tier.
	DurableEligible bool

	// EstimatedUnitCost is the estimated upstream provider cost (USD) of
	// one fetch of this class, used for cost-savings accounting.
	EstimatedUnitCost float64
}

// TTLPolicy maps data classes to their TTL, durability, and cost policy.
// The policy table is static; unknown classes fall back to a conservative
// default row.
type TTLPolicy struct {
	classes         map[Class]ClassPolicy
	fallback        ClassPolicy
	volatileCeiling time.Duration
}

// DefaultVolatileCeiling is the hard upper bound on volatile-tier TTLs.
// The volatile tier is sized for hot data, not archival; no class may pin
// an entry there longer than this regardless of its policy row.
const DefaultVolatileCeiling = 6 * time.Hour

// DefaultTTLPolicy returns the standard policy table for property data.
func DefaultTTLPolicy() *TTLPolicy {
	return &TTLPolicy{
		classes: map[Class]ClassPolicy{
			ClassAddressVerification: {
				VolatileTTL:       6 * time.Hour,
				DurableTTL:        7 * 24 * time.Hour,
				DurableEligible:   true,
				EstimatedUnitCost: 0.05,
			},
			ClassListingPhotos: {
				VolatileTTL:       6 * time.Hour,
				DurableTTL:        3 * 24 * time.Hour,
				DurableEligible:   true,
				EstimatedUnitCost: 0.10,
			},
			ClassOwnerLookup: {
				VolatileTTL:       6 * time.Hour,
				DurableTTL:        7 * 24 * time.Hour,
				DurableEligible:   true,
				EstimatedUnitCost: 0.35,
			},
			ClassDiscovery: {
				VolatileTTL:       1 * time.Hour,
				DurableTTL:        24 * time.Hour,
				DurableEligible:   true,
				EstimatedUnitCost: 0.25,
			},
			ClassSearchHistory: {
				VolatileTTL:       30 * time.Minute,
				DurableTTL:        DefaultVolatileCeiling,
				DurableEligible:   false,
				EstimatedUnitCost: 0.01,
			},
			ClassRateCounter: {
				VolatileTTL:       10 * time.Minute,
				DurableTTL:        DefaultVolatileCeiling,
				DurableEligible:   false,
				EstimatedUnitCost: 0,
			},
		},
		fallback: ClassPolicy{
			VolatileTTL:       1 * time.Hour,
			DurableTTL:        24 * time.Hour,
			DurableEligible:   false,
			EstimatedUnitCost: 0.05,
		},
		volatileCeiling: DefaultVolatileCeiling,
	}
}

// NewTTLPolicy builds a policy from a custom class table. Rows with a
// DurableTTL below the volatile ceiling are raised to it, preserving the
// invariant that durable entries outlive their volatile shadow.
func NewTTLPolicy(classes map[Class]ClassPolicy, fallback ClassPolicy, volatileCeiling time.Duration) *TTLPolicy {
	if volatileCeiling <= 0 {
		volatileCeiling = DefaultVolatileCeiling
	}
	normalized := make(map[Class]ClassPolicy, len(classes))
	for class, row := range classes {
		if row.DurableTTL < volatileCeiling {
			row.DurableTTL = volatileCeiling
		}
		normalized[class] = row
	}
	if fallback.DurableTTL < volatileCeiling {
		fallback.DurableTTL = volatileCeiling
	}
	return &TTLPolicy{
		classes:         normalized,
		fallback:        fallback,
		volatileCeiling: volatileCeiling,
	}
}

// For returns the policy row for class, falling back to the default row for
// unknown classes.
func (p *TTLPolicy) For(class Class) ClassPolicy {
	if row, ok := p.classes[class]; ok {
		return row
	}
	return p.fallback
}

// VolatileCeiling returns the hard volatile-tier TTL ceiling.
func (p *TTLPolicy) VolatileCeiling() time.Duration {
	return p.volatileCeiling
}

// VolatileTTL returns the effective volatile TTL for class: the requested
// duration if positive, otherwise the class row, clamped to the ceiling.
func (p *TTLPolicy) VolatileTTL(class Class, requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = p.For(class).VolatileTTL
	}
	if ttl > p.volatileCeiling {
		ttl = p.volatileCeiling
	}
	return ttl
}

// DurableTTL returns the effective durable TTL for class: the requested
// duration if positive, otherwise the class row.
func (p *TTLPolicy) DurableTTL(class Class, requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return p.For(class).DurableTTL
}
