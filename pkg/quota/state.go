// Package quota implements per-subject request budgets for costly upstream
// lookups. Consumption is counted in the volatile tier under rate_counter
// keys partitioned by subject and wall-clock hour, so budgets reset on hour
// boundaries without explicit cleanup and are shared across engine instances
// pointing at the same Redis.
package quota

import (
	"time"
)

// warningFraction is the consumed share of the budget at which the tracker
// starts logging warnings.
const warningFraction = 0.8

// State is a point-in-time view of one subject's consumption within the
// current hour window.
type State struct {
	// Subject identifies whose budget this is (user ID, API key, tenant).
	Subject string `json:"subject"`

	// Scope names the guarded resource.
	Scope string `json:"scope"`

	// Used is the number of requests consumed in the window, including the
	// one just gated.
	Used int64 `json:"used"`

	// Limit is the per-window budget.
	Limit int64 `json:"limit"`

	// ResetAt is when the window rolls over to the next hour bucket.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the unused budget, never negative.
func (s *State) Remaining() int64 {
	remaining := s.Limit - s.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted returns true when the budget is spent and further requests must
// be blocked until the window resets.
func (s *State) Exhausted() bool {
	return s.Used > s.Limit
}

// NearLimit returns true when consumption has crossed the warning fraction
// but the budget is not yet spent.
func (s *State) NearLimit() bool {
	return !s.Exhausted() && float64(s.Used) >= float64(s.Limit)*warningFraction
}

// TimeUntilReset returns the duration until the window resets, 0 if the
// reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
