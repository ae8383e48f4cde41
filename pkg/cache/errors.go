package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine.
var (
	// ErrNormalization is the base error for malformed request descriptors.
	// It is the only error class that propagates to callers; every tier
	// fault is absorbed and degraded to miss semantics.
	ErrNormalization = errors.New("normalization failed")
)

// NormalizationError reports a request descriptor that could not be
// canonicalized into a cache key. It wraps ErrNormalization so callers can
// match with errors.Is.
type NormalizationError struct {
	Class  Class
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %q: %s: %v", e.Class, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize %q: %s", e.Class, e.Reason)
}

// Unwrap supports errors.Is/As matching against ErrNormalization and any
// wrapped cause.
func (e *NormalizationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNormalization, e.Err}
	}
	return []error{ErrNormalization}
}

// newNormalizationError builds a NormalizationError for the given class.
func newNormalizationError(class Class, reason string, err error) *NormalizationError {
	return &NormalizationError{Class: class, Reason: reason, Err: err}
}

// FaultTier labels which tier produced an absorbed I/O fault.
// Used for logging and metrics only; tier faults never surface to callers.
type FaultTier string

const (
	// FaultTierVolatile marks faults from the volatile (Redis/in-memory) tier.
	FaultTierVolatile FaultTier = "volatile"

	// FaultTierDurable marks faults from the durable (SQLite) tier.
	FaultTierDurable FaultTier = "durable"
)
