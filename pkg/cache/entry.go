package cache

import (
	"encoding/json"
	"time"
)

// Priority marks how a write should be treated for durable storage.
type Priority string

const (
	// PriorityNormal defers durability to the class policy.
	PriorityNormal Priority = "normal"

	// PriorityHigh forces a durable write even for classes whose policy is
	// volatile-only.
	PriorityHigh Priority = "high"
)

// Source identifies which tier satisfied a read.
type Source string

const (
	// SourceVolatile means the volatile tier served the read.
	SourceVolatile Source = "volatile"

	// SourceDurable means the durable tier served the read.
	SourceDurable Source = "durable"

	// SourceUpstream means a single-flight fetch produced the data.
	SourceUpstream Source = "upstream"

	// SourceNone means a full miss.
	SourceNone Source = "none"
)

// Metadata is attached to every write: enough context to account for cost
// and to audit where an entry came from.
type Metadata struct {
	Class             Class     `json:"class"`
	Priority          Priority  `json:"priority"`
	EstimatedUnitCost float64   `json:"estimated_unit_cost"`
	PayloadBytes      int       `json:"payload_bytes"`
	WrittenAt         time.Time `json:"written_at"`
	Warmed            bool      `json:"warmed,omitempty"`
}

// Entry is the volatile-tier materialization of a cache entry. The volatile
// copy is never authoritative; for durable-eligible classes the durable
// tier's record is.
type Entry struct {
	// Key is the canonical key string the entry is stored under.
	Key string `json:"key"`

	// Class is the entry's data class.
	Class Class `json:"class"`

	// Payload is the opaque cached domain data.
	Payload json.RawMessage `json:"payload"`

	// TTLSeconds is the volatile TTL the entry was written with.
	TTLSeconds int64 `json:"ttl_seconds"`

	// CreatedAt is when the entry was written to this tier.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is updated on every hit.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount starts at 1 on creation and never decreases.
	AccessCount int64 `json:"access_count"`

	// EstimatedUnitCost is the per-class upstream cost constant captured at
	// write time, so accounting survives later policy changes.
	EstimatedUnitCost float64 `json:"estimated_unit_cost"`

	// Metadata carries the write context.
	Metadata Metadata `json:"metadata"`
}

// ExpiresAt returns when the volatile copy expires.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// IsExpired returns true if the entry's TTL has elapsed.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt())
}

// RemainingTTL returns the time until expiry, or 0 if already expired.
func (e *Entry) RemainingTTL() time.Duration {
	remaining := time.Until(e.ExpiresAt())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CumulativeCostSaved is the estimated upstream spend this entry has
// avoided: every access after the first would otherwise have been a
// provider call.
func (e *Entry) CumulativeCostSaved() float64 {
	if e.AccessCount <= 1 {
		return 0
	}
	return e.EstimatedUnitCost * float64(e.AccessCount-1)
}

// Touch records a hit: bumps the access count and refreshes the last-access
// timestamp.
func (e *Entry) Touch() {
	e.AccessCount++
	e.LastAccessedAt = time.Now()
}
