package tier

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested key is absent from the tier
	// (or present but expired).
	ErrNotFound = errors.New("tier: entry not found")
)

// Volatile is the contract for the fast, best-effort tier.
// Entries may vanish at any time (restart, eviction); the tier is never
// authoritative. TTL enforcement is tier-native.
type Volatile interface {
	// Get returns the raw stored bytes for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Record is the durable tier's materialized cache entry.
type Record struct {
	Key              string          `db:"cache_key" json:"key"`
	Class            string          `db:"class" json:"class"`
	UserID           string          `db:"user_id" json:"user_id,omitempty"`
	HourBucket       int64           `db:"hour_bucket" json:"hour_bucket,omitempty"`
	NormalizedParams json.RawMessage `db:"params_json" json:"normalized_params"`
	Payload          json.RawMessage `db:"payload" json:"payload"`
	Metadata         json.RawMessage `db:"metadata" json:"metadata"`
	ExpiresAt        time.Time       `json:"expires_at"`
	CreatedAt        time.Time       `json:"created_at"`
	LastAccessedAt   time.Time       `json:"last_accessed_at"`
	AccessCount      int64           `db:"access_count" json:"access_count"`
}

// Lookup identifies the record a durable read is after. Key alone resolves
// the primary lookup; Class, UserID, and HourBucket scope the
// params-fallback lookup so identical params never match a record from a
// different class, user, or hour partition.
type Lookup struct {
	Key              string
	Class            string
	UserID           string
	HourBucket       int64
	NormalizedParams json.RawMessage
}

// IsExpired returns true if the record's TTL has elapsed.
func (r *Record) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// Durable is the contract for the persistent, queryable tier.
// It is the authoritative store for durable-eligible classes; the volatile
// tier only ever holds copies.
type Durable interface {
	// FindByParams looks up a live record by q.Key, falling back to a
	// lookup by canonical normalized params within the same class and
	// user/hour partition. A hit bumps access_count and last_accessed_at.
	// Expired records are removed and reported as ErrNotFound.
	FindByParams(ctx context.Context, q Lookup) (*Record, error)

	// Upsert inserts or overwrites the record for rec.Key (last writer
	// wins). An overwrite preserves the existing access_count and
	// created_at; access_count starts at 1 on first insert.
	Upsert(ctx context.Context, rec Record) error

	// Delete removes the record stored under exactly key. Deleting an
	// absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes all records whose key matches the glob
	// pattern and returns the number removed.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)

	// PurgeExpired removes records whose TTL has elapsed and returns the
	// number removed. Intended for periodic housekeeping by the caller.
	PurgeExpired(ctx context.Context) (int64, error)
}
