package tier

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryVolatile is an in-process Volatile implementation backed by a
// mutex-guarded map. It exists for tests and single-process development
// setups; production deployments use RedisVolatile. Expired entries are
// evicted lazily on read.
type MemoryVolatile struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryVolatile creates an empty in-memory volatile tier.
func NewMemoryVolatile() *MemoryVolatile {
	return &MemoryVolatile{
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the stored bytes for key, or ErrNotFound.
func (m *MemoryVolatile) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under write lock; a concurrent Set may have refreshed it
		if cur, ok := m.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores value under key with the given TTL.
func (m *MemoryVolatile) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *MemoryVolatile) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Incr increments the counter at key and returns the new value. The TTL is
// attached on the first increment only; an expired counter restarts at 1.
func (m *MemoryVolatile) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, ok := m.entries[key]; ok && now.Before(entry.expiresAt) {
		n, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory incr: key %q holds non-counter value", key)
		}
		n++
		entry.value = []byte(strconv.FormatInt(n, 10))
		m.entries[key] = entry
		return n, nil
	}

	m.entries[key] = memoryEntry{
		value:     []byte("1"),
		expiresAt: now.Add(ttl),
	}
	return 1, nil
}

// Len returns the number of live entries. Test helper.
func (m *MemoryVolatile) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ Volatile = (*MemoryVolatile)(nil)
