// Package tier provides the storage tier contracts and implementations
// backing the propcache engine.
//
// Two tiers exist:
//
//   - Volatile: fast, low-latency, best-effort durability. Backed by Redis
//     in production (RedisVolatile) or an in-process map for tests and
//     development (MemoryVolatile). TTL enforcement is tier-native.
//
//   - Durable: persistent and queryable, the authoritative store for
//     durable-eligible data classes. Backed by SQLite (SQLiteDurable).
//     TTL expiry is enforced on read and via PurgeExpired housekeeping.
//
// Tier implementations return ErrNotFound for misses and expired entries;
// they never distinguish the two for callers. All other errors are
// connectivity or serialization faults which the cache manager absorbs and
// degrades to miss semantics.
package tier
