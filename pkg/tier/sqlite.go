package tier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key        TEXT PRIMARY KEY,
	class            TEXT NOT NULL,
	user_id          TEXT NOT NULL DEFAULT '',
	hour_bucket      INTEGER NOT NULL DEFAULT 0,
	params_json      TEXT NOT NULL,
	payload          TEXT NOT NULL,
	metadata         TEXT NOT NULL DEFAULT '{}',
	expires_at       INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_class   ON cache_entries(class);
CREATE INDEX IF NOT EXISTS idx_cache_entries_params  ON cache_entries(class, params_json);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// recordRow is the sqlx scan target; timestamps are stored as unix seconds.
type recordRow struct {
	Key            string `db:"cache_key"`
	Class          string `db:"class"`
	UserID         string `db:"user_id"`
	HourBucket     int64  `db:"hour_bucket"`
	ParamsJSON     string `db:"params_json"`
	Payload        string `db:"payload"`
	Metadata       string `db:"metadata"`
	ExpiresAt      int64  `db:"expires_at"`
	CreatedAt      int64  `db:"created_at"`
	LastAccessedAt int64  `db:"last_accessed_at"`
	AccessCount    int64  `db:"access_count"`
}

func (row recordRow) toRecord() *Record {
	return &Record{
		Key:              row.Key,
		Class:            row.Class,
		UserID:           row.UserID,
		HourBucket:       row.HourBucket,
		NormalizedParams: json.RawMessage(row.ParamsJSON),
		Payload:          json.RawMessage(row.Payload),
		Metadata:         json.RawMessage(row.Metadata),
		ExpiresAt:        time.Unix(row.ExpiresAt, 0),
		CreatedAt:        time.Unix(row.CreatedAt, 0),
		LastAccessedAt:   time.Unix(row.LastAccessedAt, 0),
		AccessCount:      row.AccessCount,
	}
}

// SQLiteDurable implements the Durable contract on a SQLite database.
// It is the authoritative store for durable-eligible classes. SQLite has
// no native TTL, so expiry is enforced on every read and reclaimed in bulk
// via PurgeExpired.
type SQLiteDurable struct {
	db *sqlx.DB
}

// NewSQLiteDurable opens (or creates) the SQLite database at path and
// ensures the cache schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteDurable(path string) (*SQLiteDurable, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteDurable{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteDurable) Close() error {
	return s.db.Close()
}

// FindByParams looks up a live record by q.Key, falling back to a lookup by
// canonical params JSON scoped to the same class and user/hour partition.
// A hit bumps access_count and last_accessed_at; an expired row is deleted
// and reported as ErrNotFound.
func (s *SQLiteDurable) FindByParams(ctx context.Context, q Lookup) (*Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM cache_entries WHERE cache_key = ?`, q.Key)
	if errors.Is(err, sql.ErrNoRows) && len(q.NormalizedParams) > 0 {
		// Key miss: the durable tier is queryable by the richer
		// normalized-params form as well. Class and partition columns keep
		// equal params from matching a foreign record.
		err = s.db.GetContext(ctx, &row,
			`SELECT * FROM cache_entries
			 WHERE class = ? AND params_json = ? AND user_id = ? AND hour_bucket = ?`,
			q.Class, string(q.NormalizedParams), q.UserID, q.HourBucket)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite select: %w", err)
	}

	now := time.Now()
	if now.Unix() >= row.ExpiresAt {
		_, _ = s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cache_key = ?`, row.Key)
		return nil, ErrNotFound
	}

	row.AccessCount++
	row.LastAccessedAt = now.Unix()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries
		 SET access_count = access_count + 1, last_accessed_at = ?
		 WHERE cache_key = ?`, row.LastAccessedAt, row.Key); err != nil {
		return nil, fmt.Errorf("sqlite touch: %w", err)
	}

	return row.toRecord(), nil
}

// Upsert inserts or overwrites the record for rec.Key. Overwrites keep the
// existing created_at and access_count (access counts never decrease).
func (s *SQLiteDurable) Upsert(ctx context.Context, rec Record) error {
	params := rec.NormalizedParams
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	meta := rec.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries
		 (cache_key, class, user_id, hour_bucket, params_json, payload, metadata,
		  expires_at, created_at, last_accessed_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   class            = excluded.class,
		   user_id          = excluded.user_id,
		   hour_bucket      = excluded.hour_bucket,
		   params_json      = excluded.params_json,
		   payload          = excluded.payload,
		   metadata         = excluded.metadata,
		   expires_at       = excluded.expires_at,
		   last_accessed_at = excluded.last_accessed_at`,
		rec.Key, rec.Class, rec.UserID, rec.HourBucket,
		string(params), string(rec.Payload), string(meta),
		rec.ExpiresAt.Unix(), rec.CreatedAt.Unix(), rec.LastAccessedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	return nil
}

// Delete removes the record stored under exactly key. No pattern matching:
// the key is compared literally, so caller-supplied fragments (user IDs,
// prefixes) containing glob metacharacters cannot over-delete.
func (s *SQLiteDurable) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// DeleteMatching removes all records whose key matches the glob pattern
// (SQLite GLOB syntax: * and ? wildcards) and returns the number removed.
func (s *SQLiteDurable) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key GLOB ?`, pattern)
	if err != nil {
		return 0, fmt.Errorf("sqlite delete matching: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite rows affected: %w", err)
	}
	return count, nil
}

// PurgeExpired removes records whose TTL has elapsed.
func (s *SQLiteDurable) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite rows affected: %w", err)
	}
	return count, nil
}

var _ Durable = (*SQLiteDurable)(nil)
