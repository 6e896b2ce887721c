// Package cache implements the SQLite-backed lookup cache that bounds network
// cost across and within runs.
//
// # Key and Policy
//
// Key = normalized (artist, title) fingerprint + provider id + query kind.
// Entries are time-bounded: an entry is fresh within the configured TTL and
// expired afterwards. Expired rows are purged opportunistically; the table
// persists across runs, so a re-run of the same playlist within the TTL makes
// no network calls.
//
// # Staleness
//
// An expired entry may still be served as a fallback when the owning
// provider's circuit is open. Such entries are returned with Stale=true so
// the reconciliation engine can down-weight them. Negative results (provider
// answered NotFound) are cached too, so known-missing tracks are not
// re-queried.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"genrify/internal/providers"
)

const schema = `
CREATE TABLE IF NOT EXISTS lookup_cache (
	provider    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	payload     BLOB,
	not_found   INTEGER NOT NULL DEFAULT 0,
	fetched_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (provider, kind, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_fetched_at ON lookup_cache (fetched_at);
`

// Entry is a cached provider result.
type Entry struct {
	Provider    string
	Kind        providers.QueryKind
	Fingerprint string
	Payload     []byte
	NotFound    bool
	Stale       bool
	FetchedAt   time.Time
}

// Tags decodes the entry's payload as a RawTagSet.
func (e *Entry) Tags() (providers.RawTagSet, error) {
	if e.NotFound || len(e.Payload) == 0 {
		return nil, nil
	}
	var tags providers.RawTagSet
	if err := json.Unmarshal(e.Payload, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode cached tags: %w", err)
	}
	return tags, nil
}

// Features decodes the entry's payload as a FeatureRecord.
func (e *Entry) Features() (*providers.FeatureRecord, error) {
	if e.NotFound || len(e.Payload) == 0 {
		return nil, nil
	}
	var record providers.FeatureRecord
	if err := json.Unmarshal(e.Payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode cached features: %w", err)
	}
	return &record, nil
}

// Analysis decodes the entry's payload as an AnalysisRecord.
func (e *Entry) Analysis() (*providers.AnalysisRecord, error) {
	if e.NotFound || len(e.Payload) == 0 {
		return nil, nil
	}
	var record providers.AnalysisRecord
	if err := json.Unmarshal(e.Payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode cached analysis: %w", err)
	}
	return &record, nil
}

// Store is the shared, concurrency-safe lookup cache. All methods are safe
// for concurrent use; sqlite serializes writers and the store holds no
// mutable state of its own.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates the cache schema if needed and returns a Store with the
// given TTL.
func NewStore(db *sql.DB, ttl time.Duration, logger *log.Logger) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %v", ttl)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Store{db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

// Get returns the cached entry for the key.
//
// Within the TTL the entry is returned as fresh. After expiry the entry is a
// miss unless allowStale is set, in which case it is returned flagged stale.
func (s *Store) Get(ctx context.Context, provider string, kind providers.QueryKind, fingerprint string, allowStale bool) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, not_found, fetched_at FROM lookup_cache WHERE provider = ? AND kind = ? AND fingerprint = ?`,
		provider, string(kind), fingerprint)

	var entry = Entry{Provider: provider, Kind: kind, Fingerprint: fingerprint}
	var notFound int
	if err := row.Scan(&entry.Payload, &notFound, &entry.FetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}
	entry.NotFound = notFound != 0

	age := s.now().Sub(entry.FetchedAt)
	if age <= s.ttl {
		return &entry, true, nil
	}
	if allowStale {
		entry.Stale = true
		if s.logger != nil {
			s.logger.Debug("serving stale cache entry", "provider", provider, "kind", kind, "age", age)
		}
		return &entry, true, nil
	}
	return nil, false, nil
}

// Put writes a provider result (or an explicit NotFound) back to the cache.
// Writes are last-writer-wins; concurrent fetches of the same key converge on
// the same value.
func (s *Store) Put(ctx context.Context, provider string, kind providers.QueryKind, fingerprint string, payload any, notFound bool) error {
	var blob []byte
	if payload != nil && !notFound {
		var err error
		blob, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode cache payload: %w", err)
		}
	}

	flag := 0
	if notFound {
		flag = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (provider, kind, fingerprint, payload, not_found, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, kind, fingerprint)
		 DO UPDATE SET payload = excluded.payload, not_found = excluded.not_found, fetched_at = excluded.fetched_at`,
		provider, string(kind), fingerprint, blob, flag, s.now())
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows past the TTL and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE fetched_at < ?`, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Len returns the number of cached entries. Used by diagnostics output.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookup_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count failed: %w", err)
	}
	return n, nil
}
