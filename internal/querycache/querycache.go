// Package querycache owns the persisted slot-keyed query cache. The cache
// key is the sole identity of an entry; lookup touches usage metadata
// atomically and upsert is idempotent per key.
package querycache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks a cache miss.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached SQL template plus its usage metadata.
type Entry struct {
	Key         string         `json:"cache_key"`
	SQLTemplate string         `json:"sql_template"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUsed    time.Time      `json:"last_used"`
	UseCount    int64          `json:"use_count"`
	CreatedBy   string         `json:"created_by"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes the cache table for the admin surface.
type Stats struct {
	Entries    int64   `json:"entries"`
	TotalUses  int64   `json:"total_uses"`
	AverageUse float64 `json:"average_uses"`
	Top        []Entry `json:"top_entries,omitempty"`
}

// Store is the persistence contract for cache entries.
type Store interface {
	// Lookup returns the entry for key and, as one atomic operation,
	// increments use_count and refreshes last_used. Returns ErrNotFound on
	// a miss.
	Lookup(ctx context.Context, key string) (Entry, error)
	// Upsert creates the entry with use_count 1, or replaces its template
	// and metadata while refreshing last_used and preserving use_count.
	Upsert(ctx context.Context, key, sqlTemplate, createdBy string, metadata map[string]any) error
	// Delete removes the entry for key, reporting whether a row existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns entries ordered by most recent use.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Stats summarizes entry counts and usage.
	Stats(ctx context.Context, topN int) (Stats, error)
	// StaleEntries returns up to limit entries whose last_used is at or
	// before cutoff, oldest first.
	StaleEntries(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error)
	// DeleteKeys removes the given keys and reports how many rows went.
	DeleteKeys(ctx context.Context, keys []string) (int64, error)
}

// IsStale reports whether entry's last use is older than ttl at now.
func IsStale(entry Entry, now time.Time, ttl time.Duration) bool {
	return now.Sub(entry.LastUsed) > ttl
}
