package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shipquery/shipquery/internal/querycache"
)

// Store persists cache entries in the query_cache table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

// Lookup touches and returns the entry in a single UPDATE ... RETURNING so
// concurrent hits on the same key never lose an increment.
func (s *Store) Lookup(ctx context.Context, key string) (querycache.Entry, error) {
	query := `
UPDATE query_cache
SET use_count = use_count + 1, last_used = NOW()
WHERE cache_key = $1
RETURNING cache_key, sql_query, created_at, last_used, use_count, created_by, metadata`

	var entry querycache.Entry
	var metadata []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&entry.Key,
		&entry.SQLTemplate,
		&entry.CreatedAt,
		&entry.LastUsed,
		&entry.UseCount,
		&entry.CreatedBy,
		&metadata,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return querycache.Entry{}, querycache.ErrNotFound
		}
		return querycache.Entry{}, fmt.Errorf("lookup cache entry: %w", err)
	}
	if err := decodeMetadata(metadata, &entry); err != nil {
		return querycache.Entry{}, err
	}
	return entry, nil
}

// Upsert inserts the entry or replaces its template and metadata. The
// conflict arm never resets use_count.
func (s *Store) Upsert(ctx context.Context, key, sqlTemplate, createdBy string, metadata map[string]any) error {
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	query := `
INSERT INTO query_cache (cache_key, sql_query, created_at, last_used, use_count, created_by, metadata)
VALUES ($1, $2, NOW(), NOW(), 1, $3, $4)
ON CONFLICT (cache_key) DO UPDATE
SET sql_query = EXCLUDED.sql_query,
    metadata = EXCLUDED.metadata,
    last_used = NOW()`
	if _, err := s.db.ExecContext(ctx, query, key, sqlTemplate, createdBy, encoded); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE cache_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete cache entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cache entry: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]querycache.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT cache_key, sql_query, created_at, last_used, use_count, created_by, metadata
FROM query_cache
ORDER BY last_used DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (s *Store) Stats(ctx context.Context, topN int) (querycache.Stats, error) {
	var stats querycache.Stats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(use_count), 0), COALESCE(AVG(use_count), 0)
FROM query_cache`).Scan(&stats.Entries, &stats.TotalUses, &stats.AverageUse)
	if err != nil {
		return querycache.Stats{}, fmt.Errorf("cache stats: %w", err)
	}

	if topN <= 0 {
		return stats, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT cache_key, sql_query, created_at, last_used, use_count, created_by, metadata
FROM query_cache
ORDER BY use_count DESC, last_used DESC
LIMIT $1`, topN)
	if err != nil {
		return querycache.Stats{}, fmt.Errorf("cache stats top entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	top, err := scanEntries(rows)
	if err != nil {
		return querycache.Stats{}, err
	}
	stats.Top = top
	return stats, nil
}

func (s *Store) StaleEntries(ctx context.Context, cutoff time.Time, limit int) ([]querycache.Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT cache_key, sql_query, created_at, last_used, use_count, created_by, metadata
FROM query_cache
WHERE last_used <= $1
ORDER BY last_used ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (s *Store) DeleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = key
	}
	query := fmt.Sprintf(`DELETE FROM query_cache WHERE cache_key IN (%s)`, strings.Join(placeholders, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	return affected, nil
}

func scanEntries(rows *sql.Rows) ([]querycache.Entry, error) {
	entries := make([]querycache.Entry, 0)
	for rows.Next() {
		var entry querycache.Entry
		var metadata []byte
		if err := rows.Scan(
			&entry.Key,
			&entry.SQLTemplate,
			&entry.CreatedAt,
			&entry.LastUsed,
			&entry.UseCount,
			&entry.CreatedBy,
			&metadata,
		); err != nil {
			return nil, fmt.Errorf("scan cache entry row: %w", err)
		}
		if err := decodeMetadata(metadata, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entry rows: %w", err)
	}
	return entries, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode cache metadata: %w", err)
	}
	return encoded, nil
}

func decodeMetadata(raw []byte, entry *querycache.Entry) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &entry.Metadata); err != nil {
		return fmt.Errorf("decode cache metadata: %w", err)
	}
	return nil
}
