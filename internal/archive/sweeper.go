package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/shipquery/shipquery/internal/observability"
	"github.com/shipquery/shipquery/internal/querycache"
	"github.com/shipquery/shipquery/internal/storage"
)

// Cache is the slice of the cache store the sweeper needs.
type Cache interface {
	StaleEntries(ctx context.Context, cutoff time.Time, limit int) ([]querycache.Entry, error)
	DeleteKeys(ctx context.Context, keys []string) (int64, error)
}

type Config struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	MinUseCount   int
	BatchLimit    int
	ArchivePrefix string
}

// Service evicts cache entries that have not been used within the
// configured TTL. Entries that earned at least MinUseCount uses are
// archived to object storage as Parquet before the rows are deleted;
// one-off entries are deleted outright.
type Service struct {
	Cache       Cache
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type SweepSummary struct {
	Scanned   int    `json:"scanned"`
	Archived  int    `json:"archived"`
	Deleted   int64  `json:"deleted"`
	ObjectKey string `json:"object_key,omitempty"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunSweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "sweep cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "sweep cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

func (s *Service) RunSweepOnce(ctx context.Context) (SweepSummary, error) {
	s.ensureDefaults()
	if s.Cache == nil {
		return SweepSummary{}, fmt.Errorf("cache store is required")
	}
	if s.ObjectStore == nil {
		return SweepSummary{}, fmt.Errorf("object store is required")
	}

	cutoff := s.Clock().Add(-s.Config.StaleAfter)
	entries, err := s.Cache.StaleEntries(ctx, cutoff, s.Config.BatchLimit)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list stale entries: %w", err)
	}

	summary := SweepSummary{Scanned: len(entries)}
	if len(entries) == 0 {
		return summary, nil
	}

	toArchive := make([]querycache.Entry, 0, len(entries))
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
		if entry.UseCount >= int64(s.Config.MinUseCount) {
			toArchive = append(toArchive, entry)
		}
	}

	if len(toArchive) > 0 {
		encoded, err := EncodeEntriesToParquet(toArchive)
		if err != nil {
			return summary, fmt.Errorf("encode archive batch: %w", err)
		}
		objectKey := path.Join(s.Config.ArchivePrefix, s.Clock().UTC().Format("20060102T150405Z")+".parquet")
		_, err = s.ObjectStore.Put(ctx, objectKey, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: "application/octet-stream"})
		if err != nil {
			return summary, fmt.Errorf("upload archive batch: %w", err)
		}
		summary.Archived = len(toArchive)
		summary.ObjectKey = objectKey
	}

	deleted, err := s.Cache.DeleteKeys(ctx, keys)
	summary.Deleted = deleted
	if err != nil {
		return summary, fmt.Errorf("delete stale entries: %w", err)
	}

	observability.ObserveSweep(summary.Archived, int(summary.Deleted))
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.Interval <= 0 {
		s.Config.Interval = 10 * time.Minute
	}
	if s.Config.StaleAfter <= 0 {
		s.Config.StaleAfter = 7 * 24 * time.Hour
	}
	if s.Config.BatchLimit <= 0 {
		s.Config.BatchLimit = 500
	}
	if s.Config.ArchivePrefix == "" {
		s.Config.ArchivePrefix = "archive/query-cache"
	}
}
