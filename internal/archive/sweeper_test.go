package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shipquery/shipquery/internal/querycache"
	"github.com/shipquery/shipquery/internal/storage"
)

func TestRunSweepOnceArchivesAndDeletes(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cache := &fakeSweepCache{
		entries: []querycache.Entry{
			{Key: "SELECT:deployment:frontend:*:weeks:1:*", SQLTemplate: "SELECT 1", UseCount: 12, LastUsed: now.Add(-9 * 24 * time.Hour)},
			{Key: "COUNT:test_result:backend:*:days:1:*", SQLTemplate: "SELECT 2", UseCount: 1, LastUsed: now.Add(-8 * 24 * time.Hour)},
		},
	}
	objects := &fakeSweepObjectStore{}
	svc := &Service{
		Cache:       cache,
		ObjectStore: objects,
		Config:      Config{StaleAfter: 7 * 24 * time.Hour, MinUseCount: 2, BatchLimit: 100, ArchivePrefix: "archive/query-cache"},
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunSweepOnce(context.Background())
	if err != nil {
		t.Fatalf("RunSweepOnce() error = %v", err)
	}
	if summary.Scanned != 2 {
		t.Fatalf("Scanned = %d, want 2", summary.Scanned)
	}
	if summary.Archived != 1 {
		t.Fatalf("Archived = %d, want 1", summary.Archived)
	}
	if summary.Deleted != 2 {
		t.Fatalf("Deleted = %d, want 2", summary.Deleted)
	}
	if summary.ObjectKey != "archive/query-cache/20250310T120000Z.parquet" {
		t.Fatalf("ObjectKey = %q", summary.ObjectKey)
	}
	if objects.lastKey != summary.ObjectKey {
		t.Fatalf("object store key = %q", objects.lastKey)
	}
	if objects.lastSize == 0 {
		t.Fatal("expected non-empty parquet payload")
	}
	if cache.cutoff != now.Add(-7*24*time.Hour) {
		t.Fatalf("cutoff = %v", cache.cutoff)
	}
	if len(cache.deletedKeys) != 2 {
		t.Fatalf("deletedKeys = %v", cache.deletedKeys)
	}
}

func TestRunSweepOnceNoStaleEntries(t *testing.T) {
	cache := &fakeSweepCache{}
	objects := &fakeSweepObjectStore{}
	svc := &Service{Cache: cache, ObjectStore: objects}

	summary, err := svc.RunSweepOnce(context.Background())
	if err != nil {
		t.Fatalf("RunSweepOnce() error = %v", err)
	}
	if summary.Scanned != 0 || summary.Archived != 0 || summary.Deleted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if objects.lastKey != "" {
		t.Fatalf("unexpected archive upload %q", objects.lastKey)
	}
	if cache.deleteCalled {
		t.Fatal("expected no delete call")
	}
}

func TestRunSweepOnceSkipsArchiveForLowUseEntries(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cache := &fakeSweepCache{
		entries: []querycache.Entry{
			{Key: "SELECT:deployment:backend:*:days:3:*", UseCount: 1, LastUsed: now.Add(-30 * 24 * time.Hour)},
		},
	}
	objects := &fakeSweepObjectStore{}
	svc := &Service{
		Cache:       cache,
		ObjectStore: objects,
		Config:      Config{StaleAfter: 7 * 24 * time.Hour, MinUseCount: 2},
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunSweepOnce(context.Background())
	if err != nil {
		t.Fatalf("RunSweepOnce() error = %v", err)
	}
	if summary.Archived != 0 {
		t.Fatalf("Archived = %d, want 0", summary.Archived)
	}
	if summary.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", summary.Deleted)
	}
	if objects.lastKey != "" {
		t.Fatalf("unexpected archive upload %q", objects.lastKey)
	}
}

func TestRunSweepOnceKeepsRowsWhenUploadFails(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cache := &fakeSweepCache{
		entries: []querycache.Entry{
			{Key: "SELECT:deployment:frontend:*:weeks:1:*", UseCount: 5, LastUsed: now.Add(-9 * 24 * time.Hour)},
		},
	}
	objects := &fakeSweepObjectStore{putErr: errors.New("bucket unavailable")}
	svc := &Service{
		Cache:       cache,
		ObjectStore: objects,
		Config:      Config{StaleAfter: 7 * 24 * time.Hour, MinUseCount: 2},
		Clock:       func() time.Time { return now },
	}

	_, err := svc.RunSweepOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "upload archive batch") {
		t.Fatalf("err = %v", err)
	}
	if cache.deleteCalled {
		t.Fatal("expected rows to survive a failed upload")
	}
}

func TestEncodeEntriesToParquet(t *testing.T) {
	entries := []querycache.Entry{
		{
			Key:         "SELECT:deployment:frontend:*:weeks:1:*",
			SQLTemplate: "SELECT * FROM deployment_data WHERE created_at >= {{NOW-1w}}",
			CreatedAt:   time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
			LastUsed:    time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC),
			UseCount:    4,
			CreatedBy:   "ops@example.com",
			Metadata:    map[string]any{"question": "deployments last week"},
		},
		{
			Key:      "COUNT:test_result:backend:*:days:1:*",
			LastUsed: time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC),
			UseCount: 2,
		},
	}

	result, err := EncodeEntriesToParquet(entries)
	if err != nil {
		t.Fatalf("EncodeEntriesToParquet() error = %v", err)
	}
	if result.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", result.RecordCount)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty payload")
	}
	if result.MinLastUsed == nil || !result.MinLastUsed.Equal(time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("MinLastUsed = %v", result.MinLastUsed)
	}
	if result.MaxLastUsed == nil || !result.MaxLastUsed.Equal(time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("MaxLastUsed = %v", result.MaxLastUsed)
	}
}

func TestEncodeEntriesToParquetRequiresEntries(t *testing.T) {
	if _, err := EncodeEntriesToParquet(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

type fakeSweepCache struct {
	entries      []querycache.Entry
	cutoff       time.Time
	deletedKeys  []string
	deleteCalled bool
}

func (f *fakeSweepCache) StaleEntries(_ context.Context, cutoff time.Time, _ int) ([]querycache.Entry, error) {
	f.cutoff = cutoff
	return f.entries, nil
}

func (f *fakeSweepCache) DeleteKeys(_ context.Context, keys []string) (int64, error) {
	f.deleteCalled = true
	f.deletedKeys = keys
	return int64(len(keys)), nil
}

type fakeSweepObjectStore struct {
	lastKey  string
	lastSize int64
	putErr   error
}

func (f *fakeSweepObjectStore) Put(_ context.Context, key string, body io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	if f.putErr != nil {
		return storage.ObjectInfo{}, f.putErr
	}
	f.lastKey = key
	f.lastSize = size
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeSweepObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key}, nil
}

func (f *fakeSweepObjectStore) Delete(context.Context, string) error {
	return nil
}
