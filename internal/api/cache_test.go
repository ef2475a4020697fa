package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shipquery/shipquery/internal/archive"
	"github.com/shipquery/shipquery/internal/auth"
	"github.com/shipquery/shipquery/internal/querycache"
)

func TestCacheListRequiresAdminRole(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"SHIPQUERY_AUTH_REQUIRED": "true",
	})
	validator, err := auth.NewStaticAPIKeyValidator("reader:ops@example.com:query_reader,admin:admin@example.com:cache_admin")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Cache:          &fakeCacheAdmin{},
	})

	readerReq := httptest.NewRequest(http.MethodGet, "/v1/cache/entries", nil)
	readerReq.Header.Set("X-API-Key", "reader")
	readerResp := httptest.NewRecorder()
	h.ServeHTTP(readerResp, readerReq)
	if readerResp.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", readerResp.Code)
	}

	adminReq := httptest.NewRequest(http.MethodGet, "/v1/cache/entries", nil)
	adminReq.Header.Set("X-API-Key", "admin")
	adminResp := httptest.NewRecorder()
	h.ServeHTTP(adminResp, adminReq)
	if adminResp.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body=%s", adminResp.Code, adminResp.Body.String())
	}
}

func TestCacheListAppliesLimit(t *testing.T) {
	cache := &fakeCacheAdmin{
		entries: []querycache.Entry{
			{Key: "SELECT:deployment:frontend:*:weeks:1:*", UseCount: 12, LastUsed: time.Now().UTC()},
		},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Cache: cache})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/cache/entries?limit=5", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cache.lastLimit != 5 {
		t.Fatalf("limit = %d", cache.lastLimit)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestCacheListRejectsInvalidLimit(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Cache: &fakeCacheAdmin{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/cache/entries?limit=abc", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCacheStats(t *testing.T) {
	cache := &fakeCacheAdmin{
		stats: querycache.Stats{Entries: 3, TotalUses: 30, AverageUse: 10},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Cache: cache})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var stats querycache.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if stats.Entries != 3 || stats.TotalUses != 30 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCacheDeleteReturns404WhenMissing(t *testing.T) {
	cache := &fakeCacheAdmin{deleted: false}
	h := NewHandler(testConfig(t, nil), Dependencies{Cache: cache})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/cache/entries/SELECT:deployment:frontend:*:weeks:1:*", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if cache.lastKey != "SELECT:deployment:frontend:*:weeks:1:*" {
		t.Fatalf("key = %q", cache.lastKey)
	}
}

func TestCacheDeleteRemovesEntry(t *testing.T) {
	cache := &fakeCacheAdmin{deleted: true}
	h := NewHandler(testConfig(t, nil), Dependencies{Cache: cache})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/cache/entries/COUNT:test_result:backend:*:days:1:*", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCacheSweepRunsOnce(t *testing.T) {
	sweeper := &fakeSweeper{
		summary: archive.SweepSummary{Scanned: 4, Archived: 2, Deleted: 4, ObjectKey: "archive/query-cache/20250310T120000Z.parquet"},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Sweeper: sweeper})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/cache/sweep", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if sweeper.calls != 1 {
		t.Fatalf("calls = %d", sweeper.calls)
	}
}

func TestCacheSweepWithoutSweeperReturns501(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/cache/sweep", nil))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
