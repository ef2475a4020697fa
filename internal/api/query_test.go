package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shipquery/shipquery/internal/executor"
	"github.com/shipquery/shipquery/internal/pipeline"
	"github.com/shipquery/shipquery/internal/slots"
	"github.com/shipquery/shipquery/internal/sqlguard"
)

func TestPrepareReturnsCacheHit(t *testing.T) {
	fake := &fakePipeline{
		prepareResult: pipeline.PrepareResult{
			Cached:   true,
			CacheKey: "SELECT:deployment:frontend:*:weeks:1:*",
			SQL:      "SELECT * FROM deployment_data WHERE created_at >= '2025-03-03 12:00:00'",
			Result:   &executor.Result{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}, RowCount: 1},
		},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/prepare", strings.NewReader(`{"question":"What deployments happened last week for frontend?"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["cached"] != true {
		t.Fatalf("cached = %v", body["cached"])
	}
	if body["cache_key"] != "SELECT:deployment:frontend:*:weeks:1:*" {
		t.Fatalf("cache_key = %v", body["cache_key"])
	}
	if fake.lastQuestion != "What deployments happened last week for frontend?" {
		t.Fatalf("question = %q", fake.lastQuestion)
	}
}

func TestPrepareRejectsMissingQuestion(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: &fakePipeline{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/prepare", strings.NewReader(`{"question":"  "}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestPrepareMapsAmbiguityTo422(t *testing.T) {
	fake := &fakePipeline{
		prepareErr: &slots.AmbiguityError{Mention: "front", Candidates: []string{"front-office", "frontend"}},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/prepare", strings.NewReader(`{"question":"Show failures for front"}`)))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "AMBIGUOUS_APP" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	extra, ok := body["context"].(map[string]any)
	if !ok {
		t.Fatalf("context = %v", body["context"])
	}
	candidates, ok := extra["candidates"].([]any)
	if !ok || len(candidates) != 2 {
		t.Fatalf("candidates = %v", extra["candidates"])
	}
}

func TestExecuteMapsUnsafeSQLTo400(t *testing.T) {
	fake := &fakePipeline{executeErr: &sqlguard.UnsafeSQLError{Reason: "statement must be a read-only SELECT"}}
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/execute", strings.NewReader(`{"sql":"DROP TABLE deployment_data"}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExecuteRequiresCacheKeyWithConfirm(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: &fakePipeline{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/execute", strings.NewReader(`{"sql":"SELECT 1","confirm_cache":true}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExecutePassesConfirmAndKeyThrough(t *testing.T) {
	fake := &fakePipeline{
		executeResult: pipeline.ExecuteResult{CacheKey: "COUNT:test_result:backend:*:days:1:*", Cached: true},
	}
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: fake})

	payload := `{"sql":"SELECT COUNT(*) FROM test_data WHERE created_at >= {{NOW-1d}}","cache_key":"COUNT:test_result:backend:*:days:1:*","confirm_cache":true}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/execute", strings.NewReader(payload)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if !fake.lastConfirm {
		t.Fatal("expected confirm_cache to pass through")
	}
	if fake.lastCacheKey != "COUNT:test_result:backend:*:days:1:*" {
		t.Fatalf("cache_key = %q", fake.lastCacheKey)
	}
	if fake.lastCreatedBy != "anonymous" {
		t.Fatalf("created_by = %q", fake.lastCreatedBy)
	}
}

func TestAskMapsTranslatorNotConfiguredTo501(t *testing.T) {
	fake := &fakePipeline{askErr: pipeline.ErrTranslatorNotConfigured}
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query/ask", strings.NewReader(`{"question":"deployments last week"}`)))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
