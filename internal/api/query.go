package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shipquery/shipquery/internal/auth"
	"github.com/shipquery/shipquery/internal/executor"
	"github.com/shipquery/shipquery/internal/pipeline"
	"github.com/shipquery/shipquery/internal/schema"
	"github.com/shipquery/shipquery/internal/slots"
	"github.com/shipquery/shipquery/internal/sqlguard"
)

type prepareRequest struct {
	Question string `json:"question"`
}

type executeRequest struct {
	SQL          string         `json:"sql"`
	CacheKey     string         `json:"cache_key"`
	ConfirmCache bool           `json:"confirm_cache"`
	Metadata     map[string]any `json:"metadata"`
}

type askRequest struct {
	Question string `json:"question"`
}

func handleQueryPrepare(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request prepareRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid prepare request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Pipeline.Prepare(r.Context(), request.Question)
	if err != nil {
		handlePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleQueryExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request executeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid execute request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if request.ConfirmCache && strings.TrimSpace(request.CacheKey) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CACHE_KEY_REQUIRED", "cache_key is required when confirm_cache is set", false, nil)
		return
	}

	result, err := deps.Pipeline.Execute(r.Context(), request.SQL, request.CacheKey, request.ConfirmCache, subjectFromRequest(r), request.Metadata)
	if err != nil {
		handlePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleQueryAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Pipeline.Ask(r.Context(), request.Question, subjectFromRequest(r))
	if err != nil {
		handlePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handlePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var ambiguity *slots.AmbiguityError
	if errors.As(err, &ambiguity) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "AMBIGUOUS_APP", err.Error(), false, map[string]any{
			"mention":    ambiguity.Mention,
			"candidates": ambiguity.Candidates,
		})
		return
	}
	var unsupportedTable *slots.UnsupportedTableError
	if errors.As(err, &unsupportedTable) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNSUPPORTED_TABLE", err.Error(), false, nil)
		return
	}
	var unsupportedTime *slots.UnsupportedTimePhraseError
	if errors.As(err, &unsupportedTime) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNSUPPORTED_TIME_PHRASE", err.Error(), false, map[string]any{
			"phrase": unsupportedTime.Phrase,
		})
		return
	}
	var unsafeSQL *sqlguard.UnsafeSQLError
	if errors.As(err, &unsafeSQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		return
	}
	var fetchErr *schema.FetchError
	if errors.As(err, &fetchErr) {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema context is unavailable", true, map[string]any{"details": err.Error()})
		return
	}
	var execErr *executor.ExecutionError
	if errors.As(err, &execErr) {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	if errors.Is(err, pipeline.ErrTranslatorNotConfigured) {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATOR_NOT_CONFIGURED", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "request failed", true, map[string]any{"details": err.Error()})
}

func subjectFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.Subject) != "" {
			return identity.Subject
		}
	}
	return "anonymous"
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
