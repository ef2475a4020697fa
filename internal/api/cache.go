package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shipquery/shipquery/internal/auth"
)

const (
	defaultCacheListLimit = 50
	maxCacheListLimit     = 500
	defaultStatsTopN      = 10
)

func handleCacheList(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_ADMIN_NOT_CONFIGURED", "cache administration is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit, err := limitFromQuery(r, defaultCacheListLimit, maxCacheListLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}

	entries, err := deps.Cache.List(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_LIST_FAILED", "failed to list cache entries", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_ADMIN_NOT_CONFIGURED", "cache administration is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	stats, err := deps.Cache.Stats(r.Context(), defaultStatsTopN)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_STATS_FAILED", "failed to load cache stats", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleCacheDelete(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Cache == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CACHE_ADMIN_NOT_CONFIGURED", "cache administration is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CACHE_KEY", "cache key is required", false, nil)
		return
	}

	deleted, err := deps.Cache.Delete(r.Context(), key)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_DELETE_FAILED", "failed to delete cache entry", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "CACHE_ENTRY_NOT_FOUND", "cache entry was not found", false, map[string]any{"cache_key": key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "deleted",
		"cache_key": key,
	})
}

func handleCacheSweep(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sweeper == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SWEEPER_NOT_CONFIGURED", "sweeper is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	summary, err := deps.Sweeper.RunSweepOnce(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SWEEP_FAILED", "sweep run failed", true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"summary": summary,
	})
}

func limitFromQuery(r *http.Request, fallback, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
