package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shipquery/shipquery/internal/archive"
	"github.com/shipquery/shipquery/internal/config"
	"github.com/shipquery/shipquery/internal/observability"
	"github.com/shipquery/shipquery/internal/pipeline"
	"github.com/shipquery/shipquery/internal/querycache"
)

type ReadinessCheck func(ctx context.Context) error

// QueryPipeline is the prepare/execute protocol surface consumed by the
// HTTP handlers.
type QueryPipeline interface {
	Prepare(ctx context.Context, question string) (pipeline.PrepareResult, error)
	Execute(ctx context.Context, sqlTemplate, cacheKey string, confirmCache bool, createdBy string, metadata map[string]any) (pipeline.ExecuteResult, error)
	Ask(ctx context.Context, question, createdBy string) (pipeline.AskResult, error)
}

// CacheAdmin is the slice of the cache store exposed to operators.
type CacheAdmin interface {
	List(ctx context.Context, limit int) ([]querycache.Entry, error)
	Stats(ctx context.Context, topN int) (querycache.Stats, error)
	Delete(ctx context.Context, key string) (bool, error)
}

type SweepRunner interface {
	RunSweepOnce(ctx context.Context) (archive.SweepSummary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Pipeline          QueryPipeline
	Cache             CacheAdmin
	Sweeper           SweepRunner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/query/prepare", func(w http.ResponseWriter, r *http.Request) {
		handleQueryPrepare(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/execute", func(w http.ResponseWriter, r *http.Request) {
		handleQueryExecute(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/ask", func(w http.ResponseWriter, r *http.Request) {
		handleQueryAsk(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache/entries", func(w http.ResponseWriter, r *http.Request) {
		handleCacheList(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		handleCacheStats(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/cache/entries/{key}", func(w http.ResponseWriter, r *http.Request) {
		handleCacheDelete(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/sweep", func(w http.ResponseWriter, r *http.Request) {
		handleCacheSweep(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/query/prepare", protectedHandler)
	mux.Handle("POST /v1/query/execute", protectedHandler)
	mux.Handle("POST /v1/query/ask", protectedHandler)
	mux.Handle("GET /v1/cache/entries", protectedHandler)
	mux.Handle("GET /v1/cache/stats", protectedHandler)
	mux.Handle("DELETE /v1/cache/entries/{key}", protectedHandler)
	mux.Handle("POST /v1/cache/sweep", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.DSN == "" {
			return errors.New("database dsn is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
