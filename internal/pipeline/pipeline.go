// Package pipeline orchestrates the two-phase prepare/execute protocol:
// slot extraction, cache lookup, schema context on a miss, validated
// execution, and cache population on a confirmed execute.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shipquery/shipquery/internal/executor"
	"github.com/shipquery/shipquery/internal/nl2sql"
	"github.com/shipquery/shipquery/internal/observability"
	"github.com/shipquery/shipquery/internal/querycache"
	"github.com/shipquery/shipquery/internal/schema"
	"github.com/shipquery/shipquery/internal/slots"
	"github.com/shipquery/shipquery/internal/sqlguard"
	"github.com/shipquery/shipquery/internal/timeresolve"
)

// ErrTranslatorNotConfigured is returned by Ask when no SQL generator is
// wired and the question missed the cache.
var ErrTranslatorNotConfigured = errors.New("sql translator is not configured")

// AppLister supplies the known application names for slot extraction.
type AppLister interface {
	Apps(ctx context.Context) ([]string, error)
}

type Pipeline struct {
	logger     *slog.Logger
	apps       AppLister
	store      querycache.Store
	schemas    schema.Provider
	runner     executor.Runner
	translator nl2sql.Translator
	now        func() time.Time
}

func New(logger *slog.Logger, apps AppLister, store querycache.Store, schemas schema.Provider, runner executor.Runner, translator nl2sql.Translator) *Pipeline {
	return &Pipeline{
		logger:     logger,
		apps:       apps,
		store:      store,
		schemas:    schemas,
		runner:     runner,
		translator: translator,
		now:        time.Now,
	}
}

// PrepareResult is either a served cache hit (SQL plus results) or the miss
// context the caller needs to generate SQL.
type PrepareResult struct {
	Cached      bool                      `json:"cached"`
	CacheKey    string                    `json:"cache_key"`
	SQL         string                    `json:"sql,omitempty"`
	Result      *executor.Result          `json:"result,omitempty"`
	Slots       slots.SlotSet             `json:"slots,omitempty"`
	Schemas     []schema.ColumnDescriptor `json:"schemas,omitempty"`
	Instruction string                    `json:"instruction,omitempty"`
}

// Prepare extracts slots, builds the key and consults the cache. A hit
// resolves the stored template against one fresh anchor and executes it; a
// miss gathers schema context for SQL generation. Prepare performs no cache
// writes, so an abandoned call leaves no trace.
func (p *Pipeline) Prepare(ctx context.Context, question string) (PrepareResult, error) {
	start := p.now()

	knownApps, err := p.apps.Apps(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "app registry unavailable, extracting without known apps",
			slog.String("error", err.Error()),
		)
		knownApps = nil
	}

	set, err := slots.NewExtractor(knownApps).Extract(question)
	if err != nil {
		countSlotRejection(err)
		return PrepareResult{}, err
	}
	key := slots.BuildKey(set)

	entry, err := p.store.Lookup(ctx, key)
	switch {
	case err == nil:
		observability.ObserveCacheLookup(true)
		anchor := p.now()
		concrete, err := timeresolve.Resolve(entry.SQLTemplate, anchor)
		if err != nil {
			return PrepareResult{}, fmt.Errorf("resolve cached template for %s: %w", key, err)
		}
		result, err := p.runner.Run(ctx, concrete)
		if err != nil {
			return PrepareResult{}, err
		}
		observability.ObservePrepareLatency(p.now().Sub(start))
		p.logger.InfoContext(ctx, "prepare cache hit",
			slog.String("cache_key", key),
			slog.Int64("use_count", entry.UseCount),
		)
		return PrepareResult{Cached: true, CacheKey: key, SQL: concrete, Result: &result}, nil
	case errors.Is(err, querycache.ErrNotFound):
		observability.ObserveCacheLookup(false)
	default:
		return PrepareResult{}, fmt.Errorf("cache lookup for %s: %w", key, err)
	}

	descriptors, err := p.schemas.Describe(ctx, set.TableHints())
	if err != nil {
		return PrepareResult{}, err
	}

	observability.ObservePrepareLatency(p.now().Sub(start))
	p.logger.InfoContext(ctx, "prepare cache miss",
		slog.String("cache_key", key),
	)
	return PrepareResult{
		Cached:      false,
		CacheKey:    key,
		Slots:       set,
		Schemas:     descriptors,
		Instruction: buildInstruction(set, descriptors),
	}, nil
}

// ExecuteResult carries the rows plus whether the template was written to
// the cache.
type ExecuteResult struct {
	Result   executor.Result `json:"result"`
	CacheKey string          `json:"cache_key"`
	Cached   bool            `json:"cached"`
}

// Execute validates the generated template, resolves its placeholders
// against one anchor, runs it and, when confirmed, stores the template
// under the cache key. A cache write failure is logged and swallowed; the
// successful result always reaches the caller.
func (p *Pipeline) Execute(ctx context.Context, sqlTemplate, cacheKey string, confirmCache bool, createdBy string, metadata map[string]any) (ExecuteResult, error) {
	start := p.now()

	if err := sqlguard.Validate(sqlTemplate); err != nil {
		observability.IncrementUnsafeSQLRejection()
		return ExecuteResult{}, err
	}

	concrete, err := timeresolve.Resolve(sqlTemplate, p.now())
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("resolve template: %w", err)
	}

	result, err := p.runner.Run(ctx, concrete)
	if err != nil {
		return ExecuteResult{}, err
	}

	cached := false
	if confirmCache && cacheKey != "" {
		if err := p.store.Upsert(ctx, cacheKey, sqlTemplate, createdBy, metadata); err != nil {
			observability.IncrementCacheWriteFailure()
			p.logger.WarnContext(ctx, "cache write failed",
				slog.String("cache_key", cacheKey),
				slog.String("error", err.Error()),
			)
		} else {
			cached = true
		}
	}

	observability.ObserveExecuteLatency(p.now().Sub(start))
	return ExecuteResult{Result: result, CacheKey: cacheKey, Cached: cached}, nil
}

// AskResult is the one-shot surface: prepare, and on a miss generate SQL,
// execute and cache in the same call.
type AskResult struct {
	Cached   bool            `json:"cached"`
	CacheKey string          `json:"cache_key"`
	SQL      string          `json:"sql"`
	Result   executor.Result `json:"result"`
}

func (p *Pipeline) Ask(ctx context.Context, question, createdBy string) (AskResult, error) {
	prepared, err := p.Prepare(ctx, question)
	if err != nil {
		return AskResult{}, err
	}
	if prepared.Cached {
		return AskResult{
			Cached:   true,
			CacheKey: prepared.CacheKey,
			SQL:      prepared.SQL,
			Result:   *prepared.Result,
		}, nil
	}
	if p.translator == nil {
		return AskResult{}, ErrTranslatorNotConfigured
	}

	generated, err := p.translator.Translate(ctx, nl2sql.Request{
		Question:    question,
		Slots:       prepared.Slots,
		Schemas:     prepared.Schemas,
		Instruction: prepared.Instruction,
	})
	if err != nil {
		return AskResult{}, fmt.Errorf("generate sql: %w", err)
	}

	executed, err := p.Execute(ctx, generated.SQL, prepared.CacheKey, true, createdBy, map[string]any{
		"question": question,
		"model":    generated.Model,
	})
	if err != nil {
		return AskResult{}, err
	}
	return AskResult{
		Cached:   false,
		CacheKey: executed.CacheKey,
		SQL:      generated.SQL,
		Result:   executed.Result,
	}, nil
}

func countSlotRejection(err error) {
	var ambiguity *slots.AmbiguityError
	var unsupportedTable *slots.UnsupportedTableError
	var unsupportedTime *slots.UnsupportedTimePhraseError
	switch {
	case errors.As(err, &ambiguity):
		observability.IncrementSlotRejection("ambiguous_app")
	case errors.As(err, &unsupportedTable):
		observability.IncrementSlotRejection("unsupported_table")
	case errors.As(err, &unsupportedTime):
		observability.IncrementSlotRejection("unsupported_time_phrase")
	default:
		observability.IncrementSlotRejection("other")
	}
}
