package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipquery_cache_lookups_total",
			Help: "Total number of query cache lookups by outcome (hit or miss).",
		},
		[]string{"outcome"},
	)
	cacheWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipquery_cache_write_failures_total",
			Help: "Total number of swallowed query cache write failures.",
		},
	)
	slotRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipquery_slot_rejections_total",
			Help: "Total number of questions rejected during slot extraction by reason.",
		},
		[]string{"reason"},
	)
	unsafeSQLRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipquery_unsafe_sql_rejections_total",
			Help: "Total number of SQL statements rejected by the read-only guard.",
		},
	)
	prepareLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipquery_prepare_latency_ms",
			Help:    "Pipeline prepare latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	executeLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipquery_execute_latency_ms",
			Help:    "Pipeline confirmed-execute latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	sweepArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipquery_sweep_archived_entries_total",
			Help: "Total number of stale cache entries archived by the sweeper.",
		},
	)
	sweepDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipquery_sweep_deleted_entries_total",
			Help: "Total number of stale cache entries deleted by the sweeper.",
		},
	)
	cacheEntriesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shipquery_cache_entries",
			Help: "Current number of rows in the query cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cacheLookupsTotal,
		cacheWriteFailuresTotal,
		slotRejectionsTotal,
		unsafeSQLRejectionsTotal,
		prepareLatencyMs,
		executeLatencyMs,
		sweepArchivedTotal,
		sweepDeletedTotal,
		cacheEntriesGauge,
	)
}

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

func IncrementCacheWriteFailure() {
	cacheWriteFailuresTotal.Inc()
}

func IncrementSlotRejection(reason string) {
	slotRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementUnsafeSQLRejection() {
	unsafeSQLRejectionsTotal.Inc()
}

func ObservePrepareLatency(elapsed time.Duration) {
	prepareLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecuteLatency(elapsed time.Duration) {
	executeLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSweep(archived, deleted int) {
	if archived > 0 {
		sweepArchivedTotal.Add(float64(archived))
	}
	if deleted > 0 {
		sweepDeletedTotal.Add(float64(deleted))
	}
}

func SetCacheEntries(count int64) {
	if count < 0 {
		count = 0
	}
	cacheEntriesGauge.Set(float64(count))
}
