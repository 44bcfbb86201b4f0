package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PosTrack.
type Metrics struct {
	// --- Fill pipeline ---
	FillsNormalized prometheus.Counter
	FillsRejected   *prometheus.CounterVec // reason
	FillsDropped    prometheus.Counter     // decreasing fill on empty channel
	FillsOverClose  prometheus.Counter     // close quantity clamped

	// --- Positions ---
	PositionsOpened prometheus.Counter
	PositionsClosed prometheus.Counter
	TradesIngested  prometheus.Counter

	// --- Sync ---
	SyncRuns           *prometheus.CounterVec // trigger, status
	SyncDuration       *prometheus.HistogramVec
	SymbolSyncFailures prometheus.Counter
	SnapshotsTaken     prometheus.Counter

	// --- Idempotency ---
	DedupHits   *prometheus.CounterVec // tier: lru/postgres
	DedupErrors prometheus.Counter

	// --- Exchange transport ---
	ExchangeRequests *prometheus.CounterVec // endpoint, status
	ExchangeLatency  *prometheus.HistogramVec

	// --- Persistence ---
	PersistErrors *prometheus.CounterVec // op

	// --- Query API ---
	QueryRequests *prometheus.CounterVec // endpoint, status
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	syncBuckets := []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	httpBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

	return &Metrics{
		FillsNormalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_fills_normalized_total",
			Help: "Raw orders accepted as fills",
		}),

		FillsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_fills_rejected_total",
			Help: "Raw orders rejected during normalization",
		}, []string{"reason"}),

		FillsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_fills_dropped_total",
			Help: "Decreasing fills skipped on an empty channel",
		}),

		FillsOverClose: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_fills_overclose_total",
			Help: "Decreasing fills clamped to the live quantity",
		}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_positions_opened_total",
			Help: "Positions reconstructed as open",
		}),

		PositionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_positions_closed_total",
			Help: "Positions reconstructed as closed",
		}),

		TradesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_trades_ingested_total",
			Help: "Trade rows actually inserted (duplicates excluded)",
		}),

		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_sync_runs_total",
			Help: "Sync passes by trigger and outcome",
		}, []string{"trigger", "status"}),

		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postrack_sync_duration_seconds",
			Help:    "Wall time of one account sync pass",
			Buckets: syncBuckets,
		}, []string{"trigger"}),

		SymbolSyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_symbol_sync_failures_total",
			Help: "Symbols that failed inside an otherwise successful sync",
		}),

		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_snapshots_taken_total",
			Help: "Account equity snapshots stored",
		}),

		DedupHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_dedup_hits_total",
			Help: "Known trade ids caught before insert (lru/postgres)",
		}, []string{"tier"}),

		DedupErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postrack_dedup_errors_total",
			Help: "Database dedup lookups that errored",
		}),

		ExchangeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_exchange_requests_total",
			Help: "Exchange REST calls by endpoint and outcome",
		}, []string{"endpoint", "status"}),

		ExchangeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postrack_exchange_latency_seconds",
			Help:    "Exchange REST call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_persist_errors_total",
			Help: "Postgres write errors by operation",
		}, []string{"op"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postrack_query_requests_total",
			Help: "API requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postrack_query_duration_seconds",
			Help:    "API request latency",
			Buckets: httpBuckets,
		}, []string{"endpoint"}),
	}
}
