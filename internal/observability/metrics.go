package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the market service.
type Metrics struct {
	// --- Round lifecycle ---
	RoundsStarted  prometheus.Counter
	RoundsLocked   prometheus.Counter
	RoundsResolved prometheus.Counter

	// --- Wagers ---
	BetsPlaced *prometheus.CounterVec
	BetVolume  prometheus.Counter

	// --- Settlement ---
	ClaimsSettled   *prometheus.CounterVec
	SettleBatchSize prometheus.Histogram
	TreasuryFees    prometheus.Counter
	DispatchFees    prometheus.Counter

	// --- Persistence ---
	PersistRowsWritten  *prometheus.CounterVec
	PersistBatchDur     prometheus.Histogram
	PersistBatchSize    prometheus.Histogram
	PersistErrors       *prometheus.CounterVec
	PersistLastSequence prometheus.Gauge

	// --- Outbound publishing ---
	EventsPublished *prometheus.CounterVec
	PublishDrops    prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RoundsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_rounds_started_total",
			Help: "Rounds created",
		}),

		RoundsLocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_rounds_locked_total",
			Help: "Rounds locked",
		}),

		RoundsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_rounds_resolved_total",
			Help: "Rounds resolved",
		}),

		BetsPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_bets_placed_total",
			Help: "Wagers accepted",
		}, []string{"position"}),

		BetVolume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_bet_volume_microunits_total",
			Help: "Total stake accepted (micro-units)",
		}),

		ClaimsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_claims_settled_total",
			Help: "Wagers settled (path: pull/push, result: win/refund/lose)",
		}, []string{"path", "result"}),

		SettleBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "market_settle_batch_size",
			Help:    "Wagers settled per push batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		TreasuryFees: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_treasury_fees_microunits_total",
			Help: "Treasury cuts collected at resolution (micro-units)",
		}),

		DispatchFees: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_dispatch_fees_microunits_total",
			Help: "Flat dispatch fees collected on push settlement (micro-units)",
		}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}, []string{"table"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "market_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "market_persist_batch_size",
			Help:    "Outputs per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "market_persist_last_sequence",
			Help: "Last persisted event sequence",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_events_published_total",
			Help: "Events published to NATS",
		}, []string{"event_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "market_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "market_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "market_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}
