package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var _ usecase.LedgerMetrics = (*Metrics)(nil)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	MovementsTotal    *prometheus.CounterVec
	MovementDuration  *prometheus.HistogramVec
	LockWaitDuration  *prometheus.HistogramVec
	RecordingWarnings *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits prometheus.Counter

	// Idempotency metrics
	IdempotencyReplays prometheus.Counter

	// Outbox metrics
	OutboxEvents *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all Prometheus metrics and registers them on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		MovementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankledger_movements_total",
				Help: "Total money movements by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		MovementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankledger_movement_duration_seconds",
				Help:    "Duration of money movements from validation to commit",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		LockWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankledger_lock_wait_seconds",
				Help:    "Time spent waiting for account locks",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		RecordingWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankledger_recording_warnings_total",
				Help: "Committed movements whose transaction record could not be written",
			},
			[]string{"kind"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bankledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),

		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "bankledger_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}),

		IdempotencyReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "bankledger_idempotency_replays_total",
			Help: "Responses served from the idempotency cache",
		}),

		OutboxEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankledger_outbox_events_total",
				Help: "Outbox events handled by the publisher, by status",
			},
			[]string{"status"},
		),
	}
}

// ObserveMovement records the outcome and duration of one movement.
func (m *Metrics) ObserveMovement(kind domain.TransactionKind, outcome string, duration time.Duration) {
	m.MovementsTotal.WithLabelValues(string(kind), outcome).Inc()
	m.MovementDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// ObserveLockWait records how long Acquire blocked.
func (m *Metrics) ObserveLockWait(kind domain.TransactionKind, duration time.Duration) {
	m.LockWaitDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// ObserveRecordingWarning counts a committed movement that was not recorded.
func (m *Metrics) ObserveRecordingWarning(kind domain.TransactionKind) {
	m.RecordingWarnings.WithLabelValues(string(kind)).Inc()
}

// ObserveOutboxEvent counts an outbox event by status (published, failed).
func (m *Metrics) ObserveOutboxEvent(status string) {
	m.OutboxEvents.WithLabelValues(status).Inc()
}
