package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsClassified tracks classified errors by category and severity
	ErrorsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_errors_classified_total",
			Help: "Total number of classified errors",
		},
		[]string{"category", "severity"},
	)

	// CatastrophicFailures tracks errors matching the internal-failure signature
	CatastrophicFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_catastrophic_failures_total",
			Help: "Total number of catastrophic internal client failures observed",
		},
	)

	// RetriesTotal tracks retry attempts per operation
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_retries_total",
			Help: "Total number of operation retries",
		},
		[]string{"operation"},
	)

	// RetryExhausted tracks operations that failed after every attempt
	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"operation"},
	)

	// RecoveriesTotal tracks executed recovery sequences by outcome
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_recoveries_total",
			Help: "Total number of client recovery sequences",
		},
		[]string{"outcome"},
	)

	// RecoverySkipped tracks recover calls rejected by the guard
	RecoverySkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_recovery_skipped_total",
			Help: "Total number of recovery requests skipped",
		},
		[]string{"reason"},
	)

	// RecoveryDuration tracks how long a recovery sequence takes
	RecoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsync_recovery_duration_seconds",
			Help:    "Duration of client recovery sequences in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ClientGeneration tracks the generation of the live client
	ClientGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsync_client_generation",
			Help: "Generation of the live document client",
		},
	)

	// ListenersActive tracks tracked subscriptions
	ListenersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsync_listeners_active",
			Help: "Number of live tracked subscriptions",
		},
	)

	// ListenerUnsubscribeFailures tracks unsubscribe callbacks that failed during drain
	ListenerUnsubscribeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_listener_unsubscribe_failures_total",
			Help: "Total number of unsubscribe callbacks that failed during drain",
		},
	)

	// DiagnosticsResults tracks diagnostic probe outcomes
	DiagnosticsResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_diagnostics_results_total",
			Help: "Total number of diagnostic probe results",
		},
		[]string{"test", "status"},
	)

	// DiagnosticsDuration tracks full battery duration
	DiagnosticsDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsync_diagnostics_duration_seconds",
			Help:    "Duration of full diagnostics runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TelemetryEvents tracks recorded telemetry events by type
	TelemetryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_telemetry_events_total",
			Help: "Total number of recorded error events",
		},
		[]string{"type"},
	)
)
