package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeAttemptsTotal counts individual JSON-RPC method attempts by outcome
	ProbeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcmon_probe_attempts_total",
			Help: "Total number of JSON-RPC method attempts made by probes",
		},
		[]string{"method", "outcome"},
	)

	// ChecksTotal counts recorded health checks per provider and verdict
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcmon_checks_total",
			Help: "Total number of recorded health checks",
		},
		[]string{"provider", "status"},
	)

	// CheckLatency tracks time-to-first-success of online probes
	CheckLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcmon_check_latency_seconds",
			Help:    "Probe latency in seconds, including fallback attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// ProviderUp is 1 when the latest verdict for a provider was online
	ProviderUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpcmon_provider_up",
			Help: "Whether the latest probe of the provider was online",
		},
		[]string{"provider"},
	)

	// AlertTransitionsTotal counts alerts opened and resolved
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcmon_alert_transitions_total",
			Help: "Total number of alert state transitions",
		},
		[]string{"provider", "transition"},
	)

	// CheckErrorsTotal counts checks that could not be persisted or panicked
	CheckErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcmon_check_errors_total",
			Help: "Total number of checks that failed outside the probe verdict",
		},
		[]string{"provider", "error_type"},
	)

	// SweepsTotal counts sweeps by result (completed, failed, skipped)
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcmon_sweeps_total",
			Help: "Total number of fleet sweeps",
		},
		[]string{"result"},
	)

	// SweepDuration tracks wall time of a full sweep
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rpcmon_sweep_duration_seconds",
			Help:    "Fleet sweep duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpcmon_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the configured maximum",
		},
	)
)
