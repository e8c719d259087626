// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Deployment metrics
	DeploymentsStarted   prometheus.Counter
	DeploymentsCompleted prometheus.Counter
	DeploymentsFailed    *prometheus.CounterVec
	DeploymentsResumed   prometheus.Counter
	StepsCompleted       *prometheus.CounterVec

	// Submission metrics
	SubmissionAttempts  *prometheus.CounterVec
	SubmissionRetries   *prometheus.CounterVec
	SubmissionOutcomes  *prometheus.CounterVec
	FeeBumps            prometheus.Counter
	IndeterminateProbes prometheus.Counter

	// Signing metrics
	SigningRequests   prometheus.Counter
	SigningRejections prometheus.Counter

	// Latency metrics
	StepDuration       *prometheus.HistogramVec
	SubmissionLatency  prometheus.Histogram
	ConfirmationRounds prometheus.Histogram
	RPCCallLatency     *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulDeployment prometheus.Gauge
	SessionsInFlight         prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stellar_token_lab"
	}

	return &Metrics{
		// Deployment metrics
		DeploymentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_started_total",
			Help:      "Total number of deployment sessions started",
		}),
		DeploymentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_completed_total",
			Help:      "Total number of deployment sessions that reached INITIALIZED",
		}),
		DeploymentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_failed_total",
			Help:      "Total number of deployment sessions that failed, by step",
		}, []string{"step"}),
		DeploymentsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_resumed_total",
			Help:      "Total number of sessions re-entered via resume",
		}),
		StepsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "steps_completed_total",
			Help:      "Total number of pipeline steps completed, by step",
		}, []string{"step"}),

		// Submission metrics
		SubmissionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "attempts_total",
			Help:      "Total number of transaction submission attempts, by step",
		}, []string{"step"}),
		SubmissionRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "retries_total",
			Help:      "Total number of submission retries, by error class",
		}, []string{"error_class"}),
		SubmissionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "outcomes_total",
			Help:      "Total number of submission outcomes, by outcome",
		}, []string{"outcome"}),
		FeeBumps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "fee_bumps_total",
			Help:      "Total number of fee bumps applied on retry",
		}),
		IndeterminateProbes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "indeterminate_probes_total",
			Help:      "Total number of GetTransaction probes resolving unknown outcomes",
		}),

		// Signing metrics
		SigningRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "requests_total",
			Help:      "Total number of signing requests issued",
		}),
		SigningRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signer",
			Name:      "rejections_total",
			Help:      "Total number of signing requests the signer declined",
		}),

		// Latency metrics
		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "step_duration_seconds",
			Help:      "Wall time per pipeline step, by step",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
		SubmissionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "latency_seconds",
			Help:      "Latency of a single submission round trip",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ConfirmationRounds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "confirmation_polls",
			Help:      "Number of GetTransaction polls until a definitive outcome",
			Buckets:   prometheus.LinearBuckets(1, 1, 20),
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency by database and operation",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors by database and operation",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulDeployment: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last completed deployment",
		}),
		SessionsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "sessions_in_flight",
			Help:      "Number of deployment sessions currently executing",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
