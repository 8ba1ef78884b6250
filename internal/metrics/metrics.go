package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Sigil
type Metrics struct {
	// Compilation counters
	CompilesTotal          *prometheus.CounterVec
	CompileWarningsTotal   *prometheus.CounterVec
	CompileDurationSeconds prometheus.Histogram

	// Deployment counters
	DeploysTotal         *prometheus.CounterVec
	DeploysFailedTotal   *prometheus.CounterVec
	DeploysDeferredTotal *prometheus.CounterVec

	// Queue gauges
	QueueSize     prometheus.Gauge
	QueueActive   prometheus.Gauge
	QueueDeferred prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		// Compilation counters
		CompilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_compiles_total",
				Help: "Total number of signature compilations",
			},
			[]string{"org"},
		),
		CompileWarningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_compile_warnings_total",
				Help: "Total number of diagnostics emitted during compilation",
			},
			[]string{"org"},
		),
		CompileDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sigil_compile_duration_seconds",
				Help:    "Signature compilation duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),

		// Deployment counters
		DeploysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_deploys_total",
				Help: "Total number of successful signature deployments",
			},
			[]string{"provider"},
		),
		DeploysFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_deploys_failed_total",
				Help: "Total number of permanently failed deployments",
			},
			[]string{"provider", "error_type"},
		),
		DeploysDeferredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_deploys_deferred_total",
				Help: "Total number of deployments deferred for retry",
			},
			[]string{"provider"},
		),

		// Queue gauges
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_queue_size",
				Help: "Total number of pending and deferred deployments in queue",
			},
		),
		QueueActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_queue_active",
				Help: "Number of deployments currently being processed",
			},
		),
		QueueDeferred: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_queue_deferred",
				Help: "Number of deployments awaiting retry",
			},
		),

		// API metrics
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigil_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		// Rate limiting
		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigil_ratelimit_exceeded_total",
				Help: "Total number of rate limit exceeded events",
			},
			[]string{"level"},
		),

		// System metrics
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigil_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.CompilesTotal,
		m.CompileWarningsTotal,
		m.CompileDurationSeconds,
		m.DeploysTotal,
		m.DeploysFailedTotal,
		m.DeploysDeferredTotal,
		m.QueueSize,
		m.QueueActive,
		m.QueueDeferred,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncCompiles increments the compilation counter
func IncCompiles(org string) {
	m := Global()
	if m != nil {
		m.CompilesTotal.WithLabelValues(org).Inc()
	}
}

// AddCompileWarnings adds emitted diagnostics to the warning counter
func AddCompileWarnings(org string, n int) {
	m := Global()
	if m != nil && n > 0 {
		m.CompileWarningsTotal.WithLabelValues(org).Add(float64(n))
	}
}

// ObserveCompileDuration records one compilation duration
func ObserveCompileDuration(seconds float64) {
	m := Global()
	if m != nil {
		m.CompileDurationSeconds.Observe(seconds)
	}
}

// IncDeploys increments the successful deployment counter
func IncDeploys(provider string) {
	m := Global()
	if m != nil {
		m.DeploysTotal.WithLabelValues(provider).Inc()
	}
}

// IncDeploysFailed increments the failed deployment counter
func IncDeploysFailed(provider, errorType string) {
	m := Global()
	if m != nil {
		m.DeploysFailedTotal.WithLabelValues(provider, errorType).Inc()
	}
}

// IncDeploysDeferred increments the deferred deployment counter
func IncDeploysDeferred(provider string) {
	m := Global()
	if m != nil {
		m.DeploysDeferredTotal.WithLabelValues(provider).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	m := Global()
	if m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
