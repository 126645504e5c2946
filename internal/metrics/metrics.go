package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Flowry
type Metrics struct {
	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Jobs
	JobsProcessedTotal *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	JobsPending        prometheus.Gauge
	JobsProcessing     prometheus.Gauge

	// Analysis
	ReadinessScore      prometheus.Histogram
	ReadinessCacheTotal *prometheus.CounterVec
	TextgenFallbacks    *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	CampaignsTotal   prometheus.Gauge
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowry_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_jobs_processed_total",
				Help: "Total number of background jobs finished",
			},
			[]string{"type", "status"},
		),
		JobDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowry_job_duration_seconds",
				Help:    "Background job duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"type"},
		),
		JobsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_jobs_pending",
				Help: "Number of jobs waiting for a worker",
			},
		),
		JobsProcessing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_jobs_processing",
				Help: "Number of jobs currently being processed",
			},
		),

		ReadinessScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowry_readiness_score",
				Help:    "Distribution of readiness scores",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		ReadinessCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_readiness_cache_total",
				Help: "Readiness cache lookups by result",
			},
			[]string{"result"},
		),
		TextgenFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_textgen_fallbacks_total",
				Help: "Text generation requests answered by the built-in fallback",
			},
			[]string{"feature"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowry_ratelimit_exceeded_total",
				Help: "Total number of rate limit exceeded events",
			},
			[]string{"level"},
		),

		CampaignsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_campaigns_total",
				Help: "Number of stored campaigns",
			},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowry_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.JobsProcessedTotal,
		m.JobDurationSeconds,
		m.JobsPending,
		m.JobsProcessing,
		m.ReadinessScore,
		m.ReadinessCacheTotal,
		m.TextgenFallbacks,
		m.RateLimitExceededTotal,
		m.CampaignsTotal,
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

// ObserveJob records a finished job
func ObserveJob(jobType, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
		m.JobDurationSeconds.WithLabelValues(jobType).Observe(seconds)
	}
}

// ObserveReadinessScore records a computed readiness score
func ObserveReadinessScore(score int) {
	m := Global()
	if m != nil {
		m.ReadinessScore.Observe(float64(score))
	}
}

// IncReadinessCache counts a cache lookup; result is hit, miss or error
func IncReadinessCache(result string) {
	m := Global()
	if m != nil {
		m.ReadinessCacheTotal.WithLabelValues(result).Inc()
	}
}

// IncTextgenFallback counts a request served by the fallback generator
func IncTextgenFallback(feature string) {
	m := Global()
	if m != nil {
		m.TextgenFallbacks.WithLabelValues(feature).Inc()
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
