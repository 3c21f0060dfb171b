// Package metrics exposes Prometheus metrics for the HTTP layer, uploads and synthesis jobs
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors of the service. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	uploadsTotal *prometheus.CounterVec

	jobsTotal           *prometheus.CounterVec
	jobDuration         prometheus.Histogram
	jobQueueDepth       prometheus.Gauge
	candidatesEvaluated prometheus.Counter

	cacheRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry returns the registry the metrics were registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volt_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "volt_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route"},
	)

	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volt_gpx_uploads_total",
			Help: "Total number of GPX uploads",
		},
		[]string{"result"}, // accepted, rejected
	)

	m.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volt_synthesis_jobs_total",
			Help: "Synthesis jobs by final status",
		},
		[]string{"status"},
	)

	m.jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volt_synthesis_job_duration_seconds",
			Help:    "Time from job start to completion",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	m.jobQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "volt_synthesis_queue_depth",
			Help: "Jobs waiting for a worker",
		},
	)

	m.candidatesEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volt_synthesis_candidates_evaluated_total",
			Help: "Candidate routes scored by the synthesis engine",
		},
	)

	m.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volt_cache_requests_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"}, // result: hit, miss
	)
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.uploadsTotal.Describe(ch)
	m.jobsTotal.Describe(ch)
	m.jobDuration.Describe(ch)
	m.jobQueueDepth.Describe(ch)
	m.candidatesEvaluated.Describe(ch)
	m.cacheRequestsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.uploadsTotal.Collect(ch)
	m.jobsTotal.Collect(ch)
	m.jobDuration.Collect(ch)
	m.jobQueueDepth.Collect(ch)
	m.candidatesEvaluated.Collect(ch)
	m.cacheRequestsTotal.Collect(ch)
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) RecordUpload(result string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(result).Inc()
}

// RecordJob records a job reaching a terminal status
func (m *Metrics) RecordJob(status string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.Observe(seconds)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.jobQueueDepth.Set(float64(n))
}

func (m *Metrics) AddCandidates(n int) {
	if m == nil {
		return
	}
	m.candidatesEvaluated.Add(float64(n))
}

func (m *Metrics) RecordCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}
