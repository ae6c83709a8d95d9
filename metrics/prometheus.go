package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postforge/core"
)

const namespace = "postforge"

// LatencyBuckets span fast local renders up to slow image generations.
var LatencyBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics owns a private registry and implements the observer interfaces of
// the retry, compose and jobs packages.
type Metrics struct {
	registry *prometheus.Registry
	store    Collector

	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	Renders          *prometheus.CounterVec
	RenderLatency    *prometheus.HistogramVec
	Jobs             *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	QueueDepth       prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry. Finished jobs and
// renders are also recorded in store when it is non-nil.
func New(store Collector) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		store:    store,
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by component, provider, model and outcome.",
		}, []string{"component", "provider", "model", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency.",
			Buckets:   LatencyBuckets,
		}, []string{"component", "provider"}),
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Backend renders by engine and outcome.",
		}, []string{"engine", "outcome"}),
		RenderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Backend render duration.",
			Buckets:   LatencyBuckets,
		}, []string{"engine"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished background jobs by status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job duration.",
			Buckets:   LatencyBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   LatencyBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProviderAttempts,
		m.ProviderLatency,
		m.Renders,
		m.RenderLatency,
		m.Jobs,
		m.JobDuration,
		m.QueueDepth,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt implements retry.Observer.
func (m *Metrics) ObserveAttempt(component, provider, model, outcome string, elapsed time.Duration) {
	m.ProviderAttempts.WithLabelValues(component, provider, model, outcome).Inc()
	m.ProviderLatency.WithLabelValues(component, provider).Observe(elapsed.Seconds())
}

// ObserveRender implements compose.Observer.
func (m *Metrics) ObserveRender(engine core.Engine, outcome string, elapsed time.Duration) {
	m.Renders.WithLabelValues(string(engine), outcome).Inc()
	m.RenderLatency.WithLabelValues(string(engine)).Observe(elapsed.Seconds())
}

// ObserveJob implements jobs.Observer.
func (m *Metrics) ObserveJob(status string, elapsed time.Duration) {
	m.Jobs.WithLabelValues(status).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
	m.record(RunTypePost, status == "completed", elapsed, "")
}

// SetQueueDepth implements jobs.Observer.
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// ObserveHTTP records one served request. route is the chi route pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordRun adds a synchronous run, such as a direct composition, to the
// run history.
func (m *Metrics) RecordRun(runType string, err error, elapsed time.Duration) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.record(runType, err == nil, elapsed, msg)
}

func (m *Metrics) record(runType string, ok bool, elapsed time.Duration, errMsg string) {
	if m.store == nil {
		return
	}
	end := time.Now()
	status := RunStatusSuccess
	if !ok {
		status = RunStatusError
	}
	m.store.RecordRun(RunRecord{
		Type:      runType,
		Status:    status,
		StartTime: end.Add(-elapsed),
		EndTime:   end,
		Duration:  elapsed,
		ErrorMsg:  errMsg,
	})
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
