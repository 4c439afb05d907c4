// Package metrics exposes Prometheus counters for the planner.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the planner's collectors. It implements
// leave.Recorder and report.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	// AdmissionDecisions counts submissions by outcome: pending, waitlist,
	// needs_confirmation or rejected.
	AdmissionDecisions *prometheus.CounterVec
	// StoreConflicts counts compare-and-swap losses.
	StoreConflicts prometheus.Counter
	// ReportRuns counts scheduled report deliveries by result.
	ReportRuns *prometheus.CounterVec
	// HTTPRequests counts API requests by route and status.
	HTTPRequests *prometheus.CounterVec
	// HTTPLatency records API latency by route.
	HTTPLatency *prometheus.HistogramVec
}

// New creates a fresh registry with process and Go collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AdmissionDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_admission_decisions_total",
			Help: "Total number of leave submissions by outcome",
		}, []string{"outcome"}),
		StoreConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "planner_store_conflicts_total",
			Help: "Total number of request collection version conflicts",
		}),
		ReportRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_report_runs_total",
			Help: "Total number of report deliveries by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Decision(outcome string) {
	m.AdmissionDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreConflict() {
	m.StoreConflicts.Inc()
}

func (m *Metrics) ReportRun(result string) {
	m.ReportRuns.WithLabelValues(result).Inc()
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
