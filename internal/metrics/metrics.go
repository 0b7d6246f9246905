// Package metrics holds the Prometheus instrumentation for reconciliation
// (C7/C8), git operations (C2), and registry probes (C4).
//
// Grounded on the teacher's internal/agent/metrics.go: a standalone
// prometheus.Registry (this service is not a controller-runtime Reconciler,
// so it has no CR to attach controller-runtime's global metrics.Registry
// to) with the process/Go collectors registered alongside the domain
// metrics, and a Handler() for wiring into an http.ServeMux.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every gauge/counter/histogram this service exports.
type Metrics struct {
	registry *prometheus.Registry

	ReconcileDuration *prometheus.HistogramVec
	ReconcileTotal    *prometheus.CounterVec
	EntriesObserved   prometheus.Gauge
	EntriesEnabled    prometheus.Gauge

	GitOperationDuration *prometheus.HistogramVec
	GitOperationTotal    *prometheus.CounterVec

	RegistryProbeDuration *prometheus.HistogramVec
	RegistryProbeTotal    *prometheus.CounterVec
}

// New builds and registers a fresh Metrics on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,

		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gitops_operator",
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Duration of a single Entry's reconciliation in seconds.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"namespace", "name", "result"},
		),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gitops_operator",
				Subsystem: "reconcile",
				Name:      "total",
				Help:      "Total number of Entry reconciliations.",
			},
			[]string{"namespace", "name", "result"},
		),
		EntriesObserved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gitops_operator",
				Subsystem: "dispatch",
				Name:      "entries_observed",
				Help:      "Number of Entries successfully parsed from the last cache snapshot.",
			},
		),
		EntriesEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gitops_operator",
				Subsystem: "dispatch",
				Name:      "entries_enabled",
				Help:      "Number of Entries dispatched (enabled) in the last /reconcile call.",
			},
		),

		GitOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gitops_operator",
				Subsystem: "gitengine",
				Name:      "operation_duration_seconds",
				Help:      "Duration of clone/fetch/push git operations in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operation", "result"},
		),
		GitOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gitops_operator",
				Subsystem: "gitengine",
				Name:      "operation_total",
				Help:      "Total number of clone/fetch/push git operations.",
			},
			[]string{"operation", "result"},
		),

		RegistryProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gitops_operator",
				Subsystem: "registry",
				Name:      "probe_duration_seconds",
				Help:      "Duration of image-existence registry probes in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		RegistryProbeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gitops_operator",
				Subsystem: "registry",
				Name:      "probe_total",
				Help:      "Total number of image-existence registry probes.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.ReconcileDuration,
		m.ReconcileTotal,
		m.EntriesObserved,
		m.EntriesEnabled,
		m.GitOperationDuration,
		m.GitOperationTotal,
		m.RegistryProbeDuration,
		m.RegistryProbeTotal,
	)

	return m
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReconcile satisfies internal/reconcile.Metrics.
func (m *Metrics) ObserveReconcile(namespace, name, result string, duration time.Duration) {
	m.ReconcileDuration.WithLabelValues(namespace, name, result).Observe(duration.Seconds())
	m.ReconcileTotal.WithLabelValues(namespace, name, result).Inc()
}

// ObserveGitOperation satisfies internal/gitengine.Metrics.
func (m *Metrics) ObserveGitOperation(operation, result string, duration time.Duration) {
	m.GitOperationDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
	m.GitOperationTotal.WithLabelValues(operation, result).Inc()
}

// ObserveRegistryProbe satisfies internal/registry.Metrics.
func (m *Metrics) ObserveRegistryProbe(result string, duration time.Duration) {
	m.RegistryProbeDuration.WithLabelValues(result).Observe(duration.Seconds())
	m.RegistryProbeTotal.WithLabelValues(result).Inc()
}

// SetEntriesObserved records how many Entries parsed cleanly from the last
// cache snapshot (dispatch.Entries).
func (m *Metrics) SetEntriesObserved(n int) {
	m.EntriesObserved.Set(float64(n))
}

// SetEntriesEnabled records how many Entries were dispatched in the last
// /reconcile call.
func (m *Metrics) SetEntriesEnabled(n int) {
	m.EntriesEnabled.Set(float64(n))
}
