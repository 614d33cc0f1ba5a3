// Package metrics exposes the worker's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Samples         *prometheus.CounterVec
	InvalidSamples  *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	StateChanges    *prometheus.CounterVec
	PollErrors      *prometheus.CounterVec
	ActiveJobs      prometheus.Gauge
	EvaluateSeconds prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extruder_samples_total",
			Help: "Samples accepted into a machine's history.",
		}, []string{"machine"}),
		InvalidSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extruder_invalid_samples_total",
			Help: "Samples rejected by validation and kept out of history.",
		}, []string{"machine"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extruder_classifications_total",
			Help: "Classification outcomes by state.",
		}, []string{"state"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extruder_state_changes_total",
			Help: "Recorded state transitions.",
		}, []string{"machine"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extruder_poll_errors_total",
			Help: "Failed source polls.",
		}, []string{"machine"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "extruder_active_jobs",
			Help: "Machines currently scheduled.",
		}),
		EvaluateSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extruder_evaluate_seconds",
			Help:    "Time spent classifying one sample.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
	m.reg.MustRegister(m.Samples, m.InvalidSamples, m.Classifications, m.StateChanges, m.PollErrors, m.ActiveJobs, m.EvaluateSeconds)
	return m
}

// Handler serves the registry for the worker's metrics listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
