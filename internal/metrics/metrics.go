// Package metrics exposes Prometheus instrumentation for the CAT service.
// The engines never touch it; the questions service records outcomes after
// each engine call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var CalibrationDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600}

type Metrics struct {
	registry *prometheus.Registry

	EngineCallsTotal      *prometheus.CounterVec
	DegradedTotal         *prometheus.CounterVec
	TerminationsTotal     *prometheus.CounterVec
	FraudScansTotal       *prometheus.CounterVec
	ItemCalibrationsTotal *prometheus.CounterVec
	CalibrationRunsTotal  *prometheus.CounterVec
	CalibrationDuration   prometheus.Histogram
}

// New registers every metric on a private registry so tests and multiple
// servers in one process never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EngineCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_engine_calls_total",
			Help: "Adaptive engine operations invoked.",
		}, []string{"operation"}),
		DegradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_degraded_results_total",
			Help: "Engine results that fell back to a conservative default.",
		}, []string{"operation", "reason"}),
		TerminationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_terminations_total",
			Help: "Sessions stopped by the termination rules.",
		}, []string{"reason"}),
		FraudScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_fraud_scans_total",
			Help: "Fraud scans by resulting risk level.",
		}, []string{"risk_level"}),
		ItemCalibrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_item_calibrations_total",
			Help: "Per-item calibrations by method.",
		}, []string{"method"}),
		CalibrationRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cat_calibration_runs_total",
			Help: "Calibration runs by final status.",
		}, []string{"status"}),
		CalibrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cat_calibration_duration_seconds",
			Help:    "Wall-clock duration of calibration runs.",
			Buckets: CalibrationDurationBuckets,
		}),
	}
	reg.MustRegister(
		m.EngineCallsTotal,
		m.DegradedTotal,
		m.TerminationsTotal,
		m.FraudScansTotal,
		m.ItemCalibrationsTotal,
		m.CalibrationRunsTotal,
		m.CalibrationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEngineCall counts an engine operation and, when degraded, its reason.
func (m *Metrics) RecordEngineCall(operation string, degraded bool, reason string) {
	m.EngineCallsTotal.WithLabelValues(operation).Inc()
	if degraded {
		m.DegradedTotal.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) RecordCalibrationRun(status string, elapsed time.Duration) {
	m.CalibrationRunsTotal.WithLabelValues(status).Inc()
	m.CalibrationDuration.Observe(elapsed.Seconds())
}
