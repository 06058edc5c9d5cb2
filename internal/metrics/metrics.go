// Package metrics holds the service's Prometheus instruments. Each Metrics
// value owns its registry so tests can build as many as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geolocator"

// Outcome labels for AnalysesTotal.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Metrics bundles every instrument.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal   *prometheus.CounterVec
	ConfidenceFinal prometheus.Histogram
	RuleFiredTotal  *prometheus.CounterVec
	ModelDuration   prometheus.Histogram
	CacheHitsTotal  prometheus.Counter
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses by outcome (valid, invalid, failed).",
		}, []string{"outcome"}),
		ConfidenceFinal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_final",
			Help:      "Calibrated confidence of completed analyses.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		RuleFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_fired_total",
			Help:      "Calibration rules that lowered confidence.",
		}, []string{"rule"}),
		ModelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency of vision model calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Analyses served from the result cache.",
		}),
	}

	m.registry.MustRegister(
		m.AnalysesTotal,
		m.ConfidenceFinal,
		m.RuleFiredTotal,
		m.ModelDuration,
		m.CacheHitsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOutcome records a completed calibration.
func (m *Metrics) ObserveOutcome(valid bool, confidence int, fired []string) {
	outcome := OutcomeInvalid
	if valid {
		outcome = OutcomeValid
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	m.ConfidenceFinal.Observe(float64(confidence))
	for _, rule := range fired {
		m.RuleFiredTotal.WithLabelValues(rule).Inc()
	}
}

// ObserveFailure records an analysis that produced no outcome.
func (m *Metrics) ObserveFailure() {
	m.AnalysesTotal.WithLabelValues(OutcomeFailed).Inc()
}

// ObserveModelCall records a model round trip that started at start.
func (m *Metrics) ObserveModelCall(start time.Time) {
	m.ModelDuration.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
