package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the tax engine.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	ruleOutcomes       *prometheus.CounterVec
	dispatchRuns       *prometheus.CounterVec
	dispatchDuration   *prometheus.HistogramVec
	dispatchInFlight   prometheus.Gauge
	snapshotRules      prometheus.Gauge
}

// NewMetrics registers the instruments on reg. A nil registerer uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtax_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airtax_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtax_itinerary_evaluations_total",
		Help: "Itinerary evaluations by outcome.",
	}, []string{"outcome"})

	evaluationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airtax_itinerary_evaluation_duration_seconds",
		Help:    "Time to fold every candidate rule over one itinerary.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	ruleOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtax_rule_outcomes_total",
		Help: "Rule evaluations by result.",
	}, []string{"result"})

	dispatchRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "airtax_dispatch_runs_total",
		Help: "Dispatcher batches by status.",
	}, []string{"status"})

	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airtax_dispatch_duration_seconds",
		Help:    "Dispatcher batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	dispatchInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airtax_dispatch_in_flight",
		Help: "Itineraries currently being evaluated.",
	})

	snapshotRules := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airtax_rule_snapshot_rules",
		Help: "Rules held by the active snapshot.",
	})

	reg.MustRegister(
		apiRequests,
		apiDuration,
		evaluations,
		evaluationDuration,
		ruleOutcomes,
		dispatchRuns,
		dispatchDuration,
		dispatchInFlight,
		snapshotRules,
	)

	return &Metrics{
		apiRequests:        apiRequests,
		apiDuration:        apiDuration,
		evaluations:        evaluations,
		evaluationDuration: evaluationDuration,
		ruleOutcomes:       ruleOutcomes,
		dispatchRuns:       dispatchRuns,
		dispatchDuration:   dispatchDuration,
		dispatchInFlight:   dispatchInFlight,
		snapshotRules:      snapshotRules,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, sanitizeLabel(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// ObserveEvaluation records one itinerary evaluation.
func (m *Metrics) ObserveEvaluation(incomplete bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "complete"
	if incomplete {
		outcome = "incomplete"
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordRuleOutcome(result string) {
	if m == nil {
		return
	}
	m.ruleOutcomes.WithLabelValues(sanitizeLabel(result)).Inc()
}

// RecordDispatch registers dispatch batch metrics.
func (m *Metrics) RecordDispatch(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchRuns.WithLabelValues(sanitizeLabel(status)).Inc()
	m.dispatchDuration.WithLabelValues(sanitizeLabel(status)).Observe(duration.Seconds())
}

func (m *Metrics) AddInFlight(delta int) {
	if m == nil {
		return
	}
	m.dispatchInFlight.Add(float64(delta))
}

func (m *Metrics) SetSnapshotRules(n int) {
	if m == nil {
		return
	}
	m.snapshotRules.Set(float64(n))
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}

// InFlight exposes the in-flight gauge for tests and health reporting.
func (m *Metrics) InFlight() prometheus.Gauge {
	return m.dispatchInFlight
}
