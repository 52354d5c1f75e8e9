package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// Metrics are the metrics produced by the scheduler family.
// All methods are safe to call on a nil *Metrics, in which case they do nothing.
type Metrics struct {
	*decisionMetrics
	*optimiserMetrics
}

func New() *Metrics {
	return &Metrics{
		decisionMetrics:  newDecisionMetrics(),
		optimiserMetrics: newOptimiserMetrics(),
	}
}

// Describe is necessary to implement the prometheus.Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.decisionMetrics.describe(ch)
	m.optimiserMetrics.describe(ch)
}

// Collect is necessary to implement the prometheus.Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.decisionMetrics.collect(ch)
	m.optimiserMetrics.collect(ch)
}

func (m *Metrics) ReportResult(scheduler string, resultType model.ResultType) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(scheduler, resultType.String()).Inc()
}

// ReportDeferred records a request left queued because the present is a high-carbon period.
func (m *Metrics) ReportDeferred(scheduler string) {
	if m == nil {
		return
	}
	m.deferred.WithLabelValues(scheduler).Inc()
}

// ReportSkipped records a request that fit no host in a scheduling pass.
func (m *Metrics) ReportSkipped(scheduler string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(scheduler).Inc()
}

// ReportOptimiserRun records one batch optimisation.
func (m *Metrics) ReportOptimiserRun(outcome string, bestCost float64, expansions int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == OptimiserOutcomeOptimal {
		m.bestCost.Set(bestCost)
	}
	m.expansions.Observe(float64(expansions))
}
