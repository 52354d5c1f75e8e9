package metrics

import "github.com/prometheus/client_golang/prometheus"

type decisionMetrics struct {
	results  *prometheus.CounterVec
	deferred *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

func newDecisionMetrics() *decisionMetrics {
	return &decisionMetrics{
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "scheduling_results_total",
				Help: "Number of scheduling attempts by result",
			},
			[]string{schedulerLabel, resultLabel},
		),
		deferred: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "deferred_requests_total",
				Help: "Number of times a deferrable request was left queued during a high-carbon period",
			},
			[]string{schedulerLabel},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "skipped_requests_total",
				Help: "Number of times a request fit no host during a scheduling pass",
			},
			[]string{schedulerLabel},
		),
	}
}

func (m *decisionMetrics) describe(ch chan<- *prometheus.Desc) {
	m.results.Describe(ch)
	m.deferred.Describe(ch)
	m.skipped.Describe(ch)
}

func (m *decisionMetrics) collect(ch chan<- prometheus.Metric) {
	m.results.Collect(ch)
	m.deferred.Collect(ch)
	m.skipped.Collect(ch)
}

type optimiserMetrics struct {
	runs       *prometheus.CounterVec
	bestCost   prometheus.Gauge
	expansions prometheus.Histogram
}

func newOptimiserMetrics() *optimiserMetrics {
	return &optimiserMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "optimiser_runs_total",
				Help: "Number of batch optimisations by outcome",
			},
			[]string{outcomeLabel},
		),
		bestCost: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "optimiser_best_cost",
				Help: "Forecasted carbon exposure of the most recently committed batch schedule",
			},
		),
		expansions: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    prefix + "optimiser_expansions",
				Help:    "Number of search nodes expanded per batch optimisation",
				Buckets: prometheus.ExponentialBuckets(1, 4, 12),
			},
		),
	}
}

func (m *optimiserMetrics) describe(ch chan<- *prometheus.Desc) {
	m.runs.Describe(ch)
	m.bestCost.Describe(ch)
	m.expansions.Describe(ch)
}

func (m *optimiserMetrics) collect(ch chan<- prometheus.Metric) {
	m.runs.Collect(ch)
	m.bestCost.Collect(ch)
	m.expansions.Collect(ch)
}
