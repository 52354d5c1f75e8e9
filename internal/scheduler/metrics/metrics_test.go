package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

func TestReportResult(t *testing.T) {
	m := New()
	m.ReportResult("filter", model.ResultSuccess)
	m.ReportResult("filter", model.ResultSuccess)
	m.ReportResult("filter", model.ResultFailure)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.results.WithLabelValues("filter", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("filter", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.results.WithLabelValues("filter", "empty")))
}

func TestReportDeferredAndSkipped(t *testing.T) {
	m := New()
	m.ReportDeferred("timeshift")
	m.ReportSkipped("memorizing")
	m.ReportSkipped("memorizing")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deferred.WithLabelValues("timeshift")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.skipped.WithLabelValues("memorizing")))
}

func TestReportOptimiserRun(t *testing.T) {
	m := New()
	m.ReportOptimiserRun(OptimiserOutcomeOptimal, 12.5, 40)
	m.ReportOptimiserRun(OptimiserOutcomeGreedy, 0, 1000)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OptimiserOutcomeOptimal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OptimiserOutcomeGreedy)))
	// Greedy runs do not overwrite the committed cost.
	assert.Equal(t, 12.5, testutil.ToFloat64(m.bestCost))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReportResult("filter", model.ResultEmpty)
		m.ReportDeferred("filter")
		m.ReportSkipped("filter")
		m.ReportOptimiserRun(OptimiserOutcomeEmpty, 0, 0)
	})
}

func TestRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New()
	require.NoError(t, registry.Register(m))
	m.ReportResult("filter", model.ResultSuccess)
	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "carbonsched_scheduling_results_total")
	assert.Contains(t, names, "carbonsched_optimiser_best_cost")
}
