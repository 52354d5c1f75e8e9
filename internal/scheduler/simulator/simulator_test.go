package simulator

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/carbonsched/carbonsched/internal/common/pointer"
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
)

func TestSimulator(t *testing.T) {
	tests := map[string]struct {
		clusterSpec  *ClusterSpec
		workloadSpec *WorkloadSpec
		carbonSpec   *CarbonSpec
		config       configuration.SchedulerConfig
		expected     WorkflowSummary
	}{
		"two tasks in parallel": {
			clusterSpec:  singleHostCluster("2"),
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 2, time.Hour)),
			config:       configuration.Default(),
			expected:     WorkflowSummary{Submitted: 2, Completed: 2, Makespan: time.Hour},
		},
		"tasks queue for a single core": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 3, time.Hour)),
			config:       configuration.Default(),
			expected: WorkflowSummary{
				Submitted: 3,
				Completed: 3,
				TotalWait: 3 * time.Hour,
				Makespan:  3 * time.Hour,
			},
		},
		"dependant submitted once its parent completes": {
			clusterSpec: singleHostCluster("1"),
			workloadSpec: singleWorkflow(
				TaskTemplateOneCpu("a", 1, time.Hour),
				WithDependencies(TaskTemplateOneCpu("b", 1, time.Hour), "a"),
			),
			config:   configuration.Default(),
			expected: WorkflowSummary{Submitted: 2, Completed: 2, Makespan: 2 * time.Hour},
		},
		"task selector sees dependants from their submit time": {
			clusterSpec: singleHostCluster("4"),
			workloadSpec: singleWorkflow(
				TaskTemplateOneCpu("a", 1, time.Hour),
				WithDependencies(TaskTemplateOneCpu("b", 1, time.Hour), "a"),
			),
			config: withType(configuration.Default(), configuration.WorkflowAwareSchedulerType),
			expected: WorkflowSummary{
				Submitted: 2,
				Completed: 2,
				TotalWait: time.Hour,
				Makespan:  2 * time.Hour,
			},
		},
		"memorizing scheduler rejects a task that never fits and abandons its dependants": {
			clusterSpec: singleHostCluster("1"),
			workloadSpec: singleWorkflow(
				WithCpu(TaskTemplateOneCpu("big", 1, time.Hour), "4"),
				WithDependencies(TaskTemplateOneCpu("after", 2, time.Hour), "big"),
			),
			config: func() configuration.SchedulerConfig {
				c := withType(configuration.Default(), configuration.MemorizingSchedulerType)
				c.Memorizing.MaxTimesSkipped = pointer.Pointer(2)
				return c
			}(),
			expected: WorkflowSummary{Submitted: 1, Rejected: 1, Abandoned: 2},
		},
		"missed deadlines are counted": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(WithDeadline(TaskTemplateOneCpu("a", 2, time.Hour), time.Hour)),
			config:       configuration.Default(),
			expected: WorkflowSummary{
				Submitted:       2,
				Completed:       2,
				DeadlinesMissed: 1,
				TotalWait:       time.Hour,
				Makespan:        2 * time.Hour,
			},
		},
		"carbon-aware workflow scheduler starts tasks in low-carbon slots": {
			clusterSpec: singleHostCluster("4"),
			workloadSpec: singleWorkflow(
				TaskTemplateOneCpu("a", 1, time.Hour),
				WithDependencies(TaskTemplateOneCpu("b", 1, time.Hour), "a"),
			),
			carbonSpec: &CarbonSpec{Name: "alternating", Step: time.Hour, Values: []float64{10, 1, 10, 1}},
			config: func() configuration.SchedulerConfig {
				c := withType(configuration.Default(), configuration.CarbonAwareWorkflowSchedulerType)
				c.CarbonAware = configuration.CarbonAwareConfig{
					SlotLength:             time.Hour,
					OptimizationInterval:   time.Hour,
					HorizonSlots:           4,
					SearchWindowSize:       4,
					MaxSlotsToTry:          4,
					MaxExpansions:          1000,
					BatchSize:              16,
					DefaultCarbonIntensity: 400,
				}
				return c
			}(),
			expected: WorkflowSummary{
				Submitted:      2,
				Completed:      2,
				TotalWait:      4 * time.Hour,
				Makespan:       4 * time.Hour,
				CarbonExposure: 2,
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := NewSimulator(tc.clusterSpec, tc.workloadSpec, tc.carbonSpec, tc.config, metrics.New(), Options{})
			require.NoError(t, err)
			require.NoError(t, s.Run(schedcontext.Background()))

			summary := s.Summary()
			assert.Equal(t, 0, summary.Unfinished)
			assert.Equal(t, tc.expected.Submitted, summary.Total.Submitted)
			assert.Equal(t, tc.expected.Completed, summary.Total.Completed)
			assert.Equal(t, tc.expected.Rejected, summary.Total.Rejected)
			assert.Equal(t, tc.expected.Abandoned, summary.Total.Abandoned)
			assert.Equal(t, tc.expected.DeadlinesMissed, summary.Total.DeadlinesMissed)
			assert.Equal(t, tc.expected.TotalWait, summary.Total.TotalWait)
			assert.Equal(t, tc.expected.Makespan, summary.Total.Makespan)
			assert.InDelta(t, tc.expected.CarbonExposure, summary.Total.CarbonExposure, 1e-9)
			assert.Equal(t, summary.Total, summary.ByWorkflow["workflow"])
		})
	}
}

func TestSimulator_HardTermination(t *testing.T) {
	s, err := NewSimulator(
		singleHostCluster("1"),
		singleWorkflow(TaskTemplateOneCpu("a", 3, time.Hour)),
		nil,
		configuration.Default(),
		nil,
		Options{HardTermination: 90 * time.Minute},
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(schedcontext.Background()))
	assert.Equal(t, 1, s.Summary().Total.Completed)
	assert.Equal(t, 2, s.Summary().Unfinished)
	assert.Equal(t, 1, s.Summary().Queued)
}

func TestSimulator_StopsWhenIdle(t *testing.T) {
	// The filter scheduler leaves a request it cannot place queued, so only the idle limit ends the run.
	s, err := NewSimulator(
		singleHostCluster("1"),
		singleWorkflow(WithCpu(TaskTemplateOneCpu("big", 1, time.Hour), "4")),
		nil,
		configuration.Default(),
		nil,
		Options{MaxIdle: time.Hour},
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(schedcontext.Background()))
	assert.Equal(t, 1, s.Summary().Total.Submitted)
	assert.Equal(t, 1, s.Summary().Unfinished)
	assert.Equal(t, 1, s.Summary().Queued)
	assert.Equal(t, epochStart.Add(time.Hour), s.Now())
}

func TestSimulator_CountsOvercommittedPlacements(t *testing.T) {
	// Without filters, the second task is placed on a host that has no free core left.
	c := configuration.Default()
	c.Filters = nil
	s, err := NewSimulator(singleHostCluster("1"), singleWorkflow(TaskTemplateOneCpu("a", 2, time.Hour)), nil, c, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Run(schedcontext.Background()))
	assert.Equal(t, 2, s.Summary().Total.Completed)
	assert.Equal(t, 1, s.Summary().Overcommitted)
	assert.Equal(t, 0, s.Summary().Queued)
	assert.Equal(t, time.Hour, s.Summary().Total.Makespan)
}

func TestSimulator_RepeatedTemplates(t *testing.T) {
	template := TaskTemplateOneCpu("a", 1, time.Hour)
	template.Repeat = &RepeatDetails{NumTimes: 3, Period: 2 * time.Hour}
	s, err := NewSimulator(singleHostCluster("1"), singleWorkflow(template), nil, configuration.Default(), nil, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Run(schedcontext.Background()))
	assert.Equal(t, 3, s.Summary().Total.Completed)
	assert.Equal(t, 5*time.Hour, s.Summary().Total.Makespan)
	assert.Equal(t, time.Duration(0), s.Summary().Total.TotalWait)
}

func TestSimulator_PlacementsByCluster(t *testing.T) {
	clusterSpec := &ClusterSpec{
		Name: "two-clusters",
		Clusters: []*Cluster{
			{Name: "east", HostTemplates: []*HostTemplate{HostTemplateCpu(1, "4")}},
			{Name: "west", HostTemplates: []*HostTemplate{HostTemplateCpu(1, "4")}},
		},
	}
	pinned := TaskTemplateOneCpu("pinned", 3, time.Hour)
	pinned.Cluster = "west"
	c := configuration.Default()
	c.Filters = append(c.Filters, configuration.FilterConfig{Name: "cluster"})

	s, err := NewSimulator(clusterSpec, singleWorkflow(pinned), nil, c, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Run(schedcontext.Background()))
	assert.Equal(t, map[string]int{"west": 3}, s.Summary().PlacementsByCluster)
}

func TestNewSimulator_InvalidSpecs(t *testing.T) {
	tests := map[string]struct {
		clusterSpec  *ClusterSpec
		workloadSpec *WorkloadSpec
		carbonSpec   *CarbonSpec
		config       configuration.SchedulerConfig
	}{
		"no clusters": {
			clusterSpec:  &ClusterSpec{Name: "empty"},
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 1, time.Hour)),
			config:       configuration.Default(),
		},
		"duplicate cluster names": {
			clusterSpec: &ClusterSpec{
				Name: "dup",
				Clusters: []*Cluster{
					{Name: "c", HostTemplates: []*HostTemplate{HostTemplateCpu(1, "1")}},
					{Name: "c", HostTemplates: []*HostTemplate{HostTemplateCpu(1, "1")}},
				},
			},
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 1, time.Hour)),
			config:       configuration.Default(),
		},
		"unknown dependency": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(WithDependencies(TaskTemplateOneCpu("a", 1, time.Hour), "missing")),
			config:       configuration.Default(),
		},
		"dependency on a repeated template": {
			clusterSpec: singleHostCluster("1"),
			workloadSpec: singleWorkflow(
				func() *TaskTemplate {
					t := TaskTemplateOneCpu("a", 1, time.Hour)
					t.Repeat = &RepeatDetails{NumTimes: 2, Period: time.Hour}
					return t
				}(),
				WithDependencies(TaskTemplateOneCpu("b", 1, time.Hour), "a"),
			),
			config: configuration.Default(),
		},
		"duplicate template ids": {
			clusterSpec: singleHostCluster("1"),
			workloadSpec: singleWorkflow(
				TaskTemplateOneCpu("a", 1, time.Hour),
				TaskTemplateOneCpu("a", 1, time.Hour),
			),
			config: configuration.Default(),
		},
		"zero task instances": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 0, time.Hour)),
			config:       configuration.Default(),
		},
		"empty carbon trace": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 1, time.Hour)),
			carbonSpec:   &CarbonSpec{Name: "empty", Step: time.Hour},
			config:       configuration.Default(),
		},
		"unknown scheduler type": {
			clusterSpec:  singleHostCluster("1"),
			workloadSpec: singleWorkflow(TaskTemplateOneCpu("a", 1, time.Hour)),
			config:       withType(configuration.Default(), "round-robin"),
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewSimulator(tc.clusterSpec, tc.workloadSpec, tc.carbonSpec, tc.config, nil, Options{})
			assert.Error(t, err)
		})
	}
}

func TestValidateWorkloadSpec_ReportsEveryProblem(t *testing.T) {
	workloadSpec := singleWorkflow(
		TaskTemplateOneCpu("a", 1, time.Hour),
		TaskTemplateOneCpu("a", 1, time.Hour),
		WithDependencies(TaskTemplateOneCpu("b", 1, time.Hour), "missing"),
	)
	err := validateWorkloadSpec(workloadSpec)
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestSimulator_TaskIdsAreReproducible(t *testing.T) {
	taskIds := func() []string {
		s, err := NewSimulator(
			singleHostCluster("1"),
			singleWorkflow(TaskTemplateOneCpu("a", 3, time.Hour)),
			nil,
			configuration.Default(),
			nil,
			Options{},
		)
		require.NoError(t, err)
		rv := maps.Keys(s.tasksById)
		slices.Sort(rv)
		return rv
	}
	first := taskIds()
	assert.Len(t, first, 3)
	assert.Equal(t, first, taskIds())
	for _, id := range first {
		_, err := ulid.ParseStrict(strings.ToUpper(id))
		assert.NoError(t, err)
	}
}

func TestCarbonExposure(t *testing.T) {
	s, err := NewSimulator(
		singleHostCluster("1"),
		singleWorkflow(TaskTemplateOneCpu("a", 1, time.Hour)),
		&CarbonSpec{Name: "trace", Step: time.Hour, Values: []float64{10, 1}},
		configuration.Default(),
		nil,
		Options{},
	)
	require.NoError(t, err)
	tests := map[string]struct {
		start    time.Duration
		end      time.Duration
		cores    float64
		expected float64
	}{
		"within one sample":          {start: 0, end: 30 * time.Minute, cores: 1, expected: 5},
		"across samples":             {start: 30 * time.Minute, end: 90 * time.Minute, cores: 1, expected: 5.5},
		"past the end of trace":      {start: 30 * time.Minute, end: 150 * time.Minute, cores: 2, expected: 13},
		"entirely past the end":      {start: 3 * time.Hour, end: 4 * time.Hour, cores: 1, expected: 1},
		"scaled by fractional cores": {start: 0, end: time.Hour, cores: 0.5, expected: 5},
		"empty interval":             {start: time.Hour, end: time.Hour, cores: 1, expected: 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			actual := s.carbonExposure(epochStart.Add(tc.start), epochStart.Add(tc.end), tc.cores)
			assert.InDelta(t, tc.expected, actual, 1e-9)
		})
	}
}

func TestExpandRepeatingTemplates(t *testing.T) {
	template := TaskTemplateOneCpu("a", 1, time.Hour)
	template.EarliestSubmitTime = time.Minute
	template.Repeat = &RepeatDetails{NumTimes: 3, Period: time.Hour}
	original := singleWorkflow(template, TaskTemplateOneCpu("b", 1, time.Hour))

	expanded := expandRepeatingTemplates(original)

	require.Len(t, expanded.Workflows, 1)
	var ids []string
	var submitTimes []time.Duration
	for _, template := range expanded.Workflows[0].TaskTemplates {
		assert.Nil(t, template.Repeat)
		ids = append(ids, template.Id)
		submitTimes = append(submitTimes, template.EarliestSubmitTime)
	}
	assert.Equal(t, []string{"a-repeat-0", "a-repeat-1", "a-repeat-2", "b"}, ids)
	assert.Equal(t, []time.Duration{time.Minute, 61 * time.Minute, 121 * time.Minute, 0}, submitTimes)
	// The input is left untouched.
	assert.Len(t, original.Workflows[0].TaskTemplates, 2)
	assert.NotNil(t, original.Workflows[0].TaskTemplates[0].Repeat)
}

func TestGenerateRandomShiftedExponentialDuration(t *testing.T) {
	r := newTestRand()
	assert.Equal(t, time.Hour, generateRandomShiftedExponentialDuration(r, ShiftedExponential{Minimum: time.Hour}))
	for i := 0; i < 100; i++ {
		d := generateRandomShiftedExponentialDuration(r, ShiftedExponential{Minimum: time.Hour, TailMean: time.Minute})
		assert.GreaterOrEqual(t, d, time.Hour)
	}
}
