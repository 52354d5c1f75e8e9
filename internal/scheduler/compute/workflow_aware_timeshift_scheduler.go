package compute

import (
	"math/rand"
	"time"

	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/carbon"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// WorkflowAwareTimeshiftScheduler scores ready requests like the WorkflowAwareScheduler after leaving
// deferrable tasks queued during high-carbon periods, and places the chosen task on a host drawn at random
// from the best ranked hosts.
type WorkflowAwareTimeshiftScheduler struct {
	*carbon.Timeshifter
	name     string
	selector *hostSelector
	scorer   *workflowScorer
	rand     *rand.Rand
	metrics  *metrics.Metrics
}

func NewWorkflowAwareTimeshiftScheduler(
	name string,
	hostFilters []filters.HostFilter,
	hostWeighers []weighers.HostWeigher,
	subsetSize int,
	config configuration.WorkflowAwareConfig,
	timeshifter *carbon.Timeshifter,
	r *rand.Rand,
	clock clock.PassiveClock,
	m *metrics.Metrics,
) (*WorkflowAwareTimeshiftScheduler, error) {
	selector, err := newHostSelector(hostFilters, hostWeighers, subsetSize)
	if err != nil {
		return nil, err
	}
	scorer, err := newWorkflowScorer(config, clock)
	if err != nil {
		return nil, err
	}
	return &WorkflowAwareTimeshiftScheduler{
		Timeshifter: timeshifter,
		name:        name,
		selector:    selector,
		scorer:      scorer,
		rand:        r,
		metrics:     m,
	}, nil
}

func (s *WorkflowAwareTimeshiftScheduler) AddHost(host *model.HostView) {
	s.selector.addHost(host)
}

func (s *WorkflowAwareTimeshiftScheduler) RemoveHost(host *model.HostView) {
	s.selector.removeHost(host)
}

func (s *WorkflowAwareTimeshiftScheduler) RemoveTask(_ *model.ServiceTask, _ *model.HostView) {}

func (s *WorkflowAwareTimeshiftScheduler) UpdateCarbonIntensity(value float64) {
	s.Update(value)
}

func (s *WorkflowAwareTimeshiftScheduler) SelectTask(ctx *schedcontext.Context, it RequestIterator) *model.SchedulingRequest {
	return s.scorer.selectTask(ctx, it, func(req *model.SchedulingRequest, now time.Time) bool {
		if s.ShouldDefer(req.Task, now) {
			s.metrics.ReportDeferred(s.name)
			return false
		}
		return true
	})
}

func (s *WorkflowAwareTimeshiftScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := placeSelected(ctx, it, s.SelectTask(ctx, it), func(task *model.ServiceTask) *model.HostView {
		return s.selector.random(task, s.rand)
	})
	s.metrics.ReportResult(s.name, result.Type)
	return result
}
