package compute

import (
	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// WorkflowAwareScheduler places the most urgent ready request, favouring tasks deep in their workflow,
// on the host that becomes available first among the best ranked hosts.
type WorkflowAwareScheduler struct {
	name     string
	selector *hostSelector
	scorer   *workflowScorer
	metrics  *metrics.Metrics
}

func NewWorkflowAwareScheduler(
	name string,
	hostFilters []filters.HostFilter,
	hostWeighers []weighers.HostWeigher,
	subsetSize int,
	config configuration.WorkflowAwareConfig,
	clock clock.PassiveClock,
	m *metrics.Metrics,
) (*WorkflowAwareScheduler, error) {
	selector, err := newHostSelector(hostFilters, hostWeighers, subsetSize)
	if err != nil {
		return nil, err
	}
	scorer, err := newWorkflowScorer(config, clock)
	if err != nil {
		return nil, err
	}
	return &WorkflowAwareScheduler{
		name:     name,
		selector: selector,
		scorer:   scorer,
		metrics:  m,
	}, nil
}

func (s *WorkflowAwareScheduler) AddHost(host *model.HostView) {
	s.selector.addHost(host)
}

func (s *WorkflowAwareScheduler) RemoveHost(host *model.HostView) {
	s.selector.removeHost(host)
}

func (s *WorkflowAwareScheduler) RemoveTask(_ *model.ServiceTask, _ *model.HostView) {}

func (s *WorkflowAwareScheduler) SelectTask(ctx *schedcontext.Context, it RequestIterator) *model.SchedulingRequest {
	return s.scorer.selectTask(ctx, it, nil)
}

func (s *WorkflowAwareScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := placeSelected(ctx, it, s.SelectTask(ctx, it), s.selector.earliestAvailable)
	s.metrics.ReportResult(s.name, result.Type)
	return result
}

// placeSelected places req, as chosen by a TaskSelector, on the host returned by pick.
func placeSelected(
	ctx *schedcontext.Context,
	it RequestIterator,
	req *model.SchedulingRequest,
	pick func(*model.ServiceTask) *model.HostView,
) model.SchedulingResult {
	if req == nil {
		return model.Empty()
	}
	host := pick(req.Task)
	if host == nil {
		ctx.Debugf("no host fits task %s", req.Task.Id)
		return model.Failure(req)
	}
	removeRequest(it, req)
	ctx.Debugf("placing task %s on host %s", req.Task.Id, host.Id)
	return model.Success(host, req)
}
