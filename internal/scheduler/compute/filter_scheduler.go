package compute

import (
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// FilterScheduler places the request at the head of the queue on the host that becomes available first
// among the best ranked hosts passing all filters.
type FilterScheduler struct {
	name     string
	selector *hostSelector
	metrics  *metrics.Metrics
}

func NewFilterScheduler(
	name string,
	hostFilters []filters.HostFilter,
	hostWeighers []weighers.HostWeigher,
	subsetSize int,
	m *metrics.Metrics,
) (*FilterScheduler, error) {
	selector, err := newHostSelector(hostFilters, hostWeighers, subsetSize)
	if err != nil {
		return nil, err
	}
	return &FilterScheduler{
		name:     name,
		selector: selector,
		metrics:  m,
	}, nil
}

func (s *FilterScheduler) AddHost(host *model.HostView) {
	s.selector.addHost(host)
}

func (s *FilterScheduler) RemoveHost(host *model.HostView) {
	s.selector.removeHost(host)
}

func (s *FilterScheduler) RemoveTask(_ *model.ServiceTask, _ *model.HostView) {}

func (s *FilterScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := s.selectHead(ctx, it)
	s.metrics.ReportResult(s.name, result.Type)
	return result
}

func (s *FilterScheduler) selectHead(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	for req, ok := it.Next(); ok; req, ok = it.Next() {
		if req.IsCancelled() {
			it.Remove()
			continue
		}
		host := s.selector.earliestAvailable(req.Task)
		if host == nil {
			ctx.Debugf("no host fits task %s", req.Task.Id)
			return model.Failure(req)
		}
		it.Remove()
		ctx.Debugf("placing task %s on host %s", req.Task.Id, host.Id)
		return model.Success(host, req)
	}
	return model.Empty()
}
