package compute

import (
	"math/rand"

	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/carbon"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// TimeshiftScheduler leaves deferrable tasks queued during high-carbon periods, as long as they can still meet
// their deadline, and places other tasks on a host drawn at random from the best ranked hosts.
type TimeshiftScheduler struct {
	*carbon.Timeshifter
	name     string
	selector *hostSelector
	scanMode configuration.ScanMode
	rand     *rand.Rand
	clock    clock.PassiveClock
	metrics  *metrics.Metrics
}

func NewTimeshiftScheduler(
	name string,
	hostFilters []filters.HostFilter,
	hostWeighers []weighers.HostWeigher,
	subsetSize int,
	scanMode configuration.ScanMode,
	timeshifter *carbon.Timeshifter,
	r *rand.Rand,
	clock clock.PassiveClock,
	m *metrics.Metrics,
) (*TimeshiftScheduler, error) {
	selector, err := newHostSelector(hostFilters, hostWeighers, subsetSize)
	if err != nil {
		return nil, err
	}
	if scanMode == "" {
		scanMode = configuration.ScanModeFirst
	}
	return &TimeshiftScheduler{
		Timeshifter: timeshifter,
		name:        name,
		selector:    selector,
		scanMode:    scanMode,
		rand:        r,
		clock:       clock,
		metrics:     m,
	}, nil
}

func (s *TimeshiftScheduler) AddHost(host *model.HostView) {
	s.selector.addHost(host)
}

func (s *TimeshiftScheduler) RemoveHost(host *model.HostView) {
	s.selector.removeHost(host)
}

func (s *TimeshiftScheduler) RemoveTask(_ *model.ServiceTask, _ *model.HostView) {}

func (s *TimeshiftScheduler) UpdateCarbonIntensity(value float64) {
	s.Update(value)
}

func (s *TimeshiftScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := s.scan(ctx, it)
	s.metrics.ReportResult(s.name, result.Type)
	return result
}

func (s *TimeshiftScheduler) scan(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	now := s.clock.Now()
	var failure *model.SchedulingResult
	for req, ok := it.Next(); ok; req, ok = it.Next() {
		if req.IsCancelled() {
			it.Remove()
			continue
		}
		if s.ShouldDefer(req.Task, now) {
			ctx.Debugf("deferring task %s; intensity %f above threshold %f", req.Task.Id, s.Latest(), s.Threshold(req.Task.Duration))
			s.metrics.ReportDeferred(s.name)
			continue
		}
		host := s.selector.random(req.Task, s.rand)
		if host != nil {
			it.Remove()
			ctx.Debugf("placing task %s on host %s", req.Task.Id, host.Id)
			return model.Success(host, req)
		}
		result := model.Failure(req)
		if s.scanMode == configuration.ScanModeFirst {
			return result
		}
		failure = &result
	}
	if failure != nil {
		return *failure
	}
	return model.Empty()
}
