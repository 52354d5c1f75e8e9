package compute

import (
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// Number of buckets allocated up front. More are added if a host ever runs more tasks.
const initialBuckets = 200

// MemorizingScheduler places tasks on the least loaded host passing all filters.
// Hosts are kept in a bucket queue: bucket k holds the hosts running exactly k tasks placed by this scheduler,
// and each host records its bucket (PriorityIndex) and position within it (ListIndex).
type MemorizingScheduler struct {
	name    string
	filters []filters.HostFilter
	buckets [][]*model.HostView
	// Lowest bucket that may be non-empty.
	minAvailableHost int
	numHosts         int
	maxTimesSkipped  int
	metrics          *metrics.Metrics
}

func NewMemorizingScheduler(name string, hostFilters []filters.HostFilter, maxTimesSkipped int, m *metrics.Metrics) *MemorizingScheduler {
	return &MemorizingScheduler{
		name:            name,
		filters:         hostFilters,
		buckets:         make([][]*model.HostView, initialBuckets),
		maxTimesSkipped: maxTimesSkipped,
		metrics:         m,
	}
}

// AddHost registers host in the lowest bucket. Adding a registered host has no effect.
func (s *MemorizingScheduler) AddHost(host *model.HostView) {
	if s.contains(host) {
		return
	}
	s.insert(host, 0)
	s.numHosts++
	s.minAvailableHost = 0
}

func (s *MemorizingScheduler) RemoveHost(host *model.HostView) {
	if !s.contains(host) {
		return
	}
	s.detach(host)
	s.numHosts--
	s.advanceMin()
}

// RemoveTask moves host one bucket down.
func (s *MemorizingScheduler) RemoveTask(_ *model.ServiceTask, host *model.HostView) {
	if host == nil || !s.contains(host) || host.PriorityIndex == 0 {
		return
	}
	to := host.PriorityIndex - 1
	s.detach(host)
	s.insert(host, to)
	if to < s.minAvailableHost {
		s.minAvailableHost = to
	}
}

func (s *MemorizingScheduler) Select(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	result := s.selectLeastLoaded(ctx, it)
	s.metrics.ReportResult(s.name, result.Type)
	return result
}

func (s *MemorizingScheduler) selectLeastLoaded(ctx *schedcontext.Context, it RequestIterator) model.SchedulingResult {
	if s.numHosts == 0 {
		return model.Failure(nil)
	}
	for req, ok := it.Next(); ok; req, ok = it.Next() {
		if req.IsCancelled() {
			it.Remove()
			continue
		}
		if host := s.firstFit(req.Task); host != nil {
			s.promote(host)
			it.Remove()
			ctx.Debugf("placing task %s on host %s with %d tasks", req.Task.Id, host.Id, host.PriorityIndex)
			return model.Success(host, req)
		}
		if req.TimesSkipped >= s.maxTimesSkipped {
			it.Remove()
			ctx.Infof("rejecting task %s after %d passes without a fitting host", req.Task.Id, req.TimesSkipped)
			return model.Failure(req)
		}
		req.TimesSkipped++
		s.metrics.ReportSkipped(s.name)
	}
	return model.Empty()
}

// firstFit scans buckets from the least loaded upwards and returns the first host passing all filters.
func (s *MemorizingScheduler) firstFit(task *model.ServiceTask) *model.HostView {
	for k := s.minAvailableHost; k < len(s.buckets); k++ {
		for _, host := range s.buckets[k] {
			if filters.All(s.filters, host, task) {
				return host
			}
		}
	}
	return nil
}

func (s *MemorizingScheduler) promote(host *model.HostView) {
	to := host.PriorityIndex + 1
	s.detach(host)
	s.insert(host, to)
	s.advanceMin()
}

func (s *MemorizingScheduler) contains(host *model.HostView) bool {
	p, l := host.PriorityIndex, host.ListIndex
	return p >= 0 && p < len(s.buckets) && l >= 0 && l < len(s.buckets[p]) && s.buckets[p][l] == host
}

func (s *MemorizingScheduler) insert(host *model.HostView, bucket int) {
	for bucket >= len(s.buckets) {
		s.buckets = append(s.buckets, nil)
	}
	host.PriorityIndex = bucket
	host.ListIndex = len(s.buckets[bucket])
	s.buckets[bucket] = append(s.buckets[bucket], host)
}

// detach removes host from its bucket by swapping it with the last host of the bucket.
func (s *MemorizingScheduler) detach(host *model.HostView) {
	bucket := s.buckets[host.PriorityIndex]
	last := bucket[len(bucket)-1]
	bucket[host.ListIndex] = last
	last.ListIndex = host.ListIndex
	bucket[len(bucket)-1] = nil
	s.buckets[host.PriorityIndex] = bucket[:len(bucket)-1]
}

func (s *MemorizingScheduler) advanceMin() {
	if s.numHosts == 0 {
		s.minAvailableHost = 0
		return
	}
	for s.minAvailableHost < len(s.buckets)-1 && len(s.buckets[s.minAvailableHost]) == 0 {
		s.minAvailableHost++
	}
}
