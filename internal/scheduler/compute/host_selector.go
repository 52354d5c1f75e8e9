package compute

import (
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// hostSelector implements filter -> weigh -> subset host selection over a pool of hosts.
type hostSelector struct {
	hosts      []*model.HostView
	filters    []filters.HostFilter
	weighers   []weighers.HostWeigher
	subsetSize int
}

func newHostSelector(hostFilters []filters.HostFilter, hostWeighers []weighers.HostWeigher, subsetSize int) (*hostSelector, error) {
	if subsetSize < 1 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "subsetSize",
			Value:   subsetSize,
			Message: "outside allowed range [1, Inf)",
		})
	}
	return &hostSelector{
		filters:    hostFilters,
		weighers:   hostWeighers,
		subsetSize: subsetSize,
	}, nil
}

func (s *hostSelector) addHost(host *model.HostView) {
	if slices.Contains(s.hosts, host) {
		return
	}
	s.hosts = append(s.hosts, host)
}

func (s *hostSelector) removeHost(host *model.HostView) {
	if i := slices.Index(s.hosts, host); i >= 0 {
		s.hosts = slices.Delete(s.hosts, i, i+1)
	}
}

// subset returns the candidate hosts for task, best first.
// With weighers, these are the top subsetSize hosts by combined weight; otherwise all hosts passing the filters.
func (s *hostSelector) subset(task *model.ServiceTask) []*model.HostView {
	hosts := filters.Apply(s.filters, s.hosts, task)
	if len(s.weighers) == 0 || len(hosts) == 0 {
		return hosts
	}
	weights := weighers.Combine(s.weighers, hosts, task)
	indices := make([]int, len(hosts))
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) bool {
		return weights[a] > weights[b]
	})
	if len(indices) > s.subsetSize {
		indices = indices[:s.subsetSize]
	}
	rv := make([]*model.HostView, len(indices))
	for i, j := range indices {
		rv[i] = hosts[j]
	}
	return rv
}

// earliestAvailable returns the host of the subset for task which becomes available first, or nil if the subset is empty.
// Ties are broken in favour of the better ranked host.
func (s *hostSelector) earliestAvailable(task *model.ServiceTask) *model.HostView {
	var rv *model.HostView
	for _, host := range s.subset(task) {
		if rv == nil || host.BecomesAvailable.Before(rv.BecomesAvailable) {
			rv = host
		}
	}
	return rv
}

// random returns a host of the subset for task chosen uniformly at random, or nil if the subset is empty.
func (s *hostSelector) random(task *model.ServiceTask, r *rand.Rand) *model.HostView {
	candidates := s.subset(task)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[r.Intn(len(candidates))]
}

// removeRequest removes req from the requests of it. The iterator is left positioned after the removed request.
func removeRequest(it RequestIterator, req *model.SchedulingRequest) bool {
	it.Rewind()
	for r, ok := it.Next(); ok; r, ok = it.Next() {
		if r == req {
			it.Remove()
			return true
		}
	}
	return false
}
