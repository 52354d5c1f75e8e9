package model

import (
	"fmt"
	"time"
)

type HostState int

const (
	HostStateUp HostState = iota
	HostStateDown
	HostStateError
)

func (s HostState) String() string {
	switch s {
	case HostStateUp:
		return "up"
	case HostStateDown:
		return "down"
	case HostStateError:
		return "error"
	default:
		return fmt.Sprintf("HostState(%d)", int(s))
	}
}

// HostView is a live snapshot of one execution host.
// It is owned by the host pool; schedulers only write PriorityIndex and ListIndex.
type HostView struct {
	Id string
	// Topology tag used by cluster affinity filters.
	Cluster string
	State   HostState
	// Total resources of the host.
	Capacity Resources
	// Resources not currently reserved by placed tasks.
	Available Resources
	// Number of tasks currently placed on the host.
	InstanceCount int
	// Instant at which the host is next expected to have free capacity.
	BecomesAvailable time.Time

	// Coordinates of the host in the MemorizingScheduler's bucket queue:
	// the bucket (number of tasks attributed to the host) and the position within that bucket.
	PriorityIndex int
	ListIndex     int
}

func NewHostView(id, cluster string, capacity Resources) *HostView {
	return &HostView{
		Id:        id,
		Cluster:   cluster,
		State:     HostStateUp,
		Capacity:  capacity.DeepCopy(),
		Available: capacity.DeepCopy(),
	}
}

// Reserve records that a task with the given demand has been placed on the host.
func (h *HostView) Reserve(demand Resources) {
	h.Available = h.Available.Sub(demand)
	h.InstanceCount++
}

// Release records that a task with the given demand has left the host.
func (h *HostView) Release(demand Resources) {
	h.Available = h.Available.Add(demand)
	if h.InstanceCount > 0 {
		h.InstanceCount--
	}
}

func (h *HostView) String() string {
	return fmt.Sprintf("host %s (cluster %s, available %s)", h.Id, h.Cluster, h.Available)
}
