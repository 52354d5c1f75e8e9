// Package filters contains the hard admission predicates a host must pass before a task may be placed on it.
package filters

import (
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// HostFilter decides whether a task may be placed on a host.
type HostFilter interface {
	Test(host *model.HostView, task *model.ServiceTask) bool
}

// All is true if every filter accepts the host.
func All(filters []HostFilter, host *model.HostView, task *model.ServiceTask) bool {
	for _, f := range filters {
		if !f.Test(host, task) {
			return false
		}
	}
	return true
}

// Apply returns the hosts accepted by every filter, preserving order.
func Apply(filters []HostFilter, hosts []*model.HostView, task *model.ServiceTask) []*model.HostView {
	rv := make([]*model.HostView, 0, len(hosts))
	for _, host := range hosts {
		if All(filters, host, task) {
			rv = append(rv, host)
		}
	}
	return rv
}

// ComputeFilter accepts hosts that are up.
type ComputeFilter struct{}

func (ComputeFilter) Test(host *model.HostView, _ *model.ServiceTask) bool {
	return host.State == model.HostStateUp
}

// VCpuFilter accepts hosts with enough unreserved cores, where the host's core count
// is overcommitted by AllocationRatio.
type VCpuFilter struct {
	AllocationRatio float64
}

func (f VCpuFilter) Test(host *model.HostView, task *model.ServiceTask) bool {
	capacity := float64(host.Capacity.Cpu.MilliValue())
	used := capacity - float64(host.Available.Cpu.MilliValue())
	return float64(task.Demand.Cpu.MilliValue()) <= capacity*ratio(f.AllocationRatio)-used
}

// RamFilter accepts hosts with enough unreserved memory, where the host's memory
// is overcommitted by AllocationRatio.
type RamFilter struct {
	AllocationRatio float64
}

func (f RamFilter) Test(host *model.HostView, task *model.ServiceTask) bool {
	capacity := float64(host.Capacity.Memory.Value())
	used := capacity - float64(host.Available.Memory.Value())
	return float64(task.Demand.Memory.Value()) <= capacity*ratio(f.AllocationRatio)-used
}

// GpuFilter accepts hosts with enough free GPUs. Tasks not requesting GPUs pass on any host.
type GpuFilter struct{}

func (GpuFilter) Test(host *model.HostView, task *model.ServiceTask) bool {
	if task.Demand.Gpu.IsZero() {
		return true
	}
	return task.Demand.Gpu.Cmp(host.Available.Gpu) <= 0
}

// VCpuCapacityFilter accepts hosts whose total core count could ever run the task, regardless of current load.
type VCpuCapacityFilter struct{}

func (VCpuCapacityFilter) Test(host *model.HostView, task *model.ServiceTask) bool {
	return task.Demand.Cpu.Cmp(host.Capacity.Cpu) <= 0
}

// ClusterFilter accepts hosts of the cluster a task is pinned to. Tasks without affinity pass on any host.
type ClusterFilter struct{}

func (ClusterFilter) Test(host *model.HostView, task *model.ServiceTask) bool {
	return task.Cluster == "" || task.Cluster == host.Cluster
}

// InstanceCountFilter accepts hosts running fewer than Limit tasks.
type InstanceCountFilter struct {
	Limit int
}

func (f InstanceCountFilter) Test(host *model.HostView, _ *model.ServiceTask) bool {
	return host.InstanceCount < f.Limit
}

func ratio(r float64) float64 {
	if r <= 0 {
		return 1.0
	}
	return r
}
