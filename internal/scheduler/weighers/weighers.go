// Package weighers contains the soft scoring functions used to rank hosts that passed filtering.
package weighers

import (
	"math"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// WeighResult holds one raw weight per host, in the order the hosts were given, together with the observed range.
type WeighResult struct {
	Weights    []float64
	Min        float64
	Max        float64
	Multiplier float64
}

// HostWeigher scores hosts for a task. Higher weights are preferred when Multiplier is positive.
type HostWeigher interface {
	GetWeights(hosts []*model.HostView, task *model.ServiceTask) WeighResult
}

// Combine normalises the result of each weigher to [0, Multiplier] and sums them per host.
// Weighers whose weights are all equal are skipped, since they cannot tell hosts apart.
func Combine(weighers []HostWeigher, hosts []*model.HostView, task *model.ServiceTask) []float64 {
	combined := make([]float64, len(hosts))
	for _, w := range weighers {
		result := w.GetWeights(hosts, task)
		spread := result.Max - result.Min
		if spread == 0 {
			continue
		}
		factor := result.Multiplier / spread
		for i, weight := range result.Weights {
			combined[i] += (weight - result.Min) * factor
		}
	}
	return combined
}

func weigh(hosts []*model.HostView, multiplier float64, f func(*model.HostView) float64) WeighResult {
	rv := WeighResult{
		Weights:    make([]float64, len(hosts)),
		Min:        math.Inf(1),
		Max:        math.Inf(-1),
		Multiplier: multiplier,
	}
	for i, h := range hosts {
		w := f(h)
		rv.Weights[i] = w
		rv.Min = math.Min(rv.Min, w)
		rv.Max = math.Max(rv.Max, w)
	}
	if len(hosts) == 0 {
		rv.Min, rv.Max = 0, 0
	}
	return rv
}

// RamWeigher prefers hosts with more free memory.
type RamWeigher struct {
	Multiplier float64
}

func (w RamWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		return float64(h.Available.Memory.Value())
	})
}

// CoreRamWeigher prefers hosts with more free memory per core.
type CoreRamWeigher struct {
	Multiplier float64
}

func (w CoreRamWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		cores := h.Capacity.Cpu.AsApproximateFloat64()
		if cores <= 0 {
			return 0
		}
		return float64(h.Available.Memory.Value()) / cores
	})
}

// VCpuWeigher prefers hosts with more free cores, given an overcommit ratio.
type VCpuWeigher struct {
	AllocationRatio float64
	Multiplier      float64
}

func (w VCpuWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	r := w.AllocationRatio
	if r <= 0 {
		r = 1
	}
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		capacity := h.Capacity.Cpu.AsApproximateFloat64()
		used := capacity - h.Available.Cpu.AsApproximateFloat64()
		return capacity*r - used
	})
}

// VCpuCapacityWeigher prefers hosts whose total core count most closely matches the task's demand.
type VCpuCapacityWeigher struct {
	Multiplier float64
}

func (w VCpuCapacityWeigher) GetWeights(hosts []*model.HostView, task *model.ServiceTask) WeighResult {
	demand := task.Demand.Cpu.AsApproximateFloat64()
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		return -math.Abs(h.Capacity.Cpu.AsApproximateFloat64() - demand)
	})
}

// InstanceCountWeigher weighs hosts by the number of tasks placed on them.
// A negative multiplier spreads tasks; a positive one packs them.
type InstanceCountWeigher struct {
	Multiplier float64
}

func (w InstanceCountWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		return float64(h.InstanceCount)
	})
}

// GpuWeigher prefers hosts with more free GPUs.
type GpuWeigher struct {
	Multiplier float64
}

func (w GpuWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	return weigh(hosts, w.Multiplier, func(h *model.HostView) float64 {
		return h.Available.Gpu.AsApproximateFloat64()
	})
}
