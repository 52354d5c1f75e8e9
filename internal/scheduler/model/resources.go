package model

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resources is an amount of each of the resource dimensions a host offers and a task demands.
// A zero Gpu means the dimension is not used.
type Resources struct {
	Cpu    resource.Quantity
	Memory resource.Quantity
	Gpu    resource.Quantity
}

// NewResources parses the given quantity strings, e.g., NewResources("4", "16Gi", "0").
// It panics on malformed input and is intended for tests and static fixtures.
func NewResources(cpu, memory, gpu string) Resources {
	return Resources{
		Cpu:    resource.MustParse(cpu),
		Memory: resource.MustParse(memory),
		Gpu:    resource.MustParse(gpu),
	}
}

func (r Resources) DeepCopy() Resources {
	return Resources{
		Cpu:    r.Cpu.DeepCopy(),
		Memory: r.Memory.DeepCopy(),
		Gpu:    r.Gpu.DeepCopy(),
	}
}

// Add returns r + other without modifying either.
func (r Resources) Add(other Resources) Resources {
	rv := r.DeepCopy()
	rv.Cpu.Add(other.Cpu)
	rv.Memory.Add(other.Memory)
	rv.Gpu.Add(other.Gpu)
	return rv
}

// Sub returns r - other without modifying either.
func (r Resources) Sub(other Resources) Resources {
	rv := r.DeepCopy()
	rv.Cpu.Sub(other.Cpu)
	rv.Memory.Sub(other.Memory)
	rv.Gpu.Sub(other.Gpu)
	return rv
}

// FitsIn is true if every dimension of r is at most the corresponding dimension of available.
func (r Resources) FitsIn(available Resources) bool {
	return r.Cpu.Cmp(available.Cpu) <= 0 &&
		r.Memory.Cmp(available.Memory) <= 0 &&
		r.Gpu.Cmp(available.Gpu) <= 0
}

func (r Resources) String() string {
	return fmt.Sprintf("{cpu: %s, memory: %s, gpu: %s}", r.Cpu.String(), r.Memory.String(), r.Gpu.String())
}
