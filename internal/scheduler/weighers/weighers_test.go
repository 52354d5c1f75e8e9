package weighers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

func hosts(memories ...string) []*model.HostView {
	rv := make([]*model.HostView, len(memories))
	for i, m := range memories {
		rv[i] = model.NewHostView("h", "c", model.NewResources("4", m, "0"))
	}
	return rv
}

type constantWeigher struct {
	value      float64
	multiplier float64
}

func (w constantWeigher) GetWeights(hosts []*model.HostView, _ *model.ServiceTask) WeighResult {
	return weigh(hosts, w.multiplier, func(*model.HostView) float64 { return w.value })
}

func TestRamWeigher(t *testing.T) {
	result := RamWeigher{Multiplier: 1}.GetWeights(hosts("1Ki", "4Ki", "2Ki"), &model.ServiceTask{})
	assert.Equal(t, []float64{1024, 4096, 2048}, result.Weights)
	assert.Equal(t, 1024.0, result.Min)
	assert.Equal(t, 4096.0, result.Max)
	assert.Equal(t, 1.0, result.Multiplier)
}

func TestCombine(t *testing.T) {
	tk := &model.ServiceTask{Demand: model.NewResources("1", "1Ki", "0")}
	tests := map[string]struct {
		weighers []HostWeigher
		expected []float64
	}{
		"no weighers": {
			expected: []float64{0, 0, 0},
		},
		"ram normalised": {
			weighers: []HostWeigher{RamWeigher{Multiplier: 1}},
			expected: []float64{0, 1, 1.0 / 3},
		},
		"negative multiplier": {
			weighers: []HostWeigher{RamWeigher{Multiplier: -2}},
			expected: []float64{0, -2, -2.0 / 3},
		},
		"degenerate weigher contributes nothing": {
			weighers: []HostWeigher{constantWeigher{value: 7, multiplier: 100}},
			expected: []float64{0, 0, 0},
		},
		"degenerate weigher next to ram": {
			weighers: []HostWeigher{constantWeigher{value: 7, multiplier: 100}, RamWeigher{Multiplier: 1}},
			expected: []float64{0, 1, 1.0 / 3},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			actual := Combine(tc.weighers, hosts("1Ki", "4Ki", "2Ki"), tk)
			assert.InDeltaSlice(t, tc.expected, actual, 1e-9)
		})
	}
}

func TestWeighers(t *testing.T) {
	small := model.NewHostView("small", "c", model.NewResources("2", "8Gi", "0"))
	large := model.NewHostView("large", "c", model.NewResources("16", "32Gi", "2"))
	large.Reserve(model.NewResources("12", "4Gi", "1"))
	hs := []*model.HostView{small, large}
	tk := &model.ServiceTask{Demand: model.NewResources("2", "1Gi", "0")}

	tests := map[string]struct {
		weigher  HostWeigher
		expected []float64
	}{
		"core ram":        {weigher: CoreRamWeigher{Multiplier: 1}, expected: []float64{4 * 1024 * 1024 * 1024, 28.0 / 16 * 1024 * 1024 * 1024}},
		"vcpu":            {weigher: VCpuWeigher{Multiplier: 1}, expected: []float64{2, 4}},
		"vcpu overcommit": {weigher: VCpuWeigher{AllocationRatio: 2, Multiplier: 1}, expected: []float64{4, 20}},
		"vcpu capacity":   {weigher: VCpuCapacityWeigher{Multiplier: 1}, expected: []float64{0, -14}},
		"instance count":  {weigher: InstanceCountWeigher{Multiplier: -1}, expected: []float64{0, 1}},
		"gpu":             {weigher: GpuWeigher{Multiplier: 1}, expected: []float64{0, 1}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.InDeltaSlice(t, tc.expected, tc.weigher.GetWeights(hs, tk).Weights, 1e-6)
		})
	}
}

func TestWeighEmpty(t *testing.T) {
	result := RamWeigher{Multiplier: 1}.GetWeights(nil, &model.ServiceTask{})
	assert.Empty(t, result.Weights)
	assert.Equal(t, 0.0, result.Min)
	assert.Equal(t, 0.0, result.Max)
}
