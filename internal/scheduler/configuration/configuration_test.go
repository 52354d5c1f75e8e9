package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonsched/carbonsched/internal/common/pointer"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/timeshift.yaml")
	require.NoError(t, err)

	assert.Equal(t, "timeshift-legacy", c.Name)
	assert.Equal(t, TimeshiftSchedulerType, c.Type)
	assert.Equal(t, 2, c.SubsetSize)
	assert.Equal(t, int64(7), c.RandomSeed)
	assert.Equal(t, []FilterConfig{
		{Name: "compute"},
		{Name: "vcpu", AllocationRatio: 2},
		{Name: "ram"},
	}, c.Filters)
	assert.Equal(t, []WeigherConfig{
		{Name: "ram", Multiplier: 1},
		{Name: "instance-count", Multiplier: -1},
	}, c.Weighers)
	assert.Equal(t, ScanModeFold, c.Timeshift.ScanMode)
	assert.Equal(t, "quantile", c.Timeshift.Policy)
	assert.Equal(t, 12, c.Timeshift.WindowSize)
	assert.Equal(t, 30*time.Minute, c.Timeshift.ShortTaskThreshold)
	assert.Equal(t, DefaultMaxTimesSkipped, c.Memorizing.SkipLimit())
	assert.Equal(t, DefaultQuantile, c.Timeshift.QuantilePosition())
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("testdata/invalid.yaml")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "filter", c.Name)
	assert.Equal(t, ScanModeFirst, c.Timeshift.ScanMode)
	assert.Equal(t, "mean", c.Timeshift.Policy)
	assert.Equal(t, DefaultSlotLength, c.CarbonAware.OptimizationInterval)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*SchedulerConfig)
		valid  bool
	}{
		"default": {
			mutate: func(c *SchedulerConfig) {},
			valid:  true,
		},
		"zero subset size": {
			mutate: func(c *SchedulerConfig) { c.SubsetSize = 0 },
			valid:  false,
		},
		"unknown scheduler": {
			mutate: func(c *SchedulerConfig) { c.Type = "round-robin" },
			valid:  false,
		},
		"unknown filter": {
			mutate: func(c *SchedulerConfig) { c.Filters = append(c.Filters, FilterConfig{Name: "disk"}) },
			valid:  false,
		},
		"instance-count without limit": {
			mutate: func(c *SchedulerConfig) { c.Filters = append(c.Filters, FilterConfig{Name: "instance-count"}) },
			valid:  false,
		},
		"instance-count with limit": {
			mutate: func(c *SchedulerConfig) { c.Filters = append(c.Filters, FilterConfig{Name: "instance-count", Limit: 3}) },
			valid:  true,
		},
		"quantile out of range": {
			mutate: func(c *SchedulerConfig) { c.Timeshift.Quantile = pointer.Pointer(1.5) },
			valid:  false,
		},
		"unknown scan mode": {
			mutate: func(c *SchedulerConfig) { c.Timeshift.ScanMode = "all" },
			valid:  false,
		},
		"carbon-aware without slot length": {
			mutate: func(c *SchedulerConfig) {
				c.Type = CarbonAwareWorkflowSchedulerType
				c.CarbonAware.SlotLength = 0
			},
			valid: false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_ExplicitZeroes(t *testing.T) {
	c, err := Load("testdata/memorizing-zero.yaml")
	require.NoError(t, err)
	require.NotNil(t, c.Memorizing.MaxTimesSkipped)
	assert.Equal(t, 0, c.Memorizing.SkipLimit())
	require.NotNil(t, c.Timeshift.Quantile)
	assert.Equal(t, 0.0, c.Timeshift.QuantilePosition())
}

func TestApplyDefaults_KeepsExplicitZeroes(t *testing.T) {
	c := SchedulerConfig{
		Type:       MemorizingSchedulerType,
		SubsetSize: 1,
		Memorizing: MemorizingConfig{MaxTimesSkipped: pointer.Pointer(0)},
		Timeshift:  TimeshiftConfig{Quantile: pointer.Pointer(0.0)},
	}
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 0, c.Memorizing.SkipLimit())
	assert.Equal(t, 0.0, c.Timeshift.QuantilePosition())

	unset := SchedulerConfig{Type: MemorizingSchedulerType, SubsetSize: 1}
	assert.Equal(t, DefaultMaxTimesSkipped, unset.Memorizing.SkipLimit())
	unset.ApplyDefaults()
	assert.Equal(t, DefaultMaxTimesSkipped, *unset.Memorizing.MaxTimesSkipped)
	assert.Equal(t, DefaultQuantile, *unset.Timeshift.Quantile)
}
