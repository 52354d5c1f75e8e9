package compute

import (
	"math/rand"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/carbon"
	"github.com/carbonsched/carbonsched/internal/scheduler/configuration"
	"github.com/carbonsched/carbonsched/internal/scheduler/filters"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/weighers"
)

// NewScheduler builds the scheduler described by config. carbonModel may be nil.
// config is expected to have had defaults applied.
func NewScheduler(
	config configuration.SchedulerConfig,
	carbonModel carbon.CarbonModel,
	clock clock.PassiveClock,
	m *metrics.Metrics,
) (ComputeScheduler, error) {
	hostFilters, err := NewFilters(config.Filters)
	if err != nil {
		return nil, err
	}
	hostWeighers, err := NewWeighers(config.Weighers)
	if err != nil {
		return nil, err
	}
	name := config.Name
	if name == "" {
		name = string(config.Type)
	}
	r := rand.New(rand.NewSource(config.RandomSeed))

	var scheduler ComputeScheduler
	switch config.Type {
	case configuration.FilterSchedulerType:
		scheduler, err = NewFilterScheduler(name, hostFilters, hostWeighers, config.SubsetSize, m)
	case configuration.MemorizingSchedulerType:
		scheduler = NewMemorizingScheduler(name, hostFilters, config.Memorizing.SkipLimit(), m)
	case configuration.TimeshiftSchedulerType:
		timeshifter := carbon.NewTimeshifter(newTimeshifterConfig(config.Timeshift), carbonModel, clock)
		scheduler, err = NewTimeshiftScheduler(
			name, hostFilters, hostWeighers, config.SubsetSize, config.Timeshift.ScanMode, timeshifter, r, clock, m,
		)
	case configuration.WorkflowAwareSchedulerType:
		scheduler, err = NewWorkflowAwareScheduler(
			name, hostFilters, hostWeighers, config.SubsetSize, config.WorkflowAware, clock, m,
		)
	case configuration.WorkflowAwareTimeshiftSchedulerType:
		timeshifter := carbon.NewTimeshifter(newTimeshifterConfig(config.Timeshift), carbonModel, clock)
		scheduler, err = NewWorkflowAwareTimeshiftScheduler(
			name, hostFilters, hostWeighers, config.SubsetSize, config.WorkflowAware, timeshifter, r, clock, m,
		)
	case configuration.CarbonAwareWorkflowSchedulerType:
		scheduler, err = NewCarbonAwareWorkflowScheduler(
			name, hostFilters, hostWeighers, config.SubsetSize, config.CarbonAware, carbonModel, clock, m,
		)
	default:
		err = errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "type",
			Value:   config.Type,
			Message: "unknown scheduler type",
		})
	}
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

// newTimeshifterConfig converts the timeshift section of a scheduler configuration.
func newTimeshifterConfig(c configuration.TimeshiftConfig) carbon.TimeshifterConfig {
	return carbon.TimeshifterConfig{
		WindowSize:             c.WindowSize,
		Policy:                 carbon.ThresholdPolicy(c.Policy),
		Quantile:               c.QuantilePosition(),
		ForecastSize:           c.ForecastSize,
		ForecastSlotLength:     c.ForecastSlotLength,
		ShortForecastThreshold: c.ShortForecastThreshold,
		LongForecastThreshold:  c.LongForecastThreshold,
		ShortTaskThreshold:     c.ShortTaskThreshold,
	}
}

func NewFilters(configs []configuration.FilterConfig) ([]filters.HostFilter, error) {
	rv := make([]filters.HostFilter, 0, len(configs))
	for _, c := range configs {
		switch c.Name {
		case "compute":
			rv = append(rv, filters.ComputeFilter{})
		case "vcpu":
			rv = append(rv, filters.VCpuFilter{AllocationRatio: c.AllocationRatio})
		case "ram":
			rv = append(rv, filters.RamFilter{AllocationRatio: c.AllocationRatio})
		case "gpu":
			rv = append(rv, filters.GpuFilter{})
		case "vcpu-capacity":
			rv = append(rv, filters.VCpuCapacityFilter{})
		case "cluster":
			rv = append(rv, filters.ClusterFilter{})
		case "instance-count":
			rv = append(rv, filters.InstanceCountFilter{Limit: c.Limit})
		default:
			return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
				Name:    "filters",
				Value:   c.Name,
				Message: "unknown filter",
			})
		}
	}
	return rv, nil
}

func NewWeighers(configs []configuration.WeigherConfig) ([]weighers.HostWeigher, error) {
	rv := make([]weighers.HostWeigher, 0, len(configs))
	for _, c := range configs {
		switch c.Name {
		case "ram":
			rv = append(rv, weighers.RamWeigher{Multiplier: c.Multiplier})
		case "core-ram":
			rv = append(rv, weighers.CoreRamWeigher{Multiplier: c.Multiplier})
		case "vcpu":
			rv = append(rv, weighers.VCpuWeigher{AllocationRatio: c.AllocationRatio, Multiplier: c.Multiplier})
		case "vcpu-capacity":
			rv = append(rv, weighers.VCpuCapacityWeigher{Multiplier: c.Multiplier})
		case "instance-count":
			rv = append(rv, weighers.InstanceCountWeigher{Multiplier: c.Multiplier})
		case "gpu":
			rv = append(rv, weighers.GpuWeigher{Multiplier: c.Multiplier})
		default:
			return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
				Name:    "weighers",
				Value:   c.Name,
				Message: "unknown weigher",
			})
		}
	}
	return rv, nil
}
