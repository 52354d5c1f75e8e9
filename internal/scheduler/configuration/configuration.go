package configuration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/carbonsched/carbonsched/internal/common/pointer"
)

type SchedulerType string

const (
	FilterSchedulerType                 SchedulerType = "filter"
	MemorizingSchedulerType             SchedulerType = "memorizing"
	TimeshiftSchedulerType              SchedulerType = "timeshift"
	WorkflowAwareSchedulerType          SchedulerType = "workflow-aware"
	WorkflowAwareTimeshiftSchedulerType SchedulerType = "workflow-aware-timeshift"
	CarbonAwareWorkflowSchedulerType    SchedulerType = "carbon-aware-workflow"
)

type ScanMode string

const (
	// Stop at the first request that is not deferred and return its outcome.
	ScanModeFirst ScanMode = "first"
	// Continue past unplaceable requests. The first success wins, otherwise the last failure is returned.
	ScanModeFold ScanMode = "fold"
)

type SchedulerConfig struct {
	// Name used to label metrics and log lines. Defaults to Type.
	Name string
	Type SchedulerType `validate:"required,oneof=filter memorizing timeshift workflow-aware workflow-aware-timeshift carbon-aware-workflow"`
	// Number of top-ranked hosts the chosen host is drawn from.
	SubsetSize int `validate:"gte=1"`
	// Seed of the random source used by schedulers picking randomly among the top-ranked hosts.
	RandomSeed int64
	// Hard predicates hosts must satisfy; applied in order.
	Filters []FilterConfig `validate:"dive"`
	// Soft scores used to rank hosts that passed filtering.
	Weighers      []WeigherConfig `validate:"dive"`
	Memorizing    MemorizingConfig
	Timeshift     TimeshiftConfig
	WorkflowAware WorkflowAwareConfig
	CarbonAware   CarbonAwareConfig
}

type FilterConfig struct {
	Name string `validate:"required,oneof=compute vcpu ram gpu vcpu-capacity cluster instance-count"`
	// Overcommit ratio of the vcpu and ram filters. Zero means no overcommit.
	AllocationRatio float64 `validate:"gte=0"`
	// Maximum number of tasks per host for the instance-count filter.
	Limit int `validate:"gte=0"`
}

type WeigherConfig struct {
	Name       string `validate:"required,oneof=ram core-ram vcpu vcpu-capacity instance-count gpu"`
	Multiplier float64
	// Overcommit ratio of the vcpu weigher.
	AllocationRatio float64 `validate:"gte=0"`
}

type MemorizingConfig struct {
	// Number of passes a request may fit no host before it is rejected. Zero rejects on the first miss.
	MaxTimesSkipped *int `validate:"omitempty,gte=0"`
}

// SkipLimit returns MaxTimesSkipped, or DefaultMaxTimesSkipped if it is unset.
func (c MemorizingConfig) SkipLimit() int {
	if c.MaxTimesSkipped == nil {
		return DefaultMaxTimesSkipped
	}
	return *c.MaxTimesSkipped
}

type TimeshiftConfig struct {
	ScanMode ScanMode `validate:"omitempty,oneof=first fold"`
	// If true, ScanMode and Policy default to fold and a median threshold.
	Legacy     bool
	WindowSize int    `validate:"gte=0"`
	Policy     string `validate:"omitempty,oneof=mean quantile forecast"`
	// Window position used by the quantile policy. Zero selects the window minimum.
	Quantile               *float64 `validate:"omitempty,gte=0,lte=1"`
	ForecastSize           int      `validate:"gte=0"`
	ForecastSlotLength     time.Duration
	ShortForecastThreshold float64 `validate:"gte=0,lte=1"`
	LongForecastThreshold  float64 `validate:"gte=0,lte=1"`
	ShortTaskThreshold     time.Duration
}

// QuantilePosition returns Quantile, or DefaultQuantile if it is unset.
func (c TimeshiftConfig) QuantilePosition() float64 {
	if c.Quantile == nil {
		return DefaultQuantile
	}
	return *c.Quantile
}

type WorkflowAwareConfig struct {
	// Maximum number of pending requests scored per selection.
	TaskLookaheadThreshold        int `validate:"gte=0"`
	WeightUrgency                 float64
	WeightCriticalDependencyChain float64
	WeightParallelism             float64
	EnableParallelism             bool
	// Parallelism is only scored while fewer requests than this are ready.
	ParallelismReadyPoolThreshold int `validate:"gte=0"`
	// Number of tasks whose dependency chain length is memoised.
	ChainLengthCacheSize int `validate:"gte=0"`
}

type CarbonAwareConfig struct {
	SlotLength time.Duration
	// Minimum simulated time between two batch optimisations.
	OptimizationInterval time.Duration
	HorizonSlots         int `validate:"gte=0"`
	SearchWindowSize     int `validate:"gte=0"`
	MaxSlotsToTry        int `validate:"gte=0"`
	MaxExpansions        int `validate:"gte=0"`
	BatchSize            int `validate:"gte=0"`
	// Flat forecast used when no carbon model is attached.
	DefaultCarbonIntensity float64 `validate:"gte=0"`
}

const (
	DefaultMaxTimesSkipped               = 7
	DefaultWindowSize                    = 24
	DefaultQuantile                      = 0.5
	DefaultForecastSize                  = 24
	DefaultForecastSlotLength            = time.Hour
	DefaultShortForecastThreshold        = 0.5
	DefaultLongForecastThreshold         = 0.3
	DefaultShortTaskThreshold            = 2 * time.Hour
	DefaultTaskLookaheadThreshold        = 100
	DefaultWeightUrgency                 = 1.0
	DefaultWeightCriticalDependencyChain = 1.0
	DefaultParallelismReadyPoolThreshold = 4
	DefaultChainLengthCacheSize          = 4096
	DefaultSlotLength                    = 15 * time.Minute
	DefaultHorizonSlots                  = 96
	DefaultSearchWindowSize              = 8
	DefaultMaxSlotsToTry                 = 4
	DefaultMaxExpansions                 = 100000
	DefaultBatchSize                     = 16
	DefaultCarbonIntensity               = 400.0
)

// Default returns a filter scheduler configuration with every tuning field set.
func Default() SchedulerConfig {
	c := SchedulerConfig{
		Type:       FilterSchedulerType,
		SubsetSize: 1,
		Filters: []FilterConfig{
			{Name: "compute"},
			{Name: "vcpu"},
			{Name: "ram"},
		},
	}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults sets every unset tuning field to its default. Zero counts as unset, except for
// the pointer fields, where zero is a meaningful setting.
// SubsetSize is left alone, so that a missing value is reported by Validate rather than masked.
func (c *SchedulerConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = string(c.Type)
	}
	for i := range c.Weighers {
		if c.Weighers[i].Multiplier == 0 {
			c.Weighers[i].Multiplier = 1
		}
	}
	if c.Memorizing.MaxTimesSkipped == nil {
		c.Memorizing.MaxTimesSkipped = pointer.Pointer(DefaultMaxTimesSkipped)
	}

	ts := &c.Timeshift
	if ts.ScanMode == "" {
		ts.ScanMode = ScanModeFirst
		if ts.Legacy {
			ts.ScanMode = ScanModeFold
		}
	}
	if ts.Policy == "" {
		ts.Policy = "mean"
		if ts.Legacy {
			ts.Policy = "quantile"
		}
	}
	if ts.WindowSize == 0 {
		ts.WindowSize = DefaultWindowSize
	}
	if ts.Quantile == nil {
		ts.Quantile = pointer.Pointer(DefaultQuantile)
	}
	if ts.ForecastSize == 0 {
		ts.ForecastSize = DefaultForecastSize
	}
	if ts.ForecastSlotLength == 0 {
		ts.ForecastSlotLength = DefaultForecastSlotLength
	}
	if ts.ShortForecastThreshold == 0 {
		ts.ShortForecastThreshold = DefaultShortForecastThreshold
	}
	if ts.LongForecastThreshold == 0 {
		ts.LongForecastThreshold = DefaultLongForecastThreshold
	}
	if ts.ShortTaskThreshold == 0 {
		ts.ShortTaskThreshold = DefaultShortTaskThreshold
	}

	wa := &c.WorkflowAware
	if wa.TaskLookaheadThreshold == 0 {
		wa.TaskLookaheadThreshold = DefaultTaskLookaheadThreshold
	}
	if wa.WeightUrgency == 0 && wa.WeightCriticalDependencyChain == 0 && wa.WeightParallelism == 0 {
		wa.WeightUrgency = DefaultWeightUrgency
		wa.WeightCriticalDependencyChain = DefaultWeightCriticalDependencyChain
	}
	if wa.ParallelismReadyPoolThreshold == 0 {
		wa.ParallelismReadyPoolThreshold = DefaultParallelismReadyPoolThreshold
	}
	if wa.ChainLengthCacheSize == 0 {
		wa.ChainLengthCacheSize = DefaultChainLengthCacheSize
	}

	ca := &c.CarbonAware
	if ca.SlotLength == 0 {
		ca.SlotLength = DefaultSlotLength
	}
	if ca.OptimizationInterval == 0 {
		ca.OptimizationInterval = ca.SlotLength
	}
	if ca.HorizonSlots == 0 {
		ca.HorizonSlots = DefaultHorizonSlots
	}
	if ca.SearchWindowSize == 0 {
		ca.SearchWindowSize = DefaultSearchWindowSize
	}
	if ca.MaxSlotsToTry == 0 {
		ca.MaxSlotsToTry = DefaultMaxSlotsToTry
	}
	if ca.MaxExpansions == 0 {
		ca.MaxExpansions = DefaultMaxExpansions
	}
	if ca.BatchSize == 0 {
		ca.BatchSize = DefaultBatchSize
	}
	if ca.DefaultCarbonIntensity == 0 {
		ca.DefaultCarbonIntensity = DefaultCarbonIntensity
	}
}

func (c SchedulerConfig) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(SchedulerConfigValidation, SchedulerConfig{})
	return validate.Struct(c)
}

// SchedulerConfigValidation checks constraints spanning several fields.
func SchedulerConfigValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(SchedulerConfig)
	for i, f := range c.Filters {
		if f.Name == "instance-count" && f.Limit < 1 {
			sl.ReportError(c.Filters[i].Limit, "Limit", "Limit", "gte=1 for instance-count", "")
		}
	}
	if c.Timeshift.Policy == "forecast" && c.Timeshift.ForecastSlotLength <= 0 {
		sl.ReportError(c.Timeshift.ForecastSlotLength, "ForecastSlotLength", "ForecastSlotLength", "gt=0 for forecast policy", "")
	}
	if c.Type == CarbonAwareWorkflowSchedulerType && c.CarbonAware.SlotLength <= 0 {
		sl.ReportError(c.CarbonAware.SlotLength, "SlotLength", "SlotLength", "gt=0", "")
	}
}
