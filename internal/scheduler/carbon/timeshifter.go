package carbon

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

// ThresholdPolicy determines how the Timeshifter derives the carbon intensity below which a period counts as low-carbon.
type ThresholdPolicy string

const (
	// The running mean of the sample window.
	PolicyMean ThresholdPolicy = "mean"
	// A positional statistic, e.g., the median, of the sample window.
	PolicyQuantile ThresholdPolicy = "quantile"
	// Separate quantiles of a forward-looking forecast for short and long tasks.
	PolicyForecast ThresholdPolicy = "forecast"
)

type TimeshifterConfig struct {
	// Number of past samples retained.
	WindowSize int
	Policy     ThresholdPolicy
	// Position of the window statistic used by PolicyQuantile; 0.5 is the median.
	Quantile float64
	// Number of forecast slots considered by PolicyForecast.
	ForecastSize int
	// Length of each forecast slot.
	ForecastSlotLength time.Duration
	// Forecast quantile positions for short and long tasks.
	ShortForecastThreshold float64
	LongForecastThreshold  float64
	// Tasks shorter than this are short tasks.
	ShortTaskThreshold time.Duration
}

// Timeshifter tracks carbon intensity samples and classifies the present as low- or high-carbon.
// Schedulers embed one by composition and consult it before placing deferrable tasks.
type Timeshifter struct {
	config TimeshifterConfig
	model  CarbonModel
	clock  clock.PassiveClock

	// Ring buffer of the most recent samples.
	window []float64
	head   int
	count  int
	sum    float64

	latest    float64
	hasSample bool

	shortThreshold float64
	longThreshold  float64
	shortLowCarbon bool
	longLowCarbon  bool
}

// NewTimeshifter returns a Timeshifter. model may be nil, in which case PolicyForecast never defers anything.
func NewTimeshifter(config TimeshifterConfig, model CarbonModel, clock clock.PassiveClock) *Timeshifter {
	if config.WindowSize < 1 {
		config.WindowSize = 1
	}
	if config.Policy == "" {
		config.Policy = PolicyMean
	}
	return &Timeshifter{
		config:         config,
		model:          model,
		clock:          clock,
		window:         make([]float64, config.WindowSize),
		shortLowCarbon: true,
		longLowCarbon:  true,
	}
}

// Update records a new carbon-intensity sample and recomputes the low-carbon flags.
func (t *Timeshifter) Update(sample float64) {
	if t.count == len(t.window) {
		t.sum -= t.window[t.head]
	} else {
		t.count++
	}
	t.window[t.head] = sample
	t.sum += sample
	t.head = (t.head + 1) % len(t.window)
	t.latest = sample
	t.hasSample = true

	switch t.config.Policy {
	case PolicyForecast:
		t.updateFromForecast()
	case PolicyQuantile:
		t.shortThreshold = Quantile(t.samples(), t.config.Quantile)
		t.longThreshold = t.shortThreshold
		t.shortLowCarbon = sample <= t.shortThreshold
		t.longLowCarbon = t.shortLowCarbon
	default:
		t.shortThreshold = t.sum / float64(t.count)
		t.longThreshold = t.shortThreshold
		t.shortLowCarbon = sample <= t.shortThreshold
		t.longLowCarbon = t.shortLowCarbon
	}
}

func (t *Timeshifter) updateFromForecast() {
	if t.model == nil {
		t.shortLowCarbon, t.longLowCarbon = true, true
		return
	}
	forecast := t.model.Forecast(t.clock.Now(), t.config.ForecastSlotLength, t.config.ForecastSize)
	if len(forecast) == 0 || len(forecast) < t.config.ForecastSize {
		t.shortLowCarbon, t.longLowCarbon = true, true
		return
	}
	t.shortThreshold = Quantile(forecast, t.config.ShortForecastThreshold)
	t.longThreshold = Quantile(forecast, t.config.LongForecastThreshold)
	t.shortLowCarbon = t.latest <= t.shortThreshold
	t.longLowCarbon = t.latest <= t.longThreshold
}

// samples returns the window contents, oldest first.
func (t *Timeshifter) samples() []float64 {
	rv := make([]float64, 0, t.count)
	start := (t.head - t.count + len(t.window)) % len(t.window)
	for i := 0; i < t.count; i++ {
		rv = append(rv, t.window[(start+i)%len(t.window)])
	}
	return rv
}

// IsLowCarbon is true if a task of the given duration may start now without being deferred on carbon grounds.
// Before the first sample every period counts as low-carbon.
func (t *Timeshifter) IsLowCarbon(taskDuration time.Duration) bool {
	if !t.hasSample {
		return true
	}
	if t.isShort(taskDuration) {
		return t.shortLowCarbon
	}
	return t.longLowCarbon
}

func (t *Timeshifter) isShort(d time.Duration) bool {
	return t.config.ShortTaskThreshold <= 0 || d < t.config.ShortTaskThreshold
}

// Threshold returns the current threshold for tasks of the given duration.
func (t *Timeshifter) Threshold(taskDuration time.Duration) float64 {
	if t.isShort(taskDuration) {
		return t.shortThreshold
	}
	return t.longThreshold
}

// Latest returns the most recent sample.
func (t *Timeshifter) Latest() float64 {
	return t.latest
}

// ShouldDefer is true if task should be left queued this pass: it is deferrable, the present is not low-carbon
// for a task of its length and starting later would still let it finish before its deadline.
// now is expressed in the time base of the task's deadline.
func (t *Timeshifter) ShouldDefer(task *model.ServiceTask, now time.Time) bool {
	if !task.Nature.Deferrable {
		return false
	}
	if t.IsLowCarbon(task.Duration) {
		return false
	}
	if !task.HasDeadline() {
		return true
	}
	return now.Add(task.Duration).Before(task.Deadline)
}
