package carbon

import (
	"time"
)

// CarbonModel provides carbon-intensity forecasts.
type CarbonModel interface {
	// Forecast returns the expected carbon intensity of each of the next n slots of length slotLength,
	// the first of which starts at now. The result is shorter than n if the model cannot see that far ahead.
	Forecast(now time.Time, slotLength time.Duration, n int) []float64
}

// TraceModel is a CarbonModel backed by a regularly sampled carbon-intensity trace.
// Sample i holds for [Start + i*Step, Start + (i+1)*Step). Instants before Start take the first sample.
type TraceModel struct {
	Start  time.Time
	Step   time.Duration
	Values []float64
}

func NewTraceModel(start time.Time, step time.Duration, values []float64) *TraceModel {
	return &TraceModel{
		Start:  start,
		Step:   step,
		Values: values,
	}
}

// IntensityAt returns the carbon intensity at t, or false if t lies beyond the end of the trace.
func (m *TraceModel) IntensityAt(t time.Time) (float64, bool) {
	if len(m.Values) == 0 || m.Step <= 0 {
		return 0, false
	}
	if t.Before(m.Start) {
		return m.Values[0], true
	}
	i := int(t.Sub(m.Start) / m.Step)
	if i >= len(m.Values) {
		return 0, false
	}
	return m.Values[i], true
}

// End is the first instant not covered by the trace.
func (m *TraceModel) End() time.Time {
	return m.Start.Add(time.Duration(len(m.Values)) * m.Step)
}

func (m *TraceModel) Forecast(now time.Time, slotLength time.Duration, n int) []float64 {
	rv := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, ok := m.IntensityAt(now.Add(time.Duration(i) * slotLength))
		if !ok {
			break
		}
		rv = append(rv, v)
	}
	return rv
}

// StaticForecast is a CarbonModel that always returns the same forecast, truncated to the requested length.
// Useful in tests and for replaying a precomputed forecast.
type StaticForecast []float64

func (f StaticForecast) Forecast(_ time.Time, _ time.Duration, n int) []float64 {
	if n > len(f) {
		n = len(f)
	}
	rv := make([]float64, n)
	copy(rv, f[:n])
	return rv
}
