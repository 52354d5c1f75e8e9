package carbon

import (
	"math"

	"golang.org/x/exp/slices"
)

// Quantile returns the value at the given position in [0, 1] of values, which is not modified.
// The index is position * len(values): an integral index selects that element of the sorted copy,
// otherwise the two elements straddling the index are averaged. Indices are clamped to the last element.
// Quantile of an empty slice is NaN.
func Quantile(values []float64, position float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	index := position * float64(n)
	if index <= 0 {
		return sorted[0]
	}
	lo := int(math.Floor(index))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if float64(lo) == index {
		return sorted[lo]
	}
	return (sorted[lo] + sorted[lo+1]) / 2
}
