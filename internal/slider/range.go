// Package slider estimates a sensible range for the threshold control from
// the distribution of flow magnitudes.
package slider

import (
	"errors"
	"math"
	"slices"
)

const fenceFactor = 1.5

var ErrEmptySample = errors.New("slider range needs at least one value")

type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the bounds. It is meant for the control position only;
// the stored threshold is never rewritten.
func (b Bounds) Clamp(v float64) float64 {
	return math.Min(math.Max(v, b.Min), b.Max)
}

// Percentile interpolates linearly between the closest ranks of an
// ascending sample.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	index := float64(len(sorted)-1) * p
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func Quartiles(sorted []float64) (q1, q3 float64) {
	return Percentile(sorted, 0.25), Percentile(sorted, 0.75)
}

// Fences are the Tukey outlier fences around the interquartile range.
func Fences(sorted []float64) (lower, upper float64) {
	q1, q3 := Quartiles(sorted)
	iqr := q3 - q1
	return q1 - fenceFactor*iqr, q3 + fenceFactor*iqr
}

// Range returns the slider bounds for a sample of magnitudes. Max ignores
// outliers above the upper fence while Min is always the smallest value so
// every flow can still be reached.
func Range(sample []float64) (Bounds, error) {
	if len(sample) == 0 {
		return Bounds{}, ErrEmptySample
	}
	sorted := slices.Clone(sample)
	slices.Sort(sorted)

	lower, upper := Fences(sorted)
	hi := math.Inf(-1)
	for _, v := range sorted {
		if v >= lower && v <= upper && v > hi {
			hi = v
		}
	}
	if math.IsInf(hi, -1) {
		hi = sorted[len(sorted)-1]
	}
	return Bounds{Min: sorted[0], Max: hi}, nil
}
