/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package slitdrift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClipStats is the centre and spread of the samples that survived a clip.
type ClipStats struct {
	Median     float64
	StdDev     float64
	Kept       int
	Iterations int
}

// finite returns the non-NaN values of v.
func finite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// median returns the median of values, averaging the middle pair for even
// lengths. Empty input gives NaN.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// nanMedianStd returns the median and population standard deviation of the
// finite values.
func nanMedianStd(values []float64) (float64, float64) {
	f := finite(values)
	if len(f) == 0 {
		return math.NaN(), math.NaN()
	}
	_, std := stat.PopMeanStdDev(f, nil)
	return median(f), std
}

// nanArgMax returns the index of the largest finite value, or -1.
func nanArgMax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	idx := floats.MaxIdx(values)
	if math.IsNaN(values[idx]) {
		return -1
	}
	return idx
}

// SigmaClip iteratively rejects values further than lower (below) or upper
// (above) standard deviations from the median of the surviving values. NaN
// values start out rejected. It stops when an iteration rejects nothing new
// or after maxIters iterations. The returned slice is true for rejected values.
func SigmaClip(values []float64, lower, upper float64, maxIters int) ([]bool, ClipStats) {
	rejected := make([]bool, len(values))
	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			rejected[i] = true
		}
	}

	var cs ClipStats
	for cs.Iterations < maxIters {
		kept = kept[:0]
		for i, v := range values {
			if !rejected[i] {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			break
		}
		cs.Iterations++
		_, cs.StdDev = stat.PopMeanStdDev(kept, nil)
		cs.Median = median(kept)

		lo := cs.Median - lower*cs.StdDev
		hi := cs.Median + upper*cs.StdDev
		changed := false
		for i, v := range values {
			if rejected[i] {
				continue
			}
			if v < lo || v > hi {
				rejected[i] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	cs.Kept = 0
	for _, r := range rejected {
		if !r {
			cs.Kept++
		}
	}
	return rejected, cs
}

func float32sTo64(dst []float64, src []float32) []float64 {
	dst = dst[:0]
	for _, v := range src {
		dst = append(dst, float64(v))
	}
	return dst
}
