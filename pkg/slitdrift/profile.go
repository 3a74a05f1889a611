package slitdrift

import (
	"fmt"
	"math"
)

// Collapse sums every row of f across its columns after replacing the
// columns that sigma-clip at cfg.CollapseSigma with NaN. A row without a
// surviving pixel collapses to NaN. A frame where every row does so is
// reported as ErrOverMasked.
func Collapse(f *Frame, cfg Config) (Profile, error) {
	profile := make(Profile, f.Rows())
	buf := make([]float64, 0, f.Cols())
	for r := range profile {
		buf = float32sTo64(buf, f.Row(r))
		profile[r] = clippedSum(buf, cfg.CollapseSigma, cfg.ClipMaxIters)
	}
	if profile.Finite() == 0 {
		return profile, fmt.Errorf("collapsing %s: %w", f.Info.Name, ErrOverMasked)
	}
	return profile, nil
}

// CollapseRows is Collapse for rows held in memory.
func CollapseRows(rows [][]float64, sigma float64, maxIters int) Profile {
	profile := make(Profile, len(rows))
	for r, row := range rows {
		profile[r] = clippedSum(row, sigma, maxIters)
	}
	return profile
}

func clippedSum(row []float64, sigma float64, maxIters int) float64 {
	rejected, cs := SigmaClip(row, sigma, sigma, maxIters)
	if cs.Kept == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i, v := range row {
		if !rejected[i] {
			sum += v
		}
	}
	return sum
}
