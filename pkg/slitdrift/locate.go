package slitdrift

import (
	"fmt"
	"math"
)

// LocateStar finds the star in a spatial profile. Samples below
// median - StarLowSigma*std (slit gaps) are dropped, the rest are clipped at
// StarHighSigma and the brightest high-side reject is taken as the peak. The
// region spans StarHalfWidth rows on each side of the peak, clamped to the
// profile.
func LocateStar(p Profile, cfg Config) (StarRegion, error) {
	med, std := nanMedianStd(p)
	if math.IsNaN(med) {
		return StarRegion{}, ErrOverMasked
	}

	floor := med - cfg.StarLowSigma*std
	work := make([]float64, len(p))
	for i, v := range p {
		if v < floor {
			v = math.NaN()
		}
		work[i] = v
	}

	rejected, cs := SigmaClip(work, cfg.StarHighSigma, cfg.StarHighSigma, cfg.ClipMaxIters)
	star := make([]float64, len(work))
	for i, v := range work {
		star[i] = math.NaN()
		if rejected[i] && !math.IsNaN(v) && v > cs.Median {
			star[i] = v
		}
	}

	peak := nanArgMax(star)
	if peak < 0 {
		return StarRegion{}, fmt.Errorf("no sample above %g sigma: %w", cfg.StarHighSigma, ErrStarNotFound)
	}
	return StarRegion{
		Start: max(0, peak-cfg.StarHalfWidth),
		End:   min(len(p), peak+cfg.StarHalfWidth+1),
		Peak:  peak,
	}, nil
}

// SignalMask flags the profile samples that carry signal: samples rejected by
// a two-sided clip (lower and upper sigma), NaN samples, and MaskMargin
// samples on each side of either.
func SignalMask(p Profile, lower, upper float64, cfg Config) []bool {
	rejected, _ := SigmaClip(p, lower, upper, cfg.ClipMaxIters)
	mask := make([]bool, len(p))
	for i, r := range rejected {
		if !r {
			continue
		}
		lo := max(0, i-cfg.MaskMargin)
		hi := min(len(p)-1, i+cfg.MaskMargin)
		for j := lo; j <= hi; j++ {
			mask[j] = true
		}
	}
	return mask
}

// MaskSignal returns a copy of p with every signal sample set to NaN.
func MaskSignal(p Profile, lower, upper float64, cfg Config) Profile {
	mask := SignalMask(p, lower, upper, cfg)
	out := make(Profile, len(p))
	for i, v := range p {
		if mask[i] {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
