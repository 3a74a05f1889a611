package slitdrift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
)

// FluxResult is the sky-subtracted star spectrum of one cutout.
type FluxResult struct {
	// Peak is the cutout row with the largest summed flux.
	Peak int
	// Spectrum is star minus sky per column, with clipped columns replaced
	// by their smoothed value.
	Spectrum []float64
	// Smoothed is Spectrum after the flat smoothing window.
	Smoothed []float64
	// Total is the trapezoid integral of Smoothed over columns.
	Total float64
}

// StarFlux integrates the star spectrum of a cutout. After scrubbing cosmic
// rays it sums 2*FluxHalfRows+1 rows around the profile peak, subtracts as
// many sky rows SkyOffset rows further along, replaces FluxClipSigma
// outliers of the residual by a flat running mean and integrates the
// smoothed result.
func StarFlux(cutout *Frame, cfg Config) (FluxResult, error) {
	scrubbed := ScrubCosmicRays(cutout, cfg)
	defer scrubbed.Close()

	rows, cols := scrubbed.Rows(), scrubbed.Cols()
	if cols < 2 {
		return FluxResult{}, fmt.Errorf("flux of %s: %d columns is too narrow", cutout.Info.Name, cols)
	}
	peak := nanArgMax(SumColumns(scrubbed))
	if peak < 0 {
		return FluxResult{}, fmt.Errorf("flux of %s: %w", cutout.Info.Name, ErrOverMasked)
	}
	h := cfg.FluxHalfRows
	sky := peak + cfg.SkyOffset
	if peak-h < 0 || sky+h >= rows {
		return FluxResult{}, fmt.Errorf("flux of %s: star rows [%d,%d] or sky rows [%d,%d] outside %d rows",
			cutout.Info.Name, peak-h, peak+h, sky-h, sky+h, rows)
	}

	star := sumRows(scrubbed, peak-h, peak+h+1)
	background := sumRows(scrubbed, sky-h, sky+h+1)
	diff := make([]float64, cols)
	for c := range diff {
		diff[c] = star[c] - background[c]
	}

	window := min(cfg.SmoothWindow, cols)
	if window%2 == 0 {
		window--
	}

	med := smoothFlat(diff, window)
	resid := make([]float64, cols)
	for c := range resid {
		resid[c] = diff[c] - med[c]
	}
	rejected, _ := SigmaClip(resid, cfg.FluxClipSigma, cfg.FluxClipSigma, cfg.ClipMaxIters)
	for c, r := range rejected {
		if r {
			diff[c] = med[c]
		}
	}

	smoothed := smoothFlat(diff, window)
	xs := make([]float64, cols)
	for c := range xs {
		xs[c] = float64(c)
	}
	return FluxResult{
		Peak:     peak,
		Spectrum: diff,
		Smoothed: smoothed,
		Total:    integrate.Trapezoidal(xs, smoothed),
	}, nil
}

// sumRows sums rows [start, end) of f per column, skipping NaN.
func sumRows(f *Frame, start, end int) []float64 {
	out := make([]float64, f.Cols())
	for r := start; r < end; r++ {
		for c, v := range f.Row(r) {
			if !math.IsNaN(float64(v)) {
				out[c] += float64(v)
			}
		}
	}
	return out
}

// smoothFlat is a running mean of odd width with mirrored edges.
func smoothFlat(values []float64, window int) []float64 {
	if window <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	src := NewMatWithSize(1, len(values))
	defer src.Close()
	data := src.DataFloat32()
	for i, v := range values {
		data[i] = float32(v)
	}
	dst := NewMat()
	defer dst.Close()
	boxFilterRows(src, &dst, window)

	out := make([]float64, len(values))
	for i, v := range dst.DataFloat32()[:len(values)] {
		out[i] = float64(v)
	}
	return out
}
