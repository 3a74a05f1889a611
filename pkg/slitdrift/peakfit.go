/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package slitdrift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter order of the 1D model A*exp(-(x-mean)^2/(2*sigma^2)) + B.
const (
	parMean = iota
	parAmplitude
	parSigma
	parBackground
	numParams
)

// minFitSamples is the smallest profile the four-parameter model is fitted to.
const minFitSamples = numParams + 1

// ScrubCosmicRays returns a copy of cutout in which the pixels that
// sigma-clip within their row at cfg.ScrubSigma, and any NaN pixels, are
// replaced by the median of the whole cutout.
func ScrubCosmicRays(cutout *Frame, cfg Config) *Frame {
	out := cutout.Clone()
	rows, cols := out.Rows(), out.Cols()
	data := out.mat.DataFloat32()[:rows*cols]
	fill := float32(median(finite(float32sTo64(nil, data))))

	buf := make([]float64, 0, cols)
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		buf = float32sTo64(buf, row)
		rejected, _ := SigmaClip(buf, cfg.ScrubSigma, cfg.ScrubSigma, cfg.ClipMaxIters)
		for c, rej := range rejected {
			if rej {
				row[c] = fill
			}
		}
	}
	return out
}

// SumColumns collapses a cutout to its spatial profile without clipping.
func SumColumns(cutout *Frame) []float64 {
	profile := make([]float64, cutout.Rows())
	for r := range profile {
		sum := 0.0
		for _, v := range cutout.Row(r) {
			sum += float64(v)
		}
		profile[r] = sum
	}
	return profile
}

// FitCutout scrubs cosmic rays from a star cutout, sums it across columns and
// fits the resulting spatial profile.
func FitCutout(cutout *Frame, cfg Config) (FitResult, error) {
	scrubbed := ScrubCosmicRays(cutout, cfg)
	defer scrubbed.Close()
	return FitProfile(SumColumns(scrubbed), cfg)
}

// FitProfile fits a Gaussian plus constant to profile, seeded at the
// brightest sample with amplitude equal to that sample, sigma cfg.FitSigma0
// and zero background. NaN samples are left out of the fit.
func FitProfile(profile []float64, cfg Config) (FitResult, error) {
	xs := make([]float64, 0, len(profile))
	ys := make([]float64, 0, len(profile))
	for i, v := range profile {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, v)
	}
	if len(xs) < minFitSamples {
		return FitResult{}, fmt.Errorf("%d usable samples: %w", len(xs), ErrFitNotConverged)
	}

	peak := nanArgMax(profile)
	x0 := []float64{float64(peak), profile[peak], cfg.FitSigma0, 0}
	inf := math.Inf(1)
	lower := []float64{-inf, -inf, 0, -inf}
	upper := []float64{inf, inf, inf, inf}

	sol, err := levenbergMarquardt(xs, ys, x0, lower, upper, cfg.FitTolerance, cfg.FitMaxIter)
	if err != nil {
		return FitResult{}, err
	}
	p := sol.x
	if err := checkFit(p, len(profile), cfg); err != nil {
		return FitResult{}, err
	}

	res := FitResult{
		Center:     p[parMean],
		Amplitude:  p[parAmplitude],
		Width:      p[parSigma],
		Background: p[parBackground],
		RSquared:   computeRSquared(xs, ys, p),
		Iterations: sol.iterations,
	}
	res.CenterErr, res.AmplitudeErr, res.WidthErr = math.NaN(), math.NaN(), math.NaN()
	if stderr, ok := parameterErrors(sol, len(xs)); ok {
		res.CenterErr = stderr[parMean]
		res.AmplitudeErr = stderr[parAmplitude]
		res.WidthErr = stderr[parSigma]
	}
	return res, nil
}

// checkFit rejects parameters that cannot describe a star in a profile of n
// samples: non-finite values, a non-positive amplitude, or a width outside
// [cfg.FitMinSigma, n) or not above zero.
func checkFit(p []float64, n int, cfg Config) error {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameters %v: %w", p, ErrFitUnphysical)
		}
	}
	if p[parAmplitude] <= 0 {
		return fmt.Errorf("amplitude %g: %w", p[parAmplitude], ErrFitUnphysical)
	}
	sigma := p[parSigma]
	if sigma <= 0 || sigma < cfg.FitMinSigma || sigma >= float64(n) {
		return fmt.Errorf("sigma %g for %d samples: %w", sigma, n, ErrFitUnphysical)
	}
	return nil
}

func gaussianValue(p []float64, x float64) float64 {
	d := x - p[parMean]
	s := p[parSigma]
	return p[parAmplitude]*math.Exp(-d*d/(2*s*s)) + p[parBackground]
}

func gaussianGradient(p []float64, x float64, grad []float64) {
	d := x - p[parMean]
	s := p[parSigma]
	s2 := s * s
	e := math.Exp(-d * d / (2 * s2))
	a := p[parAmplitude]

	grad[parMean] = a * e * d / s2
	grad[parAmplitude] = e
	grad[parSigma] = a * e * d * d / (s2 * s)
	grad[parBackground] = 1
}

func computeRSquared(xs, ys, p []float64) float64 {
	yBar := 0.0
	for _, y := range ys {
		yBar += y
	}
	yBar /= float64(len(ys))

	tss, rss := 0.0, 0.0
	for i, x := range xs {
		res := gaussianValue(p, x) - ys[i]
		disp := ys[i] - yBar
		rss += res * res
		tss += disp * disp
	}
	if tss > 0 {
		return 1.0 - rss/tss
	}
	return 0.0
}

type lmSolution struct {
	x          []float64
	cost       float64
	iterations int
	jac        *mat.Dense
}

// levenbergMarquardt minimises the squared residuals of gaussianValue with
// Marquardt damping of the normal equations. It stops when an accepted step
// improves the cost or moves the parameters by less than tolerance
// (relative), or when no damping yields a descent.
func levenbergMarquardt(
	xs, ys []float64,
	x0, lower, upper []float64,
	tolerance float64, maxIter int,
) (*lmSolution, error) {
	n := len(x0)
	m := len(xs)

	x := make([]float64, n)
	for j := range x {
		x[j] = clampLM(x0[j], lower[j], upper[j])
	}

	fi := make([]float64, m)
	jac := mat.NewDense(m, n, nil)
	cost := residuals(xs, ys, x, fi)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, fmt.Errorf("initial residuals not finite: %w", ErrFitNotConverged)
	}
	computeJacobian(xs, x, jac)

	lambda := 1e-3
	nu := 2.0

	jtj := mat.NewSymDense(n, nil)
	a := mat.NewSymDense(n, nil)
	jtf := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	dx := mat.NewVecDense(n, nil)
	xNew := make([]float64, n)
	fiNew := make([]float64, m)
	var chol mat.Cholesky

	done := func(iter int) *lmSolution {
		return &lmSolution{x: x, cost: cost, iterations: iter, jac: jac}
	}

	for iter := 1; iter <= maxIter; iter++ {
		jtj.SymOuterK(1, jac.T())
		jtf.MulVec(jac.T(), mat.NewVecDense(m, fi))

		for {
			a.CopySym(jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				a.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
				rhs.SetVec(i, -jtf.AtVec(i))
			}

			if !chol.Factorize(a) || chol.SolveVecTo(dx, rhs) != nil {
				lambda *= nu
				nu *= 2.0
				if lambda > 1e16 {
					return done(iter), nil
				}
				continue
			}

			for j := 0; j < n; j++ {
				xNew[j] = clampLM(x[j]+dx.AtVec(j), lower[j], upper[j])
			}
			costNew := residuals(xs, ys, xNew, fiNew)

			if costNew < cost {
				improvement := (cost - costNew) / cost
				step := relativeStep(x, xNew)
				copy(x, xNew)
				copy(fi, fiNew)
				cost = costNew
				lambda = math.Max(lambda/3.0, 1e-15)
				nu = 2.0
				computeJacobian(xs, x, jac)

				if improvement < tolerance || step < tolerance || cost == 0 {
					return done(iter), nil
				}
				break
			}

			lambda *= nu
			nu *= 2.0
			if lambda > 1e16 {
				return done(iter), nil
			}
		}
	}
	return nil, fmt.Errorf("no convergence after %d iterations: %w", maxIter, ErrFitNotConverged)
}

// parameterErrors returns the standard errors from the covariance
// (JᵀJ)⁻¹ scaled by the reduced chi-square.
func parameterErrors(sol *lmSolution, m int) ([]float64, bool) {
	n := len(sol.x)
	if m <= n {
		return nil, false
	}
	var jtj mat.SymDense
	jtj.SymOuterK(1, sol.jac.T())
	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil, false
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, false
	}
	s2 := sol.cost / float64(m-n)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sqrt(cov.At(i, i) * s2)
	}
	return out, true
}

func residuals(xs, ys, p, fi []float64) float64 {
	s := 0.0
	for k, x := range xs {
		fi[k] = gaussianValue(p, x) - ys[k]
		s += fi[k] * fi[k]
	}
	return s
}

func computeJacobian(xs, p []float64, jac *mat.Dense) {
	grad := make([]float64, len(p))
	for k, x := range xs {
		gaussianGradient(p, x, grad)
		jac.SetRow(k, grad)
	}
}

func relativeStep(x, xNew []float64) float64 {
	num, den := 0.0, 0.0
	for j := range x {
		d := xNew[j] - x[j]
		num += d * d
		den += x[j] * x[j]
	}
	return math.Sqrt(num) / (math.Sqrt(den) + 1e-12)
}

func clampLM(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
