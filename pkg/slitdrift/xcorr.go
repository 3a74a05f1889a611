package slitdrift

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CrossCorrelationShifts measures the shift of img relative to ref by FFT
// cross-correlation: a feature at (row, col) in ref found at
// (row+Y, col+X) in img yields Shift{X, Y}. Both frames have their finite
// mean subtracted and NaN pixels zeroed, so masked rows carry no weight.
// The integer peak is refined by one second-order Taylor step. A positive
// maxShift bounds the search to |X|, |Y| <= maxShift.
func CrossCorrelationShifts(ref, img *Frame, maxShift int) (Shift, error) {
	if ref.Rows() != img.Rows() || ref.Cols() != img.Cols() {
		return Shift{}, fmt.Errorf("%dx%d vs %dx%d: %w", ref.Cols(), ref.Rows(), img.Cols(), img.Rows(), ErrShapeMismatch)
	}
	h, w := ref.Rows(), ref.Cols()
	ph, pw := 2*h, 2*w
	if maxShift > 0 {
		ph, pw = h+maxShift, w+maxShift
	}

	a := paddedSpectrum(ref, ph, pw)
	b := paddedSpectrum(img, ph, pw)
	for y := range a {
		for x := range a[y] {
			a[y][x] = cmplx.Conj(a[y][x]) * b[y][x]
		}
	}
	fft2InPlace(a, false)

	corr := make([][]float64, ph)
	for y := range corr {
		corr[y] = make([]float64, pw)
		for x := range corr[y] {
			corr[y][x] = real(a[y][x])
		}
	}

	best := math.Inf(-1)
	by, bx := 0, 0
	for y := 0; y < ph; y++ {
		dy := signedLag(y, ph)
		if maxShift > 0 && (dy > maxShift || dy < -maxShift) {
			continue
		}
		for x := 0; x < pw; x++ {
			dx := signedLag(x, pw)
			if maxShift > 0 && (dx > maxShift || dx < -maxShift) {
				continue
			}
			if corr[y][x] > best {
				best, by, bx = corr[y][x], y, x
			}
		}
	}
	if !(best > 0) {
		return Shift{}, ErrNoCorrelationSignal
	}

	sx, sy := taylorRefine(corr, by, bx)
	return Shift{
		X: float64(signedLag(bx, pw)) + sx,
		Y: float64(signedLag(by, ph)) + sy,
	}, nil
}

// paddedSpectrum returns the 2D FFT of f, mean-subtracted with NaN set to
// zero, embedded in a ph x pw zero grid.
func paddedSpectrum(f *Frame, ph, pw int) [][]complex128 {
	sum, n := 0.0, 0
	for r := 0; r < f.Rows(); r++ {
		for _, v := range f.Row(r) {
			if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				sum += float64(v)
				n++
			}
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}

	grid := make([][]complex128, ph)
	for y := range grid {
		grid[y] = make([]complex128, pw)
		if y >= f.Rows() {
			continue
		}
		for x, v := range f.Row(y) {
			fv := float64(v)
			if math.IsNaN(fv) || math.IsInf(fv, 0) {
				continue
			}
			grid[y][x] = complex(fv-mean, 0)
		}
	}
	fft2InPlace(grid, true)
	return grid
}

// fft2InPlace transforms rows then columns. The inverse is unnormalized.
func fft2InPlace(a [][]complex128, forward bool) {
	h := len(a)
	w := len(a[0])

	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	for y := 0; y < h; y++ {
		if forward {
			rowFFT.Coefficients(a[y], a[y])
		} else {
			rowFFT.Sequence(a[y], a[y])
		}
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y][x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y][x] = col[y]
		}
	}
}

// signedLag maps a circular index to a lag in (-n/2, n/2].
func signedLag(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// taylorRefine returns the sub-pixel offset of the correlation maximum at
// (y, x) from a quadratic fit to its 3x3 neighbourhood. Offsets beyond one
// pixel or a singular Hessian yield zero.
func taylorRefine(c [][]float64, y, x int) (float64, float64) {
	h, w := len(c), len(c[0])
	at := func(dy, dx int) float64 {
		return c[(y+dy+h)%h][(x+dx+w)%w]
	}

	dx := (at(0, 1) - at(0, -1)) / 2
	dy := (at(1, 0) - at(-1, 0)) / 2
	dxx := at(0, 1) - 2*at(0, 0) + at(0, -1)
	dyy := at(1, 0) - 2*at(0, 0) + at(-1, 0)
	dxy := (at(1, 1) - at(1, -1) - at(-1, 1) + at(-1, -1)) / 4

	det := dxy*dxy - dxx*dyy
	if det == 0 {
		return 0, 0
	}
	sx := (dyy*dx - dxy*dy) / det
	sy := (dxx*dy - dxy*dx) / det
	if math.Abs(sx) > 1 || math.Abs(sy) > 1 || math.IsNaN(sx) || math.IsNaN(sy) {
		return 0, 0
	}
	return sx, sy
}
