package slitdrift

import (
	"fmt"
	"math"
)

// MaskFrame returns a copy of f with every row that carries signal set to NaN
// across all columns, leaving the background texture of the slits. Rows are
// found by collapsing f and masking the profile with MaskLowerSigma and
// MaskUpperSigma.
func MaskFrame(f *Frame, cfg Config) (*Frame, error) {
	profile, err := Collapse(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("masking: %w", err)
	}
	return f.withRows(SignalMask(profile, cfg.MaskLowerSigma, cfg.MaskUpperSigma, cfg)), nil
}

// MaskedRows reports how many rows of f are entirely NaN.
func MaskedRows(f *Frame) int {
	n := 0
	for r := 0; r < f.Rows(); r++ {
		blank := true
		for _, v := range f.Row(r) {
			if !math.IsNaN(float64(v)) {
				blank = false
				break
			}
		}
		if blank {
			n++
		}
	}
	return n
}
