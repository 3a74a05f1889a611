package slitdrift

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testMask   = "MASK_A1"
	testDate   = "2018nov25"
	testDither = 1.25
)

func testObservation() Observation {
	return Observation{Home: "/data", Date: testDate, Mask: testMask, Dither: testDither, Band: "H"}
}

func gaussian(x, center, amplitude, sigma, background float64) float64 {
	d := x - center
	return amplitude*math.Exp(-d*d/(2*sigma*sigma)) + background
}

// starRows returns a rows x cols image with a constant background and a
// horizontal star trace of Gaussian spatial profile centred on row center.
func starRows(rows, cols int, center, amplitude, sigma, background float64) [][]float64 {
	out := make([][]float64, rows)
	for r := range out {
		v := gaussian(float64(r), center, amplitude, sigma, background)
		out[r] = make([]float64, cols)
		for c := range out[r] {
			out[r][c] = v
		}
	}
	return out
}

func frameInfo(n int, yoffset float64) FrameInfo {
	return FrameInfo{
		Name:          fmt.Sprintf("m181125_%04d.fits", n),
		Number:        n,
		Object:        testMask,
		GratingMode:   "spectroscopy",
		YOffset:       yoffset,
		HasYOffset:    true,
		Airmass:       1.1 + 0.01*float64(n),
		Elevation:     60,
		PositionAngle: 12.5,
	}
}

func mustFrame(t *testing.T, info FrameInfo, rows [][]float64) *Frame {
	t.Helper()
	f, err := FrameFromRows(info, rows)
	require.NoError(t, err)
	return f
}
