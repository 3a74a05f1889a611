package report

import (
	"fmt"
	"math"
	"time"

	"slitdrift/pkg/slitdrift"
)

var night = time.Date(2018, time.November, 25, 6, 30, 0, 0, time.UTC)

func testFrame(n int) slitdrift.FrameInfo {
	return slitdrift.FrameInfo{
		Name:          fmt.Sprintf("m181125_%04d.fits", n),
		Number:        n,
		Object:        "MASK_A1",
		GratingMode:   "spectroscopy",
		UTC:           night.Add(time.Duration(n-1) * 5 * time.Minute),
		Airmass:       1.2 + 0.01*float64(n-1),
		Elevation:     56,
		PositionAngle: 12.5,
	}
}

func starPoint(n int, nod slitdrift.Nod, center, offset, seeing float64) slitdrift.DriftPoint {
	return slitdrift.DriftPoint{
		Frame:  testFrame(n),
		Nod:    nod,
		Fit:    slitdrift.FitResult{Center: center, Amplitude: 400, Width: 2.5, CenterErr: 0.01},
		Offset: offset,
		Seeing: seeing,
		Shift:  slitdrift.Shift{X: math.NaN(), Y: math.NaN()},
	}
}

func failedStarPoint(n int, nod slitdrift.Nod) slitdrift.DriftPoint {
	nan := math.NaN()
	return slitdrift.DriftPoint{
		Frame:  testFrame(n),
		Nod:    nod,
		Fit:    slitdrift.FitResult{Center: nan, Amplitude: nan, Width: nan, CenterErr: nan},
		Offset: nan,
		Seeing: nan,
		Shift:  slitdrift.Shift{X: nan, Y: nan},
		Err:    slitdrift.ErrFitNotConverged,
	}
}

func slitPoint(n int, nod slitdrift.Nod, x, y float64) slitdrift.DriftPoint {
	nan := math.NaN()
	return slitdrift.DriftPoint{
		Frame:  testFrame(n),
		Nod:    nod,
		Fit:    slitdrift.FitResult{Center: nan, Amplitude: nan, Width: nan, CenterErr: nan},
		Offset: nan,
		Seeing: nan,
		Shift:  slitdrift.Shift{X: x, Y: y},
	}
}

// starResult has frames 1 and 3 on nod A (3 failed) and 2 and 4 on nod B.
func starResult() slitdrift.Result {
	return slitdrift.Result{
		Kind: slitdrift.KindStar,
		A: slitdrift.DriftSeries{Kind: slitdrift.KindStar, Nod: slitdrift.NodA, Points: []slitdrift.DriftPoint{
			starPoint(1, slitdrift.NodA, 18.5, 0, 1.0575),
			failedStarPoint(3, slitdrift.NodA),
		}},
		B: slitdrift.DriftSeries{Kind: slitdrift.KindStar, Nod: slitdrift.NodB, Points: []slitdrift.DriftPoint{
			starPoint(2, slitdrift.NodB, 21.0, 0, 1.1),
			starPoint(4, slitdrift.NodB, 21.5, 0.09, 0.95),
		}},
	}
}

func slitResult() slitdrift.Result {
	return slitdrift.Result{
		Kind: slitdrift.KindSlit,
		A: slitdrift.DriftSeries{Kind: slitdrift.KindSlit, Nod: slitdrift.NodA, Points: []slitdrift.DriftPoint{
			slitPoint(1, slitdrift.NodA, 0, 0),
			slitPoint(3, slitdrift.NodA, 0.25, -0.5),
		}},
		B: slitdrift.DriftSeries{Kind: slitdrift.KindSlit, Nod: slitdrift.NodB, Points: []slitdrift.DriftPoint{
			slitPoint(2, slitdrift.NodB, 0, 0),
			slitPoint(4, slitdrift.NodB, -1.5, 0.125),
		}},
	}
}
