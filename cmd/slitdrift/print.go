package main

import (
	"fmt"
	"math"
	"time"

	sd "slitdrift/pkg/slitdrift"
)

func printFrames(split sd.NodSplit) {
	fmt.Printf("\n=== Mask Frames ===\n")
	for _, fi := range split.Order {
		nod := sd.NodA
		if fi.YOffset < 0 {
			nod = sd.NodB
		}
		fmt.Printf("  %-22s %s  yoffset=%+.2f  airmass=%.3f  utc=%s\n",
			fi.Name, nod, fi.YOffset, fi.Airmass, fi.UTC.Format("15:04:05"))
	}
	for _, fi := range split.Skipped {
		fmt.Printf("  %-22s -  skipped (%s)\n", fi.Name, fi.GratingMode)
	}
	fmt.Printf("  Nod A: %d  Nod B: %d  Skipped: %d\n", len(split.A), len(split.B), len(split.Skipped))
	fmt.Printf("==============================\n")
}

func printStarDrift(res sd.Result, elapsed time.Duration) {
	fmt.Printf("\n=== Star Drift (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Star cutout:     rows [%d,%d) cols [%d,%d)\n",
		res.Star.Min.Y, res.Star.Max.Y, res.Star.Min.X, res.Star.Max.X)
	for _, nod := range []sd.Nod{sd.NodA, sd.NodB} {
		s := res.Series(nod)
		offsets := s.Offsets()
		lo, hi := finiteRange(offsets)
		fmt.Printf("  Nod %s:           %d frames, %d failed, drift %.3f..%.3f\"\n",
			nod, len(s.Points), s.Failed(), lo, hi)
	}
	fmt.Printf("==============================\n")
}

func printSeeing(res sd.Result, elapsed time.Duration) {
	seeing := append(res.A.Seeing(), res.B.Seeing()...)
	median, mad := medianMAD(seeing)
	lo, hi := finiteRange(seeing)
	fmt.Printf("\n=== Seeing (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Frames:          %d\n", len(seeing))
	fmt.Printf("  FWHM (median):   %.3f +/- %.3f\"\n", median, mad)
	fmt.Printf("  FWHM range:      %.3f..%.3f\"\n", lo, hi)
	fmt.Printf("==============================\n")
}

func printSlitDrift(res sd.Result, elapsed time.Duration) {
	fmt.Printf("\n=== Slit Drift (%.1fs) ===\n", elapsed.Seconds())
	for _, nod := range []sd.Nod{sd.NodA, sd.NodB} {
		s := res.Series(nod)
		xlo, xhi := finiteRange(s.XShifts())
		ylo, yhi := finiteRange(s.YShifts())
		fmt.Printf("  Nod %s:           %d frames, %d failed\n", nod, len(s.Points), s.Failed())
		fmt.Printf("    X shift:       %.2f..%.2f px\n", xlo, xhi)
		fmt.Printf("    Y shift:       %.2f..%.2f px\n", ylo, yhi)
	}
	fmt.Printf("==============================\n")
}

func finiteRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}
