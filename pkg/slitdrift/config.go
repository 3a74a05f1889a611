package slitdrift

import (
	"fmt"
	"strings"
	"time"
)

// FailurePolicy decides what a failed frame does to its series.
type FailurePolicy int

const (
	// PolicyAbort stops the aggregation at the first failed frame.
	PolicyAbort FailurePolicy = iota
	// PolicySkip records the failure and leaves a gap in the series.
	PolicySkip
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "abort" or "skip".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort", "":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyAbort, fmt.Errorf("unknown failure policy %q (want abort or skip)", s)
}

// HeaderKeys names the FITS keywords that carry frame metadata.
type HeaderKeys struct {
	Object        string
	GratingMode   string
	YOffset       string
	UTC           string
	Date          string
	Airmass       string
	Elevation     string
	PositionAngle string
}

// Config holds every tunable of the pipeline. It is passed by value and never
// modified by the pipeline.
type Config struct {
	// Instrument
	PlateScale float64 // arcsec per pixel
	FWHMFactor float64 // sigma to FWHM

	// Profile collapse and cosmic-ray scrub
	CollapseSigma float64
	ScrubSigma    float64
	ClipMaxIters  int

	// Star locator
	StarLowSigma  float64
	StarHighSigma float64
	StarHalfWidth int

	// Background mask
	SignalLowerSigma float64
	SignalUpperSigma float64
	MaskLowerSigma   float64
	MaskUpperSigma   float64
	MaskMargin       int

	// Gaussian fit
	FitSigma0    float64
	FitMinSigma  float64 // narrowest accepted width in pixels, 0 to accept any positive width
	FitMaxIter   int
	FitTolerance float64

	// Star flux diagnostic
	SmoothWindow  int
	FluxHalfRows  int
	SkyOffset     int
	FluxClipSigma float64

	// Cross correlation search radius in pixels, 0 for the whole image.
	MaxShift int

	// Aggregation
	GratingMode     string
	DitherTolerance float64
	FailurePolicy   FailurePolicy
	Workers         int
	ReferenceIndex  int

	Headers HeaderKeys
}

// DefaultConfig returns the configuration tuned for MOSFIRE raw frames.
func DefaultConfig() Config {
	return Config{
		PlateScale:       0.18,
		FWHMFactor:       2.35,
		CollapseSigma:    2,
		ScrubSigma:       2,
		ClipMaxIters:     5,
		StarLowSigma:     1.5,
		StarHighSigma:    5,
		StarHalfWidth:    27,
		SignalLowerSigma: 5,
		SignalUpperSigma: 3,
		MaskLowerSigma:   5,
		MaskUpperSigma:   2.5,
		MaskMargin:       5,
		FitSigma0:        4,
		FitMinSigma:      0.5,
		FitMaxIter:       200,
		FitTolerance:     1e-10,
		SmoothWindow:     181,
		FluxHalfRows:     2,
		SkyOffset:        8,
		FluxClipSigma:    2,
		MaxShift:         0,
		GratingMode:      "spectroscopy",
		DitherTolerance:  1e-6,
		FailurePolicy:    PolicyAbort,
		Workers:          1,
		ReferenceIndex:   0,
		Headers: HeaderKeys{
			Object:        "OBJECT",
			GratingMode:   "GRATMODE",
			YOffset:       "YOFFSET",
			UTC:           "UTC",
			Date:          "DATE-OBS",
			Airmass:       "AIRMASS",
			Elevation:     "EL",
			PositionAngle: "PA",
		},
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"plate scale", c.PlateScale},
		{"fwhm factor", c.FWHMFactor},
		{"collapse sigma", c.CollapseSigma},
		{"scrub sigma", c.ScrubSigma},
		{"star low sigma", c.StarLowSigma},
		{"star high sigma", c.StarHighSigma},
		{"signal lower sigma", c.SignalLowerSigma},
		{"signal upper sigma", c.SignalUpperSigma},
		{"mask lower sigma", c.MaskLowerSigma},
		{"mask upper sigma", c.MaskUpperSigma},
		{"fit sigma0", c.FitSigma0},
		{"fit tolerance", c.FitTolerance},
		{"flux clip sigma", c.FluxClipSigma},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("%s must be positive, got %g", p.name, p.v)
		}
	}
	if c.ClipMaxIters < 1 {
		return fmt.Errorf("clip max iterations must be at least 1, got %d", c.ClipMaxIters)
	}
	if c.StarHalfWidth < 1 {
		return fmt.Errorf("star half width must be at least 1, got %d", c.StarHalfWidth)
	}
	if c.MaskMargin < 0 {
		return fmt.Errorf("mask margin must not be negative, got %d", c.MaskMargin)
	}
	if c.FitMinSigma < 0 || c.FitMinSigma >= c.FitSigma0 {
		return fmt.Errorf("fit min sigma must be in [0, fit sigma0), got %g", c.FitMinSigma)
	}
	if c.FitMaxIter < 1 {
		return fmt.Errorf("fit max iterations must be at least 1, got %d", c.FitMaxIter)
	}
	if c.SmoothWindow < 1 || c.SmoothWindow%2 == 0 {
		return fmt.Errorf("smooth window must be a positive odd number, got %d", c.SmoothWindow)
	}
	if c.FluxHalfRows < 0 || c.SkyOffset <= c.FluxHalfRows {
		return fmt.Errorf("sky offset %d must exceed flux half rows %d", c.SkyOffset, c.FluxHalfRows)
	}
	if c.MaxShift < 0 {
		return fmt.Errorf("max shift must not be negative, got %d", c.MaxShift)
	}
	if c.DitherTolerance < 0 {
		return fmt.Errorf("dither tolerance must not be negative, got %g", c.DitherTolerance)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ReferenceIndex < 0 {
		return fmt.Errorf("reference index must not be negative, got %d", c.ReferenceIndex)
	}
	if c.Headers.Object == "" || c.Headers.GratingMode == "" || c.Headers.YOffset == "" {
		return fmt.Errorf("object, grating mode and dither offset header keys are required")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("{PlateScale=%f, FWHMFactor=%f, CollapseSigma=%f, ScrubSigma=%f, ClipMaxIters=%d, StarLowSigma=%f, StarHighSigma=%f, StarHalfWidth=%d, SignalLowerSigma=%f, SignalUpperSigma=%f, MaskLowerSigma=%f, MaskUpperSigma=%f, MaskMargin=%d, FitSigma0=%f, FitMinSigma=%f, FitMaxIter=%d, SmoothWindow=%d, MaxShift=%d, FailurePolicy=%s, Workers=%d, ReferenceIndex=%d}",
		c.PlateScale, c.FWHMFactor, c.CollapseSigma, c.ScrubSigma, c.ClipMaxIters, c.StarLowSigma, c.StarHighSigma, c.StarHalfWidth,
		c.SignalLowerSigma, c.SignalUpperSigma, c.MaskLowerSigma, c.MaskUpperSigma, c.MaskMargin, c.FitSigma0, c.FitMinSigma, c.FitMaxIter,
		c.SmoothWindow, c.MaxShift, c.FailurePolicy, c.Workers, c.ReferenceIndex)
}

// Observation describes one mask observed on one night.
type Observation struct {
	Home   string  // directory holding one sub-directory per night
	Date   string  // night, e.g. 2018nov25
	Mask   string  // OBJECT header value of the mask frames
	Dither float64 // nod offset in arcsec; nod A at +Dither, nod B at -Dither
	Band   string

	// StarRows fixes the star cutout rows [start, end); zero means locate.
	StarRows [2]int
	// StarCols fixes the summed columns [start, end); zero means full width.
	StarCols [2]int
}

// Night parses Date.
func (o Observation) Night() (time.Time, error) {
	t, err := time.Parse("2006Jan02", o.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing observation date %q: %w", o.Date, err)
	}
	return t, nil
}

// FilePrefix is the raw file name prefix of the night, "m" + YYMMDD.
func (o Observation) FilePrefix() (string, error) {
	night, err := o.Night()
	if err != nil {
		return "", err
	}
	return "m" + night.Format("060102"), nil
}

func (o Observation) hasStarRows() bool { return o.StarRows[1] > o.StarRows[0] }
func (o Observation) hasStarCols() bool { return o.StarCols[1] > o.StarCols[0] }

// Validate checks the fields the pipeline relies on.
func (o Observation) Validate() error {
	if o.Mask == "" {
		return fmt.Errorf("observation mask name is required")
	}
	if _, err := o.Night(); err != nil {
		return err
	}
	if !(o.Dither > 0) {
		return fmt.Errorf("observation %s: dither must be positive, got %g", o.Mask, o.Dither)
	}
	if o.StarRows != [2]int{} && !o.hasStarRows() {
		return fmt.Errorf("observation %s: invalid star rows %v", o.Mask, o.StarRows)
	}
	if o.StarCols != [2]int{} && !o.hasStarCols() {
		return fmt.Errorf("observation %s: invalid star columns %v", o.Mask, o.StarCols)
	}
	return nil
}
