package slitdrift

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// FileConfig is the on-disk configuration: pipeline overrides plus the
// catalog of observations. Unset fields keep their defaults.
type FileConfig struct {
	Pipeline     PipelineFileConfig      `yaml:"pipeline" toml:"pipeline"`
	Headers      HeaderFileConfig        `yaml:"headers" toml:"headers"`
	Observations []ObservationFileConfig `yaml:"observations" toml:"observations"`
}

// PipelineFileConfig maps Config fields.
type PipelineFileConfig struct {
	PlateScale       *float64 `yaml:"plate_scale" toml:"plate_scale"`
	FWHMFactor       *float64 `yaml:"fwhm_factor" toml:"fwhm_factor"`
	CollapseSigma    *float64 `yaml:"collapse_sigma" toml:"collapse_sigma"`
	ScrubSigma       *float64 `yaml:"scrub_sigma" toml:"scrub_sigma"`
	ClipMaxIters     *int     `yaml:"clip_max_iters" toml:"clip_max_iters"`
	StarLowSigma     *float64 `yaml:"star_low_sigma" toml:"star_low_sigma"`
	StarHighSigma    *float64 `yaml:"star_high_sigma" toml:"star_high_sigma"`
	StarHalfWidth    *int     `yaml:"star_half_width" toml:"star_half_width"`
	SignalLowerSigma *float64 `yaml:"signal_lower_sigma" toml:"signal_lower_sigma"`
	SignalUpperSigma *float64 `yaml:"signal_upper_sigma" toml:"signal_upper_sigma"`
	MaskLowerSigma   *float64 `yaml:"mask_lower_sigma" toml:"mask_lower_sigma"`
	MaskUpperSigma   *float64 `yaml:"mask_upper_sigma" toml:"mask_upper_sigma"`
	MaskMargin       *int     `yaml:"mask_margin" toml:"mask_margin"`
	FitSigma0        *float64 `yaml:"fit_sigma0" toml:"fit_sigma0"`
	FitMinSigma      *float64 `yaml:"fit_min_sigma" toml:"fit_min_sigma"`
	FitMaxIter       *int     `yaml:"fit_max_iter" toml:"fit_max_iter"`
	FitTolerance     *float64 `yaml:"fit_tolerance" toml:"fit_tolerance"`
	SmoothWindow     *int     `yaml:"smooth_window" toml:"smooth_window"`
	FluxHalfRows     *int     `yaml:"flux_half_rows" toml:"flux_half_rows"`
	SkyOffset        *int     `yaml:"sky_offset" toml:"sky_offset"`
	FluxClipSigma    *float64 `yaml:"flux_clip_sigma" toml:"flux_clip_sigma"`
	MaxShift         *int     `yaml:"max_shift" toml:"max_shift"`
	GratingMode      *string  `yaml:"grating_mode" toml:"grating_mode"`
	DitherTolerance  *float64 `yaml:"dither_tolerance" toml:"dither_tolerance"`
	FailurePolicy    *string  `yaml:"failure_policy" toml:"failure_policy"`
	Workers          *int     `yaml:"workers" toml:"workers"`
	ReferenceIndex   *int     `yaml:"reference_index" toml:"reference_index"`
}

// HeaderFileConfig maps HeaderKeys.
type HeaderFileConfig struct {
	Object        *string `yaml:"object" toml:"object"`
	GratingMode   *string `yaml:"grating_mode" toml:"grating_mode"`
	YOffset       *string `yaml:"y_offset" toml:"y_offset"`
	UTC           *string `yaml:"utc" toml:"utc"`
	Date          *string `yaml:"date" toml:"date"`
	Airmass       *string `yaml:"airmass" toml:"airmass"`
	Elevation     *string `yaml:"elevation" toml:"elevation"`
	PositionAngle *string `yaml:"position_angle" toml:"position_angle"`
}

// ObservationFileConfig is one row of the observation catalog.
type ObservationFileConfig struct {
	Path     string  `yaml:"path" toml:"path"`
	Date     string  `yaml:"date" toml:"date"`
	Mask     string  `yaml:"mask" toml:"mask"`
	Dither   float64 `yaml:"dither" toml:"dither"`
	Band     string  `yaml:"band" toml:"band"`
	StarSlit []int   `yaml:"star_slit" toml:"star_slit"`
	StarCols []int   `yaml:"star_cols" toml:"star_cols"`
}

// LoadConfigFile reads a YAML (.yaml, .yml) or TOML (.toml) config. A missing
// file is not an error.
func LoadConfigFile(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("reading config: %w", err)
	}
	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &fc); err != nil {
			return FileConfig{}, fmt.Errorf("decoding yaml config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return FileConfig{}, fmt.Errorf("decoding toml config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return FileConfig{}, fmt.Errorf("decoding toml config %s: unknown keys %v", path, undecoded)
		}
	default:
		return FileConfig{}, fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .toml)", ext)
	}
	return fc, nil
}

// Apply overlays the file settings on base and validates the result.
func (fc FileConfig) Apply(base Config) (Config, error) {
	p := fc.Pipeline
	setFloat(&base.PlateScale, p.PlateScale)
	setFloat(&base.FWHMFactor, p.FWHMFactor)
	setFloat(&base.CollapseSigma, p.CollapseSigma)
	setFloat(&base.ScrubSigma, p.ScrubSigma)
	setInt(&base.ClipMaxIters, p.ClipMaxIters)
	setFloat(&base.StarLowSigma, p.StarLowSigma)
	setFloat(&base.StarHighSigma, p.StarHighSigma)
	setInt(&base.StarHalfWidth, p.StarHalfWidth)
	setFloat(&base.SignalLowerSigma, p.SignalLowerSigma)
	setFloat(&base.SignalUpperSigma, p.SignalUpperSigma)
	setFloat(&base.MaskLowerSigma, p.MaskLowerSigma)
	setFloat(&base.MaskUpperSigma, p.MaskUpperSigma)
	setInt(&base.MaskMargin, p.MaskMargin)
	setFloat(&base.FitSigma0, p.FitSigma0)
	setFloat(&base.FitMinSigma, p.FitMinSigma)
	setInt(&base.FitMaxIter, p.FitMaxIter)
	setFloat(&base.FitTolerance, p.FitTolerance)
	setInt(&base.SmoothWindow, p.SmoothWindow)
	setInt(&base.FluxHalfRows, p.FluxHalfRows)
	setInt(&base.SkyOffset, p.SkyOffset)
	setFloat(&base.FluxClipSigma, p.FluxClipSigma)
	setInt(&base.MaxShift, p.MaxShift)
	setString(&base.GratingMode, p.GratingMode)
	setFloat(&base.DitherTolerance, p.DitherTolerance)
	setInt(&base.Workers, p.Workers)
	setInt(&base.ReferenceIndex, p.ReferenceIndex)
	if p.FailurePolicy != nil {
		policy, err := ParseFailurePolicy(*p.FailurePolicy)
		if err != nil {
			return base, err
		}
		base.FailurePolicy = policy
	}

	h := fc.Headers
	setString(&base.Headers.Object, h.Object)
	setString(&base.Headers.GratingMode, h.GratingMode)
	setString(&base.Headers.YOffset, h.YOffset)
	setString(&base.Headers.UTC, h.UTC)
	setString(&base.Headers.Date, h.Date)
	setString(&base.Headers.Airmass, h.Airmass)
	setString(&base.Headers.Elevation, h.Elevation)
	setString(&base.Headers.PositionAngle, h.PositionAngle)

	if err := base.Validate(); err != nil {
		return base, fmt.Errorf("invalid config: %w", err)
	}
	return base, nil
}

// FindObservation returns the catalog entry for mask, narrowed by date when
// date is not empty. The last matching entry wins.
func (fc FileConfig) FindObservation(mask, date string) (Observation, error) {
	var found *ObservationFileConfig
	for i := range fc.Observations {
		o := &fc.Observations[i]
		if o.Mask != mask {
			continue
		}
		if date != "" && !strings.EqualFold(o.Date, date) {
			continue
		}
		found = o
	}
	if found == nil {
		return Observation{}, fmt.Errorf("mask %q, date %q: %w", mask, date, ErrObservationNotFound)
	}
	return found.Observation()
}

// Observation converts the catalog row, checking the bound pairs.
func (o ObservationFileConfig) Observation() (Observation, error) {
	obs, err := o.observation()
	if err != nil {
		return Observation{}, fmt.Errorf("catalog entry %s %s: %w", o.Mask, o.Date, err)
	}
	return obs, nil
}

func (o ObservationFileConfig) observation() (Observation, error) {
	obs := Observation{
		Home:   o.Path,
		Date:   o.Date,
		Mask:   o.Mask,
		Dither: o.Dither,
		Band:   o.Band,
	}
	var err error
	if obs.StarRows, err = boundPair("star_slit", o.StarSlit); err != nil {
		return Observation{}, err
	}
	if obs.StarCols, err = boundPair("star_cols", o.StarCols); err != nil {
		return Observation{}, err
	}
	return obs, obs.Validate()
}

func boundPair(name string, v []int) ([2]int, error) {
	switch len(v) {
	case 0:
		return [2]int{}, nil
	case 2:
		return [2]int{v[0], v[1]}, nil
	}
	return [2]int{}, fmt.Errorf("%s must have two entries, got %d", name, len(v))
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
