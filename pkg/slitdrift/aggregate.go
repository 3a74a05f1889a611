package slitdrift

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind selects what the Aggregator measures on each frame.
type Kind int

const (
	// KindStar fits the star profile for drift and seeing.
	KindStar Kind = iota
	// KindSlit cross-correlates background-masked frames.
	KindSlit
)

func (k Kind) String() string {
	switch k {
	case KindStar:
		return "star"
	case KindSlit:
		return "slit"
	default:
		return "unknown"
	}
}

// DriftPoint is the measurement of one frame. Err is set for frames skipped
// under PolicySkip, in which case the numeric fields are NaN.
type DriftPoint struct {
	Frame FrameInfo
	Nod   Nod

	Fit    FitResult
	Offset float64 // arcsec, relative to the first measured frame of the nod
	Seeing float64 // FWHM, arcsec

	Shift Shift // pixels, relative to the first frame of the nod

	Err error
}

func failedPoint(info FrameInfo, nod Nod, err error) DriftPoint {
	nan := math.NaN()
	return DriftPoint{
		Frame:  info,
		Nod:    nod,
		Fit:    FitResult{Center: nan, Amplitude: nan, Width: nan, Background: nan, CenterErr: nan, AmplitudeErr: nan, WidthErr: nan, RSquared: nan},
		Offset: nan,
		Seeing: nan,
		Shift:  Shift{X: nan, Y: nan},
		Err:    err,
	}
}

// DriftSeries is the per-frame measurements of one nod in acquisition order.
type DriftSeries struct {
	Kind   Kind
	Nod    Nod
	Points []DriftPoint
}

func (s DriftSeries) Frames() []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Frame.Name
	}
	return out
}

func (s DriftSeries) Numbers() []int {
	out := make([]int, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Frame.Number
	}
	return out
}

func (s DriftSeries) Offsets() []float64 {
	return s.column(func(p DriftPoint) float64 { return p.Offset })
}

func (s DriftSeries) Seeing() []float64 {
	return s.column(func(p DriftPoint) float64 { return p.Seeing })
}

func (s DriftSeries) XShifts() []float64 {
	return s.column(func(p DriftPoint) float64 { return p.Shift.X })
}

func (s DriftSeries) YShifts() []float64 {
	return s.column(func(p DriftPoint) float64 { return p.Shift.Y })
}

func (s DriftSeries) Airmass() []float64 {
	return s.column(func(p DriftPoint) float64 { return p.Frame.Airmass })
}

// Failed counts the skipped frames.
func (s DriftSeries) Failed() int {
	n := 0
	for _, p := range s.Points {
		if p.Err != nil {
			n++
		}
	}
	return n
}

func (s DriftSeries) column(get func(DriftPoint) float64) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = get(p)
	}
	return out
}

// Result holds both nod series of one aggregation.
type Result struct {
	Kind Kind
	A    DriftSeries
	B    DriftSeries
	// Star is the cutout the star was fitted in (KindStar only).
	Star image.Rectangle
}

// Series returns the series of nod n.
func (r Result) Series(n Nod) DriftSeries {
	if n == NodB {
		return r.B
	}
	return r.A
}

// RunResult is a full star and slit aggregation of one observation.
type RunResult struct {
	Split NodSplit
	Star  Result
	Slit  Result
}

// Table receives measured points in acquisition order, one call at a time.
type Table interface {
	Append(kind Kind, p DriftPoint) error
}

// Aggregator measures the frames of one observation.
type Aggregator struct {
	Config      Config
	Observation Observation
	Store       FrameStore
	// Table, when set, receives every point after a series completes.
	Table  Table
	Logger *slog.Logger
}

// NewAggregator creates an Aggregator reading frames from store.
func NewAggregator(cfg Config, obs Observation, store FrameStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{Config: cfg, Observation: obs, Store: store, Logger: logger}
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Classify selects the mask frames of the observation and splits them by nod.
func (a *Aggregator) Classify(ctx context.Context) (NodSplit, error) {
	if err := a.Observation.Validate(); err != nil {
		return NodSplit{}, err
	}
	infos, err := SelectMaskFrames(ctx, a.Store, a.Observation, a.logger())
	if err != nil {
		return NodSplit{}, err
	}
	split, err := SplitNods(infos, a.Observation, a.Config)
	if err != nil {
		return NodSplit{}, err
	}
	a.logger().Info("split frames by nod",
		"mask", a.Observation.Mask,
		"nod_a", len(split.A),
		"nod_b", len(split.B),
		"skipped", len(split.Skipped),
	)
	return split, nil
}

// StarDrift fits the star on every frame and reports its offset from the
// first frame of each nod.
func (a *Aggregator) StarDrift(ctx context.Context) (Result, error) {
	split, err := a.Classify(ctx)
	if err != nil {
		return Result{}, err
	}
	return a.Aggregate(ctx, KindStar, split)
}

// Seeing is StarDrift; the seeing series comes from the same fits.
func (a *Aggregator) Seeing(ctx context.Context) (Result, error) {
	return a.StarDrift(ctx)
}

// SlitDrift cross-correlates the masked background of every frame against
// the first frame of its nod.
func (a *Aggregator) SlitDrift(ctx context.Context) (Result, error) {
	split, err := a.Classify(ctx)
	if err != nil {
		return Result{}, err
	}
	return a.Aggregate(ctx, KindSlit, split)
}

// Run classifies once and runs both aggregations.
func (a *Aggregator) Run(ctx context.Context) (RunResult, error) {
	split, err := a.Classify(ctx)
	if err != nil {
		return RunResult{}, err
	}
	star, err := a.Aggregate(ctx, KindStar, split)
	if err != nil {
		return RunResult{}, err
	}
	slit, err := a.Aggregate(ctx, KindSlit, split)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Split: split, Star: star, Slit: slit}, nil
}

// Aggregate measures the classified frames of split. Under PolicyAbort the
// first frame failure is returned as a *FrameError; under PolicySkip the
// frame stays in its series with Err set.
func (a *Aggregator) Aggregate(ctx context.Context, kind Kind, split NodSplit) (Result, error) {
	if err := a.Config.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Kind: kind}

	switch kind {
	case KindStar:
		box, err := a.starBox(ctx, split)
		if err != nil {
			return Result{}, err
		}
		res.Star = box
		a.logger().Info("star cutout", "rows", fmt.Sprintf("[%d,%d)", box.Min.Y, box.Max.Y), "cols", fmt.Sprintf("[%d,%d)", box.Min.X, box.Max.X))
		for _, nod := range []Nod{NodA, NodB} {
			s, err := a.starSeries(ctx, nod, split.Nod(nod), box)
			if err != nil {
				return Result{}, err
			}
			if nod == NodA {
				res.A = s
			} else {
				res.B = s
			}
		}
	case KindSlit:
		for _, nod := range []Nod{NodA, NodB} {
			s, err := a.slitSeries(ctx, nod, split.Nod(nod))
			if err != nil {
				return Result{}, err
			}
			if nod == NodA {
				res.A = s
			} else {
				res.B = s
			}
		}
	default:
		return Result{}, fmt.Errorf("unknown measurement kind %d", kind)
	}

	if err := a.appendTable(kind, split, res); err != nil {
		return Result{}, err
	}
	a.logger().Info("aggregation complete",
		"kind", kind.String(),
		"nod_a", len(res.A.Points),
		"nod_b", len(res.B.Points),
		"failed", res.A.Failed()+res.B.Failed(),
	)
	return res, nil
}

// starBox returns the star cutout (X columns, Y rows). Rows not fixed by the
// observation are located on the reference frame.
func (a *Aggregator) starBox(ctx context.Context, split NodSplit) (image.Rectangle, error) {
	obs := a.Observation
	if obs.hasStarRows() && obs.hasStarCols() {
		return image.Rect(obs.StarCols[0], obs.StarRows[0], obs.StarCols[1], obs.StarRows[1]), nil
	}

	idx := a.Config.ReferenceIndex
	if idx < 0 || idx >= len(split.Order) {
		return image.Rectangle{}, fmt.Errorf("reference index %d outside %d frames", idx, len(split.Order))
	}
	info := split.Order[idx]
	ref, err := a.Store.Load(ctx, info.Name)
	if err != nil {
		return image.Rectangle{}, &FrameError{Frame: info.Name, Stage: "load", Err: err}
	}
	defer ref.Close()

	rows := obs.StarRows
	if !obs.hasStarRows() {
		profile, err := Collapse(ref, a.Config)
		if err != nil {
			return image.Rectangle{}, &FrameError{Frame: info.Name, Stage: "collapse", Err: err}
		}
		region, err := LocateStar(profile, a.Config)
		if err != nil {
			return image.Rectangle{}, &FrameError{Frame: info.Name, Stage: "locate", Err: err}
		}
		a.logger().Debug("located star", "frame", info.Name, "region", region.String())
		rows = [2]int{region.Start, region.End}
	}
	cols := obs.StarCols
	if !obs.hasStarCols() {
		cols = [2]int{0, ref.Cols()}
	}
	return image.Rect(cols[0], rows[0], cols[1], rows[1]), nil
}

func (a *Aggregator) starSeries(ctx context.Context, nod Nod, infos []FrameInfo, box image.Rectangle) (DriftSeries, error) {
	points, err := a.measureAll(ctx, KindStar, nod, infos, func(ctx context.Context, info FrameInfo) (DriftPoint, error) {
		return a.measureStar(ctx, info, nod, box)
	})
	if err != nil {
		return DriftSeries{}, err
	}

	center0 := math.NaN()
	for _, p := range points {
		if p.Err == nil {
			center0 = p.Fit.Center
			break
		}
	}
	for i := range points {
		if points[i].Err == nil {
			points[i].Offset = (center0 - points[i].Fit.Center) * a.Config.PlateScale
		}
	}
	return DriftSeries{Kind: KindStar, Nod: nod, Points: points}, nil
}

func (a *Aggregator) measureStar(ctx context.Context, info FrameInfo, nod Nod, box image.Rectangle) (DriftPoint, error) {
	f, err := a.Store.Load(ctx, info.Name)
	if err != nil {
		return DriftPoint{}, &FrameError{Frame: info.Name, Stage: "load", Err: err}
	}
	defer f.Close()

	cut, err := f.Cutout(box)
	if err != nil {
		return DriftPoint{}, &FrameError{Frame: info.Name, Stage: "cutout", Err: err}
	}
	defer cut.Close()

	fit, err := FitCutout(cut, a.Config)
	if err != nil {
		return DriftPoint{}, &FrameError{Frame: info.Name, Stage: "fit", Err: err}
	}
	fit.Center += float64(box.Min.Y)
	return DriftPoint{
		Frame:  f.Info,
		Nod:    nod,
		Fit:    fit,
		Seeing: fit.Width * a.Config.FWHMFactor * a.Config.PlateScale,
		Shift:  Shift{X: math.NaN(), Y: math.NaN()},
	}, nil
}

func (a *Aggregator) slitSeries(ctx context.Context, nod Nod, infos []FrameInfo) (DriftSeries, error) {
	series := DriftSeries{Kind: KindSlit, Nod: nod}

	var ref *Frame
	start := 0
	for ; start < len(infos) && ref == nil; start++ {
		masked, err := a.loadMasked(ctx, infos[start])
		if err != nil {
			if err := a.handleFailure(KindSlit, err); err != nil {
				return DriftSeries{}, err
			}
			series.Points = append(series.Points, failedPoint(infos[start], nod, err))
			continue
		}
		ref = masked
	}
	if ref == nil {
		return series, nil
	}
	defer ref.Close()
	start--
	a.logger().Debug("slit reference", "nod", nod.String(), "frame", ref.Info.Name, "masked_rows", MaskedRows(ref))

	points, err := a.measureAll(ctx, KindSlit, nod, infos[start:], func(ctx context.Context, info FrameInfo) (DriftPoint, error) {
		masked, err := a.loadMasked(ctx, info)
		if err != nil {
			return DriftPoint{}, err
		}
		defer masked.Close()
		shift, err := CrossCorrelationShifts(ref, masked, a.Config.MaxShift)
		if err != nil {
			return DriftPoint{}, &FrameError{Frame: info.Name, Stage: "correlate", Err: err}
		}
		p := failedPoint(masked.Info, nod, nil)
		p.Shift = shift
		return p, nil
	})
	if err != nil {
		return DriftSeries{}, err
	}
	series.Points = append(series.Points, points...)
	return series, nil
}

func (a *Aggregator) loadMasked(ctx context.Context, info FrameInfo) (*Frame, error) {
	f, err := a.Store.Load(ctx, info.Name)
	if err != nil {
		return nil, &FrameError{Frame: info.Name, Stage: "load", Err: err}
	}
	defer f.Close()
	masked, err := MaskFrame(f, a.Config)
	if err != nil {
		return nil, &FrameError{Frame: info.Name, Stage: "mask", Err: err}
	}
	return masked, nil
}

type measureFunc func(ctx context.Context, info FrameInfo) (DriftPoint, error)

// measureAll runs measure over infos, with up to Config.Workers frames in
// flight. Points come back in the order of infos.
func (a *Aggregator) measureAll(ctx context.Context, kind Kind, nod Nod, infos []FrameInfo, measure measureFunc) ([]DriftPoint, error) {
	points := make([]DriftPoint, len(infos))
	one := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		p, err := measure(ctx, infos[i])
		if err != nil {
			if err := a.handleFailure(kind, err); err != nil {
				return err
			}
			points[i] = failedPoint(infos[i], nod, err)
			return nil
		}
		fitDurationSeconds.Observe(time.Since(start).Seconds())
		framesProcessedTotal.WithLabelValues(kind.String(), nod.String()).Inc()
		a.logger().Debug("measured frame", "kind", kind.String(), "nod", nod.String(), "frame", infos[i].Name)
		points[i] = p
		return nil
	}

	if a.Config.Workers <= 1 {
		for i := range infos {
			if err := one(ctx, i); err != nil {
				return nil, err
			}
		}
		return points, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Config.Workers)
	for i := range infos {
		g.Go(func() error { return one(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// handleFailure counts a frame failure and returns it unless the policy is
// to skip the frame.
func (a *Aggregator) handleFailure(kind Kind, err error) error {
	stage := "unknown"
	frame := ""
	var fe *FrameError
	if errors.As(err, &fe) {
		stage = fe.Stage
		frame = fe.Frame
	}
	frameFailuresTotal.WithLabelValues(stage).Inc()
	if a.Config.FailurePolicy != PolicySkip {
		return err
	}
	a.logger().Warn("skipping frame", "kind", kind.String(), "frame", frame, "stage", stage, "error", err)
	return nil
}

func (a *Aggregator) appendTable(kind Kind, split NodSplit, res Result) error {
	if a.Table == nil {
		return nil
	}
	byName := make(map[string]DriftPoint, split.Len())
	for _, s := range []DriftSeries{res.A, res.B} {
		for _, p := range s.Points {
			byName[p.Frame.Name] = p
		}
	}
	for _, fi := range split.Order {
		p, ok := byName[fi.Name]
		if !ok {
			continue
		}
		if err := a.Table.Append(kind, p); err != nil {
			return fmt.Errorf("appending %s to table: %w", fi.Name, err)
		}
	}
	return nil
}
