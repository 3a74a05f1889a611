package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"slitdrift/pkg/slitdrift"
)

var nodColors = map[slitdrift.Nod]color.RGBA{
	slitdrift.NodA: {R: 31, G: 119, B: 180, A: 255},
	slitdrift.NodB: {R: 214, G: 39, B: 40, A: 255},
}

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// seriesXYs returns the finite (x, y) pairs of s.
func seriesXYs(s slitdrift.DriftSeries, x, y func(slitdrift.DriftPoint) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(s.Points))
	for _, p := range s.Points {
		xv, yv := x(p), y(p)
		if math.IsNaN(xv) || math.IsNaN(yv) {
			continue
		}
		pts = append(pts, plotter.XY{X: xv, Y: yv})
	}
	return pts
}

func frameNumber(p slitdrift.DriftPoint) float64 { return float64(p.Frame.Number) }

func utcSeconds(p slitdrift.DriftPoint) float64 {
	if p.Frame.UTC.IsZero() {
		return math.NaN()
	}
	return float64(p.Frame.UTC.Unix())
}

func addLinePoints(p *plot.Plot, label string, pts plotter.XYs, c color.Color, dashed bool) error {
	if len(pts) == 0 {
		return nil
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	if dashed {
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	}
	points.Color = c
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points)
	p.Legend.Add(label, line, points)
	return nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

// SaveStarDriftPlot draws the star offset of both nods against frame number.
// The format follows the extension of path (png, svg, pdf, ...).
func SaveStarDriftPlot(res slitdrift.Result, title, path string) error {
	p := newPlot(title, "Frame", "Offset (arcsec)")
	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		pts := seriesXYs(res.Series(nod), frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Offset })
		if err := addLinePoints(p, "nod "+nod.String(), pts, nodColors[nod], false); err != nil {
			return err
		}
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("saving star drift plot: %w", err)
	}
	return nil
}

// SaveSlitDriftPlot draws the x (solid) and y (dashed) slit shifts of both
// nods against frame number.
func SaveSlitDriftPlot(res slitdrift.Result, title, path string) error {
	p := newPlot(title, "Frame", "Shift (pixels)")
	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		s := res.Series(nod)
		xs := seriesXYs(s, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Shift.X })
		ys := seriesXYs(s, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Shift.Y })
		if err := addLinePoints(p, fmt.Sprintf("nod %s x", nod), xs, nodColors[nod], false); err != nil {
			return err
		}
		if err := addLinePoints(p, fmt.Sprintf("nod %s y", nod), ys, nodColors[nod], true); err != nil {
			return err
		}
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("saving slit drift plot: %w", err)
	}
	return nil
}

// SaveSeeingPlot draws seeing against UTC, coloured by airmass. Nod A uses
// circles and nod B triangles.
func SaveSeeingPlot(res slitdrift.Result, title, path string) error {
	p := newPlot(title, "UTC", "Seeing FWHM (arcsec)")
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range []slitdrift.DriftSeries{res.A, res.B} {
		for _, a := range s.Airmass() {
			if !math.IsNaN(a) {
				lo, hi = math.Min(lo, a), math.Max(hi, a)
			}
		}
	}
	cmap := moreland.SmoothBlueRed()
	if lo < hi {
		cmap.SetMin(lo)
		cmap.SetMax(hi)
	} else {
		cmap.SetMin(0)
		cmap.SetMax(1)
	}

	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		s := res.Series(nod)
		var pts plotter.XYs
		var airmass []float64
		for _, pt := range s.Points {
			x, y := utcSeconds(pt), pt.Seeing
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			pts = append(pts, plotter.XY{X: x, Y: y})
			airmass = append(airmass, pt.Frame.Airmass)
		}
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		var shape draw.GlyphDrawer = draw.CircleGlyph{}
		if nod == slitdrift.NodB {
			shape = draw.TriangleGlyph{}
		}
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			c, err := cmap.At(airmass[i])
			if err != nil {
				c = color.Gray{Y: 128}
			}
			return draw.GlyphStyle{Color: c, Radius: vg.Points(4), Shape: shape}
		}
		p.Add(sc)
		p.Legend.Add("nod "+nod.String(), sc)
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("saving seeing plot: %w", err)
	}
	return nil
}
