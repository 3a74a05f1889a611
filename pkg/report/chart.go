package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"slitdrift/pkg/slitdrift"
)

// lineData returns the finite (x, y) pairs of s. NaN cannot be encoded in
// the chart JSON.
func lineData(s slitdrift.DriftSeries, x, y func(slitdrift.DriftPoint) float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(s.Points))
	for _, p := range s.Points {
		xv, yv := x(p), y(p)
		if math.IsNaN(xv) || math.IsNaN(yv) || math.IsInf(yv, 0) {
			continue
		}
		data = append(data, opts.LineData{Name: p.Frame.Name, Value: []interface{}{xv, yv}})
	}
	return data
}

func newLineChart(title, subtitle, xName, xType, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: xType, Name: xName, NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName, NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
	)
	return line
}

func starCharts(res slitdrift.Result, title string) []components.Charter {
	drift := newLineChart(title+" star drift", "offset from first frame of nod", "Frame", "value", "Offset (arcsec)")
	seeing := newLineChart(title+" seeing", "Gaussian FWHM", "UTC", "time", "Seeing (arcsec)")
	utcMillis := func(p slitdrift.DriftPoint) float64 { return utcSeconds(p) * 1000 }

	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		s := res.Series(nod)
		name := "nod " + nod.String()
		drift.AddSeries(name, lineData(s, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Offset }),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
		seeing.AddSeries(name, lineData(s, utcMillis, func(p slitdrift.DriftPoint) float64 { return p.Seeing }),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}
	return []components.Charter{drift, seeing}
}

func slitCharts(res slitdrift.Result, title string) []components.Charter {
	drift := newLineChart(title+" slit drift", "shift from first frame of nod", "Frame", "value", "Shift (pixels)")
	for _, nod := range []slitdrift.Nod{slitdrift.NodA, slitdrift.NodB} {
		s := res.Series(nod)
		drift.AddSeries(fmt.Sprintf("nod %s x", nod), lineData(s, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Shift.X }),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
		drift.AddSeries(fmt.Sprintf("nod %s y", nod), lineData(s, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Shift.Y }),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}
	return []components.Charter{drift}
}

// WriteHTML renders interactive charts of the given results as one page.
func WriteHTML(w io.Writer, title string, results ...slitdrift.Result) error {
	page := components.NewPage()
	page.SetPageTitle(title)
	for _, res := range results {
		switch res.Kind {
		case slitdrift.KindStar:
			page.AddCharts(starCharts(res, title)...)
		case slitdrift.KindSlit:
			page.AddCharts(slitCharts(res, title)...)
		}
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering charts: %w", err)
	}
	return nil
}
