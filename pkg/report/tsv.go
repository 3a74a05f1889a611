// Package report persists, tabulates and plots drift measurements.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"slitdrift/pkg/slitdrift"
)

func newTSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04:05.000")
}

// WriteSeeingTSV writes the seeing table: frame number, UTC, seeing in
// arcsec, airmass and nod, one row per frame of both nods.
func WriteSeeingTSV(w io.Writer, res slitdrift.Result) error {
	cw := newTSVWriter(w)
	if err := cw.Write([]string{"frame", "utc", "seeing", "airmass", "nod"}); err != nil {
		return err
	}
	for _, s := range []slitdrift.DriftSeries{res.A, res.B} {
		for _, p := range s.Points {
			rec := []string{
				strconv.Itoa(p.Frame.Number),
				formatUTC(p.Frame.UTC),
				formatFloat(p.Seeing),
				formatFloat(p.Frame.Airmass),
				p.Nod.String(),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDriftTSV writes the drift table of a star or slit result.
func WriteDriftTSV(w io.Writer, res slitdrift.Result) error {
	cw := newTSVWriter(w)
	header := []string{"frame", "file", "nod", "utc", "airmass"}
	if res.Kind == slitdrift.KindSlit {
		header = append(header, "xshift", "yshift")
	} else {
		header = append(header, "center", "offset", "seeing")
	}
	header = append(header, "error")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range []slitdrift.DriftSeries{res.A, res.B} {
		for _, p := range s.Points {
			rec := []string{
				strconv.Itoa(p.Frame.Number),
				p.Frame.Name,
				p.Nod.String(),
				formatUTC(p.Frame.UTC),
				formatFloat(p.Frame.Airmass),
			}
			if res.Kind == slitdrift.KindSlit {
				rec = append(rec, formatFloat(p.Shift.X), formatFloat(p.Shift.Y))
			} else {
				rec = append(rec, formatFloat(p.Fit.Center), formatFloat(p.Offset), formatFloat(p.Seeing))
			}
			errText := ""
			if p.Err != nil {
				errText = p.Err.Error()
			}
			rec = append(rec, errText)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMeasurementsTSV writes stored measurements with every column.
func WriteMeasurementsTSV(w io.Writer, ms []Measurement) error {
	cw := newTSVWriter(w)
	header := []string{"run", "kind", "nod", "file", "frame", "utc", "airmass", "elevation", "pa",
		"center", "center_err", "amplitude", "width", "offset", "seeing", "xshift", "yshift", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, m := range ms {
		rec := []string{
			m.RunID, m.Kind, m.Nod, m.Frame, strconv.Itoa(m.Number), formatUTC(m.UTC),
			formatFloat(m.Airmass), formatFloat(m.Elevation), formatFloat(m.PositionAngle),
			formatFloat(m.Center), formatFloat(m.CenterErr), formatFloat(m.Amplitude), formatFloat(m.Width),
			formatFloat(m.Offset), formatFloat(m.Seeing), formatFloat(m.XShift), formatFloat(m.YShift),
			m.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
