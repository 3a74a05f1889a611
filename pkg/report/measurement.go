package report

import (
	"time"

	"slitdrift/pkg/slitdrift"
)

// Run is one stored aggregation of an observation.
type Run struct {
	ID        string
	Mask      string
	Night     string
	Band      string
	Dither    float64
	Config    string
	CreatedAt time.Time
}

// Measurement is one stored frame measurement. Missing values are NaN.
type Measurement struct {
	RunID         string
	Kind          string
	Nod           string
	Frame         string
	Number        int
	UTC           time.Time
	Airmass       float64
	Elevation     float64
	PositionAngle float64
	Center        float64
	CenterErr     float64
	Amplitude     float64
	Width         float64
	Offset        float64
	Seeing        float64
	XShift        float64
	YShift        float64
	Error         string
}

// MeasurementFromPoint flattens a drift point for storage.
func MeasurementFromPoint(runID string, kind slitdrift.Kind, p slitdrift.DriftPoint) Measurement {
	m := Measurement{
		RunID:         runID,
		Kind:          kind.String(),
		Nod:           p.Nod.String(),
		Frame:         p.Frame.Name,
		Number:        p.Frame.Number,
		UTC:           p.Frame.UTC,
		Airmass:       p.Frame.Airmass,
		Elevation:     p.Frame.Elevation,
		PositionAngle: p.Frame.PositionAngle,
		Center:        p.Fit.Center,
		CenterErr:     p.Fit.CenterErr,
		Amplitude:     p.Fit.Amplitude,
		Width:         p.Fit.Width,
		Offset:        p.Offset,
		Seeing:        p.Seeing,
		XShift:        p.Shift.X,
		YShift:        p.Shift.Y,
	}
	if p.Err != nil {
		m.Error = p.Err.Error()
	}
	return m
}
