package slitdrift

import (
	"fmt"
	"image"
	"math"
	"time"
)

// Nod identifies one of the two dither positions.
type Nod int

const (
	NodA Nod = iota
	NodB
)

func (n Nod) String() string {
	switch n {
	case NodA:
		return "A"
	case NodB:
		return "B"
	default:
		return "Unknown"
	}
}

// FrameInfo carries the identity and acquisition metadata of a frame.
type FrameInfo struct {
	Name          string
	Path          string
	Number        int
	Object        string
	GratingMode   string
	YOffset       float64
	HasYOffset    bool
	UTC           time.Time
	Airmass       float64
	Elevation     float64
	PositionAngle float64
}

func (fi FrameInfo) String() string {
	return fmt.Sprintf("{Name=%s, Number=%d, Object=%s, GratingMode=%s, YOffset=%f, UTC=%s, Airmass=%f, Elevation=%f, PositionAngle=%f}",
		fi.Name, fi.Number, fi.Object, fi.GratingMode, fi.YOffset, fi.UTC.Format("15:04:05.000"), fi.Airmass, fi.Elevation, fi.PositionAngle)
}

// Frame is a detector image. Rows are spatial, columns spectral.
// Frames are never modified after construction.
type Frame struct {
	Info FrameInfo
	mat  Mat
}

// NewFrame copies pixels (row-major, rows*cols long) into a new frame.
func NewFrame(info FrameInfo, rows, cols int, pixels []float32) (*Frame, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", cols, rows)
	}
	if len(pixels) != rows*cols {
		return nil, fmt.Errorf("frame %s: %d pixels for %dx%d: %w", info.Name, len(pixels), cols, rows, ErrShapeMismatch)
	}
	m := NewMatWithSize(rows, cols)
	copy(m.DataFloat32(), pixels)
	return &Frame{Info: info, mat: m}, nil
}

// FrameFromRows builds a frame from a row-major slice of rows.
func FrameFromRows(info FrameInfo, rows [][]float64) (*Frame, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("frame %s: no rows", info.Name)
	}
	cols := len(rows[0])
	pixels := make([]float32, 0, len(rows)*cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("frame %s: row %d has %d columns, want %d: %w", info.Name, r, len(row), cols, ErrShapeMismatch)
		}
		for _, v := range row {
			pixels = append(pixels, float32(v))
		}
	}
	return NewFrame(info, len(rows), cols, pixels)
}

func (f *Frame) Rows() int { return f.mat.Rows() }
func (f *Frame) Cols() int { return f.mat.Cols() }

// At returns the pixel at row r, column c.
func (f *Frame) At(r, c int) float64 {
	return float64(f.mat.DataFloat32()[r*f.mat.Cols()+c])
}

// Row returns row r. The slice aliases the frame and must not be written.
func (f *Frame) Row(r int) []float32 {
	cols := f.mat.Cols()
	return f.mat.DataFloat32()[r*cols : (r+1)*cols]
}

// Pixels returns a row-major copy of all pixels.
func (f *Frame) Pixels() []float32 {
	n := f.Rows() * f.Cols()
	out := make([]float32, n)
	copy(out, f.mat.DataFloat32()[:n])
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{Info: f.Info, mat: f.mat.Clone()}
}

// Cutout copies the rectangle rect (X = columns, Y = rows) into a new frame.
func (f *Frame) Cutout(rect image.Rectangle) (*Frame, error) {
	bounds := image.Rect(0, 0, f.Cols(), f.Rows())
	if rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("cutout %v outside frame %s bounds %v", rect, f.Info.Name, bounds)
	}
	view := f.mat.Region(rect)
	defer view.Close()
	return &Frame{Info: f.Info, mat: view.Clone()}, nil
}

// Close releases the pixel buffer.
func (f *Frame) Close() {
	f.mat.Close()
}

// withRows returns a copy of f where every column of the rows flagged in
// blank is NaN.
func (f *Frame) withRows(blank []bool) *Frame {
	out := f.Clone()
	data := out.mat.DataFloat32()
	cols := out.Cols()
	nan := float32(math.NaN())
	for r, b := range blank {
		if !b {
			continue
		}
		row := data[r*cols : (r+1)*cols]
		for c := range row {
			row[c] = nan
		}
	}
	return out
}

// Profile is a 1D spatial profile, one sample per frame row. NaN marks an
// excluded sample.
type Profile []float64

// Finite returns the number of non-NaN samples.
func (p Profile) Finite() int {
	n := 0
	for _, v := range p {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// StarRegion is the half-open row range [Start, End) around a located star.
type StarRegion struct {
	Start int
	End   int
	Peak  int
}

func (r StarRegion) Len() int { return r.End - r.Start }

func (r StarRegion) String() string {
	return fmt.Sprintf("{Start=%d, End=%d, Peak=%d}", r.Start, r.End, r.Peak)
}

// FitResult is a Gaussian-plus-offset fit of a spatial profile. Center is in
// pixels relative to the first profile sample.
type FitResult struct {
	Center       float64
	Amplitude    float64
	Width        float64
	Background   float64
	CenterErr    float64
	AmplitudeErr float64
	WidthErr     float64
	RSquared     float64
	Iterations   int
}

func (r FitResult) String() string {
	return fmt.Sprintf("{Center=%f, Amplitude=%f, Width=%f, Background=%f, CenterErr=%f, AmplitudeErr=%f, WidthErr=%f, RSquared=%f, Iterations=%d}",
		r.Center, r.Amplitude, r.Width, r.Background, r.CenterErr, r.AmplitudeErr, r.WidthErr, r.RSquared, r.Iterations)
}

// Shift is the displacement of an image relative to a reference, in pixels.
// X runs along columns, Y along rows.
type Shift struct {
	X float64
	Y float64
}

func (s Shift) String() string {
	return fmt.Sprintf("{X=%f, Y=%f}", s.X, s.Y)
}
