//go:build purego || js

package slitdrift

import "image"

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data    []float32
	rows    int
	cols    int
	stride  int // elements per row in backing array (differs from cols for regions)
	dataOff int
	owned   bool
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		stride: cols,
		owned:  true,
	}
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }

func (m *Mat) Close() {
	if m.owned {
		m.data = nil
	}
	m.rows = 0
	m.cols = 0
}

// Clone returns a continuous deep copy, including of sub-regions.
func (m Mat) Clone() Mat {
	out := NewMatWithSize(m.rows, m.cols)
	for r := 0; r < m.rows; r++ {
		off := m.dataOff + r*m.stride
		copy(out.data[r*m.cols:], m.data[off:off+m.cols])
	}
	return out
}

// Region returns a view sharing pixels with m. Clone it before calling DataFloat32.
func (m Mat) Region(r image.Rectangle) Mat {
	return Mat{
		data:    m.data,
		rows:    r.Dy(),
		cols:    r.Dx(),
		stride:  m.stride,
		dataOff: m.dataOff + r.Min.Y*m.stride + r.Min.X,
	}
}

// DataFloat32 returns the backing float32 slice of a continuous mat.
func (m Mat) DataFloat32() []float32 {
	return m.data[m.dataOff:]
}

func reflectIndex(idx, size int) int {
	if idx < 0 {
		idx = -idx
	}
	for idx >= size {
		idx = 2*size - 2 - idx
		if idx < 0 {
			idx = -idx
		}
	}
	return idx
}

// boxFilterRows smooths every row with a flat window of odd width, reflecting
// at the edges without repeating the border sample.
func boxFilterRows(src Mat, dst *Mat, window int) {
	rows, cols := src.rows, src.cols
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
	half := window / 2
	weight := 1 / float64(window)
	row := make([]float32, cols)
	for r := 0; r < rows; r++ {
		srcOff := src.dataOff + r*src.stride
		copy(row, src.data[srcOff:srcOff+cols])
		dstOff := dst.dataOff + r*dst.stride
		for c := 0; c < cols; c++ {
			var sum float64
			for k := -half; k <= half; k++ {
				sum += float64(row[reflectIndex(c+k, cols)])
			}
			dst.data[dstOff+c] = float32(sum * weight)
		}
	}
}
