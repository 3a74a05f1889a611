//go:build !purego && !js

package slitdrift

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend. Pixels are CV_32F.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                      { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int              { return mat.m.Rows() }
func (mat Mat) Cols() int              { return mat.m.Cols() }
func (mat *Mat) Close()                { mat.m.Close() }

// Clone returns a continuous deep copy, including of sub-regions.
func (mat Mat) Clone() Mat { return Mat{m: mat.m.Clone()} }

// Region returns a view sharing pixels with mat. Clone it before calling DataFloat32.
func (mat Mat) Region(r image.Rectangle) Mat { return Mat{m: mat.m.Region(r)} }

// DataFloat32 returns the backing float32 slice of a continuous mat.
func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// boxFilterRows smooths every row with a flat window of odd width, reflecting
// at the edges without repeating the border sample.
func boxFilterRows(src Mat, dst *Mat, window int) {
	kx := gocv.NewMatWithSize(1, window, gocv.MatTypeCV32F)
	defer kx.Close()
	kx.SetTo(gocv.NewScalar(1/float64(window), 0, 0, 0))
	ky := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV32F)
	defer ky.Close()
	ky.SetTo(gocv.NewScalar(1, 0, 0, 0))
	gocv.SepFilter2D(src.m, &dst.m, gocv.MatTypeCV32F, kx, ky, image.Pt(-1, -1), 0, gocv.BorderReflect101)
}
