package extract

import (
	"math"

	"gpusift/internal/detector"
)

const pointCols = 4

// Table is a row-major float32 matrix.
type Table struct {
	Rows int
	Cols int
	Data []float32
}

func NewTable(rows, cols int) Table {
	return Table{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (t Table) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols : (i+1)*t.Cols]
}

// Result holds one row per (keypoint, orientation): Points rows are
// (x, y, sigma, orientation) and Descriptors rows are index-aligned with them.
type Result struct {
	Points      Table
	Descriptors Table

	// Features is the keypoint count of the accepted detection.
	Features      int
	Attempts      int
	PeakThreshold float64
}

// Format flattens fs into aligned tables, rounding positions to the nearest
// pixel inside a width x height image.
func Format(fs *detector.FeatureSet, width, height int) *Result {
	rows := fs.Rows()
	res := &Result{
		Points:      NewTable(rows, pointCols),
		Descriptors: NewTable(rows, detector.DescriptorLen),
		Features:    fs.Count(),
	}
	if rows == 0 {
		return res
	}

	r := 0
	for _, f := range fs.Features {
		x := pixelCoord(f.X, width)
		y := pixelCoord(f.Y, height)
		for _, o := range f.Orientations {
			pt := res.Points.Row(r)
			pt[0] = x
			pt[1] = y
			pt[2] = f.Sigma
			pt[3] = o.Angle
			copy(res.Descriptors.Row(r), o.Descriptor[:])
			r++
		}
	}
	return res
}

func pixelCoord(v float32, dim int) float32 {
	r := math.Round(float64(v))
	if math.IsNaN(r) || r <= 0 {
		return 0
	}
	if limit := float64(dim - 1); r > limit {
		return float32(max(limit, 0))
	}
	return float32(r)
}
