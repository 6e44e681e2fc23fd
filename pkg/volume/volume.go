// Package volume provides the in-memory 3D volume representation shared by
// the whole pipeline, together with the small set of voxel-wise operations
// the frequency-map computation is built from: addition, multiplication,
// division, interval thresholding and binarization.
package volume

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Volume is a 3D scalar volume stored as a 1D array in row-major order,
// with the voxel at (x, y, z) located at index z*Width*Height + y*Width + x.
type Volume struct {
	// Data is the voxel data as a 1D array
	Data []float64

	// Width, Height, Depth are the grid dimensions in voxels
	Width  int
	Height int
	Depth  int
}

// New creates a zero-filled volume with the given dimensions.
func New(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// ZerosLike creates a zero-filled volume on the same grid as v.
func ZerosLike(v *Volume) *Volume {
	return New(v.Width, v.Height, v.Depth)
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := New(v.Width, v.Height, v.Depth)
	copy(out.Data, v.Data)
	return out
}

// SameShape reports whether two volumes share the same grid dimensions.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Index converts voxel coordinates to the flat array index.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel value at (x, y, z). Out-of-bounds coordinates
// read as 0, which is the padding convention used by the resampler.
func (v *Volume) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= v.Width || y >= v.Height || z >= v.Depth {
		return 0
	}
	return v.Data[v.Index(x, y, z)]
}

// Set writes the voxel value at (x, y, z).
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// checkShapes returns an error unless all volumes share v's grid.
func (v *Volume) checkShapes(op string, others ...*Volume) error {
	for _, o := range others {
		if !v.SameShape(o) {
			return fmt.Errorf("%s: shape mismatch %dx%dx%d vs %dx%dx%d",
				op, v.Width, v.Height, v.Depth, o.Width, o.Height, o.Depth)
		}
	}
	return nil
}

// Add accumulates o into v voxel-wise (v += o).
func (v *Volume) Add(o *Volume) error {
	if err := v.checkShapes("add", o); err != nil {
		return err
	}
	floats.Add(v.Data, o.Data)
	return nil
}

// Mul multiplies v by o voxel-wise (v *= o).
func (v *Volume) Mul(o *Volume) error {
	if err := v.checkShapes("mul", o); err != nil {
		return err
	}
	floats.Mul(v.Data, o.Data)
	return nil
}

// Div returns the voxel-wise quotient num/den as a new volume.
//
// Division by zero is defined to yield 0, including the 0/0 case. The
// frequency map only ever divides lesion counts by cord counts, and a
// voxel with zero cord coverage carries no lesion evidence either, so 0
// is the convention used throughout rather than NaN or infinity.
func Div(num, den *Volume) (*Volume, error) {
	if err := num.checkShapes("div", den); err != nil {
		return nil, err
	}
	out := ZerosLike(num)
	for i, d := range den.Data {
		if d != 0 {
			out.Data[i] = num.Data[i] / d
		}
	}
	return out, nil
}

// Threshold returns a new volume keeping values inside the closed
// interval [lo, hi] and zeroing everything outside it.
func (v *Volume) Threshold(lo, hi float64) *Volume {
	out := ZerosLike(v)
	for i, val := range v.Data {
		if val >= lo && val <= hi {
			out.Data[i] = val
		}
	}
	return out
}

// Binarize returns a new volume with 1 wherever v >= cutoff and 0
// elsewhere.
func (v *Volume) Binarize(cutoff float64) *Volume {
	out := ZerosLike(v)
	for i, val := range v.Data {
		if val >= cutoff {
			out.Data[i] = 1
		}
	}
	return out
}

// Max returns the voxel-wise maximum of v and o as a new volume. This is
// the union policy used when a subject contributes several same-kind
// masks to one template-space destination.
func Max(v, o *Volume) (*Volume, error) {
	if err := v.checkShapes("max", o); err != nil {
		return nil, err
	}
	out := v.Clone()
	for i, val := range o.Data {
		if val > out.Data[i] {
			out.Data[i] = val
		}
	}
	return out, nil
}
