// Package resample maps native-space volumes onto the template grid.
// It provides the two transform representations produced by registration
// tools (affine matrices and dense displacement fields) and the
// nearest-neighbor and trilinear sampling kernels used to pull voxel
// values through them.
package resample

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/yw7/sc-lesion-frequency-map/pkg/nifti"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// Interpolation selects the sampling kernel used when pulling voxel
// values from the native volume.
type Interpolation int

const (
	// NearestNeighbor picks the closest native voxel. Used for cord
	// masks, which must stay strictly binary through resampling.
	NearestNeighbor Interpolation = iota

	// Trilinear blends the 8 surrounding native voxels. Used for lesion
	// masks, where partial-volume blending at the boundary is tolerated
	// and corrected afterwards.
	Trilinear
)

// Transform maps a template-grid voxel coordinate to the native-space
// voxel coordinate it samples from. Resampling is pull-style: the kernel
// walks the template grid and asks the transform where to read.
type Transform interface {
	ToNative(x, y, z float64) (float64, float64, float64)
}

// Affine is a linear transform in homogeneous voxel coordinates. The
// matrix stored here is the template-to-native direction; LoadAffine
// inverts the native-to-template matrix found on disk.
type Affine struct {
	m *mat.Dense // 4x4
}

// ToNative applies the affine to a template voxel coordinate.
func (a *Affine) ToNative(x, y, z float64) (float64, float64, float64) {
	v := mat.NewVecDense(4, []float64{x, y, z, 1})
	var out mat.VecDense
	out.MulVec(a.m, v)
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}

// LoadAffine reads a whitespace-separated 4x4 native-to-template matrix
// from a text file and returns its inverse as the pull transform.
func LoadAffine(path string) (*Affine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resample: opening transform %s: %w", path, err)
	}
	defer f.Close()

	var vals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("resample: transform %s: bad value %q: %w", path, tok, err)
			}
			vals = append(vals, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("resample: reading transform %s: %w", path, err)
	}
	if len(vals) != 16 {
		return nil, fmt.Errorf("resample: transform %s: expected 16 matrix values, got %d", path, len(vals))
	}

	fwd := mat.NewDense(4, 4, vals)
	inv := mat.NewDense(4, 4, nil)
	if err := inv.Inverse(fwd); err != nil {
		return nil, fmt.Errorf("resample: transform %s is singular: %w", path, err)
	}
	return &Affine{m: inv}, nil
}

// DisplacementField is a dense warp defined over the template grid: each
// template voxel carries the offset to add to its own coordinate to
// reach the native-space coordinate it samples from. This is the layout
// registration tools write for nonlinear warps.
type DisplacementField struct {
	dx, dy, dz *volume.Volume
}

// ToNative adds the field offset at the nearest template voxel.
func (d *DisplacementField) ToNative(x, y, z float64) (float64, float64, float64) {
	xi := int(math.Round(x))
	yi := int(math.Round(y))
	zi := int(math.Round(z))
	return x + d.dx.At(xi, yi, zi), y + d.dy.At(xi, yi, zi), z + d.dz.At(xi, yi, zi)
}

// LoadDisplacementField reads a 5-D vector NIfTI volume as a warp field.
func LoadDisplacementField(path string) (*DisplacementField, error) {
	comps, err := nifti.ReadVector(path)
	if err != nil {
		return nil, err
	}
	return &DisplacementField{dx: comps[0], dy: comps[1], dz: comps[2]}, nil
}

// Load reads a transform file, picking the representation by extension:
// .txt for affine matrices, .nii/.nii.gz for displacement fields.
func Load(path string) (Transform, error) {
	switch {
	case strings.HasSuffix(path, ".txt"):
		return LoadAffine(path)
	case strings.HasSuffix(path, ".nii"), strings.HasSuffix(path, ".nii.gz"):
		return LoadDisplacementField(path)
	default:
		return nil, fmt.Errorf("resample: unrecognized transform file %s", path)
	}
}

// sample pulls one value from src at a fractional native coordinate.
func sample(src *volume.Volume, x, y, z float64, interp Interpolation) float64 {
	if interp == NearestNeighbor {
		return src.At(int(math.Round(x)), int(math.Round(y)), int(math.Round(z)))
	}

	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := x-x0, y-y0, z-z0
	xi, yi, zi := int(x0), int(y0), int(z0)

	var acc float64
	for dz := 0; dz <= 1; dz++ {
		wz := fz
		if dz == 0 {
			wz = 1 - fz
		}
		for dy := 0; dy <= 1; dy++ {
			wy := fy
			if dy == 0 {
				wy = 1 - fy
			}
			for dx := 0; dx <= 1; dx++ {
				wx := fx
				if dx == 0 {
					wx = 1 - fx
				}
				acc += wx * wy * wz * src.At(xi+dx, yi+dy, zi+dz)
			}
		}
	}
	return acc
}

// Resample pulls src through t onto a grid shaped like target.
// Coordinates falling outside src read as 0.
func Resample(src *volume.Volume, t Transform, target *volume.Volume, interp Interpolation) *volume.Volume {
	out := volume.ZerosLike(target)
	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				sx, sy, sz := t.ToNative(float64(x), float64(y), float64(z))
				out.Set(x, y, z, sample(src, sx, sy, sz, interp))
			}
		}
	}
	return out
}

// Merge resamples each source volume through its own transform onto the
// target grid and combines the results by voxel-wise maximum, so that a
// subject's multiple same-kind masks form one union destination.
func Merge(srcs []*volume.Volume, transforms []Transform, target *volume.Volume, interp Interpolation) (*volume.Volume, error) {
	if len(srcs) != len(transforms) {
		return nil, fmt.Errorf("resample: %d volumes but %d transforms", len(srcs), len(transforms))
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("resample: nothing to merge")
	}

	out := volume.ZerosLike(target)
	for i, src := range srcs {
		warped := Resample(src, transforms[i], target, interp)
		merged, err := volume.Max(out, warped)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}
