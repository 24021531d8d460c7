// Package interpolation provides the sampling grid and trilinear resampling
// operations used by the registration pipeline: warping a volume by a dense
// displacement field and rescaling a volume to a new spatial shape.
//
// All sampling uses standard trilinear interpolation of the 8 surrounding
// integer-coordinate voxels, with coordinates clamped to the source volume's
// bounds (replicate boundary, not zero padding).
package interpolation

import (
	"fmt"

	"deformreg/internal/models"
)

// ReferenceGrid builds the identity coordinate grid for the given spatial
// shape: a (1, d1, d2, d3, 3) volume whose value at voxel (i, j, k) is the
// float-typed index vector (i, j, k). The grid is deterministic for a given
// shape and is shared read-only by every consumer.
func ReferenceGrid(dims [3]int) *models.Volume {
	grid := models.NewVolume(1, dims, 3)
	idx := 0
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				grid.Data[idx] = float64(i)
				grid.Data[idx+1] = float64(j)
				grid.Data[idx+2] = float64(k)
				idx += 3
			}
		}
	}
	return grid
}

// Warper resamples source volumes at grid coordinates perturbed by a
// displacement field. The reference grid is built once at construction and
// must not be mutated by callers.
type Warper struct {
	dims [3]int
	grid *models.Volume
}

// NewWarper creates a warper for the given fixed-volume spatial shape.
func NewWarper(dims [3]int) *Warper {
	return &Warper{dims: dims, grid: ReferenceGrid(dims)}
}

// Dims returns the spatial shape the warper samples over.
func (w *Warper) Dims() [3]int { return w.dims }

// Grid returns the shared reference grid. Callers must treat it as read-only.
func (w *Warper) Grid() *models.Volume { return w.grid }

// Warp resamples src at reference_grid + field for every output voxel. The
// output has the warper's spatial shape and src's channel count, so the same
// call path serves images, labels (any channel count) and fields. Sample
// coordinates are clamped to src's bounds, so displacements pointing outside
// the source volume reproduce the boundary voxel values.
func (w *Warper) Warp(src, field *models.Volume) (*models.Volume, error) {
	if field.Dims != w.dims {
		return nil, fmt.Errorf("%w: displacement field spatial dims %v do not match grid %v",
			models.ErrShapeMismatch, field.Dims, w.dims)
	}
	if field.Channels != 3 {
		return nil, fmt.Errorf("%w: displacement field has %d channels, want 3",
			models.ErrShapeMismatch, field.Channels)
	}
	if src.Batch != field.Batch {
		return nil, fmt.Errorf("%w: source batch %d does not match field batch %d",
			models.ErrShapeMismatch, src.Batch, field.Batch)
	}

	out := models.NewVolume(field.Batch, w.dims, src.Channels)
	dst := make([]float64, src.Channels)
	for b := 0; b < field.Batch; b++ {
		for i := 0; i < w.dims[0]; i++ {
			for j := 0; j < w.dims[1]; j++ {
				for k := 0; k < w.dims[2]; k++ {
					base := field.Index(b, i, j, k, 0)
					x := float64(i) + field.Data[base]
					y := float64(j) + field.Data[base+1]
					z := float64(k) + field.Data[base+2]
					sampleTrilinear(src, b, x, y, z, dst)
					copy(out.Data[out.Index(b, i, j, k, 0):], dst)
				}
			}
		}
	}
	return out, nil
}

// Resize rescales src to the target spatial shape with trilinear
// interpolation, mapping each output voxel to its fractional source
// coordinate with an align-corners scale factor per axis. When the shapes
// already match the input is returned unchanged; the identity pass-through is
// mandatory to avoid needless computation and numeric drift.
func Resize(src *models.Volume, target [3]int) *models.Volume {
	if src.Dims == target {
		return src
	}

	// A target axis of length 1 keeps scale 0, so its single output plane
	// samples source coordinate 0: with align-corners, the lone voxel is the
	// first corner, not the axis center.
	scale := [3]float64{}
	for a := 0; a < 3; a++ {
		if target[a] > 1 {
			scale[a] = float64(src.Dims[a]-1) / float64(target[a]-1)
		}
	}

	out := models.NewVolume(src.Batch, target, src.Channels)
	dst := make([]float64, src.Channels)
	for b := 0; b < src.Batch; b++ {
		for i := 0; i < target[0]; i++ {
			for j := 0; j < target[1]; j++ {
				for k := 0; k < target[2]; k++ {
					x := float64(i) * scale[0]
					y := float64(j) * scale[1]
					z := float64(k) * scale[2]
					sampleTrilinear(src, b, x, y, z, dst)
					copy(out.Data[out.Index(b, i, j, k, 0):], dst)
				}
			}
		}
	}
	return out
}

// sampleTrilinear interpolates src at the fractional coordinate (x, y, z)
// for batch sample b, writing one value per channel into dst. Coordinates
// are clamped to [0, dim-1] before the 8-corner blend, so exact integer
// coordinates return the voxel value exactly.
func sampleTrilinear(src *models.Volume, b int, x, y, z float64, dst []float64) {
	x = clampCoord(x, src.Dims[0])
	y = clampCoord(y, src.Dims[1])
	z = clampCoord(z, src.Dims[2])

	x0 := int(x)
	y0 := int(y)
	z0 := int(z)
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	x1 := minInt(x0+1, src.Dims[0]-1)
	y1 := minInt(y0+1, src.Dims[1]-1)
	z1 := minInt(z0+1, src.Dims[2]-1)

	for c := 0; c < src.Channels; c++ {
		c000 := src.At(b, x0, y0, z0, c)
		c001 := src.At(b, x0, y0, z1, c)
		c010 := src.At(b, x0, y1, z0, c)
		c011 := src.At(b, x0, y1, z1, c)
		c100 := src.At(b, x1, y0, z0, c)
		c101 := src.At(b, x1, y0, z1, c)
		c110 := src.At(b, x1, y1, z0, c)
		c111 := src.At(b, x1, y1, z1, c)

		c00 := c000*(1-fz) + c001*fz
		c01 := c010*(1-fz) + c011*fz
		c10 := c100*(1-fz) + c101*fz
		c11 := c110*(1-fz) + c111*fz

		c0 := c00*(1-fy) + c01*fy
		c1 := c10*(1-fy) + c11*fy

		dst[c] = c0*(1-fx) + c1*fx
	}
}

// clampCoord clamps a coordinate to the valid sampling range [0, n-1].
func clampCoord(x float64, n int) float64 {
	if x < 0 {
		return 0
	}
	if max := float64(n - 1); x > max {
		return max
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
