package models

import (
	"fmt"
)

// Volume represents a batched 3D tensor in channel-last layout, stored as a
// flat 1D array in row-major order. It covers every tensor kind used by the
// registration pipeline:
//
//   - images and labels: Channels == 1
//   - backbone inputs:   Channels == 2 (moving and fixed concatenated)
//   - fields (DDF/DVF):  Channels == 3 (one offset per spatial axis)
//   - reference grids:   Batch == 1, Channels == 3
//
// The element at (b, i, j, k, c) lives at
// (((b*Dims[0]+i)*Dims[1]+j)*Dims[2]+k)*Channels+c.
type Volume struct {
	// Data is the tensor contents as a flat array in row-major order
	Data []float64

	// Batch is the number of independent samples in the leading axis
	Batch int

	// Dims holds the three spatial dimensions
	Dims [3]int

	// Channels is the size of the trailing channel axis
	Channels int
}

// NewVolume allocates a zero-filled volume with the given shape.
func NewVolume(batch int, dims [3]int, channels int) *Volume {
	return &Volume{
		Data:     make([]float64, batch*dims[0]*dims[1]*dims[2]*channels),
		Batch:    batch,
		Dims:     dims,
		Channels: channels,
	}
}

// Index returns the flat offset of element (b, i, j, k, c).
func (v *Volume) Index(b, i, j, k, c int) int {
	return (((b*v.Dims[0]+i)*v.Dims[1]+j)*v.Dims[2]+k)*v.Channels + c
}

// At returns the value at (b, i, j, k, c).
func (v *Volume) At(b, i, j, k, c int) float64 {
	return v.Data[v.Index(b, i, j, k, c)]
}

// Set stores a value at (b, i, j, k, c).
func (v *Volume) Set(b, i, j, k, c int, value float64) {
	v.Data[v.Index(b, i, j, k, c)] = value
}

// NumVoxels returns the number of spatial positions per batch sample.
func (v *Volume) NumVoxels() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// SampleSize returns the number of elements per batch sample, channels included.
func (v *Volume) SampleSize() int {
	return v.NumVoxels() * v.Channels
}

// Sample returns the flat data of one batch sample. The returned slice
// aliases the volume's storage.
func (v *Volume) Sample(b int) []float64 {
	n := v.SampleSize()
	return v.Data[b*n : (b+1)*n]
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:     make([]float64, len(v.Data)),
		Batch:    v.Batch,
		Dims:     v.Dims,
		Channels: v.Channels,
	}
	copy(out.Data, v.Data)
	return out
}

// SameSpatial reports whether two volumes share the same spatial dimensions.
func (v *Volume) SameSpatial(other *Volume) bool {
	return v.Dims == other.Dims
}

// ShapeString renders the full shape for error messages.
func (v *Volume) ShapeString() string {
	return fmt.Sprintf("(%d, %d, %d, %d, %d)", v.Batch, v.Dims[0], v.Dims[1], v.Dims[2], v.Channels)
}
