// Package losses provides the loss terms and diagnostic metrics of the
// registration objective: deformation regularization energies on the
// displacement field, image and label dissimilarity measures, and the
// label-overlap diagnostics (Dice, centroid distance, foreground
// proportion). Dissimilarity and energy methods are selected by string
// through registries so configurations can be validated before any forward
// pass runs.
package losses

import (
	"fmt"
	"math"

	"deformreg/internal/models"
)

// EnergyFunc computes a scalar regularization energy from a displacement
// field, averaged over batch, interior voxels and channels.
type EnergyFunc func(field *models.Volume) float64

var energyRegistry = map[string]EnergyFunc{
	"gradient-l1": GradientL1Energy,
	"gradient-l2": GradientL2Energy,
	"bending":     BendingEnergy,
}

// Energy returns the registered energy function for the given method name.
func Energy(name string) (EnergyFunc, error) {
	fn, ok := energyRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: energy %q", models.ErrUnsupportedMethod, name)
	}
	return fn, nil
}

// EnergyRegistered reports whether an energy method name is known.
func EnergyRegistered(name string) bool {
	_, ok := energyRegistry[name]
	return ok
}

// GradientL1Energy is the mean absolute central-difference gradient of the
// field, averaged over the three gradient directions.
func GradientL1Energy(field *models.Volume) float64 {
	return gradientEnergy(field, math.Abs)
}

// GradientL2Energy is the mean squared central-difference gradient of the
// field, averaged over the three gradient directions. Zero displacement has
// zero energy; a linear ramp has constant energy equal to its squared slope
// diluted across channels and directions.
func GradientL2Energy(field *models.Volume) float64 {
	return gradientEnergy(field, func(g float64) float64 { return g * g })
}

func gradientEnergy(field *models.Volume, g func(float64) float64) float64 {
	total := 0.0
	for axis := 0; axis < 3; axis++ {
		total += axisGradientMean(field, axis, g)
	}
	return total / 3
}

// BendingEnergy is the thin-plate bending energy of the field: the mean of
// the squared second derivatives, with mixed terms counted twice. Any affine
// field has zero bending energy.
func BendingEnergy(field *models.Volume) float64 {
	total := axisSecondMean(field, 0) + axisSecondMean(field, 1) + axisSecondMean(field, 2)
	total += 2 * mixedSecondMean(field, 0, 1)
	total += 2 * mixedSecondMean(field, 0, 2)
	total += 2 * mixedSecondMean(field, 1, 2)
	return total
}

// shift returns the voxel coordinate (i, j, k) moved by delta along axis.
func shift(i, j, k, axis, delta int) (int, int, int) {
	switch axis {
	case 0:
		return i + delta, j, k
	case 1:
		return i, j + delta, k
	default:
		return i, j, k + delta
	}
}

// interior returns per-axis loop bounds excluding one voxel at each end of
// every axis listed in trimmed.
func interior(dims [3]int, trimmed ...int) (lo, hi [3]int) {
	hi = dims
	for _, a := range trimmed {
		lo[a] = 1
		hi[a] = dims[a] - 1
	}
	return lo, hi
}

// axisGradientMean averages g(central difference along axis) over batch,
// channels and the axis interior. Axes too short for a central difference
// contribute zero.
func axisGradientMean(field *models.Volume, axis int, g func(float64) float64) float64 {
	if field.Dims[axis] < 3 {
		return 0
	}
	lo, hi := interior(field.Dims, axis)
	sum := 0.0
	count := 0
	for b := 0; b < field.Batch; b++ {
		for i := lo[0]; i < hi[0]; i++ {
			for j := lo[1]; j < hi[1]; j++ {
				for k := lo[2]; k < hi[2]; k++ {
					pi, pj, pk := shift(i, j, k, axis, 1)
					mi, mj, mk := shift(i, j, k, axis, -1)
					for c := 0; c < field.Channels; c++ {
						grad := (field.At(b, pi, pj, pk, c) - field.At(b, mi, mj, mk, c)) / 2
						sum += g(grad)
						count++
					}
				}
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// axisSecondMean averages the squared second central difference along axis.
func axisSecondMean(field *models.Volume, axis int) float64 {
	if field.Dims[axis] < 3 {
		return 0
	}
	lo, hi := interior(field.Dims, axis)
	sum := 0.0
	count := 0
	for b := 0; b < field.Batch; b++ {
		for i := lo[0]; i < hi[0]; i++ {
			for j := lo[1]; j < hi[1]; j++ {
				for k := lo[2]; k < hi[2]; k++ {
					pi, pj, pk := shift(i, j, k, axis, 1)
					mi, mj, mk := shift(i, j, k, axis, -1)
					for c := 0; c < field.Channels; c++ {
						d := field.At(b, pi, pj, pk, c) - 2*field.At(b, i, j, k, c) + field.At(b, mi, mj, mk, c)
						sum += d * d
						count++
					}
				}
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// mixedSecondMean averages the squared mixed second derivative over the two
// given axes, estimated with the four-point cross stencil.
func mixedSecondMean(field *models.Volume, axisA, axisB int) float64 {
	if field.Dims[axisA] < 3 || field.Dims[axisB] < 3 {
		return 0
	}
	lo, hi := interior(field.Dims, axisA, axisB)
	sum := 0.0
	count := 0
	for b := 0; b < field.Batch; b++ {
		for i := lo[0]; i < hi[0]; i++ {
			for j := lo[1]; j < hi[1]; j++ {
				for k := lo[2]; k < hi[2]; k++ {
					ppi, ppj, ppk := shift(i, j, k, axisA, 1)
					ppi, ppj, ppk = shift(ppi, ppj, ppk, axisB, 1)
					mmi, mmj, mmk := shift(i, j, k, axisA, -1)
					mmi, mmj, mmk = shift(mmi, mmj, mmk, axisB, -1)
					pmi, pmj, pmk := shift(i, j, k, axisA, 1)
					pmi, pmj, pmk = shift(pmi, pmj, pmk, axisB, -1)
					mpi, mpj, mpk := shift(i, j, k, axisA, -1)
					mpi, mpj, mpk = shift(mpi, mpj, mpk, axisB, 1)
					for c := 0; c < field.Channels; c++ {
						d := (field.At(b, ppi, ppj, ppk, c) + field.At(b, mmi, mmj, mmk, c) -
							field.At(b, pmi, pmj, pmk, c) - field.At(b, mpi, mpj, mpk, c)) / 4
						sum += d * d
						count++
					}
				}
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
