package losses

import (
	"errors"
	"math"
	"testing"

	"deformreg/internal/models"
)

// TestEnergyRegistry verifies registered names resolve and unknown names
// fail with the method error
func TestEnergyRegistry(t *testing.T) {
	for _, name := range []string{"gradient-l1", "gradient-l2", "bending"} {
		if !EnergyRegistered(name) {
			t.Errorf("Energy %q should be registered", name)
		}
		if _, err := Energy(name); err != nil {
			t.Errorf("Energy(%q) failed: %v", name, err)
		}
	}

	if _, err := Energy("laplacian"); !errors.Is(err, models.ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
}

// TestEnergyZeroField verifies every energy vanishes on the zero field
func TestEnergyZeroField(t *testing.T) {
	field := models.NewVolume(2, [3]int{5, 5, 5}, 3)

	for name := range energyRegistry {
		fn, _ := Energy(name)
		if got := fn(field); got != 0 {
			t.Errorf("Energy %q on zero field: expected 0, got %f", name, got)
		}
	}
}

// rampField fills channel 0 with a linear ramp of the given slope along the
// first axis.
func rampField(dims [3]int, slope float64) *models.Volume {
	field := models.NewVolume(1, dims, 3)
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				field.Set(0, i, j, k, 0, slope*float64(i))
			}
		}
	}
	return field
}

// TestGradientEnergyRamp verifies the gradient energies on a linear ramp:
// the central difference is the slope everywhere in the interior, and the
// single non-zero channel/direction pair is diluted across the 3 channels
// and 3 directions
func TestGradientEnergyRamp(t *testing.T) {
	field := rampField([3]int{5, 5, 5}, 2.0)

	wantL2 := 4.0 / 9 // slope^2 / (3 channels * 3 directions)
	if got := GradientL2Energy(field); math.Abs(got-wantL2) > 1e-12 {
		t.Errorf("GradientL2Energy: expected %f, got %f", wantL2, got)
	}

	wantL1 := 2.0 / 9
	if got := GradientL1Energy(field); math.Abs(got-wantL1) > 1e-12 {
		t.Errorf("GradientL1Energy: expected %f, got %f", wantL1, got)
	}
}

// TestBendingEnergyAffine verifies that any affine field has zero bending
// energy while a curved field does not
func TestBendingEnergyAffine(t *testing.T) {
	dims := [3]int{5, 5, 5}
	affine := models.NewVolume(1, dims, 3)
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				affine.Set(0, i, j, k, 0, 1.5*float64(i)-0.5*float64(j))
				affine.Set(0, i, j, k, 1, float64(k)+2)
				affine.Set(0, i, j, k, 2, 0.25*float64(i+j+k))
			}
		}
	}

	if got := BendingEnergy(affine); math.Abs(got) > 1e-12 {
		t.Errorf("Bending energy of affine field: expected 0, got %g", got)
	}

	curved := models.NewVolume(1, dims, 3)
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				curved.Set(0, i, j, k, 0, float64(i*i))
			}
		}
	}
	if got := BendingEnergy(curved); got <= 0 {
		t.Errorf("Bending energy of quadratic field should be positive, got %g", got)
	}
}

// TestEnergyShortAxes verifies axes too short for a central difference
// contribute zero instead of panicking
func TestEnergyShortAxes(t *testing.T) {
	field := models.NewVolume(1, [3]int{2, 2, 2}, 3)
	for i := range field.Data {
		field.Data[i] = float64(i)
	}

	for name := range energyRegistry {
		fn, _ := Energy(name)
		if got := fn(field); got != 0 {
			t.Errorf("Energy %q on 2x2x2 field: expected 0, got %f", name, got)
		}
	}
}
