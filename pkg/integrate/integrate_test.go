package integrate

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"deformreg/internal/models"
	"deformreg/pkg/interpolation"
)

// TestExponentialZeroField verifies that integrating a zero velocity field
// yields a zero displacement field of the same shape
func TestExponentialZeroField(t *testing.T) {
	dims := [3]int{4, 4, 4}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(2, dims, 3)
	ddf, err := in.Exponential(dvf, DefaultSteps)
	if err != nil {
		t.Fatalf("Exponential failed: %v", err)
	}

	if ddf.Dims != dvf.Dims || ddf.Batch != dvf.Batch || ddf.Channels != 3 {
		t.Fatalf("Unexpected output shape %s", ddf.ShapeString())
	}
	for i, v := range ddf.Data {
		if v != 0 {
			t.Fatalf("Element %d: expected 0, got %f", i, v)
		}
	}
}

// TestExponentialConstantField verifies the exact self-composition identity
// for constant fields: sampling a constant field anywhere returns the
// constant, so each squaring step doubles it and the exponential recovers
// the velocity exactly
func TestExponentialConstantField(t *testing.T) {
	dims := [3]int{4, 4, 4}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(1, dims, 3)
	for i := 0; i < len(dvf.Data); i += 3 {
		dvf.Data[i] = 0.25
		dvf.Data[i+1] = -0.5
		dvf.Data[i+2] = 0.125
	}

	ddf, err := in.Exponential(dvf, DefaultSteps)
	if err != nil {
		t.Fatalf("Exponential failed: %v", err)
	}

	if diff := cmp.Diff(dvf.Data, ddf.Data, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Constant-field exponential mismatch (-want +got):\n%s", diff)
	}
}

// TestExponentialInputUntouched verifies the integration does not mutate the
// velocity field
func TestExponentialInputUntouched(t *testing.T) {
	dims := [3]int{3, 3, 3}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(1, dims, 3)
	for i := range dvf.Data {
		dvf.Data[i] = 0.1 * float64(i%7)
	}
	before := append([]float64(nil), dvf.Data...)

	if _, err := in.Exponential(dvf, 4); err != nil {
		t.Fatalf("Exponential failed: %v", err)
	}
	if diff := cmp.Diff(before, dvf.Data); diff != "" {
		t.Errorf("Velocity field mutated during integration (-want +got):\n%s", diff)
	}
}

// TestExponentialSmallSmoothField verifies that for a small smooth field the
// exponential stays close to the one-step displacement, a sanity bound on
// the scaling-and-squaring scheme
func TestExponentialSmallSmoothField(t *testing.T) {
	dims := [3]int{6, 6, 6}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(1, dims, 3)
	for i := 0; i < dims[0]; i++ {
		for j := 0; j < dims[1]; j++ {
			for k := 0; k < dims[2]; k++ {
				v := 0.01 * math.Sin(float64(i+j+k))
				dvf.Set(0, i, j, k, 0, v)
			}
		}
	}

	ddf, err := in.Exponential(dvf, DefaultSteps)
	if err != nil {
		t.Fatalf("Exponential failed: %v", err)
	}

	for i := range ddf.Data {
		if math.Abs(ddf.Data[i]-dvf.Data[i]) > 0.01 {
			t.Fatalf("Element %d drifted too far: dvf %f, ddf %f", i, dvf.Data[i], ddf.Data[i])
		}
	}
}

// TestExponentialDefaultSteps verifies the fallback when steps is not positive
func TestExponentialDefaultSteps(t *testing.T) {
	dims := [3]int{2, 2, 2}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(1, dims, 3)
	if _, err := in.Exponential(dvf, 0); err != nil {
		t.Fatalf("Exponential with steps=0 should fall back to the default: %v", err)
	}
}

// TestExponentialStepsCap verifies rejection of step counts whose 2^steps
// divisor is not representable
func TestExponentialStepsCap(t *testing.T) {
	dims := [3]int{2, 2, 2}
	in := New(interpolation.NewWarper(dims))

	dvf := models.NewVolume(1, dims, 3)
	if _, err := in.Exponential(dvf, MaxSteps+1); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for %d steps, got %v", MaxSteps+1, err)
	}
	if _, err := in.Exponential(dvf, 63); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for 63 steps, got %v", err)
	}
}

// TestExponentialShapeMismatch verifies the error taxonomy
func TestExponentialShapeMismatch(t *testing.T) {
	in := New(interpolation.NewWarper([3]int{4, 4, 4}))

	dvf := models.NewVolume(1, [3]int{2, 2, 2}, 3)
	if _, err := in.Exponential(dvf, DefaultSteps); !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}
