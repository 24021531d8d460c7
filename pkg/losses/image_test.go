package losses

import (
	"errors"
	"math"
	"testing"

	"deformreg/internal/models"
)

// gradientVolume fills a single-channel volume with a smooth intensity ramp.
func gradientVolume(batch int, dims [3]int) *models.Volume {
	v := models.NewVolume(batch, dims, 1)
	n := float64(dims[0] + dims[1] + dims[2] - 3)
	for b := 0; b < batch; b++ {
		for i := 0; i < dims[0]; i++ {
			for j := 0; j < dims[1]; j++ {
				for k := 0; k < dims[2]; k++ {
					v.Set(b, i, j, k, 0, float64(i+j+k)/n)
				}
			}
		}
	}
	return v
}

// TestImageRegistry verifies method lookup and the unknown-name error
func TestImageRegistry(t *testing.T) {
	for _, name := range []string{"ssd", "ncc"} {
		if !ImageRegistered(name) {
			t.Errorf("Image dissimilarity %q should be registered", name)
		}
		if _, err := Image(name); err != nil {
			t.Errorf("Image(%q) failed: %v", name, err)
		}
	}

	if _, err := Image("mi"); !errors.Is(err, models.ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
}

// TestSumSquaredDifference verifies SSD on identical and known-offset volumes
func TestSumSquaredDifference(t *testing.T) {
	dims := [3]int{4, 4, 4}
	a := gradientVolume(2, dims)

	if got := SumSquaredDifference(a, a); got != 0 {
		t.Errorf("SSD of identical volumes: expected 0, got %f", got)
	}

	b := a.Clone()
	for i := range b.Data {
		b.Data[i] += 0.5
	}
	if got := SumSquaredDifference(a, b); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("SSD with constant offset 0.5: expected 0.25, got %f", got)
	}
}

// TestNormalizedCrossCorrelation verifies NCC bounds and edge cases
func TestNormalizedCrossCorrelation(t *testing.T) {
	dims := [3]int{4, 4, 4}
	a := gradientVolume(1, dims)

	if got := NormalizedCrossCorrelation(a, a); math.Abs(got) > 1e-12 {
		t.Errorf("NCC of identical volumes: expected 0, got %f", got)
	}

	// Perfect anti-correlation
	neg := a.Clone()
	for i := range neg.Data {
		neg.Data[i] = -neg.Data[i]
	}
	if got := NormalizedCrossCorrelation(a, neg); math.Abs(got-2) > 1e-9 {
		t.Errorf("NCC of anti-correlated volumes: expected 2, got %f", got)
	}

	// A positive affine rescaling is perfectly correlated
	scaled := a.Clone()
	for i := range scaled.Data {
		scaled.Data[i] = 3*scaled.Data[i] + 1
	}
	if got := NormalizedCrossCorrelation(a, scaled); math.Abs(got) > 1e-9 {
		t.Errorf("NCC of affine-rescaled volume: expected 0, got %f", got)
	}

	// Constant volumes: equal means count as similar, differing as dissimilar
	c1 := models.NewVolume(1, dims, 1)
	c2 := models.NewVolume(1, dims, 1)
	if got := NormalizedCrossCorrelation(c1, c2); got != 0 {
		t.Errorf("NCC of equal constants: expected 0, got %f", got)
	}
	for i := range c2.Data {
		c2.Data[i] = 1
	}
	if got := NormalizedCrossCorrelation(c1, c2); got != 1 {
		t.Errorf("NCC of differing constants: expected 1, got %f", got)
	}
}
