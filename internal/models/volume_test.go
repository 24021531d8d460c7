package models

import (
	"testing"
)

// TestVolumeIndexing verifies the row-major channel-last layout round trip
func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(2, [3]int{3, 4, 5}, 3)

	if len(v.Data) != 2*3*4*5*3 {
		t.Fatalf("Expected %d elements, got %d", 2*3*4*5*3, len(v.Data))
	}

	// Every coordinate maps to a distinct offset
	seen := make(map[int]bool)
	for b := 0; b < v.Batch; b++ {
		for i := 0; i < v.Dims[0]; i++ {
			for j := 0; j < v.Dims[1]; j++ {
				for k := 0; k < v.Dims[2]; k++ {
					for c := 0; c < v.Channels; c++ {
						idx := v.Index(b, i, j, k, c)
						if idx < 0 || idx >= len(v.Data) {
							t.Fatalf("Index (%d,%d,%d,%d,%d) out of range: %d", b, i, j, k, c, idx)
						}
						if seen[idx] {
							t.Fatalf("Index (%d,%d,%d,%d,%d) collides at offset %d", b, i, j, k, c, idx)
						}
						seen[idx] = true
					}
				}
			}
		}
	}

	v.Set(1, 2, 3, 4, 1, 7.5)
	if got := v.At(1, 2, 3, 4, 1); got != 7.5 {
		t.Errorf("Expected 7.5 after Set, got %f", got)
	}
}

// TestVolumeClone verifies that clones do not share storage
func TestVolumeClone(t *testing.T) {
	v := NewVolume(1, [3]int{2, 2, 2}, 1)
	v.Set(0, 1, 1, 1, 0, 3.0)

	clone := v.Clone()
	clone.Set(0, 1, 1, 1, 0, -1.0)

	if got := v.At(0, 1, 1, 1, 0); got != 3.0 {
		t.Errorf("Clone mutation leaked into original: got %f, want 3.0", got)
	}
	if clone.Dims != v.Dims || clone.Batch != v.Batch || clone.Channels != v.Channels {
		t.Errorf("Clone shape differs: %s vs %s", clone.ShapeString(), v.ShapeString())
	}
}

// TestVolumeSample verifies per-sample slicing
func TestVolumeSample(t *testing.T) {
	v := NewVolume(2, [3]int{2, 2, 2}, 3)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}

	s := v.Sample(1)
	if len(s) != v.SampleSize() {
		t.Fatalf("Expected sample size %d, got %d", v.SampleSize(), len(s))
	}
	if s[0] != float64(v.SampleSize()) {
		t.Errorf("Sample(1) should start at offset %d, got value %f", v.SampleSize(), s[0])
	}

	// Sample aliases the underlying storage
	s[0] = -5
	if v.Data[v.SampleSize()] != -5 {
		t.Error("Sample should alias the volume storage")
	}
}

// TestSameSpatial verifies the spatial-shape comparison
func TestSameSpatial(t *testing.T) {
	a := NewVolume(1, [3]int{4, 4, 4}, 1)
	b := NewVolume(3, [3]int{4, 4, 4}, 3)
	c := NewVolume(1, [3]int{4, 4, 2}, 1)

	if !a.SameSpatial(b) {
		t.Error("Volumes with equal dims should compare equal regardless of batch and channels")
	}
	if a.SameSpatial(c) {
		t.Error("Volumes with different dims should not compare equal")
	}
}
