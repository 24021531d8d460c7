package losses

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"deformreg/internal/models"
)

// ImageFunc computes a scalar dissimilarity between a fixed image and a
// warped moving image of identical shape. Lower is more similar.
type ImageFunc func(fixed, warped *models.Volume) float64

var imageRegistry = map[string]ImageFunc{
	"ssd": SumSquaredDifference,
	"ncc": NormalizedCrossCorrelation,
}

// Image returns the registered image dissimilarity for the given method name.
func Image(name string) (ImageFunc, error) {
	fn, ok := imageRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: image dissimilarity %q", models.ErrUnsupportedMethod, name)
	}
	return fn, nil
}

// ImageRegistered reports whether an image dissimilarity name is known.
func ImageRegistered(name string) bool {
	_, ok := imageRegistry[name]
	return ok
}

// SumSquaredDifference is the mean squared voxel-wise intensity difference.
func SumSquaredDifference(fixed, warped *models.Volume) float64 {
	d := floats.Distance(fixed.Data, warped.Data, 2)
	return d * d / float64(len(fixed.Data))
}

// NormalizedCrossCorrelation is one minus the per-sample Pearson correlation
// of voxel intensities, averaged over the batch. Constant volumes have no
// defined correlation; two constants count as perfectly similar when their
// means agree and maximally dissimilar otherwise.
func NormalizedCrossCorrelation(fixed, warped *models.Volume) float64 {
	dissim := make([]float64, fixed.Batch)
	for b := 0; b < fixed.Batch; b++ {
		fs := fixed.Sample(b)
		ws := warped.Sample(b)
		corr := stat.Correlation(fs, ws, nil)
		if stat.StdDev(fs, nil) < eps || stat.StdDev(ws, nil) < eps {
			if math.Abs(stat.Mean(fs, nil)-stat.Mean(ws, nil)) < eps {
				corr = 1
			} else {
				corr = 0
			}
		}
		dissim[b] = 1 - corr
	}
	return stat.Mean(dissim, nil)
}
