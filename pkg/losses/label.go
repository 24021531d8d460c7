package losses

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"deformreg/internal/models"
)

const (
	// foregroundThreshold binarizes label intensities for the discrete
	// overlap metrics.
	foregroundThreshold = 0.5

	// eps guards divisions against empty labels and zero variance.
	eps = 1e-6
)

// LabelFunc computes a scalar dissimilarity between a fixed label and a
// warped moving label of identical shape, with the configured weight already
// folded in.
type LabelFunc func(truth, pred *models.Volume) float64

var labelRegistry = map[string]func(weight float64) LabelFunc{
	"dice": func(weight float64) LabelFunc {
		return func(truth, pred *models.Volume) float64 {
			return weight * (1 - DiceScore(truth, pred, false))
		}
	},
	"jaccard": func(weight float64) LabelFunc {
		return func(truth, pred *models.Volume) float64 {
			return weight * (1 - JaccardScore(truth, pred))
		}
	},
}

// Label returns the registered label dissimilarity for the given method
// name, scaled by weight. The weight is part of the function itself, so the
// assembler reports the weighted value as the loss.
func Label(name string, weight float64) (LabelFunc, error) {
	builder, ok := labelRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: label dissimilarity %q", models.ErrUnsupportedMethod, name)
	}
	return builder(weight), nil
}

// LabelRegistered reports whether a label dissimilarity name is known.
func LabelRegistered(name string) bool {
	_, ok := labelRegistry[name]
	return ok
}

// DiceScore is the batch-averaged Dice overlap 2|A∩B|/(|A|+|B|). With binary
// set, intensities are thresholded first; otherwise the overlap is computed
// on the continuous values, which keeps the score differentiable-in-spirit
// for resampled labels.
func DiceScore(truth, pred *models.Volume, binary bool) float64 {
	scores := make([]float64, truth.Batch)
	for b := 0; b < truth.Batch; b++ {
		ts := truth.Sample(b)
		ps := pred.Sample(b)
		var intersect, sumT, sumP float64
		for i, tv := range ts {
			pv := ps[i]
			if binary {
				tv = binarize(tv)
				pv = binarize(pv)
			}
			intersect += tv * pv
			sumT += tv
			sumP += pv
		}
		scores[b] = (2*intersect + eps) / (sumT + sumP + eps)
	}
	return stat.Mean(scores, nil)
}

// JaccardScore is the batch-averaged continuous Jaccard index
// |A∩B|/|A∪B|.
func JaccardScore(truth, pred *models.Volume) float64 {
	scores := make([]float64, truth.Batch)
	for b := 0; b < truth.Batch; b++ {
		ts := truth.Sample(b)
		ps := pred.Sample(b)
		var intersect, sumT, sumP float64
		for i, tv := range ts {
			pv := ps[i]
			intersect += tv * pv
			sumT += tv
			sumP += pv
		}
		scores[b] = (intersect + eps) / (sumT + sumP - intersect + eps)
	}
	return stat.Mean(scores, nil)
}

// CentroidDistance is the batch-averaged Euclidean distance between the
// intensity-weighted centroids of the truth and predicted labels, using the
// reference grid as the coordinate basis. It serves as a proxy for target
// registration error.
func CentroidDistance(truth, pred, grid *models.Volume) float64 {
	dists := make([]float64, truth.Batch)
	for b := 0; b < truth.Batch; b++ {
		ct := centroid(truth, b, grid)
		cp := centroid(pred, b, grid)
		var sq float64
		for a := 0; a < 3; a++ {
			d := ct[a] - cp[a]
			sq += d * d
		}
		dists[b] = math.Sqrt(sq)
	}
	return stat.Mean(dists, nil)
}

// centroid returns the label-intensity-weighted average grid coordinate of
// one batch sample.
func centroid(label *models.Volume, b int, grid *models.Volume) [3]float64 {
	var weighted [3]float64
	var total float64
	ls := label.Sample(b)
	for i, w := range ls {
		total += w
		base := 3 * i
		weighted[0] += w * grid.Data[base]
		weighted[1] += w * grid.Data[base+1]
		weighted[2] += w * grid.Data[base+2]
	}
	for a := 0; a < 3; a++ {
		weighted[a] /= total + eps
	}
	return weighted
}

// ForegroundProportion is the batch-averaged fraction of voxels whose label
// intensity reaches the foreground threshold.
func ForegroundProportion(label *models.Volume) float64 {
	fractions := make([]float64, label.Batch)
	for b := 0; b < label.Batch; b++ {
		ls := label.Sample(b)
		var fg float64
		for _, v := range ls {
			fg += binarize(v)
		}
		fractions[b] = fg / float64(len(ls))
	}
	return stat.Mean(fractions, nil)
}

func binarize(v float64) float64 {
	if v >= foregroundThreshold {
		return 1
	}
	return 0
}
