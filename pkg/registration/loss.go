package registration

import (
	"fmt"

	"deformreg/internal/models"
	"deformreg/pkg/losses"
)

// Stable reporting keys, the contract for training dashboards.
const (
	KeyRegularization       = "loss/regularization"
	KeyWeightedReg          = "loss/weighted_regularization"
	KeyImageDissim          = "loss/image_dissimilarity"
	KeyWeightedImageDissim  = "loss/weighted_image_dissimilarity"
	KeyLabelDissim          = "loss/label_dissimilarity"
	KeyWeightedLabelDissim  = "loss/weighted_label_dissimilarity"
	KeyDiceBinary           = "metric/dice_binary"
	KeyDiceFloat            = "metric/dice_float"
	KeyTRE                  = "metric/tre"
	KeyForegroundLabel      = "metric/foreground_label"
	KeyForegroundPrediction = "metric/foreground_pred"
)

// Report holds the assembled objective: the additive total loss, the
// individual loss terms (raw and weighted), and the purely observational
// diagnostic metrics that never contribute gradients.
type Report struct {
	// Total is the sum of all weighted loss contributions
	Total float64

	// Losses holds the loss/* keys, raw and weighted per term
	Losses map[string]float64

	// Metrics holds the metric/* diagnostic keys; present only when label
	// data was supplied
	Metrics map[string]float64
}

// AssembleLoss computes the composite objective for one forward pass.
//
// The regularization energy is always computed and reported; its weight is
// applied without any positivity guard. The image term contributes only when
// its weight is positive. The label term and the overlap diagnostics are
// computed exactly when a fixed label is present; the label weight is folded
// into the dissimilarity function, so its raw and weighted keys coincide.
func (m *Model) AssembleLoss(fwd *Forward, in Inputs) (*Report, error) {
	report := &Report{
		Losses:  map[string]float64{},
		Metrics: map[string]float64{},
	}

	reg := m.regEnergy(fwd.DDF)
	weightedReg := reg * m.regWeight
	report.Losses[KeyRegularization] = reg
	report.Losses[KeyWeightedReg] = weightedReg
	report.Total += weightedReg

	if m.imageWeight > 0 {
		if !in.FixedImage.SameSpatial(fwd.WarpedImage) {
			return nil, fmt.Errorf("%w: fixed_image dims %v, warped image dims %v",
				models.ErrShapeMismatch, in.FixedImage.Dims, fwd.WarpedImage.Dims)
		}
		dissim := m.imageFn(in.FixedImage, fwd.WarpedImage)
		weighted := dissim * m.imageWeight
		report.Losses[KeyImageDissim] = dissim
		report.Losses[KeyWeightedImageDissim] = weighted
		report.Total += weighted
	}

	if in.FixedLabel != nil {
		if fwd.WarpedLabel == nil {
			return nil, fmt.Errorf("%w: fixed_label supplied but no label was warped", models.ErrConfiguration)
		}
		if !in.FixedLabel.SameSpatial(fwd.WarpedLabel) {
			return nil, fmt.Errorf("%w: fixed_label dims %v, warped label dims %v",
				models.ErrShapeMismatch, in.FixedLabel.Dims, fwd.WarpedLabel.Dims)
		}
		// The overlap and centroid metrics address the grid per voxel and
		// assume scalar labels.
		if in.FixedLabel.Channels != 1 || fwd.WarpedLabel.Channels != 1 {
			return nil, fmt.Errorf("%w: labels must be single-channel, got fixed %d, warped %d",
				models.ErrShapeMismatch, in.FixedLabel.Channels, fwd.WarpedLabel.Channels)
		}

		dissim := m.labelFn(in.FixedLabel, fwd.WarpedLabel)
		report.Losses[KeyLabelDissim] = dissim
		report.Losses[KeyWeightedLabelDissim] = dissim
		report.Total += dissim

		report.Metrics[KeyDiceBinary] = losses.DiceScore(in.FixedLabel, fwd.WarpedLabel, true)
		report.Metrics[KeyDiceFloat] = losses.DiceScore(in.FixedLabel, fwd.WarpedLabel, false)
		report.Metrics[KeyTRE] = losses.CentroidDistance(in.FixedLabel, fwd.WarpedLabel, fwd.Grid)
		report.Metrics[KeyForegroundLabel] = losses.ForegroundProportion(in.FixedLabel)
		report.Metrics[KeyForegroundPrediction] = losses.ForegroundProportion(fwd.WarpedLabel)
	}

	return report, nil
}
