// Package registration assembles the deformable-registration forward
// pipeline: size adaptation of the moving volume, backbone invocation,
// optional velocity-field integration, trilinear warping, and the composite
// loss with its diagnostic metrics.
//
// The pipeline is a single synchronous pass of pure tensor transformations:
//
//  1. Validate the input volumes against the configured static shapes
//  2. Resize the moving image to the fixed shape when they differ
//  3. Concatenate moving and fixed and invoke the backbone
//  4. In "dvf" mode, integrate the velocity field into a displacement field
//  5. Warp the moving image (and label, when supplied) by the displacement
//
// All tensors are immutable values; no step mutates its inputs, and the
// reference grid is built once per model and shared read-only.
package registration

import (
	"fmt"

	"deformreg/internal/models"
	"deformreg/pkg/backbone"
	"deformreg/pkg/config"
	"deformreg/pkg/integrate"
	"deformreg/pkg/interpolation"
	"deformreg/pkg/losses"
)

// Inputs holds one batch of model inputs.
type Inputs struct {
	// MovingImage is the volume to be deformed, shape (batch, m_dims, 1)
	MovingImage *models.Volume

	// FixedImage is the registration target, shape (batch, f_dims, 1)
	FixedImage *models.Volume

	// MovingLabel is the structure label over the moving volume, or nil
	// when the sample is unlabeled. It is warped at its original
	// resolution and never resized, so upstream data preparation must
	// supply it at the fixed shape already.
	MovingLabel *models.Volume

	// FixedLabel is the structure label over the fixed volume, or nil
	FixedLabel *models.Volume

	// Indices identifies the samples within the dataset; carried through
	// for bookkeeping only
	Indices []float64
}

// Forward holds the products of one forward pass.
type Forward struct {
	// DVF is the dense velocity field, nil unless the model method is "dvf"
	DVF *models.Volume

	// DDF is the dense displacement field over the fixed grid
	DDF *models.Volume

	// WarpedImage is the moving image resampled onto the fixed grid
	WarpedImage *models.Volume

	// WarpedLabel is the warped moving label, nil when no label was supplied
	WarpedLabel *models.Volume

	// Grid is the model's shared reference grid; read-only
	Grid *models.Volume
}

// Model is a built registration graph with static shapes and resolved
// backbone and loss methods. Build rejects malformed configurations, so a
// constructed Model cannot fail on method lookup at forward time.
type Model struct {
	method     string
	movingSize [3]int
	fixedSize  [3]int
	steps      int

	net        backbone.Backbone
	warper     *interpolation.Warper
	integrator *integrate.Integrator

	regEnergy   losses.EnergyFunc
	regWeight   float64
	imageFn     losses.ImageFunc
	imageWeight float64
	labelFn     losses.LabelFunc
}

// Build constructs a model from a validated configuration, resolving the
// backbone and every loss method up front so that unsupported names and
// missing keys fail here rather than during training.
func Build(cfg *config.Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	net, err := backbone.Build(cfg.Model.Backbone, cfg.Model.FixedSize)
	if err != nil {
		return nil, err
	}

	regEnergy, err := losses.Energy(cfg.Loss.Regularization.Energy)
	if err != nil {
		return nil, err
	}
	imageFn, err := losses.Image(cfg.Loss.Dissimilarity.Image.Method)
	if err != nil {
		return nil, err
	}
	labelFn, err := losses.Label(cfg.Loss.Dissimilarity.Label.Method, *cfg.Loss.Dissimilarity.Label.Weight)
	if err != nil {
		return nil, err
	}

	warper := interpolation.NewWarper(cfg.Model.FixedSize)
	return &Model{
		method:      cfg.Model.Method,
		movingSize:  cfg.Model.MovingSize,
		fixedSize:   cfg.Model.FixedSize,
		steps:       cfg.Model.IntegrationSteps,
		net:         net,
		warper:      warper,
		integrator:  integrate.New(warper),
		regEnergy:   regEnergy,
		regWeight:   *cfg.Loss.Regularization.Weight,
		imageFn:     imageFn,
		imageWeight: *cfg.Loss.Dissimilarity.Image.Weight,
		labelFn:     labelFn,
	}, nil
}

// Grid returns the model's reference grid over the fixed shape. Callers must
// treat it as read-only.
func (m *Model) Grid() *models.Volume { return m.warper.Grid() }

// Forward runs one pass of the registration pipeline.
func (m *Model) Forward(in Inputs) (*Forward, error) {
	if err := m.checkInputs(in); err != nil {
		return nil, err
	}

	// Moving image is brought to the fixed shape before the backbone sees
	// it; the moving label keeps its native resolution.
	moving := in.MovingImage
	if m.movingSize != m.fixedSize {
		moving = interpolation.Resize(moving, m.fixedSize)
	}

	raw, err := backbone.Run(m.net, moving, in.FixedImage)
	if err != nil {
		return nil, err
	}

	var dvf, ddf *models.Volume
	if m.method == "dvf" {
		dvf = raw
		ddf, err = m.integrator.Exponential(dvf, m.steps)
		if err != nil {
			return nil, err
		}
	} else {
		ddf = raw
	}

	warpedImage, err := m.warper.Warp(moving, ddf)
	if err != nil {
		return nil, err
	}

	var warpedLabel *models.Volume
	if in.MovingLabel != nil {
		warpedLabel, err = m.warper.Warp(in.MovingLabel, ddf)
		if err != nil {
			return nil, err
		}
	}

	return &Forward{
		DVF:         dvf,
		DDF:         ddf,
		WarpedImage: warpedImage,
		WarpedLabel: warpedLabel,
		Grid:        m.warper.Grid(),
	}, nil
}

// Outputs maps a forward pass onto the stable model-output keys: "ddf"
// always, "dvf" in velocity mode, "pred_fixed_label" in labeled mode.
func (m *Model) Outputs(fwd *Forward) map[string]*models.Volume {
	out := map[string]*models.Volume{"ddf": fwd.DDF}
	if fwd.DVF != nil {
		out["dvf"] = fwd.DVF
	}
	if fwd.WarpedLabel != nil {
		out["pred_fixed_label"] = fwd.WarpedLabel
	}
	return out
}

func (m *Model) checkInputs(in Inputs) error {
	if in.MovingImage == nil || in.FixedImage == nil {
		return fmt.Errorf("%w: moving_image and fixed_image are required", models.ErrConfiguration)
	}
	if in.MovingImage.Channels != 1 || in.FixedImage.Channels != 1 {
		return fmt.Errorf("%w: images must be single-channel, got moving %d fixed %d",
			models.ErrShapeMismatch, in.MovingImage.Channels, in.FixedImage.Channels)
	}
	if in.MovingImage.Dims != m.movingSize {
		return fmt.Errorf("%w: moving_image dims %v, want %v",
			models.ErrShapeMismatch, in.MovingImage.Dims, m.movingSize)
	}
	if in.FixedImage.Dims != m.fixedSize {
		return fmt.Errorf("%w: fixed_image dims %v, want %v",
			models.ErrShapeMismatch, in.FixedImage.Dims, m.fixedSize)
	}
	if in.MovingImage.Batch != in.FixedImage.Batch {
		return fmt.Errorf("%w: moving_image batch %d, fixed_image batch %d",
			models.ErrShapeMismatch, in.MovingImage.Batch, in.FixedImage.Batch)
	}
	if in.FixedLabel != nil && in.MovingLabel == nil {
		return fmt.Errorf("%w: fixed_label supplied without moving_label", models.ErrConfiguration)
	}
	if in.MovingLabel != nil && in.MovingLabel.Channels != 1 {
		return fmt.Errorf("%w: moving_label has %d channels, want 1",
			models.ErrShapeMismatch, in.MovingLabel.Channels)
	}
	if in.FixedLabel != nil && in.FixedLabel.Channels != 1 {
		return fmt.Errorf("%w: fixed_label has %d channels, want 1",
			models.ErrShapeMismatch, in.FixedLabel.Channels)
	}
	return nil
}
