// Package integrate converts a stationary velocity field into a displacement
// field via scaling-and-squaring: the field is scaled down by 2^steps and
// repeatedly composed with itself through the trilinear resampler. This
// approximates the group exponential of the velocity field and yields a
// diffeomorphic (locally invertible) displacement when the velocity field is
// smooth.
package integrate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"deformreg/internal/models"
	"deformreg/pkg/interpolation"
)

// DefaultSteps is the default number of squaring steps. More steps trade
// compute for a better approximation of the exponential.
const DefaultSteps = 7

// MaxSteps bounds the squaring count; past this the 2^steps divisor is no
// longer representable and the scaled field underflows to noise.
const MaxSteps = 32

// Integrator integrates velocity fields over a fixed spatial shape, sharing
// the warper's reference grid with the rest of the pipeline.
type Integrator struct {
	warper *interpolation.Warper
}

// New creates an integrator composing fields through the given warper.
func New(w *interpolation.Warper) *Integrator {
	return &Integrator{warper: w}
}

// Exponential approximates the flow of the stationary ODE defined by the
// velocity field: ddf starts at dvf / 2^steps and is self-composed steps
// times via ddf = ddf + warp(ddf, ddf). A non-positive steps falls back to
// DefaultSteps; steps above MaxSteps are rejected. The output has the same
// shape as the input.
func (in *Integrator) Exponential(dvf *models.Volume, steps int) (*models.Volume, error) {
	if dvf.Dims != in.warper.Dims() {
		return nil, fmt.Errorf("%w: velocity field spatial dims %v do not match grid %v",
			models.ErrShapeMismatch, dvf.Dims, in.warper.Dims())
	}
	if steps > MaxSteps {
		return nil, fmt.Errorf("%w: %d squaring steps exceed the maximum %d",
			models.ErrConfiguration, steps, MaxSteps)
	}
	if steps <= 0 {
		steps = DefaultSteps
	}

	ddf := dvf.Clone()
	floats.Scale(1/float64(int(1)<<steps), ddf.Data)
	for s := 0; s < steps; s++ {
		composed, err := in.warper.Warp(ddf, ddf)
		if err != nil {
			return nil, fmt.Errorf("squaring step %d: %w", s, err)
		}
		floats.Add(ddf.Data, composed.Data)
	}
	return ddf, nil
}
