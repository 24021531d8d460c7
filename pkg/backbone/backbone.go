// Package backbone defines the contract between the registration pipeline
// and the field-regression network, plus a name registry so configurations
// can select a backbone by string. The architecture itself is opaque to the
// pipeline: any function mapping a 2-channel volume to a 3-channel field of
// the same spatial shape satisfies the contract.
package backbone

import (
	"fmt"
	"sort"
	"sync"

	"deformreg/internal/models"
)

// Backbone maps a (batch, d1, d2, d3, 2) volume to a (batch, d1, d2, d3, 3)
// field over the same spatial shape.
type Backbone interface {
	Apply(in *models.Volume) (*models.Volume, error)
}

// Builder constructs a backbone for a fixed spatial shape.
type Builder func(dims [3]int) (Backbone, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Builder{}
)

// Register adds a backbone builder under the given method name, replacing
// any previous registration.
func Register(name string, builder Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = builder
}

// Registered reports whether a backbone method name is known. Configuration
// validation uses this to reject unknown names before any graph is built.
func Registered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Build constructs the backbone registered under name for the given spatial
// shape.
func Build(name string, dims [3]int) (Backbone, error) {
	registryMu.RLock()
	builder, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backbone %q (known: %v)", models.ErrUnsupportedMethod, name, names())
	}
	return builder(dims)
}

func names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run concatenates the moving and fixed volumes along the channel axis,
// invokes the backbone, and validates the output contract. Both inputs must
// be single-channel and share the same spatial shape; the upstream size
// adapter is responsible for making that hold.
func Run(b Backbone, moving, fixed *models.Volume) (*models.Volume, error) {
	if moving.Channels != 1 || fixed.Channels != 1 {
		return nil, fmt.Errorf("%w: backbone inputs must be single-channel, got %d and %d",
			models.ErrShapeMismatch, moving.Channels, fixed.Channels)
	}
	if !moving.SameSpatial(fixed) || moving.Batch != fixed.Batch {
		return nil, fmt.Errorf("%w: moving %s does not match fixed %s",
			models.ErrShapeMismatch, moving.ShapeString(), fixed.ShapeString())
	}

	in := concatChannels(moving, fixed)
	out, err := b.Apply(in)
	if err != nil {
		return nil, fmt.Errorf("backbone: %w", err)
	}
	if out.Dims != fixed.Dims || out.Batch != fixed.Batch || out.Channels != 3 {
		return nil, fmt.Errorf("%w: backbone output %s, want (%d, %d, %d, %d, 3)",
			models.ErrShapeMismatch, out.ShapeString(), fixed.Batch, fixed.Dims[0], fixed.Dims[1], fixed.Dims[2])
	}
	return out, nil
}

// concatChannels interleaves two single-channel volumes into one 2-channel
// volume, moving first.
func concatChannels(a, b *models.Volume) *models.Volume {
	out := models.NewVolume(a.Batch, a.Dims, 2)
	for i, v := range a.Data {
		out.Data[2*i] = v
		out.Data[2*i+1] = b.Data[i]
	}
	return out
}

// zeroBackbone predicts the zero field, i.e. the identity transform. It is
// registered as the "zero" method and serves as the no-deformation baseline.
type zeroBackbone struct {
	dims [3]int
}

func (z *zeroBackbone) Apply(in *models.Volume) (*models.Volume, error) {
	if in.Dims != z.dims {
		return nil, fmt.Errorf("%w: input spatial dims %v, want %v",
			models.ErrShapeMismatch, in.Dims, z.dims)
	}
	return models.NewVolume(in.Batch, in.Dims, 3), nil
}

func init() {
	Register("zero", func(dims [3]int) (Backbone, error) {
		return &zeroBackbone{dims: dims}, nil
	})
}
