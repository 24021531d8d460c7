package models

import "errors"

// Error categories shared across the registration pipeline. All of them are
// construction-time failures: the forward graph either builds completely or
// is rejected before any training step runs. Callers match them with
// errors.Is after the usual fmt.Errorf("%w", ...) wrapping.
var (
	// ErrShapeMismatch indicates that two tensors expected to align in
	// spatial dimensions, batch size or channel count do not.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnsupportedMethod indicates a backbone, energy or dissimilarity
	// name that is not present in the corresponding registry.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrConfiguration indicates a missing or malformed field in the loss
	// or model configuration.
	ErrConfiguration = errors.New("invalid configuration")
)
