package trainer

import (
	"errors"
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
)

// ClipMethod names a gradient clipping strategy.
type ClipMethod string

const (
	// ClipGlobalNorm rescales the whole gradient set so its joint
	// Euclidean norm does not exceed the threshold.
	ClipGlobalNorm ClipMethod = "global_norm"
	// ClipByValue clamps every gradient element to [-threshold, threshold].
	ClipByValue ClipMethod = "value"
)

// ErrUnknownClipMethod is returned for clip methods other than the two
// supported ones.
var ErrUnknownClipMethod = errors.New("trainer: unknown clip method")

// GlobalNorm returns the Euclidean norm of all gradient elements taken
// together.
func GlobalNorm(grads []gorgonia.Value) (float64, error) {
	sum := 0.0
	for i, g := range grads {
		data, err := floatData(g)
		if err != nil {
			return 0, fmt.Errorf("gradient %d: %w", i, err)
		}
		for _, v := range data {
			sum += v * v
		}
	}
	return math.Sqrt(sum), nil
}

// ClipGradients clips the gradient values in place. With ClipGlobalNorm
// the post-clip global norm equals min(threshold, pre-clip norm); with
// ClipByValue each element is clamped independently. A threshold <= 0
// leaves the gradients untouched.
func ClipGradients(grads []gorgonia.Value, threshold float64, method ClipMethod) error {
	if threshold <= 0 {
		return nil
	}
	switch method {
	case ClipGlobalNorm:
		norm, err := GlobalNorm(grads)
		if err != nil {
			return err
		}
		if norm <= threshold || norm == 0 {
			return nil
		}
		scale := threshold / norm
		for i, g := range grads {
			data, err := floatData(g)
			if err != nil {
				return fmt.Errorf("gradient %d: %w", i, err)
			}
			for j := range data {
				data[j] *= scale
			}
		}
		return nil
	case ClipByValue:
		for i, g := range grads {
			data, err := floatData(g)
			if err != nil {
				return fmt.Errorf("gradient %d: %w", i, err)
			}
			for j, v := range data {
				if v > threshold {
					data[j] = threshold
				} else if v < -threshold {
					data[j] = -threshold
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownClipMethod, method)
	}
}

// floatData exposes the mutable float64 backing of a gradient value.
func floatData(v gorgonia.Value) ([]float64, error) {
	switch d := v.Data().(type) {
	case []float64:
		return d, nil
	default:
		return nil, fmt.Errorf("trainer: unsupported gradient dtype %T", d)
	}
}
