package trainer

import (
	"errors"
	"math"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func gradValues(backings ...[]float64) []gorgonia.Value {
	vals := make([]gorgonia.Value, len(backings))
	for i, b := range backings {
		vals[i] = tensor.New(tensor.WithShape(len(b)), tensor.WithBacking(b))
	}
	return vals
}

func TestGlobalNorm(t *testing.T) {
	grads := gradValues([]float64{3}, []float64{4})
	norm, err := GlobalNorm(grads)
	if err != nil {
		t.Fatalf("GlobalNorm failed: %v", err)
	}
	if math.Abs(norm-5) > 1e-12 {
		t.Fatalf("expected norm 5, got %g", norm)
	}
}

func TestClipGlobalNormRescales(t *testing.T) {
	grads := gradValues([]float64{6}, []float64{8})
	if err := ClipGradients(grads, 5, ClipGlobalNorm); err != nil {
		t.Fatalf("ClipGradients failed: %v", err)
	}
	norm, err := GlobalNorm(grads)
	if err != nil {
		t.Fatalf("GlobalNorm failed: %v", err)
	}
	if math.Abs(norm-5) > 1e-9 {
		t.Fatalf("post-clip norm should equal the threshold, got %g", norm)
	}
	// Direction must be preserved, only the magnitude shrinks.
	a := grads[0].Data().([]float64)[0]
	b := grads[1].Data().([]float64)[0]
	if math.Abs(a-3) > 1e-9 || math.Abs(b-4) > 1e-9 {
		t.Fatalf("expected rescaled gradients (3, 4), got (%g, %g)", a, b)
	}
}

func TestClipGlobalNormLeavesSmallGradients(t *testing.T) {
	grads := gradValues([]float64{1, -2})
	if err := ClipGradients(grads, 5, ClipGlobalNorm); err != nil {
		t.Fatalf("ClipGradients failed: %v", err)
	}
	data := grads[0].Data().([]float64)
	if data[0] != 1 || data[1] != -2 {
		t.Fatalf("gradients below the threshold must not change, got %v", data)
	}
}

func TestClipByValueClamps(t *testing.T) {
	grads := gradValues([]float64{-10, -0.5, 0.5, 10})
	if err := ClipGradients(grads, 2, ClipByValue); err != nil {
		t.Fatalf("ClipGradients failed: %v", err)
	}
	got := grads[0].Data().([]float64)
	want := []float64{-2, -0.5, 0.5, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: expected %g, got %g", i, want[i], got[i])
		}
	}
}

func TestClipDisabledByThreshold(t *testing.T) {
	grads := gradValues([]float64{100, -100})
	if err := ClipGradients(grads, 0, ClipGlobalNorm); err != nil {
		t.Fatalf("ClipGradients failed: %v", err)
	}
	data := grads[0].Data().([]float64)
	if data[0] != 100 || data[1] != -100 {
		t.Fatalf("threshold <= 0 must leave gradients untouched, got %v", data)
	}
}

func TestClipUnknownMethod(t *testing.T) {
	grads := gradValues([]float64{1})
	err := ClipGradients(grads, 1, ClipMethod("l1"))
	if !errors.Is(err, ErrUnknownClipMethod) {
		t.Fatalf("expected ErrUnknownClipMethod, got %v", err)
	}
}
