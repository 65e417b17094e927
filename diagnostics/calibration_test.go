package diagnostics

import (
	"math/rand"
	"testing"

	"gorgonia.org/tensor"
)

func mixturePredictions(t *testing.T, n, k int, seed int64) (*tensor.Dense, *tensor.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	truth := make([]float64, n*k)
	probs := make([]float64, n*k)
	for i := 0; i < n; i++ {
		truth[i*k+rng.Intn(k)] = 1
		rest := 1.0
		for j := 0; j < k-1; j++ {
			p := rng.Float64() * rest
			probs[i*k+j] = p
			rest -= p
		}
		probs[i*k+k-1] = rest
	}
	return tensor.New(tensor.WithShape(n, k), tensor.WithBacking(truth)),
		tensor.New(tensor.WithShape(n, k), tensor.WithBacking(probs))
}

func TestCalibrationCurvesRenders(t *testing.T) {
	truth, probs := mixturePredictions(t, 80, 3, 1)
	fig, err := CalibrationCurves(truth, probs, CalibrationConfig{})
	if err != nil {
		t.Fatalf("CalibrationCurves failed: %v", err)
	}
	if len(fig.Plots()[0]) != 3 {
		t.Fatalf("expected one panel per model, got %d", len(fig.Plots()[0]))
	}
	assertSavesPNG(t, fig, "calibration.png")
}

func TestCalibrationCurvesWithNames(t *testing.T) {
	truth, probs := mixturePredictions(t, 40, 2, 2)
	fig, err := CalibrationCurves(truth, probs, CalibrationConfig{
		Bins:       5,
		ModelNames: []string{"linear", "quadratic"},
	})
	if err != nil {
		t.Fatalf("CalibrationCurves failed: %v", err)
	}
	assertSavesPNG(t, fig, "named.png")
}

func TestCalibrationCurvesRejectsBadInput(t *testing.T) {
	truth, _ := mixturePredictions(t, 10, 2, 3)
	probs := tensor.New(tensor.WithShape(10, 3), tensor.WithBacking(make([]float64, 30)))
	if _, err := CalibrationCurves(truth, probs, CalibrationConfig{}); err == nil {
		t.Fatal("expected an error for mismatched model counts")
	}
	if _, err := CalibrationCurves(truth, probs, CalibrationConfig{ModelNames: []string{"a"}}); err == nil {
		t.Fatal("expected an error for a short name list")
	}
}
