package diagnostics

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func samplePosterior(t *testing.T, n, draws, params int, seed int64) (*tensor.Dense, *tensor.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	truth := make([]float64, n*params)
	for i := range truth {
		truth[i] = rng.NormFloat64()
	}
	post := make([]float64, n*draws*params)
	for i := 0; i < n; i++ {
		for d := 0; d < draws; d++ {
			for j := 0; j < params; j++ {
				post[(i*draws+d)*params+j] = truth[i*params+j] + 0.3*rng.NormFloat64()
			}
		}
	}
	return tensor.New(tensor.WithShape(n, draws, params), tensor.WithBacking(post)),
		tensor.New(tensor.WithShape(n, params), tensor.WithBacking(truth))
}

func assertSavesPNG(t *testing.T, fig *Figure, name string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := fig.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat rendered figure: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("rendered figure is empty")
	}
}

func TestRecoveryRendersErrorBars(t *testing.T) {
	post, truth := samplePosterior(t, 20, 30, 3, 1)
	fig, err := Recovery(post, truth, DefaultRecoveryConfig())
	if err != nil {
		t.Fatalf("Recovery failed: %v", err)
	}
	assertSavesPNG(t, fig, "recovery.png")
}

func TestRecoveryScatterWithNames(t *testing.T) {
	post, truth := samplePosterior(t, 10, 5, 2, 2)
	fig, err := Recovery(post, truth, RecoveryConfig{
		Scatter:    true,
		ParamNames: []string{"mu", "sigma"},
	})
	if err != nil {
		t.Fatalf("Recovery failed: %v", err)
	}
	if len(fig.Plots()[0]) != 2 {
		t.Fatalf("expected 2 panels in one row, got %d", len(fig.Plots()[0]))
	}
	assertSavesPNG(t, fig, "scatter.png")
}

func TestRecoveryRejectsMismatchedInputs(t *testing.T) {
	post, _ := samplePosterior(t, 10, 5, 2, 3)
	truth := tensor.New(tensor.WithShape(10, 4), tensor.WithBacking(make([]float64, 40)))
	if _, err := Recovery(post, truth, DefaultRecoveryConfig()); err == nil {
		t.Fatal("expected an error for mismatched parameter counts")
	}
	if _, err := Recovery(nil, truth, DefaultRecoveryConfig()); err == nil {
		t.Fatal("expected an error for a nil posterior")
	}
}

func TestRecoveryRejectsWrongNameCount(t *testing.T) {
	post, truth := samplePosterior(t, 5, 4, 3, 4)
	_, err := Recovery(post, truth, RecoveryConfig{ParamNames: []string{"only_one"}})
	if err == nil {
		t.Fatal("expected an error for a short name list")
	}
}

func TestGridDims(t *testing.T) {
	cases := []struct{ n, rows, cols int }{
		{1, 1, 1},
		{4, 1, 4},
		{6, 1, 6},
		{7, 2, 4},
		{13, 3, 5},
	}
	for _, c := range cases {
		rows, cols := gridDims(c.n)
		if rows != c.rows || cols != c.cols {
			t.Fatalf("gridDims(%d) = (%d, %d), expected (%d, %d)", c.n, rows, cols, c.rows, c.cols)
		}
	}
}
