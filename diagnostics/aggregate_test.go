package diagnostics

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func TestAggregateSingleDrawIsIdentity(t *testing.T) {
	// With one draw per dataset every aggregator that maps {v} -> v must
	// reproduce the input matrix.
	postData := []float64{1, 2, 3, 4, 5, 6}
	post := tensor.New(tensor.WithShape(2, 1, 3), tensor.WithBacking(postData))
	truth := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float64, 6)))

	n, draws, params, pd, _, err := sampleShapes(post, truth)
	if err != nil {
		t.Fatalf("sampleShapes failed: %v", err)
	}
	got := aggregate(pd, n, draws, params, Mean)
	for i := range postData {
		if math.Abs(got[i]-postData[i]) > 1e-12 {
			t.Fatalf("element %d: expected %g, got %g", i, postData[i], got[i])
		}
	}
}

func TestAggregateMeanAndStd(t *testing.T) {
	// One dataset, four draws, one parameter.
	post := []float64{1, 2, 3, 4}
	mean := aggregate(post, 1, 4, 1, Mean)
	if math.Abs(mean[0]-2.5) > 1e-12 {
		t.Fatalf("expected mean 2.5, got %g", mean[0])
	}
	sd := aggregate(post, 1, 4, 1, Std)
	want := math.Sqrt((2.25 + 0.25 + 0.25 + 2.25) / 3)
	if math.Abs(sd[0]-want) > 1e-12 {
		t.Fatalf("expected std %g, got %g", want, sd[0])
	}
}

func TestMedian(t *testing.T) {
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("expected median 2, got %g", got)
	}
}

func TestSampleShapesRejectsMismatch(t *testing.T) {
	post := tensor.New(tensor.WithShape(2, 5, 3), tensor.WithBacking(make([]float64, 30)))

	wrongDatasets := tensor.New(tensor.WithShape(4, 3), tensor.WithBacking(make([]float64, 12)))
	if _, _, _, _, _, err := sampleShapes(post, wrongDatasets); err == nil {
		t.Fatal("expected an error for mismatched dataset counts")
	}
	wrongParams := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(make([]float64, 4)))
	if _, _, _, _, _, err := sampleShapes(post, wrongParams); err == nil {
		t.Fatal("expected an error for mismatched parameter counts")
	}
	flat := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(make([]float64, 6)))
	if _, _, _, _, _, err := sampleShapes(flat, wrongParams); err == nil {
		t.Fatal("expected an error for a rank-2 posterior")
	}
}

func TestDefaultNames(t *testing.T) {
	names, err := defaultNames(nil, "p", 3)
	if err != nil {
		t.Fatalf("defaultNames failed: %v", err)
	}
	if names[0] != "p_1" || names[2] != "p_3" {
		t.Fatalf("unexpected generated names %v", names)
	}
	if _, err := defaultNames([]string{"a"}, "p", 3); err == nil {
		t.Fatal("expected an error for a short name list")
	}
}
