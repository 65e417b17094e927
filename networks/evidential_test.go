package networks

import (
	"math"
	"math/rand"
	"testing"

	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

func classifierFixture(t *testing.T) (*EvidentialClassifier, trainer.Batch) {
	t.Helper()
	clf, err := NewEvidentialClassifier(ClassifierConfig{ObsDim: 3, NumModels: 3, Hidden: 4, Seed: 1})
	if err != nil {
		t.Fatalf("NewEvidentialClassifier failed: %v", err)
	}
	rng := rand.New(rand.NewSource(2))
	const n = 6
	obs := make([]float64, n*3)
	for i := range obs {
		obs[i] = rng.NormFloat64()
	}
	indicators := make([]float64, n*3)
	for i := 0; i < n; i++ {
		indicators[i*3+rng.Intn(3)] = 1
	}
	batch := trainer.Batch{
		Obs:    tensor.New(tensor.WithShape(n, 3), tensor.WithBacking(obs)),
		Models: tensor.New(tensor.WithShape(n, 3), tensor.WithBacking(indicators)),
	}
	return clf, batch
}

func TestClassifierProbabilitiesSumToOne(t *testing.T) {
	clf, batch := classifierFixture(t)
	probs, err := clf.Probabilities(batch.Obs)
	if err != nil {
		t.Fatalf("Probabilities failed: %v", err)
	}
	if s := probs.Shape(); s[0] != 6 || s[1] != 3 {
		t.Fatalf("probability shape %v, expected (6, 3)", s)
	}
	data := probs.Data().([]float64)
	for i := 0; i < 6; i++ {
		sum := 0.0
		for j := 0; j < 3; j++ {
			p := data[i*3+j]
			if p <= 0 || p >= 1 {
				t.Fatalf("row %d: probability %g outside (0, 1)", i, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d: probabilities sum to %g", i, sum)
		}
	}
}

func TestClassifierAlphaExceedsOne(t *testing.T) {
	clf, batch := classifierFixture(t)
	pass, err := clf.Forward(trainer.ModeModelComparison, batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	vals, err := trainer.EvalOutputs(pass, trainer.OutputAlpha, trainer.OutputAlpha0)
	if err != nil {
		t.Fatalf("EvalOutputs failed: %v", err)
	}
	for _, a := range vals[trainer.OutputAlpha].Data().([]float64) {
		if a <= 1 {
			t.Fatalf("evidence alpha %g must exceed 1", a)
		}
	}
	if s := vals[trainer.OutputAlpha0].Shape(); s[0] != 6 || s[1] != 1 {
		t.Fatalf("alpha0 shape %v, expected (6, 1)", s)
	}
}

func TestClassifierForwardRejectsWrongMode(t *testing.T) {
	clf, batch := classifierFixture(t)
	if _, err := clf.Forward(trainer.ModeFlow, batch); err == nil {
		t.Fatal("expected an error for the wrong training mode")
	}
}

func TestClassifierForwardValidatesBatch(t *testing.T) {
	clf, batch := classifierFixture(t)
	if _, err := clf.Forward(trainer.ModeModelComparison, trainer.Batch{Obs: batch.Obs}); err == nil {
		t.Fatal("expected an error for missing model indicators")
	}
	bad := trainer.Batch{
		Obs:    batch.Obs,
		Models: tensor.New(tensor.WithShape(6, 2), tensor.WithBacking(make([]float64, 12))),
	}
	if _, err := clf.Forward(trainer.ModeModelComparison, bad); err == nil {
		t.Fatal("expected an error for a wrong indicator width")
	}
}

func TestNewEvidentialClassifierValidation(t *testing.T) {
	if _, err := NewEvidentialClassifier(ClassifierConfig{ObsDim: 3, NumModels: 1}); err == nil {
		t.Fatal("expected an error for fewer than two models")
	}
}
