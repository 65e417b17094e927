package networks

import (
	"fmt"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

// ClassifierConfig configures an EvidentialClassifier.
type ClassifierConfig struct {
	ObsDim    int
	NumModels int
	// Hidden is the width of the hidden layer; 0 means 64.
	Hidden int
	// WeightDecay scales an L2 penalty over the weight matrices. 0
	// disables it.
	WeightDecay float64
	Seed        int64
}

// EvidentialClassifier scores candidate models from observations. It
// produces Dirichlet evidence alpha = exp(logits) + 1, the total
// evidence alpha0 and the implied model probabilities alpha / alpha0.
type EvidentialClassifier struct {
	cfg    ClassifierConfig
	hidden *dense
	head   *dense
}

// NewEvidentialClassifier constructs the classifier with seeded random
// weights.
func NewEvidentialClassifier(cfg ClassifierConfig) (*EvidentialClassifier, error) {
	if cfg.ObsDim <= 0 || cfg.NumModels <= 1 {
		return nil, fmt.Errorf("networks: need obs dim > 0 and at least two models (got %d, %d)", cfg.ObsDim, cfg.NumModels)
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 64
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &EvidentialClassifier{
		cfg:    cfg,
		hidden: newDense("clf_hidden", cfg.ObsDim, cfg.Hidden, rng),
		head:   newDense("clf_head", cfg.Hidden, cfg.NumModels, rng),
	}, nil
}

// Forward implements trainer.Model for ModeModelComparison.
func (c *EvidentialClassifier) Forward(mode trainer.Mode, batch trainer.Batch) (*trainer.Pass, error) {
	if mode != trainer.ModeModelComparison {
		return nil, fmt.Errorf("networks: EvidentialClassifier cannot train in mode %s", mode)
	}
	if batch.Obs == nil || batch.Models == nil {
		return nil, fmt.Errorf("networks: model-comparison batches need obs and model indicators")
	}
	n := batch.Obs.Shape()[0]
	if s := batch.Obs.Shape(); len(s) != 2 || s[1] != c.cfg.ObsDim {
		return nil, fmt.Errorf("networks: obs shape %v does not match obs dim %d", s, c.cfg.ObsDim)
	}
	if s := batch.Models.Shape(); len(s) != 2 || s[0] != n || s[1] != c.cfg.NumModels {
		return nil, fmt.Errorf("networks: model indicators shape %v does not match batch %d x %d", s, n, c.cfg.NumModels)
	}

	g := gorgonia.NewGraph()
	obs := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(n, c.cfg.ObsDim), gorgonia.WithName("obs"), gorgonia.WithValue(batch.Obs))
	indicators := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(n, c.cfg.NumModels), gorgonia.WithName("models"), gorgonia.WithValue(batch.Models))

	h, hp, err := c.hidden.apply(g, obs)
	if err != nil {
		return nil, fmt.Errorf("hidden layer: %w", err)
	}
	if h, err = gorgonia.Rectify(h); err != nil {
		return nil, fmt.Errorf("hidden activation: %w", err)
	}
	logits, op, err := c.head.apply(g, h)
	if err != nil {
		return nil, fmt.Errorf("evidence head: %w", err)
	}

	evidence, err := gorgonia.Exp(logits)
	if err != nil {
		return nil, fmt.Errorf("evidence: %w", err)
	}
	alpha, err := gorgonia.Add(evidence, gorgonia.NewConstant(1.0))
	if err != nil {
		return nil, fmt.Errorf("alpha: %w", err)
	}
	alpha0Vec, err := gorgonia.Sum(alpha, 1)
	if err != nil {
		return nil, fmt.Errorf("alpha0: %w", err)
	}
	alpha0, err := gorgonia.Reshape(alpha0Vec, tensor.Shape{n, 1})
	if err != nil {
		return nil, fmt.Errorf("reshape alpha0: %w", err)
	}
	probs, err := gorgonia.BroadcastHadamardDiv(alpha, alpha0, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("model probabilities: %w", err)
	}

	params := append(append(gorgonia.Nodes{}, hp...), op...)
	pass := &trainer.Pass{
		Graph:  g,
		Inputs: map[string]*gorgonia.Node{trainer.InputObs: obs, trainer.InputModels: indicators},
		Outputs: map[string]*gorgonia.Node{
			trainer.OutputAlpha:  alpha,
			trainer.OutputAlpha0: alpha0,
			trainer.OutputProbs:  probs,
		},
		Params: params,
	}
	if c.cfg.WeightDecay > 0 {
		penalty, err := l2Penalty(c.cfg.WeightDecay, gorgonia.Nodes{hp[0], op[0]})
		if err != nil {
			return nil, fmt.Errorf("weight decay: %w", err)
		}
		pass.Penalties = gorgonia.Nodes{penalty}
	}
	return pass, nil
}

// Probabilities evaluates the classifier on obs and returns the
// predicted model probabilities as an N x K tensor.
func (c *EvidentialClassifier) Probabilities(obs *tensor.Dense) (*tensor.Dense, error) {
	if obs == nil {
		return nil, fmt.Errorf("networks: obs must be non-nil")
	}
	n := obs.Shape()[0]
	one := make([]float64, n*c.cfg.NumModels)
	for i := 0; i < n; i++ {
		one[i*c.cfg.NumModels] = 1
	}
	batch := trainer.Batch{
		Obs:    obs,
		Models: tensor.New(tensor.WithShape(n, c.cfg.NumModels), tensor.WithBacking(one)),
	}
	pass, err := c.Forward(trainer.ModeModelComparison, batch)
	if err != nil {
		return nil, err
	}
	vals, err := trainer.EvalOutputs(pass, trainer.OutputProbs)
	if err != nil {
		return nil, err
	}
	probs, ok := vals[trainer.OutputProbs].(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("networks: unexpected probability value %T", vals[trainer.OutputProbs])
	}
	return probs, nil
}
