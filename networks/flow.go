package networks

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

// FlowConfig configures a ConditionalFlow.
type FlowConfig struct {
	ParamDim int
	ObsDim   int
	// Hidden is the width of the conditioning layer; 0 means 64.
	Hidden int
	// WeightDecay scales an L2 penalty over the weight matrices,
	// declared as a regularization term on every pass. 0 disables it.
	WeightDecay float64
	Seed        int64
}

// ConditionalFlow is a conditional Gaussian normalizing flow. Given
// observations it predicts a per-parameter location and log-scale and
// maps parameters to latent space via z = (params - mu) * exp(-s), with
// log|det J| = -sum(s).
type ConditionalFlow struct {
	cfg    FlowConfig
	hidden *dense
	loc    *dense
	logScl *dense
}

// NewConditionalFlow constructs the flow with seeded random weights.
func NewConditionalFlow(cfg FlowConfig) (*ConditionalFlow, error) {
	if cfg.ParamDim <= 0 || cfg.ObsDim <= 0 {
		return nil, fmt.Errorf("networks: param dim and obs dim must be > 0 (got %d, %d)", cfg.ParamDim, cfg.ObsDim)
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 64
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &ConditionalFlow{
		cfg:    cfg,
		hidden: newDense("flow_hidden", cfg.ObsDim, cfg.Hidden, rng),
		loc:    newDense("flow_loc", cfg.Hidden, cfg.ParamDim, rng),
		logScl: newDense("flow_log_scale", cfg.Hidden, cfg.ParamDim, rng),
	}, nil
}

// condition builds the shared conditioning trunk and the location and
// log-scale heads for a bound observation node.
func (f *ConditionalFlow) condition(g *gorgonia.ExprGraph, x *gorgonia.Node) (loc, logScl *gorgonia.Node, params, weights gorgonia.Nodes, err error) {
	h, hp, err := f.hidden.apply(g, x)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("hidden layer: %w", err)
	}
	if h, err = gorgonia.Rectify(h); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("hidden activation: %w", err)
	}
	loc, lp, err := f.loc.apply(g, h)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("location head: %w", err)
	}
	logScl, sp, err := f.logScl.apply(g, h)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("log-scale head: %w", err)
	}
	params = append(append(append(gorgonia.Nodes{}, hp...), lp...), sp...)
	weights = gorgonia.Nodes{hp[0], lp[0], sp[0]}
	return loc, logScl, params, weights, nil
}

// Forward implements trainer.Model for ModeFlow.
func (f *ConditionalFlow) Forward(mode trainer.Mode, batch trainer.Batch) (*trainer.Pass, error) {
	if mode != trainer.ModeFlow {
		return nil, fmt.Errorf("networks: ConditionalFlow cannot train in mode %s", mode)
	}
	if batch.Params == nil || batch.Obs == nil {
		return nil, fmt.Errorf("networks: flow batches need params and obs")
	}
	n := batch.Obs.Shape()[0]
	if err := f.checkObs(batch.Obs); err != nil {
		return nil, err
	}
	if s := batch.Params.Shape(); len(s) != 2 || s[0] != n || s[1] != f.cfg.ParamDim {
		return nil, fmt.Errorf("networks: params shape %v does not match batch %d x %d", s, n, f.cfg.ParamDim)
	}

	g := gorgonia.NewGraph()
	obs := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(n, f.cfg.ObsDim), gorgonia.WithName("obs"), gorgonia.WithValue(batch.Obs))
	theta := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(n, f.cfg.ParamDim), gorgonia.WithName("params"), gorgonia.WithValue(batch.Params))

	loc, logScl, params, weights, err := f.condition(g, obs)
	if err != nil {
		return nil, err
	}

	negScl, err := gorgonia.Neg(logScl)
	if err != nil {
		return nil, fmt.Errorf("negate log-scale: %w", err)
	}
	invScale, err := gorgonia.Exp(negScl)
	if err != nil {
		return nil, fmt.Errorf("inverse scale: %w", err)
	}
	centered, err := gorgonia.Sub(theta, loc)
	if err != nil {
		return nil, fmt.Errorf("center params: %w", err)
	}
	z, err := gorgonia.HadamardProd(centered, invScale)
	if err != nil {
		return nil, fmt.Errorf("latent transform: %w", err)
	}
	sumScl, err := gorgonia.Sum(logScl, 1)
	if err != nil {
		return nil, fmt.Errorf("sum log-scale: %w", err)
	}
	logDetJac, err := gorgonia.Neg(sumScl)
	if err != nil {
		return nil, fmt.Errorf("log det jacobian: %w", err)
	}

	pass := &trainer.Pass{
		Graph:  g,
		Inputs: map[string]*gorgonia.Node{trainer.InputParams: theta, trainer.InputObs: obs},
		Outputs: map[string]*gorgonia.Node{
			trainer.OutputLatent:    z,
			trainer.OutputLogDetJac: logDetJac,
		},
		Params: params,
	}
	if f.cfg.WeightDecay > 0 {
		penalty, err := l2Penalty(f.cfg.WeightDecay, weights)
		if err != nil {
			return nil, fmt.Errorf("weight decay: %w", err)
		}
		pass.Penalties = gorgonia.Nodes{penalty}
	}
	return pass, nil
}

// Sample inverts the flow and draws posterior samples for each
// observation row, returning a datasets x draws x params tensor.
func (f *ConditionalFlow) Sample(obs *tensor.Dense, draws int, rng *rand.Rand) (*tensor.Dense, error) {
	if draws <= 0 {
		return nil, fmt.Errorf("networks: draws must be > 0 (got %d)", draws)
	}
	if rng == nil {
		return nil, fmt.Errorf("networks: sampling needs a random source")
	}
	if err := f.checkObs(obs); err != nil {
		return nil, err
	}
	n := obs.Shape()[0]

	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(n, f.cfg.ObsDim), gorgonia.WithName("obs"), gorgonia.WithValue(obs))
	loc, logScl, _, _, err := f.condition(g, x)
	if err != nil {
		return nil, err
	}
	var locVal, logSclVal gorgonia.Value
	gorgonia.Read(loc, &locVal)
	gorgonia.Read(logScl, &logSclVal)

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("networks: evaluate conditioning network: %w", err)
	}
	locData, ok := locVal.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("networks: unexpected location dtype %T", locVal.Data())
	}
	logSclData, ok := logSclVal.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("networks: unexpected log-scale dtype %T", logSclVal.Data())
	}

	p := f.cfg.ParamDim
	out := make([]float64, n*draws*p)
	for i := 0; i < n; i++ {
		for d := 0; d < draws; d++ {
			for j := 0; j < p; j++ {
				mu := locData[i*p+j]
				sd := math.Exp(logSclData[i*p+j])
				out[(i*draws+d)*p+j] = mu + sd*rng.NormFloat64()
			}
		}
	}
	return tensor.New(tensor.WithShape(n, draws, p), tensor.WithBacking(out)), nil
}

func (f *ConditionalFlow) checkObs(obs *tensor.Dense) error {
	if obs == nil {
		return fmt.Errorf("networks: obs must be non-nil")
	}
	if s := obs.Shape(); len(s) != 2 || s[1] != f.cfg.ObsDim {
		return fmt.Errorf("networks: obs shape %v does not match obs dim %d", s, f.cfg.ObsDim)
	}
	return nil
}
