package trainer

import (
	"errors"
	"fmt"

	"gorgonia.org/gorgonia"

	"github.com/daniel-habermann/BayesFlow/metrics"
)

// TrainOnline performs iterations training steps, requesting a fresh
// batch of batchSize rows from gen before every step. It returns the
// per-step loss history; on error the history covers the steps
// completed so far.
func TrainOnline(model Model, solver gorgonia.Solver, gen Generator, loss Loss, iterations, batchSize int, opts ...Option) (*History, error) {
	if model == nil || solver == nil || gen == nil || loss == nil {
		return nil, errors.New("trainer: model, solver, generator and loss must be non-nil")
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("trainer: iterations must be > 0 (got %d)", iterations)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("trainer: batch size must be > 0 (got %d)", batchSize)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	history := &History{}
	running := metrics.NewRunningMean(o.smoothing)
	for it := 1; it <= iterations; it++ {
		batch, err := gen(batchSize)
		if err != nil {
			return history, fmt.Errorf("iteration %d: generate batch: %w", it, err)
		}
		lossVal, regVal, err := step(model, solver, loss, batch, o)
		if err != nil {
			return history, fmt.Errorf("iteration %d: %w", it, err)
		}
		history.append(lossVal, regVal)
		running.Record(lossVal)
		if o.progress != nil {
			o.progress.Update(it, lossVal, running.Mean(), regVal)
		}
	}
	return history, nil
}

// TrainOffline runs one epoch over the supplied batch sequence, one
// training step per batch in order.
func TrainOffline(model Model, solver gorgonia.Solver, batches []Batch, loss Loss, opts ...Option) (*History, error) {
	if model == nil || solver == nil || loss == nil {
		return nil, errors.New("trainer: model, solver and loss must be non-nil")
	}
	if len(batches) == 0 {
		return nil, errors.New("trainer: no batches supplied")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	history := &History{}
	running := metrics.NewRunningMean(o.smoothing)
	for bi, batch := range batches {
		lossVal, regVal, err := step(model, solver, loss, batch, o)
		if err != nil {
			return history, fmt.Errorf("batch %d: %w", bi, err)
		}
		history.append(lossVal, regVal)
		running.Record(lossVal)
		if o.progress != nil {
			o.progress.Update(bi+1, lossVal, running.Mean(), regVal)
		}
	}
	return history, nil
}

// step executes one forward/backward/update cycle and reports the task
// loss and regularization values.
func step(model Model, solver gorgonia.Solver, loss Loss, batch Batch, o options) (float64, float64, error) {
	pass, err := model.Forward(o.mode, batch)
	if err != nil {
		return 0, 0, fmt.Errorf("forward: %w", err)
	}
	if len(pass.Params) == 0 {
		return 0, 0, errors.New("pass declares no trainable parameters")
	}

	lossNode, err := loss(o.mode, pass)
	if err != nil {
		return 0, 0, fmt.Errorf("loss: %w", err)
	}

	total := lossNode
	var regNode *gorgonia.Node
	for _, p := range pass.Penalties {
		if regNode == nil {
			regNode = p
			continue
		}
		if regNode, err = gorgonia.Add(regNode, p); err != nil {
			return 0, 0, fmt.Errorf("sum penalties: %w", err)
		}
	}
	if regNode != nil {
		if total, err = gorgonia.Add(lossNode, regNode); err != nil {
			return 0, 0, fmt.Errorf("add regularization: %w", err)
		}
	}

	// Read the loss values out before compilation; intermediate buffers
	// are not guaranteed to survive a tape-machine run.
	var lossVal, regVal gorgonia.Value
	gorgonia.Read(lossNode, &lossVal)
	if regNode != nil {
		gorgonia.Read(regNode, &regVal)
	}

	if _, err := gorgonia.Grad(total, pass.Params...); err != nil {
		return 0, 0, fmt.Errorf("grad: %w", err)
	}

	vm := gorgonia.NewTapeMachine(pass.Graph, gorgonia.BindDualValues(pass.Params...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, 0, fmt.Errorf("run graph: %w", err)
	}

	if o.clipValue > 0 {
		grads := make([]gorgonia.Value, len(pass.Params))
		for i, p := range pass.Params {
			g, err := p.Grad()
			if err != nil {
				return 0, 0, fmt.Errorf("read gradient of %v: %w", p.Name(), err)
			}
			grads[i] = g
		}
		if err := ClipGradients(grads, o.clipValue, o.clipMethod); err != nil {
			return 0, 0, err
		}
	}

	if err := solver.Step(gorgonia.NodesToValueGrads(pass.Params)); err != nil {
		return 0, 0, fmt.Errorf("solver step: %w", err)
	}

	lossOut, err := scalarValue(lossVal)
	if err != nil {
		return 0, 0, fmt.Errorf("read loss: %w", err)
	}
	regOut := 0.0
	if regNode != nil {
		if regOut, err = scalarValue(regVal); err != nil {
			return 0, 0, fmt.Errorf("read regularization: %w", err)
		}
	}
	return lossOut, regOut, nil
}

// scalarValue extracts the float64 carried by an evaluated scalar value.
func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, errors.New("value was not computed")
	}
	switch d := v.Data().(type) {
	case float64:
		return d, nil
	case []float64:
		if len(d) == 1 {
			return d[0], nil
		}
		return 0, fmt.Errorf("expected scalar, got %d elements", len(d))
	default:
		return 0, fmt.Errorf("unsupported scalar dtype %T", d)
	}
}
