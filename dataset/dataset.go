// Package dataset supplies training batches to the trainer: seeded
// online generators wrapping a simulator, pre-materialized in-memory
// epochs, a prefetching pipeline and TAR shard persistence for
// pre-generated simulation output.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

// Simulator produces one batch of simulated training data of the
// requested size using the supplied random source.
type Simulator func(rng *rand.Rand, batchSize int) (trainer.Batch, error)

// OnlineGenerator wraps a simulator with a seeded source, yielding a
// deterministic trainer.Generator. The returned generator is not safe
// for concurrent calls; use StartPrefetch to decouple it from the
// training loop.
func OnlineGenerator(sim Simulator, seed int64) trainer.Generator {
	rng := rand.New(rand.NewSource(seed))
	return func(batchSize int) (trainer.Batch, error) {
		return sim(rng, batchSize)
	}
}

// InMemory is a fully materialized training set.
type InMemory struct {
	params *tensor.Dense
	obs    *tensor.Dense
	models *tensor.Dense
	n      int
}

// NewInMemory wraps pre-generated tensors. Obs is required; params and
// models are optional but must agree on the leading dataset dimension
// when present.
func NewInMemory(params, obs, models *tensor.Dense) (*InMemory, error) {
	if obs == nil {
		return nil, errors.New("dataset: obs tensor is required")
	}
	if len(obs.Shape()) != 2 {
		return nil, fmt.Errorf("dataset: obs must be rank 2, got shape %v", obs.Shape())
	}
	n := obs.Shape()[0]
	for name, t := range map[string]*tensor.Dense{"params": params, "models": models} {
		if t == nil {
			continue
		}
		if len(t.Shape()) != 2 {
			return nil, fmt.Errorf("dataset: %s must be rank 2, got shape %v", name, t.Shape())
		}
		if t.Shape()[0] != n {
			return nil, fmt.Errorf("dataset: %s has %d rows, obs has %d", name, t.Shape()[0], n)
		}
	}
	return &InMemory{params: params, obs: obs, models: models, n: n}, nil
}

// Len returns the number of datasets held.
func (d *InMemory) Len() int { return d.n }

// Shuffle permutes the datasets in place, keeping rows aligned across
// tensors.
func (d *InMemory) Shuffle(rng *rand.Rand) {
	perm := rng.Perm(d.n)
	d.params = permuteRows(d.params, perm)
	d.obs = permuteRows(d.obs, perm)
	d.models = permuteRows(d.models, perm)
}

// Batches slices one epoch into batches of batchSize rows in order. The
// final batch may be smaller. Batch tensors are copies, safe to retain.
func (d *InMemory) Batches(batchSize int) ([]trainer.Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be > 0 (got %d)", batchSize)
	}
	batches := make([]trainer.Batch, 0, (d.n+batchSize-1)/batchSize)
	for lo := 0; lo < d.n; lo += batchSize {
		hi := lo + batchSize
		if hi > d.n {
			hi = d.n
		}
		batches = append(batches, trainer.Batch{
			Params: sliceRows(d.params, lo, hi),
			Obs:    sliceRows(d.obs, lo, hi),
			Models: sliceRows(d.models, lo, hi),
		})
	}
	return batches, nil
}

// sliceRows copies rows [lo, hi) of a rank-2 tensor.
func sliceRows(t *tensor.Dense, lo, hi int) *tensor.Dense {
	if t == nil {
		return nil
	}
	cols := t.Shape()[1]
	data := t.Data().([]float64)
	out := append([]float64(nil), data[lo*cols:hi*cols]...)
	return tensor.New(tensor.WithShape(hi-lo, cols), tensor.WithBacking(out))
}

// permuteRows rebuilds a rank-2 tensor with rows in perm order.
func permuteRows(t *tensor.Dense, perm []int) *tensor.Dense {
	if t == nil {
		return nil
	}
	cols := t.Shape()[1]
	data := t.Data().([]float64)
	out := make([]float64, len(data))
	for dst, src := range perm {
		copy(out[dst*cols:(dst+1)*cols], data[src*cols:(src+1)*cols])
	}
	return tensor.New(tensor.WithShape(t.Shape()[0], cols), tensor.WithBacking(out))
}
