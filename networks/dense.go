// Package networks provides the concrete trainer.Model implementations:
// a conditional Gaussian normalizing flow for posterior estimation and
// an evidential classifier for model comparison. Weights persist as
// tensors on the model; every forward pass rebuilds its expression
// graph against them, so batch sizes may vary between calls.
package networks

import (
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// dense holds the persistent weights of one affine layer.
type dense struct {
	name string
	w    *tensor.Dense // in x out
	b    *tensor.Dense // 1 x out
}

func newDense(name string, in, out int, rng *rand.Rand) *dense {
	scale := 1 / math.Sqrt(float64(in))
	wd := make([]float64, in*out)
	for i := range wd {
		wd[i] = (rng.Float64()*2 - 1) * scale
	}
	return &dense{
		name: name,
		w:    tensor.New(tensor.WithShape(in, out), tensor.WithBacking(wd)),
		b:    tensor.New(tensor.WithShape(1, out), tensor.WithBacking(make([]float64, out))),
	}
}

// apply binds the layer into g and computes x*w + b. The returned nodes
// slice holds the trainable variable nodes for this pass.
func (d *dense) apply(g *gorgonia.ExprGraph, x *gorgonia.Node) (*gorgonia.Node, gorgonia.Nodes, error) {
	w := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(d.w.Shape()...), gorgonia.WithName(d.name+"_w"), gorgonia.WithValue(d.w))
	b := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(d.b.Shape()...), gorgonia.WithName(d.name+"_b"), gorgonia.WithValue(d.b))
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, nil, err
	}
	out, err := gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
	if err != nil {
		return nil, nil, err
	}
	return out, gorgonia.Nodes{w, b}, nil
}

// l2Penalty builds lambda * sum of squared elements over the given
// variable nodes. Callers pass the weight matrices only, keeping the
// biases unpenalized.
func l2Penalty(lambda float64, weights gorgonia.Nodes) (*gorgonia.Node, error) {
	var total *gorgonia.Node
	for _, w := range weights {
		sq, err := gorgonia.Square(w)
		if err != nil {
			return nil, err
		}
		s, err := gorgonia.Sum(sq)
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = s
			continue
		}
		if total, err = gorgonia.Add(total, s); err != nil {
			return nil, err
		}
	}
	return gorgonia.Mul(gorgonia.NewConstant(lambda), total)
}
