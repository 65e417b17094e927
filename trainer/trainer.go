// Package trainer implements generic gradient-descent training loops for
// amortized simulation-based inference. A loop couples a data source, a
// Model building differentiable forward passes, a Loss reading the pass
// outputs, and a gorgonia solver applying the updates.
package trainer

import (
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Mode selects which batch fields a model consumes and which structured
// outputs the loss reads.
type Mode int

const (
	// ModeFlow trains a conditional density estimator on (params, obs) pairs.
	ModeFlow Mode = iota
	// ModeModelComparison trains an evidential classifier over candidate models.
	ModeModelComparison
)

// String returns the mode name used in logs and the runlog.
func (m Mode) String() string {
	switch m {
	case ModeFlow:
		return "flow"
	case ModeModelComparison:
		return "model_comparison"
	default:
		return "unknown"
	}
}

// Output keys produced by the two training modes.
const (
	OutputLatent    = "z"
	OutputLogDetJac = "log_det_j"
	OutputAlpha     = "alpha"
	OutputAlpha0    = "alpha0"
	OutputProbs     = "model_probs"
)

// Input keys bound by a forward pass.
const (
	InputParams = "params"
	InputObs    = "obs"
	InputModels = "models"
)

// Batch is one minibatch of simulated training data. All tensors are
// caller-owned and row-major. Params is batch x P, Obs is batch x D and
// Models is a batch x K one-hot matrix (model comparison only; nil in
// flow mode).
type Batch struct {
	Params *tensor.Dense
	Obs    *tensor.Dense
	Models *tensor.Dense
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int {
	if b.Obs != nil {
		return b.Obs.Shape()[0]
	}
	if b.Params != nil {
		return b.Params.Shape()[0]
	}
	return 0
}

// Pass is the result of building one forward pass on a fresh expression
// graph. Inputs holds the bound data nodes, Outputs the mode-dependent
// structured outputs, Params the trainable variable nodes and Penalties
// any model-declared scalar regularization terms (empty when the model
// declares none).
type Pass struct {
	Graph     *gorgonia.ExprGraph
	Inputs    map[string]*gorgonia.Node
	Outputs   map[string]*gorgonia.Node
	Params    gorgonia.Nodes
	Penalties gorgonia.Nodes
}

// Model builds a forward pass for a batch. Implementations rebuild the
// graph per call against persistent weight tensors so that batch sizes
// may vary between calls.
type Model interface {
	Forward(mode Mode, batch Batch) (*Pass, error)
}

// Loss computes a scalar criterion node from a forward pass.
type Loss func(mode Mode, pass *Pass) (*gorgonia.Node, error)

// Generator supplies one batch of the requested size, typically by
// running a simulator.
type Generator func(batchSize int) (Batch, error)

// Progress receives one update per training step. The running loss is
// the mean over the most recent smoothing-window entries.
type Progress interface {
	Update(step int, loss, runningLoss, regularization float64)
}

// History records per-step loss and regularization values, one entry
// per iteration in order. It is owned by the caller after the loop
// returns.
type History struct {
	Loss           []float64
	Regularization []float64
}

// Len returns the number of recorded steps.
func (h *History) Len() int { return len(h.Loss) }

func (h *History) append(loss, reg float64) {
	h.Loss = append(h.Loss, loss)
	h.Regularization = append(h.Regularization, reg)
}

// Training-loop defaults.
const (
	DefaultClipValue = 5.0
	DefaultSmoothing = 100
)

type options struct {
	mode       Mode
	clipValue  float64
	clipMethod ClipMethod
	smoothing  int
	progress   Progress
}

func defaultOptions() options {
	return options{
		mode:       ModeFlow,
		clipValue:  DefaultClipValue,
		clipMethod: ClipGlobalNorm,
		smoothing:  DefaultSmoothing,
	}
}

// Option configures a training loop.
type Option func(*options)

// WithMode selects the training mode. The default is ModeFlow.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithClipValue sets the gradient clipping threshold. Values <= 0
// disable clipping entirely.
func WithClipValue(v float64) Option {
	return func(o *options) { o.clipValue = v }
}

// WithClipMethod selects the clipping method applied when clipping is
// enabled.
func WithClipMethod(m ClipMethod) Option {
	return func(o *options) { o.clipMethod = m }
}

// WithSmoothing sets the running-loss window size reported to the
// progress sink.
func WithSmoothing(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.smoothing = n
		}
	}
}

// WithProgress attaches a progress sink. A nil sink disables reporting.
func WithProgress(p Progress) Option {
	return func(o *options) { o.progress = p }
}
