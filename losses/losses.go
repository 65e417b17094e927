// Package losses provides the training criteria for the two training
// modes: a latent-space Kullback-Leibler criterion for normalizing
// flows and an evidential log loss for model comparison. Both satisfy
// trainer.Loss.
package losses

import (
	"fmt"

	"gorgonia.org/gorgonia"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

// LatentSpaceKL is the maximum-likelihood criterion for a normalizing
// flow with a standard Gaussian latent: mean(0.5*||z||^2 - log|det J|).
func LatentSpaceKL(mode trainer.Mode, pass *trainer.Pass) (*gorgonia.Node, error) {
	z, err := output(pass, trainer.OutputLatent)
	if err != nil {
		return nil, err
	}
	logDetJac, err := output(pass, trainer.OutputLogDetJac)
	if err != nil {
		return nil, err
	}
	zsq, err := gorgonia.Square(z)
	if err != nil {
		return nil, fmt.Errorf("losses: square latent: %w", err)
	}
	energy, err := gorgonia.Sum(zsq, 1)
	if err != nil {
		return nil, fmt.Errorf("losses: latent energy: %w", err)
	}
	half, err := gorgonia.Mul(gorgonia.NewConstant(0.5), energy)
	if err != nil {
		return nil, fmt.Errorf("losses: scale energy: %w", err)
	}
	perRow, err := gorgonia.Sub(half, logDetJac)
	if err != nil {
		return nil, fmt.Errorf("losses: subtract jacobian: %w", err)
	}
	loss, err := gorgonia.Mean(perRow)
	if err != nil {
		return nil, fmt.Errorf("losses: reduce: %w", err)
	}
	return loss, nil
}

// EvidentialLogLoss is the Bayes-risk criterion for an evidential
// model-comparison classifier: mean over the batch of
// sum_k m_k * (log(alpha0) - log(alpha_k)).
func EvidentialLogLoss(mode trainer.Mode, pass *trainer.Pass) (*gorgonia.Node, error) {
	indicators, ok := pass.Inputs[trainer.InputModels]
	if !ok {
		return nil, fmt.Errorf("losses: pass has no %q input", trainer.InputModels)
	}
	alpha, err := output(pass, trainer.OutputAlpha)
	if err != nil {
		return nil, err
	}
	alpha0, err := output(pass, trainer.OutputAlpha0)
	if err != nil {
		return nil, err
	}
	logAlpha0, err := gorgonia.Log(alpha0)
	if err != nil {
		return nil, fmt.Errorf("losses: log alpha0: %w", err)
	}
	logAlpha, err := gorgonia.Log(alpha)
	if err != nil {
		return nil, fmt.Errorf("losses: log alpha: %w", err)
	}
	gap, err := gorgonia.BroadcastSub(logAlpha0, logAlpha, []byte{1}, nil)
	if err != nil {
		return nil, fmt.Errorf("losses: evidence gap: %w", err)
	}
	weighted, err := gorgonia.HadamardProd(indicators, gap)
	if err != nil {
		return nil, fmt.Errorf("losses: weight by indicators: %w", err)
	}
	perRow, err := gorgonia.Sum(weighted, 1)
	if err != nil {
		return nil, fmt.Errorf("losses: per-row risk: %w", err)
	}
	loss, err := gorgonia.Mean(perRow)
	if err != nil {
		return nil, fmt.Errorf("losses: reduce: %w", err)
	}
	return loss, nil
}

// ForMode returns the standard criterion for a training mode.
func ForMode(mode trainer.Mode) (trainer.Loss, error) {
	switch mode {
	case trainer.ModeFlow:
		return LatentSpaceKL, nil
	case trainer.ModeModelComparison:
		return EvidentialLogLoss, nil
	default:
		return nil, fmt.Errorf("losses: no criterion for mode %d", mode)
	}
}

func output(pass *trainer.Pass, key string) (*gorgonia.Node, error) {
	n, ok := pass.Outputs[key]
	if !ok {
		return nil, fmt.Errorf("losses: pass has no output %q", key)
	}
	return n, nil
}
