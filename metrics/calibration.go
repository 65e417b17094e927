package metrics

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// ReliabilityCurve holds the per-bin calibration summary for one model:
// observed accuracy against mean predicted confidence, one entry per
// occupied probability bin in ascending confidence order.
type ReliabilityCurve struct {
	Accuracy   []float64
	Confidence []float64
}

// DefaultCalibrationBins is the bin count used when none is supplied.
const DefaultCalibrationBins = 10

// ExpectedCalibrationError computes, for every candidate model, the
// expected calibration error and the underlying reliability curve.
//
// trueModels is an N x K one-hot matrix of true model indicators and
// predProbs an N x K matrix of predicted model probabilities. Model k
// is scored as a binary problem: truth is argmax(trueModels row) == k,
// confidence is column k of predProbs. Probabilities are bucketed into
// bins uniform bins on [0, 1]; the error is the mean absolute gap
// between per-bin accuracy and confidence over occupied bins, so it
// always lies in [0, 1].
func ExpectedCalibrationError(trueModels, predProbs *tensor.Dense, bins int) ([]float64, []ReliabilityCurve, error) {
	if trueModels == nil || predProbs == nil {
		return nil, nil, fmt.Errorf("metrics: true models and predicted probabilities must be non-nil")
	}
	if bins <= 0 {
		bins = DefaultCalibrationBins
	}
	ts, ps := trueModels.Shape(), predProbs.Shape()
	if len(ts) != 2 || len(ps) != 2 {
		return nil, nil, fmt.Errorf("metrics: expected rank-2 inputs, got %v and %v", ts, ps)
	}
	if ts[0] != ps[0] || ts[1] != ps[1] {
		return nil, nil, fmt.Errorf("metrics: shape mismatch between true models %v and predictions %v", ts, ps)
	}
	n, k := ts[0], ts[1]
	if n == 0 {
		return nil, nil, fmt.Errorf("metrics: empty input")
	}
	td, ok := trueModels.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: true models must be float64, got %T", trueModels.Data())
	}
	pd, ok := predProbs.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: predictions must be float64, got %T", predProbs.Data())
	}

	trueIdx := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if td[i*k+j] > td[i*k+best] {
				best = j
			}
		}
		trueIdx[i] = best
	}

	errs := make([]float64, k)
	curves := make([]ReliabilityCurve, k)
	for m := 0; m < k; m++ {
		hits := make([]float64, bins)
		conf := make([]float64, bins)
		count := make([]int, bins)
		for i := 0; i < n; i++ {
			p := pd[i*k+m]
			if p < 0 || p > 1 || math.IsNaN(p) {
				return nil, nil, fmt.Errorf("metrics: prediction %g for row %d model %d is not a probability", p, i, m)
			}
			bin := int(p * float64(bins))
			if bin == bins {
				bin = bins - 1
			}
			if trueIdx[i] == m {
				hits[bin]++
			}
			conf[bin] += p
			count[bin]++
		}
		var curve ReliabilityCurve
		sum := 0.0
		occupied := 0
		for b := 0; b < bins; b++ {
			if count[b] == 0 {
				continue
			}
			acc := hits[b] / float64(count[b])
			avg := conf[b] / float64(count[b])
			curve.Accuracy = append(curve.Accuracy, acc)
			curve.Confidence = append(curve.Confidence, avg)
			sum += math.Abs(acc - avg)
			occupied++
		}
		errs[m] = sum / float64(occupied)
		curves[m] = curve
	}
	return errs, curves, nil
}
