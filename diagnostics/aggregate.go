package diagnostics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Aggregator reduces the posterior draws of one parameter for one
// dataset to a scalar summary.
type Aggregator func(draws []float64) float64

// Mean is the default point-estimate aggregator.
func Mean(draws []float64) float64 { return stat.Mean(draws, nil) }

// Std is the default uncertainty aggregator (sample standard deviation).
func Std(draws []float64) float64 { return stat.StdDev(draws, nil) }

// Median returns the empirical median of the draws.
func Median(draws []float64) float64 {
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// sampleShapes validates a (datasets x draws x params) posterior array
// against a (datasets x params) reference array and returns the common
// dimensions along with the raw backings.
func sampleShapes(post, ref *tensor.Dense) (n, draws, params int, postData, refData []float64, err error) {
	if post == nil || ref == nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: posterior and reference draws must be non-nil")
	}
	ps, rs := post.Shape(), ref.Shape()
	if len(ps) != 3 {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: posterior draws must be rank 3 (datasets x draws x params), got shape %v", ps)
	}
	if len(rs) != 2 {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: reference draws must be rank 2 (datasets x params), got shape %v", rs)
	}
	if ps[0] != rs[0] {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: dataset count mismatch: posterior has %d, reference has %d", ps[0], rs[0])
	}
	if ps[2] != rs[1] {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: parameter count mismatch: posterior has %d, reference has %d", ps[2], rs[1])
	}
	pd, ok := post.Data().([]float64)
	if !ok {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: posterior draws must be float64, got %T", post.Data())
	}
	rd, ok := ref.Data().([]float64)
	if !ok {
		return 0, 0, 0, nil, nil, fmt.Errorf("diagnostics: reference draws must be float64, got %T", ref.Data())
	}
	return ps[0], ps[1], ps[2], pd, rd, nil
}

// aggregate applies agg per dataset and parameter, returning a
// datasets x params row-major matrix.
func aggregate(postData []float64, n, draws, params int, agg Aggregator) []float64 {
	out := make([]float64, n*params)
	buf := make([]float64, draws)
	for i := 0; i < n; i++ {
		for j := 0; j < params; j++ {
			for d := 0; d < draws; d++ {
				buf[d] = postData[(i*draws+d)*params+j]
			}
			out[i*params+j] = agg(buf)
		}
	}
	return out
}

// column extracts column j from an n x params row-major matrix.
func column(data []float64, n, params, j int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = data[i*params+j]
	}
	return out
}

// defaultNames generates prefix_1..prefix_n when the caller supplied no
// names, and validates the count otherwise.
func defaultNames(names []string, prefix string, n int) ([]string, error) {
	if names == nil {
		names = make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("%s_%d", prefix, i+1)
		}
		return names, nil
	}
	if len(names) != n {
		return nil, fmt.Errorf("diagnostics: got %d names for %d panels", len(names), n)
	}
	return names, nil
}
