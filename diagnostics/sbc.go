package diagnostics

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gorgonia.org/tensor"
)

var (
	histColor = color.NRGBA{R: 0xa3, G: 0x4f, B: 0x4f, A: 0xf2}
	bandColor = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x4d}
	lineColor = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}
)

// SBC defaults.
const (
	DefaultSBCBins     = 10
	DefaultSBCInterval = 0.95
)

// SBCConfig controls the simulation-based-calibration histogram.
type SBCConfig struct {
	// Bins is the histogram bin count; 0 means DefaultSBCBins.
	Bins int
	// Interval is the width of the binomial confidence band; 0 means
	// DefaultSBCInterval.
	Interval float64
	// ParamNames titles the subplots; inferred as p_1.. when nil.
	ParamNames []string
}

// RankStatistics counts, per dataset and parameter, the posterior draws
// strictly below the corresponding true value. Each rank lies in
// [0, draws]. The result is row-major datasets x params.
func RankStatistics(post, truth *tensor.Dense) ([][]int, error) {
	n, draws, params, postData, truthData, err := sampleShapes(post, truth)
	if err != nil {
		return nil, err
	}
	ranks := make([][]int, n)
	for i := 0; i < n; i++ {
		ranks[i] = make([]int, params)
		for j := 0; j < params; j++ {
			t := truthData[i*params+j]
			count := 0
			for d := 0; d < draws; d++ {
				if postData[(i*draws+d)*params+j] < t {
					count++
				}
			}
			ranks[i][j] = count
		}
	}
	return ranks, nil
}

// SBCHistogram plots per-parameter rank histograms for simulation-based
// calibration checks. Under correct calibration the ranks are uniform;
// the shaded band is the central binomial confidence interval for the
// expected per-bin count, with its midpoint drawn as a reference line.
func SBCHistogram(post, truth *tensor.Dense, cfg SBCConfig) (*Figure, error) {
	if cfg.Bins <= 0 {
		cfg.Bins = DefaultSBCBins
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSBCInterval
	}
	if cfg.Interval >= 1 {
		return nil, fmt.Errorf("diagnostics: binomial interval must lie in (0, 1), got %g", cfg.Interval)
	}
	ranks, err := RankStatistics(post, truth)
	if err != nil {
		return nil, err
	}
	n := len(ranks)
	params := len(ranks[0])
	draws := post.Shape()[1]
	names, err := defaultNames(cfg.ParamNames, "p", params)
	if err != nil {
		return nil, err
	}

	low, high := binomialInterval(cfg.Interval, n, 1/float64(cfg.Bins+1))

	fig, panels := newFigure(params)
	for j, p := range panels {
		if err := drawBand(p, float64(draws), low, high); err != nil {
			return nil, fmt.Errorf("panel %s: %w", names[j], err)
		}

		vals := make(plotter.Values, n)
		for i := 0; i < n; i++ {
			vals[i] = float64(ranks[i][j])
		}
		hist, err := plotter.NewHist(vals, cfg.Bins)
		if err != nil {
			return nil, fmt.Errorf("panel %s: histogram: %w", names[j], err)
		}
		hist.FillColor = histColor
		p.Add(hist)

		p.X.Min, p.X.Max = 0, float64(draws)
		p.Title.Text = names[j]
		p.X.Label.Text = "Rank statistic"
		p.Y.Tick.Marker = plot.ConstantTicks(nil)
	}
	return fig, nil
}

// drawBand shades the confidence band and its midline across the full
// rank range.
func drawBand(p *plot.Plot, maxRank, low, high float64) error {
	band, err := plotter.NewPolygon(plotter.XYs{
		{X: 0, Y: low}, {X: maxRank, Y: low},
		{X: maxRank, Y: high}, {X: 0, Y: high},
	})
	if err != nil {
		return fmt.Errorf("confidence band: %w", err)
	}
	band.Color = bandColor
	band.LineStyle.Color = color.Transparent

	mid, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: (low + high) / 2}, {X: maxRank, Y: (low + high) / 2},
	})
	if err != nil {
		return fmt.Errorf("band midline: %w", err)
	}
	mid.LineStyle.Color = lineColor

	p.Add(band, mid)
	return nil
}

// binomialInterval returns the central interval of the given width for
// a Binomial(n, prob) count, matching the usual quantile definition
// (smallest k whose CDF reaches the probability mass).
func binomialInterval(width float64, n int, prob float64) (low, high float64) {
	b := distuv.Binomial{N: float64(n), P: prob}
	tail := (1 - width) / 2
	return binomialQuantile(b, n, tail), binomialQuantile(b, n, 1-tail)
}

func binomialQuantile(b distuv.Binomial, n int, q float64) float64 {
	for k := 0; k <= n; k++ {
		if b.CDF(float64(k)) >= q {
			return float64(k)
		}
	}
	return float64(n)
}
