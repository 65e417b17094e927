package diagnostics

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gorgonia.org/tensor"
)

// pointColor matches the reference palette used across the figures.
var pointColor = color.NRGBA{R: 0x8f, G: 0x27, B: 0x27, A: 0xb0}

// RecoveryConfig controls the recovery plot. The zero value plots mean
// point estimates with standard-deviation error bars and no metric
// annotations; DefaultRecoveryConfig enables R² and correlation.
type RecoveryConfig struct {
	// PointAgg produces the per-parameter point estimate. Nil means Mean.
	PointAgg Aggregator
	// UncertaintyAgg produces the error-bar half-width. Nil means Std.
	UncertaintyAgg Aggregator
	// Scatter drops the error bars and plots plain points.
	Scatter bool
	// ParamNames titles the subplots; inferred as p_1.. when nil.
	ParamNames []string
	// ShowR2 and ShowCorr annotate each panel with the goodness-of-fit
	// metrics between ground truth and point estimates.
	ShowR2   bool
	ShowCorr bool
}

// DefaultRecoveryConfig returns the standard recovery-plot settings.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{PointAgg: Mean, UncertaintyAgg: Std, ShowR2: true, ShowCorr: true}
}

// Recovery plots per-parameter point estimates (with uncertainty)
// against the ground-truth values, one square panel per parameter with
// an identity reference line. post holds the posterior draws
// (datasets x draws x params), truth the generating values
// (datasets x params); mismatched dataset or parameter counts are
// rejected with a descriptive error.
func Recovery(post, truth *tensor.Dense, cfg RecoveryConfig) (*Figure, error) {
	n, draws, params, postData, truthData, err := sampleShapes(post, truth)
	if err != nil {
		return nil, err
	}
	if cfg.PointAgg == nil {
		cfg.PointAgg = Mean
	}
	if cfg.UncertaintyAgg == nil {
		cfg.UncertaintyAgg = Std
	}
	names, err := defaultNames(cfg.ParamNames, "p", params)
	if err != nil {
		return nil, err
	}

	est := aggregate(postData, n, draws, params, cfg.PointAgg)
	var unc []float64
	if !cfg.Scatter {
		unc = aggregate(postData, n, draws, params, cfg.UncertaintyAgg)
	}

	fig, panels := newFigure(params)
	for j, p := range panels {
		truthCol := column(truthData, n, params, j)
		estCol := column(est, n, params, j)

		xys := make(plotter.XYs, n)
		for i := range xys {
			xys[i].X = truthCol[i]
			xys[i].Y = estCol[i]
		}

		if cfg.Scatter {
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("panel %s: scatter: %w", names[j], err)
			}
			sc.GlyphStyle.Color = pointColor
			sc.GlyphStyle.Radius = vg.Points(2)
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(sc)
		} else {
			yerrs := make(plotter.YErrors, n)
			for i := range yerrs {
				u := unc[i*params+j]
				yerrs[i].Low = u
				yerrs[i].High = u
			}
			bars, err := plotter.NewYErrorBars(struct {
				plotter.XYs
				plotter.YErrors
			}{xys, yerrs})
			if err != nil {
				return nil, fmt.Errorf("panel %s: error bars: %w", names[j], err)
			}
			bars.LineStyle.Color = pointColor
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("panel %s: scatter: %w", names[j], err)
			}
			sc.GlyphStyle.Color = pointColor
			sc.GlyphStyle.Radius = vg.Points(2)
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(bars, sc)
		}

		// Square axes with a 10% margin so over/under-estimation is
		// visually symmetric.
		lower, upper := rangeOf(truthCol, estCol)
		margin := (upper - lower) * 0.1
		if margin == 0 {
			margin = 1
		}
		lower, upper = lower-margin, upper+margin
		p.X.Min, p.X.Max = lower, upper
		p.Y.Min, p.Y.Max = lower, upper

		ident, err := plotter.NewLine(plotter.XYs{{X: lower, Y: lower}, {X: upper, Y: upper}})
		if err != nil {
			return nil, fmt.Errorf("panel %s: identity line: %w", names[j], err)
		}
		ident.LineStyle.Color = color.Black
		ident.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
		p.Add(ident)

		var notes []string
		if cfg.ShowR2 {
			notes = append(notes, fmt.Sprintf("R² = %.3f", stat.RSquaredFrom(estCol, truthCol, nil)))
		}
		if cfg.ShowCorr {
			notes = append(notes, fmt.Sprintf("r = %.3f", stat.Correlation(truthCol, estCol, nil)))
		}
		if len(notes) > 0 {
			if err := annotate(p, lower, upper, notes); err != nil {
				return nil, fmt.Errorf("panel %s: %w", names[j], err)
			}
		}

		p.Title.Text = names[j]
		p.X.Label.Text = "Ground truth"
		p.Y.Label.Text = "Estimated"
	}
	return fig, nil
}

// rangeOf returns the min and max over both slices.
func rangeOf(a, b []float64) (lower, upper float64) {
	lower, upper = a[0], a[0]
	for _, s := range [][]float64{a, b} {
		for _, v := range s {
			if v < lower {
				lower = v
			}
			if v > upper {
				upper = v
			}
		}
	}
	return lower, upper
}

// annotate writes the metric strings into the upper-left corner of a
// panel with fixed axis ranges.
func annotate(p *plot.Plot, lower, upper float64, notes []string) error {
	span := upper - lower
	xys := make(plotter.XYs, len(notes))
	for i := range notes {
		xys[i].X = lower + 0.08*span
		xys[i].Y = upper - (0.08+0.08*float64(i))*span
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: notes})
	if err != nil {
		return fmt.Errorf("annotations: %w", err)
	}
	p.Add(labels)
	return nil
}
