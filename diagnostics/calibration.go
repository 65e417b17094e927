package diagnostics

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/metrics"
)

// CalibrationConfig controls the model-comparison calibration figure.
type CalibrationConfig struct {
	// Bins is the reliability-curve bin count; 0 means
	// metrics.DefaultCalibrationBins.
	Bins int
	// ModelNames titles the subplots; inferred as M_1.. when nil.
	ModelNames []string
}

// CalibrationCurves renders one reliability diagram per candidate
// model, annotated with the expected calibration error. trueModels is
// an N x K one-hot matrix of true model indicators, predProbs an N x K
// matrix of predicted model probabilities; bucket and error computation
// is delegated to metrics.ExpectedCalibrationError.
func CalibrationCurves(trueModels, predProbs *tensor.Dense, cfg CalibrationConfig) (*Figure, error) {
	if cfg.Bins <= 0 {
		cfg.Bins = metrics.DefaultCalibrationBins
	}
	errs, curves, err := metrics.ExpectedCalibrationError(trueModels, predProbs, cfg.Bins)
	if err != nil {
		return nil, err
	}
	models := len(errs)
	names, err := defaultNames(cfg.ModelNames, "M", models)
	if err != nil {
		return nil, err
	}

	ticks := probTicks()
	fig, panels := newFigure(models)
	for j, p := range panels {
		curve := curves[j]
		xys := make(plotter.XYs, len(curve.Accuracy))
		for i := range xys {
			xys[i].X = curve.Accuracy[i]
			xys[i].Y = curve.Confidence[i]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("panel %s: curve: %w", names[j], err)
		}
		line.LineStyle.Color = pointColor
		line.LineStyle.Width = vg.Points(1.5)

		diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
		if err != nil {
			return nil, fmt.Errorf("panel %s: diagonal: %w", names[j], err)
		}
		diag.LineStyle.Color = color.Black
		diag.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}

		p.Add(diag, line)
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
		p.X.Tick.Marker = ticks
		p.Y.Tick.Marker = ticks
		p.Title.Text = names[j]
		p.X.Label.Text = "Accuracy"
		p.Y.Label.Text = "Confidence"

		if err := annotate(p, 0, 1, []string{fmt.Sprintf("ECE = %.3f", errs[j])}); err != nil {
			return nil, fmt.Errorf("panel %s: %w", names[j], err)
		}
	}
	return fig, nil
}

func probTicks() plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, 0, 5)
	for _, v := range []float64{0.2, 0.4, 0.6, 0.8, 1.0} {
		ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%.1f", v)})
	}
	return ticks
}
