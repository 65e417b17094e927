// Command bayesflow runs a self-contained amortized-inference demo: it
// simulates training data from a toy generative model, trains the
// requested network, renders the calibration diagnostics and optionally
// records the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/dataset"
	"github.com/daniel-habermann/BayesFlow/diagnostics"
	"github.com/daniel-habermann/BayesFlow/internal/config"
	"github.com/daniel-habermann/BayesFlow/losses"
	"github.com/daniel-habermann/BayesFlow/networks"
	"github.com/daniel-habermann/BayesFlow/runlog"
	"github.com/daniel-habermann/BayesFlow/trainer"
)

const (
	paramDim    = 4
	obsDim      = 4
	hiddenWidth = 64
	numModels   = 3
	noiseScale  = 0.5
	valDatasets = 300
	valDraws    = 100
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (built-in defaults when empty)")
	mode := flag.String("mode", "", "Training mode: flow or model_comparison")
	iterations := flag.Int("iterations", 0, "Number of training iterations")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	outDir := flag.String("out", "", "Directory for rendered figures")
	runLog := flag.String("run-log", "", "SQLite run log path (disabled when empty)")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(config.Overrides{
		Mode:       *mode,
		Iterations: *iterations,
		BatchSize:  *batchSize,
		Seed:       *seed,
		LogEvery:   *logEvery,
		OutDir:     *outDir,
		RunLog:     *runLog,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cfg.Mode {
	case "flow":
		err = runFlow(ctx, cfg)
	case "model_comparison":
		err = runComparison(ctx, cfg)
	}
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

// progressLogger reports training progress in the usual key=value form.
type progressLogger struct {
	every int
}

func (p progressLogger) Update(step int, loss, running, reg float64) {
	if step%p.every == 0 {
		log.Printf("step=%d loss=%.4f running_loss=%.4f regularization=%.4f", step, loss, running, reg)
	}
}

func trainOptions(cfg *config.Config, mode trainer.Mode) []trainer.Option {
	return []trainer.Option{
		trainer.WithMode(mode),
		trainer.WithClipValue(cfg.ClipValue),
		trainer.WithClipMethod(trainer.ClipMethod(cfg.ClipMethod)),
		trainer.WithSmoothing(cfg.Smoothing),
		trainer.WithProgress(progressLogger{every: cfg.LogEvery}),
	}
}

// gaussianSimulator draws standard-normal parameters and observes them
// under isotropic Gaussian noise, a conjugate toy problem with a known
// posterior.
func gaussianSimulator() dataset.Simulator {
	return func(rng *rand.Rand, batchSize int) (trainer.Batch, error) {
		params := make([]float64, batchSize*paramDim)
		obs := make([]float64, batchSize*obsDim)
		for i := range params {
			params[i] = rng.NormFloat64()
			obs[i] = params[i] + noiseScale*rng.NormFloat64()
		}
		return trainer.Batch{
			Params: tensor.New(tensor.WithShape(batchSize, paramDim), tensor.WithBacking(params)),
			Obs:    tensor.New(tensor.WithShape(batchSize, obsDim), tensor.WithBacking(obs)),
		}, nil
	}
}

// mixtureSimulator draws a model index per dataset and observes a
// model-specific location under Gaussian noise.
func mixtureSimulator() dataset.Simulator {
	return func(rng *rand.Rand, batchSize int) (trainer.Batch, error) {
		obs := make([]float64, batchSize*obsDim)
		indicators := make([]float64, batchSize*numModels)
		for i := 0; i < batchSize; i++ {
			k := rng.Intn(numModels)
			indicators[i*numModels+k] = 1
			center := float64(k-1) * 2
			for j := 0; j < obsDim; j++ {
				obs[i*obsDim+j] = center + rng.NormFloat64()
			}
		}
		return trainer.Batch{
			Obs:    tensor.New(tensor.WithShape(batchSize, obsDim), tensor.WithBacking(obs)),
			Models: tensor.New(tensor.WithShape(batchSize, numModels), tensor.WithBacking(indicators)),
		}, nil
	}
}

func runFlow(ctx context.Context, cfg *config.Config) error {
	flow, err := networks.NewConditionalFlow(networks.FlowConfig{
		ParamDim:    paramDim,
		ObsDim:      obsDim,
		Hidden:      hiddenWidth,
		WeightDecay: 1e-4,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return err
	}
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(1e-3))
	opts := trainOptions(cfg, trainer.ModeFlow)

	var history *trainer.History
	if cfg.Offline {
		rng := rand.New(rand.NewSource(cfg.Seed))
		full, err := gaussianSimulator()(rng, cfg.Iterations*cfg.BatchSize)
		if err != nil {
			return err
		}
		set, err := dataset.NewInMemory(full.Params, full.Obs, nil)
		if err != nil {
			return err
		}
		set.Shuffle(rng)
		batches, err := set.Batches(cfg.BatchSize)
		if err != nil {
			return err
		}
		log.Printf("mode=flow offline_batches=%d batch_size=%d", len(batches), cfg.BatchSize)
		history, err = trainer.TrainOffline(flow, solver, batches, losses.LatentSpaceKL, opts...)
		if err != nil {
			return err
		}
	} else {
		gen := dataset.OnlineGenerator(gaussianSimulator(), cfg.Seed)
		batches, errs, err := dataset.StartPrefetch(ctx, gen, dataset.PrefetchOptions{
			BatchSize: cfg.BatchSize,
			Depth:     cfg.Prefetch,
		})
		if err != nil {
			return err
		}
		log.Printf("mode=flow iterations=%d batch_size=%d prefetch=%d", cfg.Iterations, cfg.BatchSize, cfg.Prefetch)
		history, err = trainer.TrainOnline(flow, solver, dataset.FromChannel(ctx, batches, errs),
			losses.LatentSpaceKL, cfg.Iterations, cfg.BatchSize, opts...)
		if err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	val, err := gaussianSimulator()(rng, valDatasets)
	if err != nil {
		return err
	}
	post, err := flow.Sample(val.Obs, valDraws, rng)
	if err != nil {
		return fmt.Errorf("sample posterior: %w", err)
	}

	recovery, err := diagnostics.Recovery(post, val.Params, diagnostics.DefaultRecoveryConfig())
	if err != nil {
		return fmt.Errorf("recovery plot: %w", err)
	}
	if err := recovery.Save(filepath.Join(cfg.OutDir, "recovery.png")); err != nil {
		return err
	}
	sbc, err := diagnostics.SBCHistogram(post, val.Params, diagnostics.SBCConfig{})
	if err != nil {
		return fmt.Errorf("sbc histogram: %w", err)
	}
	if err := sbc.Save(filepath.Join(cfg.OutDir, "sbc.png")); err != nil {
		return err
	}
	log.Printf("figures=2 out_dir=%s", cfg.OutDir)

	return recordRun(cfg, trainer.ModeFlow.String(), history)
}

func runComparison(ctx context.Context, cfg *config.Config) error {
	clf, err := networks.NewEvidentialClassifier(networks.ClassifierConfig{
		ObsDim:    obsDim,
		NumModels: numModels,
		Hidden:    hiddenWidth,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return err
	}
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(1e-3))
	opts := trainOptions(cfg, trainer.ModeModelComparison)

	gen := dataset.OnlineGenerator(mixtureSimulator(), cfg.Seed)
	batches, errs, err := dataset.StartPrefetch(ctx, gen, dataset.PrefetchOptions{
		BatchSize: cfg.BatchSize,
		Depth:     cfg.Prefetch,
	})
	if err != nil {
		return err
	}
	log.Printf("mode=model_comparison iterations=%d batch_size=%d", cfg.Iterations, cfg.BatchSize)
	history, err := trainer.TrainOnline(clf, solver, dataset.FromChannel(ctx, batches, errs),
		losses.EvidentialLogLoss, cfg.Iterations, cfg.BatchSize, opts...)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	val, err := mixtureSimulator()(rng, valDatasets)
	if err != nil {
		return err
	}
	probs, err := clf.Probabilities(val.Obs)
	if err != nil {
		return fmt.Errorf("predict model probabilities: %w", err)
	}
	fig, err := diagnostics.CalibrationCurves(val.Models, probs, diagnostics.CalibrationConfig{})
	if err != nil {
		return fmt.Errorf("calibration curves: %w", err)
	}
	if err := fig.Save(filepath.Join(cfg.OutDir, "calibration.png")); err != nil {
		return err
	}
	log.Printf("figures=1 out_dir=%s", cfg.OutDir)

	return recordRun(cfg, trainer.ModeModelComparison.String(), history)
}

func recordRun(cfg *config.Config, mode string, history *trainer.History) error {
	if cfg.RunLog == "" {
		return nil
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return err
	}
	defer store.Close()
	runID, err := store.RecordRun(mode, history)
	if err != nil {
		return err
	}
	log.Printf("run_id=%s steps=%d", runID, history.Len())
	return nil
}
