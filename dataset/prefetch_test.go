package dataset

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"gorgonia.org/tensor"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

func constantSimulator() Simulator {
	return func(rng *rand.Rand, batchSize int) (trainer.Batch, error) {
		return trainer.Batch{
			Obs: tensor.New(tensor.WithShape(batchSize, 1), tensor.WithBacking(make([]float64, batchSize))),
		}, nil
	}
}

func TestPrefetchDeliversBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, errs, err := StartPrefetch(ctx, OnlineGenerator(constantSimulator(), 1), PrefetchOptions{BatchSize: 4})
	if err != nil {
		t.Fatalf("StartPrefetch failed: %v", err)
	}
	gen := FromChannel(ctx, batches, errs)
	for i := 0; i < 5; i++ {
		batch, err := gen(4)
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if batch.Size() != 4 {
			t.Fatalf("read %d: expected 4 rows, got %d", i, batch.Size())
		}
	}
}

func TestPrefetchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	batches, errs, err := StartPrefetch(ctx, OnlineGenerator(constantSimulator(), 2), PrefetchOptions{BatchSize: 2, Depth: 2})
	if err != nil {
		t.Fatalf("StartPrefetch failed: %v", err)
	}
	gen := FromChannel(ctx, batches, errs)
	if _, err := gen(2); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	cancel()
	// Buffered batches may still drain; the stream must fail shortly
	// after cancellation.
	var last error
	for i := 0; i < 10; i++ {
		if _, last = gen(2); last != nil {
			break
		}
	}
	if last == nil {
		t.Fatal("expected the stream to fail after cancellation")
	}
}

func TestPrefetchReportsGeneratorError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("simulator failed")
	calls := 0
	gen := func(batchSize int) (trainer.Batch, error) {
		calls++
		if calls > 2 {
			return trainer.Batch{}, boom
		}
		return trainer.Batch{
			Obs: tensor.New(tensor.WithShape(batchSize, 1), tensor.WithBacking(make([]float64, batchSize))),
		}, nil
	}
	batches, errs, err := StartPrefetch(ctx, gen, PrefetchOptions{BatchSize: 3})
	if err != nil {
		t.Fatalf("StartPrefetch failed: %v", err)
	}
	stream := FromChannel(ctx, batches, errs)
	var last error
	for i := 0; i < 10; i++ {
		if _, last = stream(3); last != nil {
			break
		}
	}
	if !errors.Is(last, boom) {
		t.Fatalf("expected the generator error to surface, got %v", last)
	}
}

func TestPrefetchClosedStreamReportsCause(t *testing.T) {
	// After a generator failure both channels are closed with the cause
	// buffered in errs. Whichever channel the select picks first, the
	// consumer must surface the cause, never the generic closed-stream
	// error. Fresh channel state per attempt covers both orderings.
	cause := errors.New("simulator failed")
	for i := 0; i < 50; i++ {
		batches := make(chan trainer.Batch)
		close(batches)
		errs := make(chan error, 1)
		errs <- cause
		close(errs)
		gen := FromChannel(context.Background(), batches, errs)
		if _, err := gen(4); !errors.Is(err, cause) {
			t.Fatalf("attempt %d: expected the generator error to surface, got %v", i, err)
		}
	}
}

func TestPrefetchRejectsBatchSizeMismatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, errs, err := StartPrefetch(ctx, OnlineGenerator(constantSimulator(), 3), PrefetchOptions{BatchSize: 4})
	if err != nil {
		t.Fatalf("StartPrefetch failed: %v", err)
	}
	gen := FromChannel(ctx, batches, errs)
	if _, err := gen(8); err == nil {
		t.Fatal("expected an error for a mismatched batch size")
	}
}

func TestStartPrefetchValidation(t *testing.T) {
	ctx := context.Background()
	if _, _, err := StartPrefetch(ctx, nil, PrefetchOptions{BatchSize: 4}); err == nil {
		t.Fatal("expected an error for a nil generator")
	}
	if _, _, err := StartPrefetch(ctx, OnlineGenerator(constantSimulator(), 1), PrefetchOptions{}); err == nil {
		t.Fatal("expected an error for a zero batch size")
	}
}
