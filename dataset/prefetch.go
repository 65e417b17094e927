package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

const defaultPrefetchDepth = 4

// PrefetchOptions configures StartPrefetch.
type PrefetchOptions struct {
	// BatchSize is the size requested from the generator per batch.
	BatchSize int
	// Depth bounds the number of batches buffered ahead of the
	// consumer; 0 means defaultPrefetchDepth.
	Depth int
}

// StartPrefetch runs the generator on a dedicated goroutine so batch
// simulation overlaps with training. A single producer keeps the
// generator's random source serial. Both channels close when the
// context is cancelled or the generator fails; the error channel then
// carries the cause.
func StartPrefetch(ctx context.Context, gen trainer.Generator, opts PrefetchOptions) (<-chan trainer.Batch, <-chan error, error) {
	if gen == nil {
		return nil, nil, errors.New("dataset: prefetch needs a generator")
	}
	if opts.BatchSize <= 0 {
		return nil, nil, fmt.Errorf("dataset: prefetch batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.Depth <= 0 {
		opts.Depth = defaultPrefetchDepth
	}

	out := make(chan trainer.Batch, opts.Depth)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for {
			batch, err := gen(opts.BatchSize)
			if err != nil {
				errCh <- fmt.Errorf("dataset: prefetch generator: %w", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- batch:
			}
		}
	}()
	return out, errCh, nil
}

// FromChannel adapts a prefetched stream back into a trainer.Generator.
// The requested batch size must match the size used upstream.
func FromChannel(ctx context.Context, batches <-chan trainer.Batch, errs <-chan error) trainer.Generator {
	return func(batchSize int) (trainer.Batch, error) {
		for {
			select {
			case <-ctx.Done():
				return trainer.Batch{}, ctx.Err()
			case err, ok := <-errs:
				if ok && err != nil {
					return trainer.Batch{}, err
				}
				errs = nil
			case batch, ok := <-batches:
				if !ok {
					// The producer reports its cause before closing, so a
					// closed batch channel means the error is waiting.
					if errs != nil {
						if err, ok := <-errs; ok && err != nil {
							return trainer.Batch{}, err
						}
					}
					return trainer.Batch{}, errors.New("dataset: prefetch stream closed")
				}
				if got := batch.Size(); got != batchSize {
					return trainer.Batch{}, fmt.Errorf("dataset: prefetched batch has %d rows, loop requested %d", got, batchSize)
				}
				return batch, nil
			}
		}
	}
}
