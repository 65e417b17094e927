package runlog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordRunRoundTrip(t *testing.T) {
	store := testStore(t)
	want := &trainer.History{
		Loss:           []float64{3.2, 2.1, 1.4},
		Regularization: []float64{0.3, 0.2, 0.1},
	}
	runID, err := store.RecordRun("flow", want)
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a non-empty run id")
	}

	got, err := store.RunHistory(runID)
	if err != nil {
		t.Fatalf("RunHistory failed: %v", err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("expected %d steps, got %d", want.Len(), got.Len())
	}
	for i := range want.Loss {
		if got.Loss[i] != want.Loss[i] || got.Regularization[i] != want.Regularization[i] {
			t.Fatalf("step %d: got (%g, %g), expected (%g, %g)",
				i+1, got.Loss[i], got.Regularization[i], want.Loss[i], want.Regularization[i])
		}
	}
}

func TestRunsListing(t *testing.T) {
	store := testStore(t)
	history := &trainer.History{Loss: []float64{1}, Regularization: []float64{0}}
	if _, err := store.RecordRun("flow", history); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if _, err := store.RecordRun("model_comparison", history); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Steps != 1 {
			t.Fatalf("run %s: expected 1 step, got %d", run.ID, run.Steps)
		}
		if run.CreatedAt.IsZero() {
			t.Fatalf("run %s: missing creation time", run.ID)
		}
	}
}

func TestRunHistoryUnknownRun(t *testing.T) {
	store := testStore(t)
	_, err := store.RunHistory("no-such-run")
	if !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}
}

func TestRecordRunRejectsEmptyHistory(t *testing.T) {
	store := testStore(t)
	if _, err := store.RecordRun("flow", &trainer.History{}); err == nil {
		t.Fatal("expected an error for an empty history")
	}
	if _, err := store.RecordRun("flow", nil); err == nil {
		t.Fatal("expected an error for a nil history")
	}
}
