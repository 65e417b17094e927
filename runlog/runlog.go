// Package runlog persists training runs to SQLite so loss curves can be
// compared across experiments.
package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/daniel-habermann/BayesFlow/trainer"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	steps      INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_steps (
	run_id         TEXT NOT NULL,
	step           INTEGER NOT NULL,
	loss           REAL NOT NULL,
	regularization REAL NOT NULL,
	PRIMARY KEY (run_id, step),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// ErrUnknownRun is returned when a run id has no record.
var ErrUnknownRun = errors.New("runlog: unknown run")

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run log: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RunInfo summarizes one recorded run.
type RunInfo struct {
	ID        string
	Mode      string
	Steps     int
	CreatedAt time.Time
}

// RecordRun stores a completed history under a fresh run id and returns
// the id.
func (s *Store) RecordRun(mode string, history *trainer.History) (string, error) {
	if history == nil || history.Len() == 0 {
		return "", errors.New("runlog: empty history")
	}
	runID := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, mode, steps, created_at) VALUES (?, ?, ?, ?)`,
		runID, mode, history.Len(), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return "", fmt.Errorf("insert run: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO run_steps (run_id, step, loss, regularization) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("prepare steps: %w", err)
	}
	for i := range history.Loss {
		if _, err := stmt.Exec(runID, i+1, history.Loss[i], history.Regularization[i]); err != nil {
			stmt.Close()
			tx.Rollback()
			return "", fmt.Errorf("insert step %d: %w", i+1, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// RunHistory reloads the loss history recorded under runID.
func (s *Store) RunHistory(runID string) (*trainer.History, error) {
	rows, err := s.db.Query(
		`SELECT loss, regularization FROM run_steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	history := &trainer.History{}
	for rows.Next() {
		var loss, reg float64
		if err := rows.Scan(&loss, &reg); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		history.Loss = append(history.Loss, loss)
		history.Regularization = append(history.Regularization, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	if history.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return history, nil
}

// Runs lists recorded runs, most recent first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, mode, steps, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var created string
		if err := rows.Scan(&info.ID, &info.Mode, &info.Steps, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
