// Package store persists prediction runs, their metric summaries and
// ranked predictions to a local SQLite database, so evaluation results
// can be compared across task configurations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tacgraph/internal/infer"
)

// RunStore records runs into a single SQLite file. Safe for concurrent
// use; writes are serialized on one connection.
type RunStore struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// Run is one recorded prediction or evaluation run.
type Run struct {
	ID        string
	Kind      string
	TaskType  string
	StartedAt time.Time
}

// NewRunStore opens (or creates) the database at path and applies the
// schema.
func NewRunStore(path string, logger *zap.Logger) (*RunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	s := &RunStore{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("run store ready", zap.String("path", path))
	return s, nil
}

func (s *RunStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			task_type TEXT NOT NULL,
			task_spec TEXT NOT NULL,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			run_id TEXT NOT NULL REFERENCES runs(id),
			example_index INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			tactic INTEGER NOT NULL,
			log_prob REAL NOT NULL,
			hypothesis TEXT NOT NULL,
			PRIMARY KEY (run_id, example_index, rank)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// BeginRun registers a new run and returns its id. kind is "predict"
// or "eval"; taskSpec is the raw YAML the run was configured with.
func (s *RunStore) BeginRun(kind, taskType string, taskSpec []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, kind, task_type, task_spec) VALUES (?, ?, ?, ?)`,
		id, kind, taskType, string(taskSpec),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	s.logger.Info("run started", zap.String("run_id", id), zap.String("kind", kind))
	return id, nil
}

// FinishRun stamps the run's completion time.
func (s *RunStore) FinishRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = CURRENT_TIMESTAMP WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %q", runID)
	}
	return nil
}

// RecordMetrics upserts the metric summary for a run.
func (s *RunStore) RecordMetrics(runID string, results map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to record metrics: %w", err)
	}
	for name, value := range results {
		if _, err := tx.Exec(
			`INSERT INTO metrics (run_id, name, value) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, name) DO UPDATE SET value = excluded.value`,
			runID, name, value,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record metric %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// RecordPredictions stores the ranked hypotheses for one example. The
// full hypothesis, argument scores included, is kept as JSON.
func (s *RunStore) RecordPredictions(runID string, exampleIndex int, hyps []infer.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to record predictions: %w", err)
	}
	for rank, hyp := range hyps {
		blob, err := json.Marshal(hyp)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode hypothesis: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO predictions (run_id, example_index, rank, tactic, log_prob, hypothesis)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, exampleIndex, rank, int(hyp.Tactic), float64(hyp.LogProb), string(blob),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record prediction: %w", err)
		}
	}
	return tx.Commit()
}

// Metrics returns the stored metric summary for a run.
func (s *RunStore) Metrics(runID string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	defer rows.Close()

	results := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		results[name] = value
	}
	return results, rows.Err()
}

// Predictions returns the ranked hypotheses stored for one example.
func (s *RunStore) Predictions(runID string, exampleIndex int) ([]infer.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT hypothesis FROM predictions
		 WHERE run_id = ? AND example_index = ? ORDER BY rank`,
		runID, exampleIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	defer rows.Close()

	var hyps []infer.Hypothesis
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		var hyp infer.Hypothesis
		if err := json.Unmarshal([]byte(blob), &hyp); err != nil {
			return nil, fmt.Errorf("failed to decode hypothesis: %w", err)
		}
		hyps = append(hyps, hyp)
	}
	return hyps, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *RunStore) Runs() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, kind, task_type, started_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &r.Kind, &r.TaskType, &started); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		// CURRENT_TIMESTAMP is stored as UTC text
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close releases the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}
