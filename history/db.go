package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cwbudde/hypertune/trial"
)

// DB archives runs and their trials in a sqlite database, keeping
// finished searches queryable across processes.
type DB struct {
	db *sql.DB
}

// timeLayout is RFC3339 with a fixed-width fraction so stored UTC
// timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	algorithm  TEXT NOT NULL,
	backend    TEXT NOT NULL,
	started_at TEXT NOT NULL,
	trials     INTEGER NOT NULL DEFAULT 0,
	best_value REAL
);
CREATE TABLE IF NOT EXISTS trials (
	run_id TEXT NOT NULL,
	idx    INTEGER NOT NULL,
	key    TEXT NOT NULL,
	value  REAL NOT NULL,
	params TEXT NOT NULL,
	at     TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// OpenDB opens the archive at path, initializing the schema on first
// use.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the archive.
func (d *DB) Close() error { return d.db.Close() }

// RunInfo summarizes one archived run. Finished reports whether
// FinishRun has stamped a best value yet.
type RunInfo struct {
	ID        string
	Algorithm string
	Backend   string
	StartedAt time.Time
	Trials    int
	BestValue float64
	Finished  bool
}

// CreateRun registers a new run and returns its id.
func (d *DB) CreateRun(algorithm, backend string) (string, error) {
	id := uuid.NewString()
	_, err := d.db.Exec(
		`INSERT INTO runs (id, algorithm, backend, started_at) VALUES (?, ?, ?, ?)`,
		id, algorithm, backend, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// InsertTrial archives one trial under a run. Parameters are stored as
// order-preserving JSON.
func (d *DB) InsertTrial(runID, key string, t trial.Trial) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT INTO trials (run_id, idx, key, value, params, at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, t.Index, key, t.Value, string(params), t.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trial: %w", err)
	}
	return nil
}

// FinishRun stamps the final counters on a run.
func (d *DB) FinishRun(runID string, trials int, bestValue float64) error {
	_, err := d.db.Exec(
		`UPDATE runs SET trials = ?, best_value = ? WHERE id = ?`,
		trials, bestValue, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Trials returns a run's archived trials in index order.
func (d *DB) Trials(runID string) ([]trial.Trial, error) {
	rows, err := d.db.Query(
		`SELECT idx, value, params, at FROM trials WHERE run_id = ? ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var out []trial.Trial
	for rows.Next() {
		var t trial.Trial
		var params, at string
		if err := rows.Scan(&t.Index, &t.Value, &params, &at); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		if t.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("failed to parse trial timestamp: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Runs lists archived runs, most recent first.
func (d *DB) Runs() ([]RunInfo, error) {
	rows, err := d.db.Query(
		`SELECT id, algorithm, backend, started_at, trials, best_value FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var started string
		var best sql.NullFloat64
		if err := rows.Scan(&info.ID, &info.Algorithm, &info.Backend, &started, &info.Trials, &best); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if info.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		info.BestValue = best.Float64
		info.Finished = best.Valid
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trials.
func (d *DB) DeleteRun(runID string) error {
	if _, err := d.db.Exec(`DELETE FROM trials WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete trials: %w", err)
	}
	if _, err := d.db.Exec(`DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
