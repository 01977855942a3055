package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/hypertune"
	"github.com/cwbudde/hypertune/history"
	"github.com/cwbudde/hypertune/report"
	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
)

const (
	manifestFile = "run.json"
	spaceFile    = "space.json"
)

// runManifest records how a run directory was produced, so resume and
// runs can reconstruct the search without guessing.
type runManifest struct {
	Objective   string    `json:"objective"`
	Algorithm   string    `json:"algorithm"`
	Backend     string    `json:"backend"`
	Iterations  int       `json:"iterations"`
	Seed        int64     `json:"seed"`
	Population  int       `json:"population,omitempty"`
	Acquisition string    `json:"acquisition,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func saveManifest(dir string, m runManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), append(data, '\n'), 0644)
}

func loadManifest(dir string) (runManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return runManifest{}, fmt.Errorf("failed to read run manifest: %w", err)
	}
	var m runManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return runManifest{}, fmt.Errorf("failed to parse run manifest: %w", err)
	}
	return m, nil
}

func saveSpace(dir string, sp *space.Space) error {
	data, err := space.EncodeJSON(sp)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, spaceFile), append(data, '\n'), 0644)
}

func loadSpace(dir string) (*space.Space, error) {
	data, err := os.ReadFile(filepath.Join(dir, spaceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read space file: %w", err)
	}
	return space.ParseJSON(data)
}

func defaultRunDir(algorithm string) string {
	stamp := time.Now().Format("20060102-150405")
	return filepath.Join("runs", fmt.Sprintf("%s_%s_%s", algorithm, stamp, uuid.NewString()[:8]))
}

// runRecorder fans every finished trial into the optional trace stream
// and sqlite archive while tracking the running best. Failures here are
// logged and swallowed so a broken sink never kills the search.
type runRecorder struct {
	trace   *history.TraceWriter
	archive *history.DB
	runID   string
	seen    map[string]bool
	count   int
	best    float64
}

func newRunRecorder(dir string, appendTrace, trace bool, dbPath, algorithm, backend string) (*runRecorder, error) {
	r := &runRecorder{seen: make(map[string]bool), best: math.Inf(1)}
	if trace {
		tw, err := history.NewTraceWriter(dir, appendTrace)
		if err != nil {
			return nil, err
		}
		r.trace = tw
	}
	if dbPath != "" {
		db, err := history.OpenDB(dbPath)
		if err != nil {
			r.finish()
			return nil, err
		}
		runID, err := db.CreateRun(algorithm, backend)
		if err != nil {
			db.Close()
			r.finish()
			return nil, err
		}
		r.archive = db
		r.runID = runID
	}
	return r, nil
}

func (r *runRecorder) observe(t trial.Trial) {
	if t.Value < r.best {
		r.best = t.Value
	}
	r.count++

	if r.trace != nil {
		entry := history.TraceEntry{
			Index:  t.Index,
			Key:    trial.Key(t.Value),
			Value:  t.Value,
			Best:   r.best,
			Params: t.Params,
			At:     t.At,
		}
		if err := r.trace.Write(entry); err != nil {
			slog.Warn("failed to write trace entry", "index", t.Index, "error", err)
		}
	}

	if r.archive != nil {
		key := trial.Key(t.Value)
		if r.seen[key] {
			key = fmt.Sprintf("%s_%d", key, t.Index)
		} else {
			r.seen[key] = true
		}
		if err := r.archive.InsertTrial(r.runID, key, t); err != nil {
			slog.Warn("failed to archive trial", "index", t.Index, "error", err)
		}
	}
}

// finish flushes the trace and closes the archive, marking the archived
// run finished when any trials were recorded.
func (r *runRecorder) finish() {
	if r.trace != nil {
		if err := r.trace.Close(); err != nil {
			slog.Warn("failed to close trace", "error", err)
		}
		r.trace = nil
	}
	if r.archive != nil {
		if r.count > 0 {
			if err := r.archive.FinishRun(r.runID, r.count, r.best); err != nil {
				slog.Warn("failed to finish archived run", "error", err)
			}
		}
		if err := r.archive.Close(); err != nil {
			slog.Warn("failed to close archive", "error", err)
		}
		r.archive = nil
	}
}

func writePlots(dir string, h *hypertune.HyperOpt, algorithm, backend string) error {
	trials := h.Results()
	if err := report.Convergence(dir, trials); err != nil {
		return err
	}
	return report.HTML(dir, report.Info{
		Algorithm: algorithm,
		Backend:   backend,
		Trials:    trials,
		Space:     h.Space(),
	})
}
