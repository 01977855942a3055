package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/hypertune/bench"
	"github.com/cwbudde/hypertune/history"
)

func resetRunFlags() {
	runObjective = ""
	runSpacePath = ""
	runDims = 2
	runAlgorithm = "random"
	runBackend = ""
	runIterations = 0
	runSeed = 42
	runPopulation = 0
	runAcquisition = ""
	runWorkers = 0
	runPatience = 0
	runOut = ""
	runTrace = false
	runDBPath = ""
	runPlots = false
	runEvalBest = false
}

func resetResumeFlags() {
	resumeIterations = 0
	resumeTrace = false
	resumeDBPath = ""
	resumePlots = false
	resumeEvalBest = false
}

func TestRunCommand(t *testing.T) {
	resetRunFlags()
	t.Cleanup(resetRunFlags)
	runCmd.SetContext(context.Background())

	base := t.TempDir()
	outDir := filepath.Join(base, "run")
	dbPath := filepath.Join(base, "runs.db")

	runObjective = "sphere"
	runIterations = 12
	runSeed = 7
	runOut = outDir
	runTrace = true
	runDBPath = dbPath
	runPlots = true
	runEvalBest = true

	if err := runSearch(runCmd, nil); err != nil {
		t.Fatalf("Failed to run search: %v", err)
	}

	for _, name := range []string{
		manifestFile, spaceFile, history.HistoryFile, history.TraceFile,
		"convergence.png", "report.html",
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("Expected %s in run directory, got %v", name, err)
		}
	}

	record, err := history.Load(filepath.Join(outDir, history.HistoryFile))
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if record.Len() != 12 {
		t.Errorf("Expected 12 trials, got %d", record.Len())
	}

	db, err := history.OpenDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer db.Close()
	archived, err := db.Runs()
	if err != nil {
		t.Fatalf("Failed to list archived runs: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("Expected 1 archived run, got %d", len(archived))
	}
	if archived[0].Trials != 12 || !archived[0].Finished {
		t.Errorf("Expected a finished run with 12 trials, got %+v", archived[0])
	}
}

func TestRunCommand_UnknownObjective(t *testing.T) {
	resetRunFlags()
	t.Cleanup(resetRunFlags)
	runCmd.SetContext(context.Background())

	runObjective = "parabola"
	if err := runSearch(runCmd, nil); err == nil {
		t.Error("Expected an error for an unknown objective")
	}
}

func TestRunAndResume(t *testing.T) {
	resetRunFlags()
	resetResumeFlags()
	t.Cleanup(resetRunFlags)
	t.Cleanup(resetResumeFlags)
	runCmd.SetContext(context.Background())
	resumeCmd.SetContext(context.Background())

	outDir := filepath.Join(t.TempDir(), "run")
	runObjective = "sphere"
	runAlgorithm = "tpe"
	runIterations = 10
	runSeed = 3
	runOut = outDir

	if err := runSearch(runCmd, nil); err != nil {
		t.Fatalf("Failed to run search: %v", err)
	}

	resumeIterations = 5
	if err := resumeSearch(resumeCmd, []string{outDir}); err != nil {
		t.Fatalf("Failed to resume search: %v", err)
	}

	record, err := history.Load(filepath.Join(outDir, history.HistoryFile))
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if record.Len() != 15 {
		t.Errorf("Expected 15 trials after resume, got %d", record.Len())
	}
}

func TestBestCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTestRun(t, dir, "done", time.Now(), 2.0, 0.25, 1.0)

	if err := showBest(bestCmd, []string{path}); err != nil {
		t.Fatalf("Failed to show best: %v", err)
	}
	if err := showBest(bestCmd, []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected an error for a missing run directory")
	}
}

func TestSearchSpaceFromFile(t *testing.T) {
	b, err := bench.Lookup("sphere")
	if err != nil {
		t.Fatalf("Failed to look up objective: %v", err)
	}

	path := filepath.Join(t.TempDir(), "space.json")
	spec := `[
		{"name": "x0", "type": "real", "low": -1, "high": 1},
		{"name": "x1", "type": "real", "low": -2, "high": 2}
	]`
	if err := os.WriteFile(path, []byte(spec), 0644); err != nil {
		t.Fatalf("Failed to write space file: %v", err)
	}

	sp, err := searchSpace(b, path, 0)
	if err != nil {
		t.Fatalf("Failed to build space: %v", err)
	}
	if sp.Len() != 2 {
		t.Errorf("Expected 2 dimensions, got %d", sp.Len())
	}
}

func TestSearchSpaceRejectsCategorical(t *testing.T) {
	b, err := bench.Lookup("sphere")
	if err != nil {
		t.Fatalf("Failed to look up objective: %v", err)
	}

	path := filepath.Join(t.TempDir(), "space.json")
	spec := `[{"name": "act", "type": "categorical", "values": ["relu", "tanh"]}]`
	if err := os.WriteFile(path, []byte(spec), 0644); err != nil {
		t.Fatalf("Failed to write space file: %v", err)
	}

	if _, err := searchSpace(b, path, 0); err == nil {
		t.Error("Expected an error for a categorical dimension")
	}
}
