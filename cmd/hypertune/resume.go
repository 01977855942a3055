package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hypertune"
	"github.com/cwbudde/hypertune/bench"
	"github.com/cwbudde/hypertune/history"
)

var (
	resumeIterations int
	resumeTrace      bool
	resumeDBPath     string
	resumePlots      bool
	resumeEvalBest   bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-dir>",
	Short: "Continue a saved search",
	Long: `Reloads a run directory's manifest, space and trial history, replays
the recorded trials into a fresh search and extends it by another
budget. The resumed segment derives its seed from the original seed and
the prior trial count, so repeated resumes stay reproducible without
replaying the same proposals.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeSearch,
}

func init() {
	resumeCmd.Flags().IntVar(&resumeIterations, "iterations", 0, "Additional evaluation budget (0 uses the default)")
	resumeCmd.Flags().BoolVar(&resumeTrace, "trace", false, "Append resumed trials to trace.jsonl")
	resumeCmd.Flags().StringVar(&resumeDBPath, "db", "", "Archive the resumed segment into this sqlite database")
	resumeCmd.Flags().BoolVar(&resumePlots, "plots", false, "Rewrite convergence.png and report.html")
	resumeCmd.Flags().BoolVar(&resumeEvalBest, "eval-best", false, "Re-evaluate the best parameters after the search")
	rootCmd.AddCommand(resumeCmd)
}

func resumeSearch(cmd *cobra.Command, args []string) error {
	runDir := args[0]

	m, err := loadManifest(runDir)
	if err != nil {
		return err
	}
	b, err := bench.Lookup(m.Objective)
	if err != nil {
		return err
	}
	sp, err := loadSpace(runDir)
	if err != nil {
		return err
	}
	record, err := history.Load(filepath.Join(runDir, history.HistoryFile))
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}
	prior, err := record.Rebuild(sp)
	if err != nil {
		return err
	}

	slog.Info("resuming search",
		"dir", runDir,
		"objective", m.Objective,
		"algorithm", m.Algorithm,
		"prior_trials", len(prior),
	)

	rec, err := newRunRecorder(runDir, true, resumeTrace, resumeDBPath, m.Algorithm, m.Backend)
	if err != nil {
		return err
	}
	if best, ok := record.Best(); ok {
		rec.best = best.Value
	}
	defer rec.finish()

	cfg := hypertune.Config{
		Algorithm:   m.Algorithm,
		Backend:     m.Backend,
		Space:       sp,
		Objective:   b.Func,
		Iterations:  resumeIterations,
		Seed:        m.Seed + int64(len(prior)),
		PriorTrials: prior,
		Population:  m.Population,
		Acquisition: m.Acquisition,
		OnTrial:     rec.observe,
		Logger:      slog.Default(),
	}

	h, err := hypertune.New(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	start := time.Now()
	best, err := h.Fit(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := h.SaveHistory(runDir); err != nil {
		return err
	}
	if resumePlots {
		if err := writePlots(runDir, h, m.Algorithm, m.Backend); err != nil {
			return err
		}
	}

	total := len(h.Results())
	added := total - len(prior)
	slog.Info("search complete",
		"objective", m.Objective,
		"trials", total,
		"added", added,
		"best_value", best.Value,
		"elapsed", elapsed,
	)

	fmt.Printf("Extended %s by %d trials in %s (best %.6g over %d total)\n",
		runDir, added, elapsed.Round(time.Millisecond), best.Value, total)
	fmt.Printf("Best parameters: %s\n", best.Params.String())

	if resumeEvalBest {
		_, check, err := h.EvalBest(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to re-evaluate best parameters: %w", err)
		}
		fmt.Printf("Re-evaluated best: %.6g\n", check)
	}
	return nil
}
