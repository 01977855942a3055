package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hypertune"
	"github.com/cwbudde/hypertune/bench"
	"github.com/cwbudde/hypertune/space"
)

var (
	runObjective   string
	runSpacePath   string
	runDims        int
	runAlgorithm   string
	runBackend     string
	runIterations  int
	runSeed        int64
	runPopulation  int
	runAcquisition string
	runWorkers     int
	runPatience    int
	runOut         string
	runTrace       bool
	runDBPath      string
	runPlots       bool
	runEvalBest    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a hyperparameter search",
	Long: `Runs a search over a built-in objective and writes the trial history
into a run directory, together with an optional per-trial trace, plots
and a sqlite archive entry.`,
	RunE: runSearch,
}

func init() {
	runCmd.Flags().StringVar(&runObjective, "objective", "", "Objective name (required, see 'hypertune objectives')")
	runCmd.Flags().StringVar(&runSpacePath, "space", "", "JSON space file overriding the objective's default domain")
	runCmd.Flags().IntVar(&runDims, "dims", 2, "Dimensions of the default domain")
	runCmd.Flags().StringVar(&runAlgorithm, "algorithm", "random", "Search algorithm (grid, random, bayes, tpe, atpe, evolutionary)")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Backend override (defaults to the algorithm's native backend)")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "Evaluation budget (0 uses the default, grid exhausts the space)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 42, "Random seed")
	runCmd.Flags().IntVar(&runPopulation, "population", 0, "Evolutionary swarm size (0 uses the default)")
	runCmd.Flags().StringVar(&runAcquisition, "acquisition", "", "Model-based acquisition rule (ei, ucb, pi, thompson)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Parallel evaluations on enumerating backends")
	runCmd.Flags().IntVar(&runPatience, "early-stop", 0, "Stop after N trials without improvement (0 disables)")
	runCmd.Flags().StringVar(&runOut, "out", "", "Run directory (default runs/<algorithm>_<timestamp>_<id>)")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Stream every trial to trace.jsonl")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "Archive the run into this sqlite database")
	runCmd.Flags().BoolVar(&runPlots, "plots", false, "Write convergence.png and report.html")
	runCmd.Flags().BoolVar(&runEvalBest, "eval-best", false, "Re-evaluate the best parameters after the search")

	runCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(runCmd)
}

// searchSpace builds the domain: an explicit JSON space file wins,
// otherwise the objective's default bounds span dims dimensions.
func searchSpace(b bench.Benchmark, path string, dims int) (*space.Space, error) {
	if path == "" {
		return b.Space(dims)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read space file: %w", err)
	}
	sp, err := space.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	for i, kind := range sp.Kinds() {
		if kind == space.KindCategorical {
			return nil, fmt.Errorf("objective %s takes numeric coordinates, but %s is categorical", b.Name, sp.Names()[i])
		}
	}
	return sp, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	b, err := bench.Lookup(runObjective)
	if err != nil {
		return err
	}
	alg, backend, err := hypertune.Resolve(runAlgorithm, runBackend)
	if err != nil {
		return err
	}
	sp, err := searchSpace(b, runSpacePath, runDims)
	if err != nil {
		return err
	}

	outDir := runOut
	if outDir == "" {
		outDir = defaultRunDir(string(alg))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	// The manifest and space go down before the search starts, so even
	// an interrupted run leaves enough behind to resume from its trace.
	m := runManifest{
		Objective:   b.Name,
		Algorithm:   string(alg),
		Backend:     string(backend),
		Iterations:  runIterations,
		Seed:        runSeed,
		Population:  runPopulation,
		Acquisition: runAcquisition,
		CreatedAt:   time.Now().UTC(),
	}
	if err := saveManifest(outDir, m); err != nil {
		return err
	}
	if err := saveSpace(outDir, sp); err != nil {
		return err
	}

	rec, err := newRunRecorder(outDir, false, runTrace, runDBPath, string(alg), string(backend))
	if err != nil {
		return err
	}
	defer rec.finish()

	cfg := hypertune.Config{
		Algorithm:   string(alg),
		Backend:     string(backend),
		Space:       sp,
		Objective:   b.Func,
		Iterations:  runIterations,
		Seed:        runSeed,
		Population:  runPopulation,
		Acquisition: runAcquisition,
		Workers:     runWorkers,
		OnTrial:     rec.observe,
		Logger:      slog.Default(),
	}
	if runPatience > 0 {
		es := hypertune.DefaultEarlyStop()
		es.Patience = runPatience
		cfg.EarlyStop = &es
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

	if err := h.SaveHistory(outDir); err != nil {
		return err
	}
	if runPlots {
		if err := writePlots(outDir, h, string(alg), string(backend)); err != nil {
			return err
		}
	}

	trials := len(h.Results())
	slog.Info("search complete",
		"objective", b.Name,
		"trials", trials,
		"best_value", best.Value,
		"elapsed", elapsed,
	)

	fmt.Printf("Wrote %s (best %.6g after %d trials in %s)\n", outDir, best.Value, trials, elapsed.Round(time.Millisecond))
	fmt.Printf("Best parameters: %s\n", best.Params.String())

	if runEvalBest {
		_, check, err := h.EvalBest(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to re-evaluate best parameters: %w", err)
		}
		fmt.Printf("Re-evaluated best: %.6g\n", check)
	}
	return nil
}
