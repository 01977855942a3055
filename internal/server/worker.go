package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cwbudde/hypertune"
	"github.com/cwbudde/hypertune/bench"
	"github.com/cwbudde/hypertune/history"
	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
)

const defaultJobDimensions = 2

// jobDir is where a job's history files and generated reports live.
func jobDir(dataDir, jobID string) string {
	return filepath.Join(dataDir, "jobs", jobID)
}

// jobSpace builds the search space for a job: the submitted literal
// when present, the benchmark's conventional domain otherwise. Built-in
// objectives take numeric coordinates, so categorical dimensions are
// rejected up front.
func jobSpace(config JobConfig, b bench.Benchmark) (*space.Space, error) {
	if len(config.Space) > 0 {
		sp, err := space.Convert(config.Space)
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
	dims := config.Dimensions
	if dims <= 0 {
		dims = defaultJobDimensions
	}
	return b.Space(dims)
}

// runJob executes a search job in the background. A non-nil archive
// receives the run and every trial as it is recorded; a non-empty
// dataDir receives the job's history files on completion.
func runJob(ctx context.Context, jm *JobManager, archive *history.DB, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("starting job",
		"job_id", jobID,
		"objective", job.Config.Objective,
		"algorithm", job.Config.Algorithm,
	)

	b, err := bench.Lookup(job.Config.Objective)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	sp, err := jobSpace(job.Config, b)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to build space: %w", err))
		return err
	}
	jm.UpdateJob(jobID, func(j *Job) { j.space = sp })

	// Open an archive run before the first trial so inserts have a home.
	// Archive problems degrade to a warning, the search itself still runs.
	var runID string
	if archive != nil {
		alg, backend, rerr := hypertune.Resolve(job.Config.Algorithm, job.Config.Backend)
		if rerr == nil {
			runID, rerr = archive.CreateRun(string(alg), string(backend))
		}
		if rerr != nil {
			slog.Warn("failed to create archive run", "job_id", jobID, "error", rerr)
			runID = ""
		}
	}

	// Check for cancellation before starting the search
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	seenKeys := make(map[string]bool)
	h, err := hypertune.New(hypertune.Config{
		Algorithm:  job.Config.Algorithm,
		Backend:    job.Config.Backend,
		Space:      sp,
		Objective:  b.Func,
		Iterations: job.Config.Iterations,
		Seed:       job.Config.Seed,
		Population: job.Config.Population,
		Logger:     slog.Default(),
		OnTrial: func(tr trial.Trial) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Trials = tr.Index + 1
				if tr.Index == 0 || tr.Value < j.BestValue {
					j.BestValue = tr.Value
					j.BestParams = tr.Params.Map()
				}
				j.trials = append(j.trials, tr)
			})
			if runID != "" {
				key := trial.Key(tr.Value)
				if seenKeys[key] {
					key = key + "_" + strconv.Itoa(tr.Index)
				}
				seenKeys[key] = true
				if aerr := archive.InsertTrial(runID, key, tr); aerr != nil {
					slog.Warn("failed to archive trial", "job_id", jobID, "error", aerr)
				}
			}
		},
	})
	if err != nil {
		close(progressDone)
		markJobFailed(jm, jobID, err)
		return err
	}

	best, err := h.Fit(ctx)
	close(progressDone)
	elapsed := time.Since(start)

	if err != nil {
		h.Close()
		finishArchive(jm, archive, runID, jobID)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return err
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	// Persist history before flipping the state, so a completed job
	// always has its files on disk.
	if dataDir != "" {
		if serr := h.SaveHistory(jobDir(dataDir, jobID)); serr != nil {
			slog.Warn("failed to save job history", "job_id", jobID, "error", serr)
		}
	}
	trials := len(h.Results())
	h.Close()

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestValue = best.Value
		j.BestParams = best.Params.Map()
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	finishArchive(jm, archive, runID, jobID)

	var tps float64
	if s := elapsed.Seconds(); s > 0 {
		tps = float64(trials) / s
	}

	slog.Info("job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"trials", trials,
		"best_value", best.Value,
		"trials_per_second", tps,
	)

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Trials:    trials,
		BestValue: best.Value,
		TPS:       tps,
		Timestamp: time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events during a search
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			var tps float64
			if elapsed := time.Since(startTime).Seconds(); elapsed > 0 && job.Trials > 0 {
				tps = float64(job.Trials) / elapsed
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     job.State,
				Trials:    job.Trials,
				BestValue: job.BestValue,
				TPS:       tps,
				Timestamp: time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("job cancelled", "job_id", jobID)
}

// finishArchive closes out the archive run with the trial count and
// best value reached so far. Runs that never recorded a trial are left
// unfinished.
func finishArchive(jm *JobManager, archive *history.DB, runID, jobID string) {
	if archive == nil || runID == "" {
		return
	}
	job, exists := jm.GetJob(jobID)
	if !exists || job.Trials == 0 {
		return
	}
	if err := archive.FinishRun(runID, job.Trials, job.BestValue); err != nil {
		slog.Warn("failed to finish archive run", "job_id", jobID, "error", err)
	}
}
