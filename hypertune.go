package hypertune

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/cwbudde/hypertune/history"
	"github.com/cwbudde/hypertune/internal/engine"
	"github.com/cwbudde/hypertune/objective"
	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
)

// HyperOpt is one configured search. Construct with New, run with Fit.
// Methods are not safe for concurrent use.
type HyperOpt struct {
	cfg     Config
	alg     Algorithm
	backend Backend
	space   *space.Space
	invoker *objective.Invoker
	eng     engine.Engine
	store   *trial.Store
	log     *slog.Logger
	warmed  bool
}

// New validates cfg, resolves the backend, converts the space and
// builds the engine. Prior trials are replayed into the store and the
// engine here, so a resumed search continues where it left off.
func New(cfg Config) (*HyperOpt, error) {
	alg, backend, err := Resolve(cfg.Algorithm, cfg.Backend)
	if err != nil {
		return nil, err
	}
	sp, err := space.Convert(cfg.Space)
	if err != nil {
		return nil, &ConfigError{
			Algorithm: string(alg),
			Backend:   string(backend),
			Field:     "space",
			Reason:    "invalid search space",
			Err:       err,
		}
	}
	eng, err := newEngine(cfg, sp, alg, backend)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	h := &HyperOpt{
		cfg:     cfg,
		alg:     alg,
		backend: backend,
		space:   sp,
		invoker: objective.Bind(sp, cfg.Objective),
		eng:     eng,
		store:   trial.NewStore(),
		log:     log,
	}
	if err := h.replayPrior(); err != nil {
		return nil, err
	}
	return h, nil
}

// Minimize runs one full search with cfg and returns the best trial.
func Minimize(ctx context.Context, cfg Config) (trial.Trial, error) {
	h, err := New(cfg)
	if err != nil {
		return trial.Trial{}, err
	}
	defer h.Close()
	return h.Fit(ctx)
}

func (h *HyperOpt) replayPrior() error {
	for _, t := range h.cfg.PriorTrials {
		p, err := h.space.Coerce(t.Params)
		if err != nil {
			return &ConfigError{
				Field:  "prior_trials",
				Reason: fmt.Sprintf("trial %d does not fit the space", t.Index),
				Err:    err,
			}
		}
		t.Params = p
		h.store.Record(t)
		h.eng.Tell(p, t.Value)
	}
	return nil
}

// Fit runs the search until the budget is spent, the space is
// exhausted, the plateau detector fires, or an evaluation fails. It
// returns the best trial recorded so far; on error the partial best
// accompanies the error. Calling Fit again extends the search by
// another budget.
func (h *HyperOpt) Fit(ctx context.Context) (trial.Trial, error) {
	// A zero budget means exhaust for grid search and the default
	// budget for everything else.
	limit := h.cfg.Iterations
	if limit <= 0 {
		if h.alg == Grid {
			limit = 0
		} else {
			limit = DefaultIterations
		}
	}

	var tracker *plateauTracker
	if h.cfg.EarlyStop != nil {
		tracker = newPlateauTracker(*h.cfg.EarlyStop, h.log)
	}

	h.log.Info("starting search",
		"algorithm", string(h.alg),
		"backend", string(h.backend),
		"budget", limit,
		"dimensions", h.space.Len(),
		"prior_trials", len(h.cfg.PriorTrials),
	)

	done := 0
	stopped := false
	var err error
	if !h.warmed {
		h.warmed = true
		stopped, err = h.warmStart(ctx, limit, &done, tracker)
	}
	if err == nil && !stopped {
		if h.cfg.Workers > 1 && h.backend == NativeEnumeration {
			err = h.runParallel(ctx, limit, &done, tracker)
		} else {
			err = h.run(ctx, limit, &done, tracker)
		}
	}

	best, ok := h.store.Best()
	if err != nil {
		return best, err
	}
	if !ok {
		return trial.Trial{}, errors.New("hypertune: no trials recorded")
	}
	h.log.Info("search finished",
		"trials", h.store.Len(),
		"best_value", best.Value,
		"best_params", best.Params.String(),
	)
	return best, nil
}

// warmStart evaluates the configured initial points. They count against
// the budget and flow through the same recording path as proposals.
func (h *HyperOpt) warmStart(ctx context.Context, limit int, done *int, tracker *plateauTracker) (bool, error) {
	for _, m := range h.cfg.WarmStart {
		if limit > 0 && *done >= limit {
			return false, nil
		}
		p, err := h.space.ParamsFromMap(m)
		if err != nil {
			return false, &ConfigError{Field: "warm_start", Reason: "point does not fit the space", Err: err}
		}
		value, err := h.invoker.Invoke(ctx, p)
		if err != nil {
			return false, err
		}
		stop := h.record(p, value, tracker)
		*done++
		if stop {
			return true, nil
		}
	}
	return false, nil
}

func (h *HyperOpt) run(ctx context.Context, limit int, done *int, tracker *plateauTracker) error {
	for limit == 0 || *done < limit {
		p, err := h.eng.Propose(ctx)
		if errors.Is(err, engine.ErrExhausted) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := h.invoker.Invoke(ctx, p)
		if err != nil {
			return err
		}
		stop := h.record(p, value, tracker)
		*done++
		if stop {
			return nil
		}
	}
	return nil
}

// runParallel batches proposals from enumerating engines and evaluates
// them concurrently. Recording still happens in proposal order, so the
// history is identical to a sequential run of the same seed.
func (h *HyperOpt) runParallel(ctx context.Context, limit int, done *int, tracker *plateauTracker) error {
	for limit == 0 || *done < limit {
		batch := h.cfg.Workers
		if limit > 0 && limit-*done < batch {
			batch = limit - *done
		}

		proposals := make([]space.Params, 0, batch)
		exhausted := false
		for len(proposals) < batch {
			p, err := h.eng.Propose(ctx)
			if errors.Is(err, engine.ErrExhausted) {
				exhausted = true
				break
			}
			if err != nil {
				return err
			}
			proposals = append(proposals, p)
		}
		if len(proposals) == 0 {
			return nil
		}

		values := make([]float64, len(proposals))
		errs := make([]error, len(proposals))
		pl := pool.New().WithMaxGoroutines(h.cfg.Workers)
		for i, p := range proposals {
			pl.Go(func() {
				values[i], errs[i] = h.invoker.Invoke(ctx, p)
			})
		}
		pl.Wait()

		for i, p := range proposals {
			if errs[i] != nil {
				return errs[i]
			}
			stop := h.record(p, values[i], tracker)
			*done++
			if stop {
				return nil
			}
		}
		if exhausted {
			return nil
		}
	}
	return nil
}

// record appends a trial, notifies the observer and feeds the engine.
// It reports whether the plateau detector wants to stop.
func (h *HyperOpt) record(p space.Params, value float64, tracker *plateauTracker) bool {
	t := trial.New(h.store.Len(), p, value)
	key := h.store.Record(t)
	h.log.Debug("trial recorded",
		"index", t.Index,
		"key", key,
		"value", value,
		"params", p.String(),
	)
	if h.cfg.OnTrial != nil {
		h.cfg.OnTrial(t)
	}
	h.eng.Tell(p, value)
	return tracker != nil && tracker.update(value)
}

// Best returns the minimum-value trial, earliest index winning ties.
func (h *HyperOpt) Best() (trial.Trial, bool) { return h.store.Best() }

// Results returns every recorded trial in recording order.
func (h *HyperOpt) Results() []trial.Trial { return h.store.All() }

// Store exposes the underlying result store for history and reporting.
func (h *HyperOpt) Store() *trial.Store { return h.store }

// Space returns the canonical search space.
func (h *HyperOpt) Space() *space.Space { return h.space }

// Algorithm returns the resolved algorithm.
func (h *HyperOpt) Algorithm() Algorithm { return h.alg }

// Backend returns the resolved backend.
func (h *HyperOpt) Backend() Backend { return h.backend }

// EvalBest re-invokes the objective at the best recorded parameters and
// returns the fresh value alongside the stored trial.
func (h *HyperOpt) EvalBest(ctx context.Context) (trial.Trial, float64, error) {
	best, ok := h.store.Best()
	if !ok {
		return trial.Trial{}, 0, errors.New("hypertune: no trials recorded")
	}
	value, err := h.invoker.Invoke(ctx, best.Params)
	return best, value, err
}

// SaveHistory writes the iteration history and its value-sorted variant
// under dir.
func (h *HyperOpt) SaveHistory(dir string) error {
	rec := history.FromStore(h.store)
	if err := rec.Save(dir); err != nil {
		return err
	}
	return rec.SaveSorted(dir)
}

// Close releases engine resources. Only the evolutionary backend holds
// any, but closing is always safe.
func (h *HyperOpt) Close() error {
	if c, ok := h.eng.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
