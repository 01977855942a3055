package hypertune

import (
	"log/slog"

	"github.com/cwbudde/hypertune/trial"
)

// DefaultIterations is the evaluation budget used when none is set and
// the algorithm cannot exhaust its space instead.
const DefaultIterations = 50

// Config describes one search. The zero value is not usable; Algorithm,
// Space and Objective are required.
type Config struct {
	// Algorithm selects the search strategy: grid, random, bayes, tpe,
	// atpe or evolutionary.
	Algorithm string

	// Backend optionally overrides the algorithm's default backend.
	Backend string

	// Space is the search space in any shape space.Convert accepts:
	// a *space.Space, dimension slices or maps, literal value lists,
	// or a single bound pair.
	Space any

	// Objective is the callable under search, in any convention
	// objective.Bind accepts.
	Objective any

	// Iterations is the evaluation budget. Zero means DefaultIterations
	// for every algorithm except grid, which exhausts its space.
	Iterations int

	// Seed drives every stochastic backend. The same seed, space and
	// budget reproduce the same proposal sequence.
	Seed int64

	// WarmStart lists parameter sets evaluated before the adaptive
	// phase begins. They count against the budget.
	WarmStart []map[string]any

	// PriorTrials replays finished trials into the result store and the
	// engine without re-evaluating them, typically from history.Load.
	PriorTrials []trial.Trial

	// Acquisition selects the model-based scoring rule: ei (default),
	// ucb, pi or thompson.
	Acquisition string

	// Population sizes the evolutionary swarm; zero uses the default.
	Population int

	// EarlyStop stops the search once the best value plateaus.
	EarlyStop *EarlyStop

	// Workers evaluates proposals in parallel on enumerating backends.
	// Zero or one keeps the loop sequential. Adaptive backends ignore
	// it, since each proposal depends on every prior result.
	Workers int

	// OnTrial observes every recorded trial in recording order.
	OnTrial func(trial.Trial)

	// Logger receives structured progress events; nil keeps the search
	// silent.
	Logger *slog.Logger
}
