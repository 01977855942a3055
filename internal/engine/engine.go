// Package engine defines the strategy interface every search backend
// implements, plus helpers shared across backends.
package engine

import (
	"context"
	"errors"

	"golang.org/x/exp/constraints"

	"github.com/cwbudde/hypertune/space"
)

// ErrExhausted reports that an engine has proposed every point it ever
// will. The search loop treats it as a clean stop, not a failure.
var ErrExhausted = errors.New("engine: search space exhausted")

// Engine is the strategy side of a search. Implementations are not safe
// for concurrent use: the loop serializes calls and tells every evaluated
// proposal back before asking for the next one.
type Engine interface {
	// Propose returns the next parameter set to evaluate.
	Propose(ctx context.Context) (space.Params, error)
	// Tell records an evaluated parameter set and its objective value.
	Tell(p space.Params, value float64)
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
