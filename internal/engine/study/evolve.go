package study

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/hypertune/internal/engine"
)

// EvolveConfig tunes the evolutionary sampler.
type EvolveConfig struct {
	// Population is the mayfly swarm size.
	Population int
	// MaxIterations caps the optimizer's own loop. The search budget
	// usually stops it earlier through Close.
	MaxIterations int
	Seed          int64
}

func (c EvolveConfig) withDefaults() EvolveConfig {
	if c.Population <= 0 {
		c.Population = 20
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1000
	}
	return c
}

// Evolve runs the mayfly optimizer in its own goroutine and inverts its
// evaluation callback into an ask/tell sampler: every position the
// optimizer wants evaluated surfaces through Next, and Observe answers
// it.
type Evolve struct {
	proposals chan []float64
	results   chan float64
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
}

// NewEvolve starts the optimizer over a dims-dimensional unit cube.
// Callers must Close it to shut the goroutine down.
func NewEvolve(dims int, cfg EvolveConfig) *Evolve {
	cfg = cfg.withDefaults()
	e := &Evolve{
		proposals: make(chan []float64),
		results:   make(chan float64),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go e.run(dims, cfg)
	return e
}

func (e *Evolve) run(dims int, cfg EvolveConfig) {
	defer close(e.finished)
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = e.relay
	config.ProblemSize = dims
	config.MaxIterations = cfg.MaxIterations
	config.NPop = cfg.Population
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(cfg.Seed))
	_, _ = mayfly.Optimize(config)
}

// relay hands one position to the consumer side and blocks for its
// value. After Close it answers +Inf so the optimizer winds down on its
// own.
func (e *Evolve) relay(pos []float64) float64 {
	u := make([]float64, len(pos))
	for i, v := range pos {
		u[i] = engine.Clamp(v, 0, 1)
	}
	select {
	case e.proposals <- u:
	case <-e.done:
		return math.Inf(1)
	}
	select {
	case v := <-e.results:
		return v
	case <-e.done:
		return math.Inf(1)
	}
}

func (e *Evolve) Next(ctx context.Context) ([]float64, error) {
	select {
	case u := <-e.proposals:
		return u, nil
	case <-e.finished:
		return nil, engine.ErrExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Evolve) Observe(_ []float64, value float64) {
	select {
	case e.results <- value:
	case <-e.finished:
	case <-e.done:
	}
}

// Close unblocks the optimizer and waits for its goroutine to exit.
func (e *Evolve) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	<-e.finished
	return nil
}
