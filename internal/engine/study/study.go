// Package study implements the trial-study backend: a uniform ask/tell
// loop over pluggable samplers that work in the unit cube, including an
// evolutionary sampler bridged to the mayfly optimizer.
package study

import (
	"context"
	"math/rand"

	"github.com/cwbudde/hypertune/internal/engine"
	"github.com/cwbudde/hypertune/space"
)

// Sampler produces unit-cube points and learns from their values.
type Sampler interface {
	// Next returns the next point, or engine.ErrExhausted.
	Next(ctx context.Context) ([]float64, error)
	// Observe feeds an evaluated point back.
	Observe(u []float64, value float64)
}

// Study drives a Sampler and translates between unit-cube points and
// parameter sets.
type Study struct {
	space   *space.Space
	sampler Sampler
	asked   int
	told    int
}

// New builds a study over sp driven by sampler.
func New(sp *space.Space, sampler Sampler) *Study {
	return &Study{space: sp, sampler: sampler}
}

func (s *Study) Propose(ctx context.Context) (space.Params, error) {
	u, err := s.sampler.Next(ctx)
	if err != nil {
		return nil, err
	}
	s.asked++
	return s.space.FromUnit(u)
}

// Tell records an evaluated parameter set. Values that cannot be
// encoded into the unit cube are dropped.
func (s *Study) Tell(p space.Params, value float64) {
	u, err := s.space.ToUnit(p)
	if err != nil {
		return
	}
	s.told++
	s.sampler.Observe(u, value)
}

// Trials returns how many proposals have been answered.
func (s *Study) Trials() int { return s.told }

// Close releases the sampler if it holds resources.
func (s *Study) Close() error {
	if c, ok := s.sampler.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// RandomSampler draws independent uniform points.
type RandomSampler struct {
	dims int
	rng  *rand.Rand
}

func NewRandomSampler(dims int, seed int64) *RandomSampler {
	return &RandomSampler{dims: dims, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSampler) Next(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u := make([]float64, r.dims)
	for i := range u {
		u[i] = r.rng.Float64()
	}
	return u, nil
}

func (r *RandomSampler) Observe([]float64, float64) {}

// GridSampler walks every combination of the space's discrete values,
// first dimension slowest, using midpoint unit coordinates so each
// combination decodes to its exact value.
type GridSampler struct {
	counts []int
	next   int
	total  int
}

func NewGridSampler(sp *space.Space) (*GridSampler, error) {
	values, err := sp.Enumerated()
	if err != nil {
		return nil, err
	}
	total, ok := sp.Cardinality()
	if !ok {
		return nil, &space.ValidationError{Field: "space", Reason: "grid size overflows"}
	}
	counts := make([]int, len(values))
	for i, v := range values {
		counts[i] = len(v)
	}
	return &GridSampler{counts: counts, total: total}, nil
}

// Total returns the number of grid points.
func (g *GridSampler) Total() int { return g.total }

func (g *GridSampler) Next(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.next >= g.total {
		return nil, engine.ErrExhausted
	}
	u := make([]float64, len(g.counts))
	rem := g.next
	for i := len(g.counts) - 1; i >= 0; i-- {
		n := g.counts[i]
		u[i] = (float64(rem%n) + 0.5) / float64(n)
		rem /= n
	}
	g.next++
	return u, nil
}

func (g *GridSampler) Observe([]float64, float64) {}

// EngineSampler adapts a full engine into a sampler, letting the study
// borrow another backend's strategy.
type EngineSampler struct {
	space *space.Space
	inner engine.Engine
}

func NewEngineSampler(sp *space.Space, inner engine.Engine) *EngineSampler {
	return &EngineSampler{space: sp, inner: inner}
}

func (s *EngineSampler) Next(ctx context.Context) ([]float64, error) {
	p, err := s.inner.Propose(ctx)
	if err != nil {
		return nil, err
	}
	return s.space.ToUnit(p)
}

func (s *EngineSampler) Observe(u []float64, value float64) {
	p, err := s.space.FromUnit(u)
	if err != nil {
		return
	}
	s.inner.Tell(p, value)
}
