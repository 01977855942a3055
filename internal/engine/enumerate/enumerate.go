// Package enumerate implements the native enumeration backend:
// exhaustive grid traversal and seeded random sampling over the
// discrete values of a search space.
package enumerate

import (
	"context"
	"math/rand"

	"github.com/cwbudde/hypertune/internal/engine"
	"github.com/cwbudde/hypertune/space"
)

// Grid walks the Cartesian product of the space's value lists in a fixed
// order: the first dimension varies slowest, the last fastest.
type Grid struct {
	space  *space.Space
	values [][]any
	next   int
	total  int
}

// NewGrid builds a grid walker. Every dimension must be enumerable;
// a continuous dimension without Grid or Samples fails here.
func NewGrid(sp *space.Space) (*Grid, error) {
	values, err := sp.Enumerated()
	if err != nil {
		return nil, err
	}
	total, ok := sp.Cardinality()
	if !ok {
		return nil, &space.ValidationError{Field: "space", Reason: "grid size overflows"}
	}
	return &Grid{space: sp, values: values, total: total}, nil
}

// Total returns the number of points in the grid.
func (g *Grid) Total() int { return g.total }

func (g *Grid) Propose(ctx context.Context) (space.Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.next >= g.total {
		return nil, engine.ErrExhausted
	}
	p, err := g.at(g.next)
	if err != nil {
		return nil, err
	}
	g.next++
	return p, nil
}

func (g *Grid) Tell(space.Params, float64) {}

// at decodes a flat index into grid coordinates, treating the first
// dimension as the most significant digit.
func (g *Grid) at(flat int) (space.Params, error) {
	vals := make([]any, len(g.values))
	rem := flat
	for i := len(g.values) - 1; i >= 0; i-- {
		n := len(g.values[i])
		vals[i] = g.values[i][rem%n]
		rem /= n
	}
	return g.space.Params(vals)
}

// maxRerolls bounds how long one proposal may search for an unseen
// point before settling for a repeat.
const maxRerolls = 128

// Random draws prior-distributed samples with a caller-supplied seed.
// While the space's Cartesian product still has unseen points, draws
// that repeat an earlier proposal are rerolled; once the product is
// covered (or the space is continuous), every draw stands as-is.
type Random struct {
	space *space.Space
	rng   *rand.Rand
	seen  map[string]struct{}
	total int
}

// NewRandom builds a sampler over sp. The same seed always reproduces
// the same proposal sequence.
func NewRandom(sp *space.Space, seed int64) *Random {
	r := &Random{
		space: sp,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if total, ok := sp.Cardinality(); ok {
		r.total = total
		r.seen = make(map[string]struct{}, min(total, 1024))
	}
	return r
}

func (r *Random) Propose(ctx context.Context) (space.Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := r.space.Sample(r.rng)
	if r.total == 0 || len(r.seen) >= r.total {
		return p, nil
	}
	for i := 0; i < maxRerolls; i++ {
		key := p.String()
		if _, dup := r.seen[key]; !dup {
			r.seen[key] = struct{}{}
			return p, nil
		}
		p = r.space.Sample(r.rng)
	}
	return p, nil
}

func (r *Random) Tell(space.Params, float64) {}
