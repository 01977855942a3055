// Package parzen implements the density-ratio backend behind tpe and
// atpe. Observations split into a good and a bad set at a quantile of
// their values; proposals are drawn from a kernel density over the good
// set and ranked by the good-to-bad density ratio.
package parzen

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cwbudde/hypertune/internal/engine"
	"github.com/cwbudde/hypertune/space"
)

// Config tunes the estimator.
type Config struct {
	// StartupTrials is how many random draws precede density-guided
	// proposals.
	StartupTrials int
	// Candidates is how many samples from the good density compete per
	// proposal.
	Candidates int
	// Gamma is the top value-quantile treated as good.
	Gamma float64
	// Bandwidth is the kernel width in unit space.
	Bandwidth float64
	// Adaptive switches the atpe behavior on: the good-set size follows
	// sqrt(n) and the bandwidth shrinks as evidence accumulates.
	Adaptive bool
	Seed     int64
}

func (c Config) withDefaults() Config {
	if c.StartupTrials <= 0 {
		c.StartupTrials = 10
	}
	if c.Candidates <= 0 {
		c.Candidates = 24
	}
	if c.Gamma <= 0 || c.Gamma >= 1 {
		c.Gamma = 0.25
	}
	if c.Bandwidth <= 0 {
		c.Bandwidth = 0.12
	}
	return c
}

// Engine proposes points by maximizing the density ratio between good
// and bad observations over the unit cube.
type Engine struct {
	space *space.Space
	cfg   Config
	rng   *rand.Rand
	xs    [][]float64
	ys    []float64
}

// New builds a density-ratio engine over sp.
func New(sp *space.Space, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		space: sp,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (e *Engine) Propose(ctx context.Context) (space.Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(e.xs)
	if n < 2 || n < e.cfg.StartupTrials {
		return e.space.FromUnit(e.randomUnit())
	}
	good, bad := e.split()
	if len(bad) == 0 {
		return e.space.FromUnit(e.randomUnit())
	}
	h := e.bandwidth(n)
	var bestU []float64
	best := math.Inf(-1)
	for i := 0; i < e.cfg.Candidates; i++ {
		c := e.sampleNear(good, h)
		score := logDensity(good, c, h) - logDensity(bad, c, h)
		if score > best {
			best, bestU = score, c
		}
	}
	return e.space.FromUnit(bestU)
}

// Tell records an evaluated point. Values that cannot be encoded into
// the unit cube are dropped.
func (e *Engine) Tell(p space.Params, value float64) {
	u, err := e.space.ToUnit(p)
	if err != nil {
		return
	}
	e.xs = append(e.xs, u)
	e.ys = append(e.ys, value)
}

func (e *Engine) randomUnit() []float64 {
	u := make([]float64, e.space.Len())
	for i := range u {
		u[i] = e.rng.Float64()
	}
	return u
}

// split partitions observations by value rank into the good set and the
// rest. The good set never takes everything, so both densities exist.
func (e *Engine) split() (good, bad [][]float64) {
	n := len(e.xs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return e.ys[order[a]] < e.ys[order[b]] })

	nGood := e.goodCount(n)
	good = make([][]float64, 0, nGood)
	bad = make([][]float64, 0, n-nGood)
	for rank, idx := range order {
		if rank < nGood {
			good = append(good, e.xs[idx])
		} else {
			bad = append(bad, e.xs[idx])
		}
	}
	return good, bad
}

func (e *Engine) goodCount(n int) int {
	if e.cfg.Adaptive {
		return engine.Clamp(int(math.Ceil(0.25*math.Sqrt(float64(n)))), 1, min(25, n-1))
	}
	return engine.Clamp(int(math.Ceil(e.cfg.Gamma*float64(n))), 1, n-1)
}

func (e *Engine) bandwidth(n int) float64 {
	h := e.cfg.Bandwidth
	if e.cfg.Adaptive {
		h *= math.Pow(float64(n), -1.0/float64(4+e.space.Len()))
	}
	return math.Max(h, 1e-3)
}

// sampleNear perturbs a random good point with kernel noise, reflecting
// at the cube walls.
func (e *Engine) sampleNear(points [][]float64, h float64) []float64 {
	base := points[e.rng.Intn(len(points))]
	c := make([]float64, len(base))
	for i, v := range base {
		x := v + e.rng.NormFloat64()*h
		if x < 0 {
			x = -x
		}
		if x > 1 {
			x = 2 - x
		}
		c[i] = engine.Clamp(x, 0, 1)
	}
	return c
}

// logDensity evaluates the log of a Gaussian mixture centered on points
// with shared bandwidth h.
func logDensity(points [][]float64, x []float64, h float64) float64 {
	logs := make([]float64, len(points))
	for i, p := range points {
		var sum float64
		for d := range x {
			z := (x[d] - p[d]) / h
			sum += distuv.UnitNormal.LogProb(z) - math.Log(h)
		}
		logs[i] = sum
	}
	return floats.LogSumExp(logs) - math.Log(float64(len(points)))
}
