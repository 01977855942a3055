// Package gp implements the sequential model-based backend: a Gaussian
// process surrogate over the unit cube with pluggable acquisition
// functions. Proposals maximize the acquisition over a random candidate
// pool, so every draw stays inside the space.
package gp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cwbudde/hypertune/space"
)

// Acquisition selects how candidate points are scored against the
// surrogate's posterior.
type Acquisition string

const (
	// EI scores expected improvement over the incumbent.
	EI Acquisition = "ei"
	// UCB scores optimism under uncertainty with weight Beta.
	UCB Acquisition = "ucb"
	// PI scores the probability of improving on the incumbent.
	PI Acquisition = "pi"
	// Thompson draws one posterior sample per candidate and keeps the
	// lowest.
	Thompson Acquisition = "thompson"
)

// ParseAcquisition maps a config string onto an Acquisition. Empty
// selects EI.
func ParseAcquisition(s string) (Acquisition, error) {
	switch strings.ToLower(s) {
	case "", string(EI):
		return EI, nil
	case string(UCB):
		return UCB, nil
	case string(PI):
		return PI, nil
	case string(Thompson), "ts":
		return Thompson, nil
	}
	return "", fmt.Errorf("unknown acquisition %q (ei, ucb, pi, thompson)", s)
}

// Config tunes the surrogate and the proposal search.
type Config struct {
	// InitialSamples is how many random proposals warm the model up
	// before acquisition-driven search starts.
	InitialSamples int
	// Candidates is the random pool size scored per model proposal.
	Candidates  int
	Acquisition Acquisition
	// Beta weights exploration for UCB.
	Beta float64
	// Xi is the improvement margin for EI and PI.
	Xi float64
	// LengthScale and Amplitude shape the RBF kernel over the unit cube.
	LengthScale float64
	Amplitude   float64
	// Noise is the jitter added to the kernel diagonal.
	Noise float64
	Seed  int64
}

func (c Config) withDefaults() Config {
	if c.InitialSamples <= 0 {
		c.InitialSamples = 8
	}
	if c.Candidates <= 0 {
		c.Candidates = 64
	}
	if c.Acquisition == "" {
		c.Acquisition = EI
	}
	if c.Beta <= 0 {
		c.Beta = 2
	}
	if c.Xi <= 0 {
		c.Xi = 0.01
	}
	if c.LengthScale <= 0 {
		c.LengthScale = 0.35
	}
	if c.Amplitude <= 0 {
		c.Amplitude = 1
	}
	if c.Noise <= 0 {
		c.Noise = 1e-6
	}
	return c
}

// Engine runs Gaussian-process guided search. Observations arrive via
// Tell, including any prior trials replayed before the first Propose,
// which shortens or skips the random warmup phase.
type Engine struct {
	space *space.Space
	cfg   Config
	rng   *rand.Rand
	xs    [][]float64
	ys    []float64
}

// New builds a GP engine over sp.
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
	if len(e.xs) < e.cfg.InitialSamples {
		return e.space.FromUnit(e.randomUnit())
	}
	m, err := fit(e.xs, e.ys, e.cfg)
	if err != nil {
		// The kernel matrix went singular; the model sits this round out.
		return e.space.FromUnit(e.randomUnit())
	}
	incumbent := e.ys[0]
	for _, y := range e.ys[1:] {
		if y < incumbent {
			incumbent = y
		}
	}
	var bestU []float64
	bestScore := math.Inf(-1)
	for i := 0; i < e.cfg.Candidates; i++ {
		u := e.randomUnit()
		mean, variance := m.predict(u)
		if s := e.score(mean, variance, incumbent); s > bestScore {
			bestScore, bestU = s, u
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

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// score rates a candidate's posterior; higher means more worth
// evaluating next. All forms assume minimization.
func (e *Engine) score(mean, variance, incumbent float64) float64 {
	sigma := math.Sqrt(variance)
	switch e.cfg.Acquisition {
	case UCB:
		return e.cfg.Beta*sigma - mean
	case PI:
		if sigma == 0 {
			if incumbent-mean-e.cfg.Xi > 0 {
				return 1
			}
			return 0
		}
		return stdNormal.CDF((incumbent - mean - e.cfg.Xi) / sigma)
	case Thompson:
		return -(mean + sigma*e.rng.NormFloat64())
	default:
		imp := incumbent - mean - e.cfg.Xi
		if sigma == 0 {
			return math.Max(imp, 0)
		}
		z := imp / sigma
		return imp*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
	}
}

// model is a fitted GP posterior.
type model struct {
	xs    [][]float64
	alpha *mat.VecDense
	chol  mat.Cholesky
	cfg   Config
	yMean float64
}

func fit(xs [][]float64, ys []float64, cfg Config) (*model, error) {
	n := len(xs)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := kernel(xs[i], xs[j], cfg)
			if i == j {
				v += cfg.Noise
			}
			K.SetSym(i, j, v)
		}
	}
	m := &model{xs: xs, cfg: cfg, yMean: stat.Mean(ys, nil)}
	if ok := m.chol.Factorize(K); !ok {
		return nil, errors.New("kernel matrix is not positive definite")
	}
	centered := make([]float64, n)
	for i, y := range ys {
		centered[i] = y - m.yMean
	}
	m.alpha = mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(m.alpha, mat.NewVecDense(n, centered)); err != nil {
		return nil, err
	}
	return m, nil
}

// predict returns the posterior mean and variance at a unit-cube point.
func (m *model) predict(u []float64) (mean, variance float64) {
	n := len(m.xs)
	k := mat.NewVecDense(n, nil)
	for i, x := range m.xs {
		k.SetVec(i, kernel(x, u, m.cfg))
	}
	mean = m.yMean + mat.Dot(k, m.alpha)
	var v mat.VecDense
	if err := m.chol.SolveVecTo(&v, k); err != nil {
		return mean, m.cfg.Amplitude
	}
	variance = kernel(u, u, m.cfg) - mat.Dot(k, &v)
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

func kernel(a, b []float64, cfg Config) float64 {
	var d2 float64
	for i := range a {
		diff := a[i] - b[i]
		d2 += diff * diff
	}
	return cfg.Amplitude * math.Exp(-d2/(2*cfg.LengthScale*cfg.LengthScale))
}
