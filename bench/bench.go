// Package bench ships standard benchmark objectives so searches can be
// exercised without a real workload. Every function is a minimization
// target with a known optimum, usable directly as a vector objective.
package bench

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cwbudde/hypertune/space"
)

// Func computes the objective value for one candidate point.
type Func func(xs []float64) float64

// Benchmark couples a named objective with its conventional search domain.
type Benchmark struct {
	Name string
	// Desc is a one-line description shown by listings.
	Desc string
	Func Func
	// Low and High bound every coordinate of the conventional domain.
	Low  float64
	High float64
	// Optimum is the minimal objective value.
	Optimum float64
}

// Space builds a dims-dimensional search space over the benchmark's
// conventional bounds, with coordinates named x0..x<dims-1>.
func (b Benchmark) Space(dims int) (*space.Space, error) {
	if dims < 1 {
		return nil, fmt.Errorf("benchmark %s: dimension must be positive, got %d", b.Name, dims)
	}
	dimensions := make([]space.Dimension, dims)
	for i := range dimensions {
		dimensions[i] = space.Real{Name: fmt.Sprintf("x%d", i), Low: b.Low, High: b.High}
	}
	return space.New(dimensions...)
}

var registry = map[string]Benchmark{
	"sphere": {
		Name:    "sphere",
		Desc:    "sum of squares, unimodal, minimum 0 at the origin",
		Func:    Sphere,
		Low:     -5.12,
		High:    5.12,
		Optimum: 0,
	},
	"rosenbrock": {
		Name:    "rosenbrock",
		Desc:    "curved valley, minimum 0 at (1, ..., 1)",
		Func:    Rosenbrock,
		Low:     -5,
		High:    10,
		Optimum: 0,
	},
	"rastrigin": {
		Name:    "rastrigin",
		Desc:    "highly multimodal cosine grid, minimum 0 at the origin",
		Func:    Rastrigin,
		Low:     -5.12,
		High:    5.12,
		Optimum: 0,
	},
	"ackley": {
		Name:    "ackley",
		Desc:    "nearly flat outer region with a deep central well, minimum 0 at the origin",
		Func:    Ackley,
		Low:     -32.768,
		High:    32.768,
		Optimum: 0,
	},
}

// Lookup resolves a benchmark by name, case-insensitively.
func Lookup(name string) (Benchmark, error) {
	b, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Benchmark{}, fmt.Errorf("unknown objective %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return b, nil
}

// Names lists the registered benchmarks in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered benchmarks in alphabetical order.
func All() []Benchmark {
	benchmarks := make([]Benchmark, 0, len(registry))
	for _, name := range Names() {
		benchmarks = append(benchmarks, registry[name])
	}
	return benchmarks
}

// Sphere is sum(x_i^2).
func Sphere(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum
}

// Rosenbrock is sum(100*(x_{i+1}-x_i^2)^2 + (1-x_i)^2) over consecutive
// coordinate pairs. With a single coordinate it degenerates to (1-x_0)^2.
func Rosenbrock(xs []float64) float64 {
	if len(xs) == 1 {
		return (1 - xs[0]) * (1 - xs[0])
	}
	var sum float64
	for i := 0; i+1 < len(xs); i++ {
		a := xs[i+1] - xs[i]*xs[i]
		b := 1 - xs[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Rastrigin is 10*n + sum(x_i^2 - 10*cos(2*pi*x_i)).
func Rastrigin(xs []float64) float64 {
	sum := 10 * float64(len(xs))
	for _, x := range xs {
		sum += x*x - 10*math.Cos(2*math.Pi*x)
	}
	return sum
}

// Ackley is -20*exp(-0.2*sqrt(mean(x_i^2))) - exp(mean(cos(2*pi*x_i))) + 20 + e.
func Ackley(xs []float64) float64 {
	n := float64(len(xs))
	var squares, cosines float64
	for _, x := range xs {
		squares += x * x
		cosines += math.Cos(2 * math.Pi * x)
	}
	return -20*math.Exp(-0.2*math.Sqrt(squares/n)) - math.Exp(cosines/n) + 20 + math.E
}
