package parzen

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/hypertune/space"
)

func mustSpace(t *testing.T, dims ...space.Dimension) *space.Space {
	t.Helper()
	sp, err := space.New(dims...)
	if err != nil {
		t.Fatalf("space.New failed: %v", err)
	}
	return sp
}

func TestEngine_SeedReproducesSequence(t *testing.T) {
	sp := mustSpace(t,
		space.Real{Name: "x", Low: -1, High: 1},
		space.Categorical{Name: "m", Values: []any{"a", "b"}},
	)
	run := func() []string {
		e := New(sp, Config{Seed: 42, StartupTrials: 4, Candidates: 8})
		out := make([]string, 10)
		for i := range out {
			p, err := e.Propose(context.Background())
			if err != nil {
				t.Fatalf("Propose %d failed: %v", i, err)
			}
			out[i] = p.String()
			x, _ := p.Get("x")
			e.Tell(p, x.(float64)*x.(float64))
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequences diverge at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestEngine_ProposalsStayInBounds(t *testing.T) {
	sp := mustSpace(t, space.Real{Name: "x", Low: 2, High: 6})
	for _, adaptive := range []bool{false, true} {
		e := New(sp, Config{Seed: 3, StartupTrials: 5, Candidates: 8, Adaptive: adaptive})
		for i := 0; i < 20; i++ {
			p, err := e.Propose(context.Background())
			if err != nil {
				t.Fatalf("Propose failed: %v", err)
			}
			x, _ := p.Get("x")
			if v := x.(float64); v < 2 || v > 6 {
				t.Errorf("adaptive=%v proposal %d: x=%v out of [2,6]", adaptive, i, v)
			}
			e.Tell(p, x.(float64))
		}
	}
}

func TestGoodCount(t *testing.T) {
	e := New(mustSpace(t, space.Real{Name: "x", Low: 0, High: 1}), Config{Gamma: 0.25})
	if got := e.goodCount(20); got != 5 {
		t.Errorf("goodCount(20) = %d, want 5", got)
	}
	// The good set must leave at least one bad observation.
	if got := e.goodCount(2); got != 1 {
		t.Errorf("goodCount(2) = %d, want 1", got)
	}

	e.cfg.Adaptive = true
	if got := e.goodCount(16); got != 1 {
		t.Errorf("adaptive goodCount(16) = %d, want ceil(0.25*4) = 1", got)
	}
	if got := e.goodCount(400); got != 5 {
		t.Errorf("adaptive goodCount(400) = %d, want 5", got)
	}
}

func TestBandwidth_AdaptiveShrinks(t *testing.T) {
	e := New(mustSpace(t, space.Real{Name: "x", Low: 0, High: 1}), Config{Adaptive: true})
	if early, late := e.bandwidth(10), e.bandwidth(1000); late >= early {
		t.Errorf("bandwidth should shrink with n: h(10)=%v h(1000)=%v", early, late)
	}
}

func TestLogDensity_PeaksAtCenter(t *testing.T) {
	points := [][]float64{{0.5}, {0.5}, {0.5}}
	at := logDensity(points, []float64{0.5}, 0.1)
	off := logDensity(points, []float64{0.9}, 0.1)
	if at <= off {
		t.Errorf("density at the mass center %v should exceed %v", at, off)
	}
	if math.IsInf(at, 0) || math.IsNaN(at) {
		t.Errorf("density should stay finite, got %v", at)
	}
}

func TestEngine_FavorsGoodRegion(t *testing.T) {
	sp := mustSpace(t, space.Real{Name: "x", Low: 0, High: 1})
	e := New(sp, Config{Seed: 11, StartupTrials: 2, Candidates: 16})

	// Hand the model a sharp picture: tiny values near 0.2, large near 0.8.
	for _, obs := range []struct{ x, y float64 }{
		{0.18, 0.1}, {0.2, 0.0}, {0.22, 0.1},
		{0.78, 5.0}, {0.8, 6.0}, {0.82, 5.5},
	} {
		p, err := sp.FromUnit([]float64{obs.x})
		if err != nil {
			t.Fatalf("FromUnit failed: %v", err)
		}
		e.Tell(p, obs.y)
	}

	near := 0
	const rounds = 20
	for i := 0; i < rounds; i++ {
		p, err := e.Propose(context.Background())
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		x, _ := p.Get("x")
		if math.Abs(x.(float64)-0.2) < math.Abs(x.(float64)-0.8) {
			near++
		}
	}
	if near <= rounds/2 {
		t.Errorf("only %d/%d proposals landed nearer the good region", near, rounds)
	}
}
