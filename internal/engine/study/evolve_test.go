package study

import (
	"context"
	"testing"
	"time"

	"github.com/cwbudde/hypertune/space"
)

func TestEvolve_ProposalsFlowThroughAskTell(t *testing.T) {
	e := NewEvolve(2, EvolveConfig{Population: 10, MaxIterations: 50, Seed: 3})
	defer e.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		u, err := e.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if len(u) != 2 {
			t.Fatalf("Next returned %d coordinates, want 2", len(u))
		}
		for d, v := range u {
			if v < 0 || v > 1 {
				t.Errorf("proposal %d coordinate %d = %v outside the unit cube", i, d, v)
			}
		}
		e.Observe(u, u[0]*u[0]+u[1]*u[1])
	}
}

func TestEvolve_CloseUnblocksOptimizer(t *testing.T) {
	e := NewEvolve(1, EvolveConfig{Population: 8, MaxIterations: 30, Seed: 1})

	if _, err := e.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	// Close with an evaluation still pending must not hang.
	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not unblock the optimizer")
	}
}

func TestEvolve_WithStudy(t *testing.T) {
	sp, err := space.New(
		space.Real{Name: "x", Low: -3, High: 3},
		space.Real{Name: "y", Low: -3, High: 3},
	)
	if err != nil {
		t.Fatalf("space.New failed: %v", err)
	}
	s := New(sp, NewEvolve(sp.Len(), EvolveConfig{Population: 10, MaxIterations: 40, Seed: 7}))
	defer s.Close()

	for i := 0; i < 8; i++ {
		p, err := s.Propose(context.Background())
		if err != nil {
			t.Fatalf("Propose failed: %v", err)
		}
		xs, err := p.Floats()
		if err != nil {
			t.Fatalf("Floats failed: %v", err)
		}
		if xs[0] < -3 || xs[0] > 3 || xs[1] < -3 || xs[1] > 3 {
			t.Errorf("proposal %v escaped the space bounds", xs)
		}
		s.Tell(p, xs[0]*xs[0]+xs[1]*xs[1])
	}
}
