package space

import (
	"math"
	"math/rand"
	"testing"
)

func mustSpace(t *testing.T, dims ...Dimension) *Space {
	t.Helper()
	s, err := New(dims...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestNew_CanonicalOrder(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "lr", Low: 1e-4, High: 0.1},
		Integer{Name: "units", Low: 8, High: 128},
		Categorical{Name: "act", Values: []any{"relu", "tanh"}},
	)

	names := s.Names()
	want := []string{"lr", "units", "act"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestNew_DuplicateName(t *testing.T) {
	_, err := New(
		Real{Name: "x", Low: 0, High: 1},
		Integer{Name: "x", Low: 0, High: 5},
	)
	if err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestNew_InvalidBounds(t *testing.T) {
	cases := []struct {
		name string
		dim  Dimension
	}{
		{"real low equals high", Real{Name: "x", Low: 1, High: 1}},
		{"real low above high", Real{Name: "x", Low: 2, High: 1}},
		{"integer low equals high", Integer{Name: "n", Low: 3, High: 3}},
		{"empty categorical", Categorical{Name: "c"}},
		{"log-uniform nonpositive low", Real{Name: "x", Low: -1, High: 1, Prior: PriorLogUniform}},
		{"unnamed dimension", Real{Low: 0, High: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.dim); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestEnumerated_IntegerRangeInclusive(t *testing.T) {
	s := mustSpace(t, Integer{Name: "x", Low: -5, High: 5})

	vals, err := s.Enumerated()
	if err != nil {
		t.Fatalf("Enumerated() failed: %v", err)
	}
	if len(vals[0]) != 11 {
		t.Fatalf("expected 11 values for Integer(-5,5), got %d", len(vals[0]))
	}
	if vals[0][0] != -5 || vals[0][10] != 5 {
		t.Errorf("expected range -5..5, got first=%v last=%v", vals[0][0], vals[0][10])
	}
}

func TestEnumerated_RealRequiresGridOrSamples(t *testing.T) {
	s := mustSpace(t, Real{Name: "lr", Low: 0.001, High: 0.1})

	_, err := s.Enumerated()
	if err == nil {
		t.Fatal("expected error for continuous real without grid")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "lr" {
		t.Errorf("error should name the dimension, got %q", verr.Field)
	}
}

func TestEnumerated_RealSamplesLinspace(t *testing.T) {
	s := mustSpace(t, Real{Name: "d", Low: 0, High: 1, Samples: 3})

	vals, err := s.Enumerated()
	if err != nil {
		t.Fatalf("Enumerated() failed: %v", err)
	}
	want := []float64{0, 0.5, 1}
	for i, w := range want {
		if got := vals[0][i].(float64); math.Abs(got-w) > 1e-12 {
			t.Errorf("linspace[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestRealGrid_DerivesBounds(t *testing.T) {
	s := mustSpace(t, Real{Name: "d", Grid: []float64{0.3, 0.1, 0.2}})

	u, err := s.ToUnit(Params{{Name: "d", Value: 0.3}})
	if err != nil {
		t.Fatalf("ToUnit() failed: %v", err)
	}
	p, err := s.FromUnit(u)
	if err != nil {
		t.Fatalf("FromUnit() failed: %v", err)
	}
	if got, _ := p.Get("d"); got.(float64) != 0.3 {
		t.Errorf("grid round-trip = %v, want 0.3", got)
	}
}

func TestCardinality(t *testing.T) {
	s := mustSpace(t,
		Integer{Name: "a", Low: 1, High: 3},
		Categorical{Name: "b", Values: []any{"x", "y"}},
	)
	n, ok := s.Cardinality()
	if !ok || n != 6 {
		t.Errorf("Cardinality() = %d,%v, want 6,true", n, ok)
	}

	cont := mustSpace(t, Real{Name: "r", Low: 0, High: 1})
	if _, ok := cont.Cardinality(); ok {
		t.Error("continuous space should not report a cardinality")
	}
}

func TestUnitRoundTrip(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "lr", Low: 1e-4, High: 0.1, Prior: PriorLogUniform},
		Integer{Name: "units", Low: 8, High: 128},
		Categorical{Name: "act", Values: []any{"relu", "tanh", "sigmoid"}},
	)

	p, err := s.FromUnit([]float64{0.5, 0.25, 0.9})
	if err != nil {
		t.Fatalf("FromUnit() failed: %v", err)
	}
	us, err := s.ToUnit(p)
	if err != nil {
		t.Fatalf("ToUnit() failed: %v", err)
	}
	p2, err := s.FromUnit(us)
	if err != nil {
		t.Fatalf("FromUnit() round failed: %v", err)
	}
	if !p.Equal(p2) {
		t.Errorf("unit round-trip changed params: %v vs %v", p, p2)
	}
}

func TestSample_Deterministic(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "lr", Low: 0.001, High: 0.1},
		Integer{Name: "units", Low: 8, High: 128},
		Categorical{Name: "act", Values: []any{"relu", "tanh"}},
	)

	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		pa := s.Sample(a)
		pb := s.Sample(b)
		if !pa.Equal(pb) {
			t.Fatalf("draw %d diverged: %v vs %v", i, pa, pb)
		}
	}
}

func TestSample_InBounds(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "lr", Low: 0.001, High: 0.1, Prior: PriorLogUniform},
		Integer{Name: "units", Low: 8, High: 128},
	)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		p := s.Sample(rng)
		lr, _ := p.Get("lr")
		if v := lr.(float64); v < 0.001 || v > 0.1 {
			t.Fatalf("lr %v out of bounds", v)
		}
		units, _ := p.Get("units")
		if v := units.(int); v < 8 || v > 128 {
			t.Fatalf("units %v out of bounds", v)
		}
	}
}

func TestCoerce_RestoresTypes(t *testing.T) {
	s := mustSpace(t,
		Integer{Name: "units", Low: 8, High: 128},
		Categorical{Name: "act", Values: []any{"relu", "tanh"}},
		Categorical{Name: "depth", Values: []any{1, 2, 3}},
	)

	// Values as they come back from a JSON decode.
	raw := Params{
		{Name: "units", Value: float64(64)},
		{Name: "act", Value: "relu"},
		{Name: "depth", Value: float64(2)},
	}
	p, err := s.Coerce(raw)
	if err != nil {
		t.Fatalf("Coerce() failed: %v", err)
	}
	if v, _ := p.Get("units"); v != 64 {
		t.Errorf("units = %v (%T), want int 64", v, v)
	}
	if v, _ := p.Get("depth"); v != 2 {
		t.Errorf("depth = %v (%T), want int 2", v, v)
	}
}

func TestCoerce_RejectsUnknownCategory(t *testing.T) {
	s := mustSpace(t, Categorical{Name: "act", Values: []any{"relu", "tanh"}})
	_, err := s.ParamsFromMap(map[string]any{"act": "gelu"})
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestParamsFromMap_MissingValue(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "a", Low: 0, High: 1},
		Real{Name: "b", Low: 0, High: 1},
	)
	_, err := s.ParamsFromMap(map[string]any{"a": 0.5})
	if err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestExplicitGrids(t *testing.T) {
	all := mustSpace(t,
		Real{Name: "d", Grid: []float64{0.1, 0.2, 0.3}},
		Categorical{Name: "act", Values: []any{"relu", "tanh"}},
	)
	if !all.ExplicitGrids() {
		t.Error("expected ExplicitGrids()=true for grid+categorical space")
	}

	implicit := mustSpace(t, Integer{Name: "n", Low: 0, High: 5})
	if implicit.ExplicitGrids() {
		t.Error("implicit integer range should not count as an explicit grid")
	}
}
