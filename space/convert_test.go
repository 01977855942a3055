package space

import (
	"testing"
)

func TestConvert_DimensionList(t *testing.T) {
	s, err := Convert([]Dimension{
		Integer{Name: "b", Low: 0, High: 4},
		Real{Name: "a", Low: 0, High: 1},
	})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	names := s.Names()
	if names[0] != "b" || names[1] != "a" {
		t.Errorf("list order must be canonical order, got %v", names)
	}
}

func TestConvert_LiteralMapInference(t *testing.T) {
	s, err := Convert(map[string]any{
		"batch":   []int{16, 32, 64, 128},
		"dropout": []float64{0.0, 0.5},
		"act":     []string{"relu", "tanh"},
		"layers":  []int{1, 4},
		"fixed":   []any{"adam"},
	})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}

	// Map shapes order lexicographically.
	wantNames := []string{"act", "batch", "dropout", "fixed", "layers"}
	for i, w := range wantNames {
		if got := s.Names()[i]; got != w {
			t.Fatalf("Names()[%d] = %q, want %q", i, got, w)
		}
	}

	wantKinds := []Kind{KindCategorical, KindInteger, KindReal, KindCategorical, KindInteger}
	for i, w := range wantKinds {
		if got := s.Kinds()[i]; got != w {
			t.Errorf("kind[%s] = %v, want %v", s.Names()[i], got, w)
		}
	}

	// Four numeric values become an explicit grid, two become a range.
	vals, err := s.Enumerated()
	if err != nil {
		t.Fatalf("Enumerated() failed: %v", err)
	}
	if len(vals[1]) != 4 {
		t.Errorf("batch should keep its 4 grid values, got %d", len(vals[1]))
	}
	if len(vals[4]) != 4 {
		t.Errorf("layers 1..4 should enumerate 4 values, got %d", len(vals[4]))
	}
}

func TestConvert_TwoElementRangeOrdersBounds(t *testing.T) {
	s, err := Convert(map[string]any{"n": []int{10, 2}})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	vals, err := s.Enumerated()
	if err != nil {
		t.Fatalf("Enumerated() failed: %v", err)
	}
	if len(vals[0]) != 9 {
		t.Errorf("range 2..10 should enumerate 9 values, got %d", len(vals[0]))
	}
}

func TestConvert_DimensionMap(t *testing.T) {
	s, err := Convert(map[string]Dimension{
		"lr":    Real{Low: 1e-4, High: 0.1},
		"units": Integer{Low: 8, High: 64},
	})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if s.Names()[0] != "lr" || s.Names()[1] != "units" {
		t.Errorf("expected lexicographic order, got %v", s.Names())
	}
}

func TestConvert_DimensionMapNameMismatch(t *testing.T) {
	_, err := Convert(map[string]Dimension{
		"lr": Real{Name: "rate", Low: 0, High: 1},
	})
	if err == nil {
		t.Fatal("expected error for key/name mismatch")
	}
}

func TestConvert_BoundPair(t *testing.T) {
	s, err := Convert([2]float64{-1, 1})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if s.Len() != 1 || s.Kinds()[0] != KindReal {
		t.Errorf("bound pair should build a single real dimension")
	}

	si, err := Convert([2]int{0, 10})
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if si.Kinds()[0] != KindInteger {
		t.Errorf("int bound pair should build an integer dimension")
	}
}

func TestConvert_Unsupported(t *testing.T) {
	if _, err := Convert(42); err == nil {
		t.Error("expected error for unsupported literal")
	}
	if _, err := Convert(nil); err == nil {
		t.Error("expected error for nil literal")
	}
	if _, err := Convert(map[string]any{"x": "oops"}); err == nil {
		t.Error("expected error for non-list map value")
	}
	if _, err := Convert(map[string]any{"x": []int{}}); err == nil {
		t.Error("expected error for empty value list")
	}
}

func TestConvert_SpacePassthrough(t *testing.T) {
	orig := mustSpace(t, Real{Name: "x", Low: 0, High: 1})
	s, err := Convert(orig)
	if err != nil {
		t.Fatalf("Convert() failed: %v", err)
	}
	if s != orig {
		t.Error("an existing space should pass through unchanged")
	}
}
