package space

import (
	"encoding/json"
	"testing"
)

func TestParams_OrderedJSON(t *testing.T) {
	p := Params{
		{Name: "zeta", Value: 1.5},
		{Name: "alpha", Value: "relu"},
		{Name: "mid", Value: 3},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	want := `{"zeta":1.5,"alpha":"relu","mid":3}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back Params
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if len(back) != 3 || back[0].Name != "zeta" || back[1].Name != "alpha" || back[2].Name != "mid" {
		t.Errorf("Unmarshal() lost key order: %v", back.Names())
	}
	if !p.Equal(back) {
		t.Errorf("round-trip changed values: %v vs %v", p, back)
	}
}

func TestParams_Accessors(t *testing.T) {
	p := Params{
		{Name: "x", Value: 2},
		{Name: "y", Value: 0.5},
	}

	if v, ok := p.Get("y"); !ok || v != 0.5 {
		t.Errorf("Get(y) = %v,%v", v, ok)
	}
	if _, ok := p.Get("z"); ok {
		t.Error("Get(z) should miss")
	}

	fs, err := p.Floats()
	if err != nil {
		t.Fatalf("Floats() failed: %v", err)
	}
	if fs[0] != 2 || fs[1] != 0.5 {
		t.Errorf("Floats() = %v", fs)
	}

	m := p.Map()
	if m["x"] != 2 {
		t.Errorf("Map()[x] = %v", m["x"])
	}
}

func TestParams_FloatsRejectsStrings(t *testing.T) {
	p := Params{{Name: "act", Value: "relu"}}
	if _, err := p.Floats(); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestParams_EqualAcrossNumericTypes(t *testing.T) {
	a := Params{{Name: "n", Value: 3}}
	b := Params{{Name: "n", Value: float64(3)}}
	if !a.Equal(b) {
		t.Error("int 3 and float64 3 should compare equal")
	}

	c := Params{{Name: "n", Value: 4}}
	if a.Equal(c) {
		t.Error("3 and 4 must differ")
	}
}

func TestSpaceJSON_RoundTrip(t *testing.T) {
	s := mustSpace(t,
		Real{Name: "lr", Low: 1e-4, High: 0.1, Prior: PriorLogUniform},
		Integer{Name: "units", Low: 8, High: 128},
		Categorical{Name: "act", Values: []any{"relu", "tanh"}},
		Real{Name: "drop", Grid: []float64{0.1, 0.2, 0.3}},
	)

	data, err := EncodeJSON(s)
	if err != nil {
		t.Fatalf("EncodeJSON() failed: %v", err)
	}
	back, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON() failed: %v", err)
	}

	if got, want := back.Names(), s.Names(); len(got) != len(want) {
		t.Fatalf("round-trip changed dimension count")
	}
	for i, name := range s.Names() {
		if back.Names()[i] != name {
			t.Errorf("Names()[%d] = %q, want %q", i, back.Names()[i], name)
		}
		if back.Kinds()[i] != s.Kinds()[i] {
			t.Errorf("kind[%s] changed across round-trip", name)
		}
	}
}

func TestParseJSON_UnknownType(t *testing.T) {
	_, err := ParseJSON([]byte(`[{"name":"x","type":"gaussian"}]`))
	if err == nil {
		t.Error("expected error for unknown dimension type")
	}
}
