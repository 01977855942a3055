// Package space defines search-space dimensions, their canonical ordered
// form, and the conversions engines need: enumerated value lists for
// exhaustive backends and a unit-cube encoding for model-based backends.
package space

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
)

// Kind identifies the variant of a dimension.
type Kind int

const (
	KindReal Kind = iota
	KindInteger
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindInteger:
		return "integer"
	case KindCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Prior selects the sampling distribution of a numeric dimension.
type Prior string

const (
	PriorUniform    Prior = "uniform"
	PriorLogUniform Prior = "log-uniform"
)

// Integer enumeration above this many values is refused; use an explicit
// grid for coarse sweeps over wide ranges.
const maxIntegerEnum = 1 << 20

// Dimension is the sealed interface implemented by Real, Integer and
// Categorical. Callers construct the concrete types; all access beyond
// construction goes through Space.
type Dimension interface {
	label() string
	kind() Kind
	validate() error
	// enum returns the discrete values this dimension can take, if it has
	// any: the explicit grid, the derived sample grid, the inclusive
	// integer range, or the categorical values.
	enum() ([]any, bool)
	// explicitGrid reports whether the caller supplied the value list
	// themselves (Grid field or categorical values).
	explicitGrid() bool
	// fromUnit decodes a [0,1] coordinate into a dimension value.
	fromUnit(u float64) any
	// toUnit encodes a dimension value into [0,1]; inverse of fromUnit up
	// to grid snapping.
	toUnit(v any) (float64, error)
	sample(rng *rand.Rand) any
	// coerce normalizes an externally supplied value (JSON numbers,
	// ints vs floats) to this dimension's value type.
	coerce(v any) (any, error)
}

// Real is a continuous dimension over [Low, High].
type Real struct {
	Name string
	Low  float64
	High float64

	// Prior is the sampling distribution; empty means uniform.
	// PriorLogUniform requires Low > 0.
	Prior Prior

	// Grid optionally fixes the discrete values enumeration-style
	// backends may use. When set, Low/High default to its bounds.
	Grid []float64

	// Samples optionally derives a Grid of this many points, evenly
	// spaced (log-spaced under PriorLogUniform).
	Samples int
}

func (r Real) label() string { return r.Name }
func (r Real) kind() Kind    { return KindReal }

func (r Real) validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if r.Low >= r.High {
		return &ValidationError{Field: r.Name, Reason: fmt.Sprintf("low %v must be less than high %v", r.Low, r.High)}
	}
	if r.Prior == PriorLogUniform && r.Low <= 0 {
		return &ValidationError{Field: r.Name, Reason: "log-uniform prior requires low > 0"}
	}
	if r.Prior != "" && r.Prior != PriorUniform && r.Prior != PriorLogUniform {
		return &ValidationError{Field: r.Name, Reason: fmt.Sprintf("unknown prior %q", r.Prior)}
	}
	if r.Samples == 1 || r.Samples < 0 {
		return &ValidationError{Field: r.Name, Reason: "samples must be at least 2 when set"}
	}
	return nil
}

func (r Real) values() []float64 {
	if len(r.Grid) > 0 {
		return r.Grid
	}
	if r.Samples >= 2 {
		vals := make([]float64, r.Samples)
		n := float64(r.Samples - 1)
		for i := range vals {
			t := float64(i) / n
			if r.Prior == PriorLogUniform {
				vals[i] = math.Exp(math.Log(r.Low) + t*(math.Log(r.High)-math.Log(r.Low)))
			} else {
				vals[i] = r.Low + t*(r.High-r.Low)
			}
		}
		return vals
	}
	return nil
}

func (r Real) enum() ([]any, bool) {
	vals := r.values()
	if vals == nil {
		return nil, false
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out, true
}

func (r Real) explicitGrid() bool { return len(r.Grid) > 0 }

func (r Real) fromUnit(u float64) any {
	u = clamp01(u)
	if vals := r.values(); vals != nil {
		return vals[unitIndex(u, len(vals))]
	}
	if r.Prior == PriorLogUniform {
		return math.Exp(math.Log(r.Low) + u*(math.Log(r.High)-math.Log(r.Low)))
	}
	return r.Low + u*(r.High-r.Low)
}

func (r Real) toUnit(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, &ValidationError{Field: r.Name, Reason: err.Error()}
	}
	if vals := r.values(); vals != nil {
		best, bestDiff := 0, math.Inf(1)
		for i, g := range vals {
			if d := math.Abs(g - f); d < bestDiff {
				best, bestDiff = i, d
			}
		}
		return indexUnit(best, len(vals)), nil
	}
	if r.Prior == PriorLogUniform {
		if f <= 0 {
			return 0, &ValidationError{Field: r.Name, Reason: "log-uniform value must be positive"}
		}
		return clamp01((math.Log(f) - math.Log(r.Low)) / (math.Log(r.High) - math.Log(r.Low))), nil
	}
	return clamp01((f - r.Low) / (r.High - r.Low)), nil
}

func (r Real) sample(rng *rand.Rand) any {
	if vals := r.values(); vals != nil {
		return vals[rng.Intn(len(vals))]
	}
	return r.fromUnit(rng.Float64())
}

func (r Real) coerce(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, &ValidationError{Field: r.Name, Reason: err.Error()}
	}
	return f, nil
}

// Integer is a discrete dimension over [Low, High] inclusive.
type Integer struct {
	Name string
	Low  int
	High int

	// Prior is the sampling distribution; empty means uniform.
	Prior Prior

	// Grid optionally restricts the legal values.
	Grid []int
}

func (d Integer) label() string { return d.Name }
func (d Integer) kind() Kind    { return KindInteger }

func (d Integer) validate() error {
	if d.Name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if d.Low >= d.High {
		return &ValidationError{Field: d.Name, Reason: fmt.Sprintf("low %d must be less than high %d", d.Low, d.High)}
	}
	if d.Prior == PriorLogUniform && d.Low <= 0 {
		return &ValidationError{Field: d.Name, Reason: "log-uniform prior requires low > 0"}
	}
	if d.Prior != "" && d.Prior != PriorUniform && d.Prior != PriorLogUniform {
		return &ValidationError{Field: d.Name, Reason: fmt.Sprintf("unknown prior %q", d.Prior)}
	}
	return nil
}

func (d Integer) enum() ([]any, bool) {
	if len(d.Grid) > 0 {
		out := make([]any, len(d.Grid))
		for i, v := range d.Grid {
			out[i] = v
		}
		return out, true
	}
	span := d.High - d.Low + 1
	if span > maxIntegerEnum {
		return nil, false
	}
	out := make([]any, span)
	for i := range out {
		out[i] = d.Low + i
	}
	return out, true
}

func (d Integer) explicitGrid() bool { return len(d.Grid) > 0 }

func (d Integer) fromUnit(u float64) any {
	u = clamp01(u)
	if len(d.Grid) > 0 {
		return d.Grid[unitIndex(u, len(d.Grid))]
	}
	if d.Prior == PriorLogUniform {
		v := math.Exp(math.Log(float64(d.Low)) + u*(math.Log(float64(d.High))-math.Log(float64(d.Low))))
		return clampInt(int(math.Round(v)), d.Low, d.High)
	}
	return clampInt(d.Low+int(math.Round(u*float64(d.High-d.Low))), d.Low, d.High)
}

func (d Integer) toUnit(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, &ValidationError{Field: d.Name, Reason: err.Error()}
	}
	if len(d.Grid) > 0 {
		best, bestDiff := 0, math.Inf(1)
		for i, g := range d.Grid {
			if diff := math.Abs(float64(g) - f); diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		return indexUnit(best, len(d.Grid)), nil
	}
	if d.Prior == PriorLogUniform {
		if f <= 0 {
			return 0, &ValidationError{Field: d.Name, Reason: "log-uniform value must be positive"}
		}
		return clamp01((math.Log(f) - math.Log(float64(d.Low))) / (math.Log(float64(d.High)) - math.Log(float64(d.Low)))), nil
	}
	return clamp01((f - float64(d.Low)) / float64(d.High-d.Low)), nil
}

func (d Integer) sample(rng *rand.Rand) any {
	if len(d.Grid) > 0 {
		return d.Grid[rng.Intn(len(d.Grid))]
	}
	if d.Prior == PriorLogUniform {
		return d.fromUnit(rng.Float64())
	}
	return d.Low + rng.Intn(d.High-d.Low+1)
}

func (d Integer) coerce(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, &ValidationError{Field: d.Name, Reason: err.Error()}
	}
	r := math.Round(f)
	if math.Abs(f-r) > 1e-9 {
		return nil, &ValidationError{Field: d.Name, Reason: fmt.Sprintf("value %v is not integral", v)}
	}
	return int(r), nil
}

// Categorical is an unordered choice between explicit values.
type Categorical struct {
	Name   string
	Values []any
}

func (c Categorical) label() string { return c.Name }
func (c Categorical) kind() Kind    { return KindCategorical }

func (c Categorical) validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty"}
	}
	if len(c.Values) == 0 {
		return &ValidationError{Field: c.Name, Reason: "categorical values cannot be empty"}
	}
	return nil
}

func (c Categorical) enum() ([]any, bool) {
	out := make([]any, len(c.Values))
	copy(out, c.Values)
	return out, true
}

func (c Categorical) explicitGrid() bool { return true }

func (c Categorical) fromUnit(u float64) any {
	return c.Values[unitIndex(clamp01(u), len(c.Values))]
}

func (c Categorical) toUnit(v any) (float64, error) {
	for i, cand := range c.Values {
		if valueEq(cand, v) {
			return indexUnit(i, len(c.Values)), nil
		}
	}
	return 0, &ValidationError{Field: c.Name, Reason: fmt.Sprintf("value %v is not a listed category", v)}
}

func (c Categorical) sample(rng *rand.Rand) any {
	return c.Values[rng.Intn(len(c.Values))]
}

func (c Categorical) coerce(v any) (any, error) {
	for _, cand := range c.Values {
		if valueEq(cand, v) {
			return cand, nil
		}
	}
	return nil, &ValidationError{Field: c.Name, Reason: fmt.Sprintf("value %v is not a listed category", v)}
}

// ValidationError reports an invalid dimension or space literal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid space: " + e.Field + ": " + e.Reason
}

// Space is an ordered set of uniquely named dimensions. The construction
// order is the canonical parameter order used for positional objective
// calls and for every serialized record.
type Space struct {
	dims  []Dimension
	index map[string]int
}

// New builds a Space from dimensions in canonical order.
func New(dims ...Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, &ValidationError{Field: "space", Reason: "needs at least one dimension"}
	}
	s := &Space{
		dims:  make([]Dimension, len(dims)),
		index: make(map[string]int, len(dims)),
	}
	for i, d := range dims {
		d = normalize(d)
		if err := d.validate(); err != nil {
			return nil, err
		}
		name := d.label()
		if _, dup := s.index[name]; dup {
			return nil, &ValidationError{Field: name, Reason: "duplicate dimension name"}
		}
		s.dims[i] = d
		s.index[name] = i
	}
	return s, nil
}

// normalize fills derived fields: bounds from an explicit Real grid and
// the default prior.
func normalize(d Dimension) Dimension {
	switch v := d.(type) {
	case Real:
		if len(v.Grid) > 0 && v.Low == 0 && v.High == 0 {
			lo, hi := v.Grid[0], v.Grid[0]
			for _, g := range v.Grid[1:] {
				lo, hi = math.Min(lo, g), math.Max(hi, g)
			}
			v.Low, v.High = lo, hi
		}
		if v.Prior == "" {
			v.Prior = PriorUniform
		}
		return v
	case Integer:
		if len(v.Grid) > 0 && v.Low == 0 && v.High == 0 {
			lo, hi := v.Grid[0], v.Grid[0]
			for _, g := range v.Grid[1:] {
				if g < lo {
					lo = g
				}
				if g > hi {
					hi = g
				}
			}
			v.Low, v.High = lo, hi
		}
		if v.Prior == "" {
			v.Prior = PriorUniform
		}
		return v
	default:
		return d
	}
}

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.dims) }

// Names returns dimension names in canonical order.
func (s *Space) Names() []string {
	names := make([]string, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.label()
	}
	return names
}

// Kinds returns the dimension kinds in canonical order.
func (s *Space) Kinds() []Kind {
	kinds := make([]Kind, len(s.dims))
	for i, d := range s.dims {
		kinds[i] = d.kind()
	}
	return kinds
}

// Enumerated renders the enumeration view: one value list per dimension in
// canonical order. Dimensions without discrete values (a Real with neither
// Grid nor Samples, or an Integer range too wide to expand) fail with a
// ValidationError naming the dimension.
func (s *Space) Enumerated() ([][]any, error) {
	out := make([][]any, len(s.dims))
	for i, d := range s.dims {
		vals, ok := d.enum()
		if !ok {
			return nil, &ValidationError{Field: d.label(), Reason: "no discrete values to enumerate (set Grid or Samples)"}
		}
		out[i] = vals
	}
	return out, nil
}

// Cardinality returns the Cartesian-product size of the enumeration view,
// or false if the space is not enumerable or the product overflows.
func (s *Space) Cardinality() (int, bool) {
	total := 1
	for _, d := range s.dims {
		vals, ok := d.enum()
		if !ok {
			return 0, false
		}
		if total > math.MaxInt/len(vals) {
			return 0, false
		}
		total *= len(vals)
	}
	return total, true
}

// ExplicitGrids reports whether every dimension's values were supplied by
// the caller. Sampling without replacement only applies in that case.
func (s *Space) ExplicitGrids() bool {
	for _, d := range s.dims {
		if !d.explicitGrid() {
			return false
		}
	}
	return true
}

// Params assembles canonical-order values into Params, coercing each to
// its dimension's value type.
func (s *Space) Params(values []any) (Params, error) {
	if len(values) != len(s.dims) {
		return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("got %d values for %d dimensions", len(values), len(s.dims))}
	}
	out := make(Params, len(s.dims))
	for i, d := range s.dims {
		v, err := d.coerce(values[i])
		if err != nil {
			return nil, err
		}
		out[i] = Param{Name: d.label(), Value: v}
	}
	return out, nil
}

// ParamsFromMap assembles Params in canonical order from a name-keyed map.
// Every dimension must be present.
func (s *Space) ParamsFromMap(m map[string]any) (Params, error) {
	out := make(Params, len(s.dims))
	for i, d := range s.dims {
		raw, ok := m[d.label()]
		if !ok {
			return nil, &ValidationError{Field: d.label(), Reason: "missing value"}
		}
		v, err := d.coerce(raw)
		if err != nil {
			return nil, err
		}
		out[i] = Param{Name: d.label(), Value: v}
	}
	return out, nil
}

// Coerce reorders p into canonical order and normalizes value types.
// Used when reloading records whose numbers went through JSON.
func (s *Space) Coerce(p Params) (Params, error) {
	if len(p) != len(s.dims) {
		return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("got %d parameters for %d dimensions", len(p), len(s.dims))}
	}
	return s.ParamsFromMap(p.Map())
}

// FromUnit decodes a unit-cube point into Params; us must have one
// coordinate per dimension.
func (s *Space) FromUnit(us []float64) (Params, error) {
	if len(us) != len(s.dims) {
		return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("got %d coordinates for %d dimensions", len(us), len(s.dims))}
	}
	out := make(Params, len(s.dims))
	for i, d := range s.dims {
		out[i] = Param{Name: d.label(), Value: d.fromUnit(us[i])}
	}
	return out, nil
}

// ToUnit encodes Params into unit-cube coordinates in canonical order.
func (s *Space) ToUnit(p Params) ([]float64, error) {
	if len(p) != len(s.dims) {
		return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("got %d parameters for %d dimensions", len(p), len(s.dims))}
	}
	m := p.Map()
	out := make([]float64, len(s.dims))
	for i, d := range s.dims {
		raw, ok := m[d.label()]
		if !ok {
			return nil, &ValidationError{Field: d.label(), Reason: "missing value"}
		}
		u, err := d.toUnit(raw)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// Sample draws one prior-distributed point per dimension.
func (s *Space) Sample(rng *rand.Rand) Params {
	out := make(Params, len(s.dims))
	for i, d := range s.dims {
		out[i] = Param{Name: d.label(), Value: d.sample(rng)}
	}
	return out
}

func clamp01(u float64) float64 {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// unitIndex maps u in [0,1] onto an index in [0,n).
func unitIndex(u float64, n int) int {
	i := int(u * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// indexUnit is the midpoint inverse of unitIndex.
func indexUnit(i, n int) float64 {
	return (float64(i) + 0.5) / float64(n)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// valueEq compares scalar values across numeric representations, so a JSON
// float64 matches the int category it round-tripped from.
func valueEq(a, b any) bool {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	if errA == nil || errB == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
