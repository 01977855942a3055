package space

import (
	"fmt"
	"reflect"
	"sort"
)

// Convert normalizes a raw space literal into a canonical Space. Accepted
// shapes:
//
//   - []Dimension (or []any of Dimensions): order defines canonical order
//   - map[string][]any (or map[string]any holding slices): literal value
//     lists, dimension kind inferred per list (see inferList)
//   - map[string]Dimension: dimensions keyed by name
//   - [2]float64 or [2]int: a single bound pair for one-parameter searches
//
// Map-shaped literals order dimensions lexicographically by name, since Go
// maps carry no insertion order. A *Space passes through unchanged.
func Convert(raw any) (*Space, error) {
	switch v := raw.(type) {
	case nil:
		return nil, &ValidationError{Field: "space", Reason: "cannot be nil"}
	case *Space:
		return v, nil
	case []Dimension:
		return New(v...)
	case Dimension:
		return New(v)
	case []any:
		dims := make([]Dimension, len(v))
		for i, e := range v {
			d, ok := e.(Dimension)
			if !ok {
				return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("element %d is %T, not a dimension", i, e)}
			}
			dims[i] = d
		}
		return New(dims...)
	case map[string]Dimension:
		return fromDimMap(v)
	case map[string][]any:
		m := make(map[string]any, len(v))
		for k, vals := range v {
			m[k] = vals
		}
		return fromLiteralMap(m)
	case map[string]any:
		return fromLiteralMap(v)
	case [2]float64:
		return New(Real{Name: "x", Low: v[0], High: v[1]})
	case [2]int:
		return New(Integer{Name: "x", Low: v[0], High: v[1]})
	default:
		return nil, &ValidationError{Field: "space", Reason: fmt.Sprintf("unsupported literal shape %T", raw)}
	}
}

func fromDimMap(m map[string]Dimension) (*Space, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	dims := make([]Dimension, 0, len(m))
	for _, name := range names {
		d, err := renamed(m[name], name)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return New(dims...)
}

func fromLiteralMap(m map[string]any) (*Space, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	dims := make([]Dimension, 0, len(m))
	for _, name := range names {
		switch e := m[name].(type) {
		case Dimension:
			d, err := renamed(e, name)
			if err != nil {
				return nil, err
			}
			dims = append(dims, d)
		default:
			vals, ok := anySlice(e)
			if !ok {
				return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("expected a value list or dimension, got %T", e)}
			}
			d, err := inferList(name, vals)
			if err != nil {
				return nil, err
			}
			dims = append(dims, d)
		}
	}
	return New(dims...)
}

// renamed assigns the map key as the dimension name. A non-empty name that
// disagrees with its key is a configuration mistake, not something to
// silently paper over.
func renamed(d Dimension, name string) (Dimension, error) {
	current := d.label()
	if current != "" && current != name {
		return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("dimension is named %q but keyed as %q", current, name)}
	}
	switch v := d.(type) {
	case Real:
		v.Name = name
		return v, nil
	case Integer:
		v.Name = name
		return v, nil
	case Categorical:
		v.Name = name
		return v, nil
	default:
		return d, nil
	}
}

// inferList maps a literal value list onto a dimension:
//
//   - any non-numeric element, or a single value: Categorical over the list
//   - exactly two numeric values: an Integer or Real range from min to max
//   - three or more numeric values: an Integer or Real with that explicit grid
//
// Integer applies when every element is integral, Real otherwise.
func inferList(name string, vals []any) (Dimension, error) {
	if len(vals) == 0 {
		return nil, &ValidationError{Field: name, Reason: "value list cannot be empty"}
	}
	allInt, allNum := true, true
	for _, v := range vals {
		switch v.(type) {
		case int, int32, int64, uint:
		case float32, float64:
			allInt = false
		case bool:
			allInt, allNum = false, false
		default:
			allInt, allNum = false, false
		}
	}
	if !allNum || len(vals) == 1 {
		return Categorical{Name: name, Values: append([]any(nil), vals...)}, nil
	}
	if allInt {
		ints := make([]int, len(vals))
		for i, v := range vals {
			f, _ := toFloat(v)
			ints[i] = int(f)
		}
		if len(ints) == 2 {
			lo, hi := ints[0], ints[1]
			if hi < lo {
				lo, hi = hi, lo
			}
			return Integer{Name: name, Low: lo, High: hi}, nil
		}
		return Integer{Name: name, Grid: ints}, nil
	}
	floats := make([]float64, len(vals))
	for i, v := range vals {
		floats[i], _ = toFloat(v)
	}
	if len(floats) == 2 {
		lo, hi := floats[0], floats[1]
		if hi < lo {
			lo, hi = hi, lo
		}
		return Real{Name: name, Low: lo, High: hi}, nil
	}
	return Real{Name: name, Grid: floats}, nil
}

// anySlice widens concrete slices ([]int, []string, ...) into []any so map
// literals stay ergonomic for callers.
func anySlice(v any) ([]any, bool) {
	if vals, ok := v.([]any); ok {
		return vals, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
