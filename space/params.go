package space

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Param is one named parameter value.
type Param struct {
	Name  string
	Value any
}

// Params is an ordered parameter assignment. Order always follows the
// canonical order of the space that produced it, and survives JSON
// round-trips, which plain maps would not guarantee.
type Params []Param

// Get returns the value for name.
func (p Params) Get(name string) (any, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return nil, false
}

// Names returns parameter names in order.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i, kv := range p {
		names[i] = kv.Name
	}
	return names
}

// Values returns parameter values in order.
func (p Params) Values() []any {
	vals := make([]any, len(p))
	for i, kv := range p {
		vals[i] = kv.Value
	}
	return vals
}

// Map returns an unordered name to value view.
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, kv := range p {
		m[kv.Name] = kv.Value
	}
	return m
}

// Floats returns the values as float64s in order. Fails if any value is
// not numerically representable, e.g. a string category.
func (p Params) Floats() ([]float64, error) {
	out := make([]float64, len(p))
	for i, kv := range p {
		f, err := toFloat(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", kv.Name, err)
		}
		out[i] = f
	}
	return out, nil
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// Equal reports order-sensitive equality, comparing numeric values across
// representations.
func (p Params) Equal(o Params) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i].Name != o[i].Name || !valueEq(p[i].Value, o[i].Value) {
			return false
		}
	}
	return true
}

// String renders "name=value" pairs for logs.
func (p Params) String() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", kv.Name, kv.Value)
	}
	return b.String()
}

// MarshalJSON writes a JSON object whose keys appear in parameter order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", kv.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving its key order. Numbers
// decode as float64; reattach a Space via Coerce to restore value types.
func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("params: expected JSON object, got %v", tok)
	}
	out := Params{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("params: expected string key, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		out = append(out, Param{Name: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
