package space

import (
	"encoding/json"
	"fmt"
)

// dimSpec is the JSON wire form of one dimension, used by space files and
// run artifacts. The array order of specs is the canonical order.
type dimSpec struct {
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Low     *float64  `json:"low,omitempty"`
	High    *float64  `json:"high,omitempty"`
	Prior   Prior     `json:"prior,omitempty"`
	Grid    []float64 `json:"grid,omitempty"`
	Samples int       `json:"samples,omitempty"`
	Values  []any     `json:"values,omitempty"`
}

// ParseJSON decodes a JSON array of dimension specs into a Space:
//
//	[
//	  {"name": "lr", "type": "real", "low": 1e-4, "high": 0.1, "prior": "log-uniform"},
//	  {"name": "units", "type": "integer", "low": 8, "high": 128},
//	  {"name": "act", "type": "categorical", "values": ["relu", "tanh"]}
//	]
func ParseJSON(data []byte) (*Space, error) {
	var specs []dimSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse space: %w", err)
	}
	dims := make([]Dimension, 0, len(specs))
	for _, sp := range specs {
		d, err := sp.dimension()
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return New(dims...)
}

// EncodeJSON renders the space as an indented JSON array of dimension
// specs, the inverse of ParseJSON.
func EncodeJSON(s *Space) ([]byte, error) {
	specs := make([]dimSpec, len(s.dims))
	for i, d := range s.dims {
		switch v := d.(type) {
		case Real:
			lo, hi := v.Low, v.High
			specs[i] = dimSpec{Name: v.Name, Type: "real", Low: &lo, High: &hi, Prior: v.Prior, Grid: v.Grid, Samples: v.Samples}
		case Integer:
			lo, hi := float64(v.Low), float64(v.High)
			grid := make([]float64, len(v.Grid))
			for j, g := range v.Grid {
				grid[j] = float64(g)
			}
			specs[i] = dimSpec{Name: v.Name, Type: "integer", Low: &lo, High: &hi, Prior: v.Prior, Grid: grid}
		case Categorical:
			specs[i] = dimSpec{Name: v.Name, Type: "categorical", Values: v.Values}
		default:
			return nil, &ValidationError{Field: d.label(), Reason: fmt.Sprintf("cannot encode dimension type %T", d)}
		}
	}
	return json.MarshalIndent(specs, "", "  ")
}

func (sp dimSpec) dimension() (Dimension, error) {
	switch sp.Type {
	case "real":
		d := Real{Name: sp.Name, Prior: sp.Prior, Grid: sp.Grid, Samples: sp.Samples}
		if sp.Low != nil {
			d.Low = *sp.Low
		}
		if sp.High != nil {
			d.High = *sp.High
		}
		return d, nil
	case "integer", "int":
		d := Integer{Name: sp.Name, Prior: sp.Prior}
		if sp.Low != nil {
			d.Low = int(*sp.Low)
		}
		if sp.High != nil {
			d.High = int(*sp.High)
		}
		if len(sp.Grid) > 0 {
			d.Grid = make([]int, len(sp.Grid))
			for i, g := range sp.Grid {
				d.Grid[i] = int(g)
			}
		}
		return d, nil
	case "categorical", "cat":
		return Categorical{Name: sp.Name, Values: sp.Values}, nil
	default:
		return nil, &ValidationError{Field: sp.Name, Reason: fmt.Sprintf("unknown dimension type %q", sp.Type)}
	}
}
