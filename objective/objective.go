// Package objective binds user-supplied objective callables to a search
// space and normalizes their results to (float64, error).
package objective

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/cwbudde/hypertune/space"
)

// Convention identifies how parameter values are handed to a callable.
type Convention string

const (
	// ConventionParams passes the full parameter set as one value,
	// either space.Params or map[string]any.
	ConventionParams Convention = "params"
	// ConventionPositional passes one argument per dimension, in
	// canonical space order.
	ConventionPositional Convention = "positional"
	// ConventionVector passes every value as a single []float64 in
	// canonical space order. Requires an all-numeric space.
	ConventionVector Convention = "vector"
)

// InvocationError reports a callable whose shape matches no supported
// convention, or one whose arguments cannot accept the space's values.
// It surfaces on the first evaluation rather than at bind time.
type InvocationError struct {
	Type   string
	Reason string
}

func (e *InvocationError) Error() string {
	return "objective: cannot invoke " + e.Type + ": " + e.Reason +
		" (supported conventions: a single space.Params, map[string]any or " +
		"[]float64 argument, or one positional argument per dimension; " +
		"every form may return float64 or (float64, error))"
}

// EvaluationError reports a non-finite objective value. The search loop
// stops at the first one.
type EvaluationError struct {
	Params space.Params
	Value  float64
}

func (e *EvaluationError) Error() string {
	return "objective: non-finite value " + strconv.FormatFloat(e.Value, 'g', -1, 64) +
		" for " + e.Params.String()
}

// Invoker calls a bound objective with parameter sets drawn from a space.
type Invoker struct {
	space      *space.Space
	convention Convention
	call       func(ctx context.Context, p space.Params) (float64, error)
	bindErr    error
}

// Bind resolves the calling convention of fn against sp. Shape problems
// are not reported here: they return from the first Invoke as an
// *InvocationError.
func Bind(sp *space.Space, fn any) *Invoker {
	inv := &Invoker{space: sp}
	switch f := fn.(type) {
	case nil:
		inv.bindErr = &InvocationError{Type: "<nil>", Reason: "objective is nil"}
	case func(space.Params) float64:
		inv.convention = ConventionParams
		inv.call = func(_ context.Context, p space.Params) (float64, error) {
			return f(p), nil
		}
	case func(space.Params) (float64, error):
		inv.convention = ConventionParams
		inv.call = func(_ context.Context, p space.Params) (float64, error) {
			return f(p)
		}
	case func(context.Context, space.Params) (float64, error):
		inv.convention = ConventionParams
		inv.call = f
	case func(map[string]any) float64:
		inv.convention = ConventionParams
		inv.call = func(_ context.Context, p space.Params) (float64, error) {
			return f(p.Map()), nil
		}
	case func(map[string]any) (float64, error):
		inv.convention = ConventionParams
		inv.call = func(_ context.Context, p space.Params) (float64, error) {
			return f(p.Map())
		}
	case func([]float64) float64:
		inv.convention = ConventionVector
		inv.call = vectorCall(fn, func(xs []float64) (float64, error) {
			return f(xs), nil
		})
	case func([]float64) (float64, error):
		inv.convention = ConventionVector
		inv.call = vectorCall(fn, f)
	case func(...float64) float64:
		inv.convention = ConventionVector
		inv.call = vectorCall(fn, func(xs []float64) (float64, error) {
			return f(xs...), nil
		})
	case func(...float64) (float64, error):
		inv.convention = ConventionVector
		inv.call = vectorCall(fn, func(xs []float64) (float64, error) {
			return f(xs...)
		})
	default:
		inv.convention, inv.call, inv.bindErr = bindPositional(sp, fn)
	}
	return inv
}

// Invoke evaluates p. The first call surfaces any deferred binding
// problem. Non-finite results come back as *EvaluationError; errors
// returned by the callable itself pass through unchanged.
func (inv *Invoker) Invoke(ctx context.Context, p space.Params) (float64, error) {
	if inv.bindErr != nil {
		return 0, inv.bindErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if got, want := len(p), inv.space.Len(); got != want {
		return 0, &InvocationError{
			Type:   "space.Params",
			Reason: "got " + strconv.Itoa(got) + " values for " + strconv.Itoa(want) + " dimensions",
		}
	}
	val, err := inv.call(ctx, p)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val, &EvaluationError{Params: p.Clone(), Value: val}
	}
	return val, nil
}

// Convention reports the calling convention Bind resolved, or "" when
// binding failed.
func (inv *Invoker) Convention() Convention { return inv.convention }

func vectorCall(fn any, f func([]float64) (float64, error)) func(context.Context, space.Params) (float64, error) {
	return func(_ context.Context, p space.Params) (float64, error) {
		xs, err := p.Floats()
		if err != nil {
			return 0, &InvocationError{Type: typeName(fn), Reason: err.Error()}
		}
		return f(xs)
	}
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	float64Type = reflect.TypeOf(float64(0))
)

func bindPositional(sp *space.Space, fn any) (Convention, func(context.Context, space.Params) (float64, error), error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return "", nil, &InvocationError{Type: typeName(fn), Reason: "not a function"}
	}
	switch t.NumOut() {
	case 1:
		if !numericKind(t.Out(0).Kind()) {
			return "", nil, &InvocationError{Type: t.String(), Reason: "return type " + t.Out(0).String() + " is not numeric"}
		}
	case 2:
		if !numericKind(t.Out(0).Kind()) || t.Out(1) != errorType {
			return "", nil, &InvocationError{Type: t.String(), Reason: "two-value returns must be (float64, error)"}
		}
	default:
		return "", nil, &InvocationError{Type: t.String(), Reason: "must return one numeric value, optionally with an error"}
	}
	if t.IsVariadic() {
		return "", nil, &InvocationError{Type: t.String(), Reason: "unsupported variadic signature"}
	}
	if t.NumIn() != sp.Len() {
		return "", nil, &InvocationError{
			Type:   t.String(),
			Reason: "takes " + strconv.Itoa(t.NumIn()) + " arguments, space has " + strconv.Itoa(sp.Len()) + " dimensions",
		}
	}
	call := func(_ context.Context, p space.Params) (float64, error) {
		args := make([]reflect.Value, len(p))
		for i, pr := range p {
			av, err := positionalArg(pr.Value, t.In(i))
			if err != nil {
				return 0, &InvocationError{
					Type:   t.String(),
					Reason: "argument " + strconv.Itoa(i) + " (" + pr.Name + "): " + err.Error(),
				}
			}
			args[i] = av
		}
		out := v.Call(args)
		val := out[0].Convert(float64Type).Float()
		if len(out) == 2 && !out[1].IsNil() {
			return val, out[1].Interface().(error)
		}
		return val, nil
	}
	return ConventionPositional, call, nil
}

func positionalArg(val any, t reflect.Type) (reflect.Value, error) {
	if val == nil {
		if t.Kind() == reflect.Interface {
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot pass nil as %s", t)
	}
	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if numericKind(rv.Kind()) && numericKind(t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), t)
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
