// Package convert provides the registry of bidirectional converters between native Go
// values and the primitive values carried on the wire.
package convert

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/internal/codes"
)

// ErrConversion is returned when a value has no applicable converter and does not already
// match the requested type.
var ErrConversion = codes.New(codes.Conversion, "searchodm: conversion error")

type key struct {
	from, to reflect.Type
}

type convertFunc func(any) (any, error)

// Registry holds converter pairs. Caller-registered pairs take precedence over built-ins.
// Registration must complete before first use; after that a Registry is safe for
// concurrent use.
type Registry struct {
	custom  map[key]convertFunc
	builtin map[key]convertFunc

	customWire  map[reflect.Type]reflect.Type
	builtinWire map[reflect.Type]reflect.Type
}

// New creates a registry with the built-in pairs registered.
func New() *Registry {
	r := Empty()
	registerBuiltins(r)
	return r
}

// Empty creates a registry without any pairs.
func Empty() *Registry {
	return &Registry{
		custom:      make(map[key]convertFunc),
		builtin:     make(map[key]convertFunc),
		customWire:  make(map[reflect.Type]reflect.Type),
		builtinWire: make(map[reflect.Type]reflect.Type),
	}
}

// Register adds a converter pair between native type N and wire type W.
// Registering the same pair again replaces the earlier registration.
func Register[N, W any](r *Registry, toWire func(N) (W, error), fromWire func(W) (N, error)) {
	n, w := reflect.TypeFor[N](), reflect.TypeFor[W]()
	r.custom[key{n, w}] = wrap(toWire)
	r.custom[key{w, n}] = wrap(fromWire)
	r.customWire[n] = w
}

func registerBuiltin[N, W any](r *Registry, toWire func(N) (W, error), fromWire func(W) (N, error)) {
	n, w := reflect.TypeFor[N](), reflect.TypeFor[W]()
	r.builtin[key{n, w}] = wrap(toWire)
	r.builtin[key{w, n}] = wrap(fromWire)
	r.builtinWire[n] = w
}

// registerBuiltinFrom adds a one-way conversion used when reading wire values.
func registerBuiltinFrom[W, N any](r *Registry, fn func(W) (N, error)) {
	r.builtin[key{reflect.TypeFor[W](), reflect.TypeFor[N]()}] = wrap(fn)
}

func wrap[S, T any](fn func(S) (T, error)) convertFunc {
	return func(v any) (any, error) {
		s, ok := v.(S)
		if !ok {
			return nil, errors.Wrapf(ErrConversion, "expected %s, got %T", reflect.TypeFor[S](), v)
		}
		return fn(s)
	}
}

// WireType returns the wire type registered for a native type.
func (r *Registry) WireType(native reflect.Type) (reflect.Type, bool) {
	if w, ok := r.customWire[native]; ok {
		return w, true
	}
	w, ok := r.builtinWire[native]
	return w, ok
}

// ToWire converts a native value to its registered wire type.
// Values whose type has no registered pair are returned unchanged.
func (r *Registry) ToWire(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	w, ok := r.WireType(reflect.TypeOf(value))
	if !ok {
		return value, nil
	}
	return r.Convert(value, w)
}

// Convert converts value to the target type.
//
// Lookup order: a caller-registered pair for (typeof(value), target), a built-in pair,
// identity when the value already is (or is assignable to) target, numeric coercion of
// JSON numbers, and finally a hop through target's registered wire type.
// nil converts to nil.
func (r *Registry) Convert(value any, target reflect.Type) (any, error) {
	return r.convert(value, target, false)
}

// convert takes at most one wire-type hop so pairs registered in both directions
// cannot recurse forever.
func (r *Registry) convert(value any, target reflect.Type, hopped bool) (any, error) {
	if value == nil {
		return nil, nil
	}
	src := reflect.TypeOf(value)
	k := key{src, target}

	if fn, ok := r.custom[k]; ok {
		return call(fn, value, src, target)
	}
	if fn, ok := r.builtin[k]; ok {
		return call(fn, value, src, target)
	}
	if v, ok := identity(value, src, target); ok {
		return v, nil
	}
	if v, ok, err := coerceNumber(value, target); ok || err != nil {
		return v, err
	}

	// A wire value of a different primitive type, e.g. a JSON number read back into a
	// type whose wire form is float64.
	if w, ok := r.WireType(target); ok && w != src && !hopped {
		mid, err := r.convert(value, w, true)
		if err != nil {
			return nil, err
		}
		if reflect.TypeOf(mid) == w {
			return r.convert(mid, target, true)
		}
	}

	return nil, errors.Wrapf(ErrConversion, "no converter from %s to %s", src, target)
}

func call(fn convertFunc, value any, src, target reflect.Type) (any, error) {
	out, err := fn(value)
	if err != nil {
		if errors.Is(err, ErrConversion) {
			return nil, err
		}
		return nil, errors.WithSecondaryError(
			errors.Wrapf(ErrConversion, "convert %s to %s", src, target),
			err,
		)
	}
	return out, nil
}

func identity(value any, src, target reflect.Type) (any, bool) {
	if src == target {
		return value, true
	}
	if target.Kind() == reflect.Interface && src.Implements(target) {
		return value, true
	}
	// Named types over the same primitive kind, e.g. string -> Genre.
	if src.Kind() == target.Kind() && isPrimitive(src.Kind()) && src.ConvertibleTo(target) {
		return reflect.ValueOf(value).Convert(target).Interface(), true
	}
	return nil, false
}

func isPrimitive(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// coerceNumber converts numeric values (json.Number included) into numeric target kinds.
func coerceNumber(value any, target reflect.Type) (any, bool, error) {
	if !isNumericKind(target.Kind()) {
		return nil, false, nil
	}

	var f float64
	var i int64
	var isInt bool

	switch v := value.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			i, isInt, f = n, true, float64(n)
		} else {
			parsed, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return nil, false, errors.Wrapf(ErrConversion, "invalid number %q", string(v))
			}
			f = parsed
		}
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.CanInt():
			i, isInt, f = rv.Int(), true, float64(rv.Int())
		case rv.CanUint():
			u := rv.Uint()
			if u > math.MaxInt64 {
				f = float64(u)
			} else {
				i, isInt, f = int64(u), true, float64(u)
			}
		case rv.CanFloat():
			f = rv.Float()
		default:
			return nil, false, nil
		}
	}

	out := reflect.New(target).Elem()
	switch {
	case out.CanInt():
		if !isInt {
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, false, errors.Wrapf(ErrConversion, "%v is not representable as %s", value, target)
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return nil, false, errors.Wrapf(ErrConversion, "%v overflows %s", value, target)
		}
		out.SetInt(i)
	case out.CanUint():
		if !isInt {
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return nil, false, errors.Wrapf(ErrConversion, "%v is not representable as %s", value, target)
			}
			i = int64(f)
		}
		if i < 0 || out.OverflowUint(uint64(i)) {
			return nil, false, errors.Wrapf(ErrConversion, "%v overflows %s", value, target)
		}
		out.SetUint(uint64(i))
	case out.CanFloat():
		if out.OverflowFloat(f) {
			return nil, false, errors.Wrapf(ErrConversion, "%v overflows %s", value, target)
		}
		out.SetFloat(f)
	}
	return out.Interface(), true, nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
