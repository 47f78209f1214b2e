package router

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxVectorComponent bounds the magnitude of every number returned by
// Vector.
const MaxVectorComponent = 1e9

// Params are the named arguments of a command.
type Params map[string]any

// Has reports whether key is present and not null.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Expect rejects any parameter whose name is not in allowed.
func (p Params) Expect(allowed ...string) error {
	var unexpected []string
	for key := range p {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) == 0 {
		return nil
	}
	sort.Strings(unexpected)
	return fmt.Errorf("unexpected parameter '%s'", strings.Join(unexpected, "', '"))
}

// String returns a required string parameter.
func (p Params) String(key string) (string, error) {
	if !p.Has(key) {
		return "", missing(key)
	}
	s, ok := p[key].(string)
	if !ok {
		return "", wrongType(key, "a string")
	}
	return s, nil
}

// StringOr returns a string parameter, or def when it is absent.
func (p Params) StringOr(key, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.String(key)
}

// Float returns a required numeric parameter.
func (p Params) Float(key string) (float64, error) {
	if !p.Has(key) {
		return 0, missing(key)
	}
	f, ok := toFloat(p[key])
	if !ok {
		return 0, wrongType(key, "a number")
	}
	return f, nil
}

// FloatOr returns a numeric parameter, or def when it is absent.
func (p Params) FloatOr(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Float(key)
}

// Int returns a required integer parameter.
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, wrongType(key, "an integer")
	}
	if f < math.MinInt || f >= math.MaxInt {
		return 0, fmt.Errorf("parameter '%s' is out of range", key)
	}
	return int(f), nil
}

// IntOr returns an integer parameter, or def when it is absent.
func (p Params) IntOr(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Int(key)
}

// Bool returns a required boolean parameter.
func (p Params) Bool(key string) (bool, error) {
	if !p.Has(key) {
		return false, missing(key)
	}
	b, ok := p[key].(bool)
	if !ok {
		return false, wrongType(key, "a boolean")
	}
	return b, nil
}

// BoolOr returns a boolean parameter, or def when it is absent.
func (p Params) BoolOr(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Bool(key)
}

// Vector returns a required list of exactly n numbers.
func (p Params) Vector(key string, n int) ([]float64, error) {
	if !p.Has(key) {
		return nil, missing(key)
	}
	list, ok := p[key].([]any)
	if !ok || len(list) != n {
		return nil, wrongType(key, fmt.Sprintf("a list of %d numbers", n))
	}
	out := make([]float64, n)
	for i, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil, wrongType(key, fmt.Sprintf("a list of %d numbers", n))
		}
		if !ValidComponent(f) {
			return nil, fmt.Errorf("parameter '%s' values must be within ±%g", key, MaxVectorComponent)
		}
		out[i] = f
	}
	return out, nil
}

// VectorOr returns a list parameter of len(def) numbers, or a copy of def
// when it is absent.
func (p Params) VectorOr(key string, def []float64) ([]float64, error) {
	if !p.Has(key) {
		return append([]float64(nil), def...), nil
	}
	return p.Vector(key, len(def))
}

// Floats returns an optional list of numbers of any length.
func (p Params) Floats(key string) ([]float64, error) {
	if !p.Has(key) {
		return nil, nil
	}
	list, ok := p[key].([]any)
	if !ok {
		return nil, wrongType(key, "a list of numbers")
	}
	out := make([]float64, 0, len(list))
	for _, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil, wrongType(key, "a list of numbers")
		}
		out = append(out, f)
	}
	return out, nil
}

// StringSlice returns an optional list of strings.
func (p Params) StringSlice(key string) ([]string, error) {
	if !p.Has(key) {
		return nil, nil
	}
	list, ok := p[key].([]any)
	if !ok {
		return nil, wrongType(key, "a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, wrongType(key, "a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// ValidComponent reports whether f is finite and no larger in magnitude
// than MaxVectorComponent.
func ValidComponent(f float64) bool {
	return !math.IsNaN(f) && math.Abs(f) <= MaxVectorComponent
}

// toFloat converts a decoded number. NaN and infinities are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func missing(key string) error {
	return fmt.Errorf("missing required parameter '%s'", key)
}

func wrongType(key, want string) error {
	return fmt.Errorf("parameter '%s' must be %s", key, want)
}
