package model

import (
	"fmt"

	"stackml/pkg/core"
)

// Params holds estimator hyperparameters by name.
type Params map[string]any

// Copy returns a shallow copy of p.
func (p Params) Copy() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ToFloat converts a numeric parameter value.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("want a number, got %T", v)
}

// ToInt converts an integral parameter value; fractional floats are rejected.
func ToInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("want an integer, got %v", x)
		}
		return int(x), nil
	}
	return 0, fmt.Errorf("want an integer, got %T", v)
}

func ToBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("want a bool, got %T", v)
	}
	return b, nil
}

func paramError(kind, key string, err error) error {
	return core.Configuration("set_params", "%s: %s: %v", kind, key, err)
}

func unknownParam(kind, key string) error {
	return core.Configuration("set_params", "%s has no parameter %q", kind, key)
}
