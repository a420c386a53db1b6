package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Well-known parameter names read by the orchestrator.
const (
	ParamNeedsCamera    = "NeedsCamera"
	ParamNeedsStage     = "NeedsTranslationStage"
	ParamNeedsAnalysis  = "NeedsAnalysis"
	ParamAbsAnalysis    = "AbsAnalysis" // legacy spelling of ParamNeedsAnalysis
	ParamPatternLength  = "PatternLength"
	ParamNumberOfFrames = "NumberOfFrames"
	ParamTSAcceleration = "TSAcceleration"
	ParamTSDeceleration = "TSDeceleration"
	ParamTSDistance     = "TSDistance"
	ParamTSVelocity     = "TSVelocity"
)

// ParameterSet maps parameter names to values.
// Values arrive from Go code, YAML, JSON (json.Number) and CUE, so accessors
// accept every numeric shape those sources produce.
type ParameterSet map[string]any

// Has reports whether key is present.
func (p ParameterSet) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Flag reads a gating boolean. A missing or non-boolean value reads as false.
func (p ParameterSet) Flag(key string) bool {
	v, ok := p[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

// Int reads an integer parameter.
func (p ParameterSet) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q is not set", key)
	}
	i, err := ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return i, nil
}

// Float reads a numeric parameter as float64.
func (p ParameterSet) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q is not set", key)
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return f, nil
}

// String reads a string parameter.
func (p ParameterSet) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("parameter %q is not set", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Keys returns the parameter names in sorted order.
func (p ParameterSet) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers never share nested maps or slices.
func (p ParameterSet) Clone() ParameterSet {
	if p == nil {
		return ParameterSet{}
	}
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a new set where every key of overrides replaces the receiver's value.
// Keys absent from overrides keep their current value; keys only in overrides are added.
func (p ParameterSet) Merge(overrides map[string]any) ParameterSet {
	out := p.Clone()
	for k, v := range overrides {
		out[k] = cloneValue(v)
	}
	return out
}

// Normalize converts every value to a canonical Go type:
// int for whole integers, float64 for other numbers, bool, string,
// and recursively normalized maps and slices.
func (p ParameterSet) Normalize() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = normalizeValue(v)
	}
	return out
}

// ToInt converts an integral value of any numeric shape to int.
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int", n)
		}
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int", n)
		}
		return int(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", n.String())
		}
		return floatToInt(f)
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected int, got float %v (not a whole number)", f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("value %v overflows int", f)
	}
	return int(f), nil
}

// ToFloat converts any numeric shape to float64.
func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n.String())
		}
		return f, nil
	default:
		i, err := ToInt(v)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %T", v)
		}
		return float64(i), nil
	}
}

// IsNumber reports whether v is any numeric shape.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float32:
		return float64(n)
	case float64, bool, string, nil:
		return n
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		if i, err := ToInt(v); err == nil {
			return i
		}
		return v
	}
}

func cloneValue(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = cloneValue(e)
		}
		return out
	case ParameterSet:
		return n.Clone()
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
