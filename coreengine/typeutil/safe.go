// Package typeutil reads loosely typed values, as produced by JSON, YAML or
// protobuf Struct decoding, without panicking on unexpected types.
package typeutil

import (
	"math"
)

// Int converts value to int. JSON numbers arrive as float64; fractional
// values are rejected rather than truncated.
func Int(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Float64 converts value to float64.
func Float64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// String asserts value to string.
func String(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

// Bool asserts value to bool.
func Bool(value any) (bool, bool) {
	b, ok := value.(bool)
	return b, ok
}

// Strings converts []string or a []any holding only strings.
func Strings(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Map asserts value to map[string]any.
func Map(value any) (map[string]any, bool) {
	m, ok := value.(map[string]any)
	return m, ok && m != nil
}

// =============================================================================
// Keyed lookups
// =============================================================================

// LookupInt reads m[key] as an int.
func LookupInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return Int(v)
}

// LookupFloat64 reads m[key] as a float64.
func LookupFloat64(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return Float64(v)
}

// LookupString reads m[key] as a string.
func LookupString(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return String(v)
}

// LookupBool reads m[key] as a bool.
func LookupBool(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	return Bool(v)
}

// LookupStrings reads m[key] as a string slice.
func LookupStrings(m map[string]any, key string) ([]string, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return Strings(v)
}

// LookupMap reads m[key] as a nested map.
func LookupMap(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return Map(v)
}
