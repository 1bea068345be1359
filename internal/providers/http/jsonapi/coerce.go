package jsonapi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Object is a decoded JSON object
type Object = map[string]any

// Array is a decoded JSON array
type Array = []any

// String returns v when it is a non-empty string
func String(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Int coerces a JSON number or numeric string to an integer
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		return parseInt(string(n))
	case string:
		return parseInt(strings.TrimSpace(n))
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func parseInt(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatToInt(f)
}

// floatToInt accepts only integral values inside the int64 range. 2^63 is
// exactly representable as a float64 and already overflows.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Float coerces a JSON number or numeric string to a float
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Bool coerces booleans, numbers and strings. Strings are true when they
// start with y, t or a non-zero digit, so "yes", "True" and "1" all count.
func Bool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case json.Number:
		f, err := b.Float64()
		return f != 0, err == nil
	case float64:
		return b != 0, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case string:
		s := strings.TrimLeft(b, " \t\n+-0")
		if s == "" {
			return false, true
		}
		switch s[0] {
		case 'y', 'Y', 't', 'T', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			return true, true
		}
		return false, true
	default:
		return false, false
	}
}

// ObjectOf returns v when it is a JSON object
func ObjectOf(v any) (Object, bool) {
	o, ok := v.(map[string]any)
	return o, ok
}

// ArrayOf returns v when it is a JSON array
func ArrayOf(v any) (Array, bool) {
	a, ok := v.([]any)
	return a, ok
}

// ObjectArray returns v when it is an array whose elements are all objects
func ObjectArray(v any) ([]Object, bool) {
	arr, ok := v.([]any)
	if !ok {
		if objs, ok := v.([]Object); ok {
			return objs, true
		}
		return nil, false
	}
	out := make([]Object, 0, len(arr))
	for _, item := range arr {
		o, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, o)
	}
	return out, true
}
