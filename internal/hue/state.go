package hue

import (
	"encoding/json"
	"reflect"
)

// State field names of a v1 light.
const (
	FieldOn        = "on"
	FieldBri       = "bri"
	FieldHue       = "hue"
	FieldSat       = "sat"
	FieldEffect    = "effect"
	FieldXY        = "xy"
	FieldCT        = "ct"
	FieldAlert     = "alert"
	FieldColorMode = "colormode"
	FieldReachable = "reachable"
)

// State is a light state object as the bridge reports it: field name to
// decoded JSON value (bool, float64, string, []any, map[string]any).
type State map[string]any

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Diff returns the fields of s whose value differs from base.
// Fields missing from base count as changed.
func (s State) Diff(base State) State {
	diff := State{}
	for k, v := range s {
		old, ok := base[k]
		if !ok || !reflect.DeepEqual(v, old) {
			diff[k] = cloneValue(v)
		}
	}
	return diff
}

// Equal reports whether s and other hold the same fields and values.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	return len(s.Diff(other)) == 0
}

// Has reports whether the light reports field.
func (s State) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Bool returns field as a bool, false when absent or of another type.
func (s State) Bool(field string) bool {
	b, _ := s[field].(bool)
	return b
}

// Int returns field as an int, 0 when absent or not a number.
func (s State) Int(field string) int {
	switch v := s[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// String returns field as a string, "" when absent or of another type.
func (s State) String(field string) string {
	str, _ := s[field].(string)
	return str
}

// Floats returns field as a slice of numbers, nil when absent or malformed.
func (s State) Floats(field string) []float64 {
	raw, ok := s[field].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
