package api

import (
	"maps"
	"slices"
)

type (
	// Args represents a map of named values passed to or returned from
	// functions and workflows
	Args map[Name]any

	// Name is a string identifier for parameters and outputs
	Name string
)

// Set creates a new Args with the specified name-value pair added
func (a Args) Set(name Name, value any) Args {
	if a == nil {
		return Args{name: value}
	}
	res := maps.Clone(a)
	res[name] = value
	return res
}

// GetString retrieves a string value from args, returning defaultValue if not
// found or wrong type
func (a Args) GetString(name Name, defaultValue string) string {
	val, ok := a[name]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}

// GetBool retrieves a boolean value from args, returning defaultValue if not
// found or wrong type
func (a Args) GetBool(name Name, defaultValue bool) bool {
	val, ok := a[name]
	if !ok {
		return defaultValue
	}
	b, ok := val.(bool)
	if !ok {
		return defaultValue
	}
	return b
}

// GetInt retrieves an integer value from args, returning defaultValue if not
// found or wrong type. Supports both int and float64 (converting from JSON
// numbers)
func (a Args) GetInt(name Name, defaultValue int) int {
	val, ok := a[name]
	if !ok {
		return defaultValue
	}
	if i, ok := val.(int); ok {
		return i
	}
	if f, ok := val.(float64); ok {
		return int(f)
	}
	return defaultValue
}

// GetFloat retrieves a numeric value from args as a float64, returning
// defaultValue and false if not found or not numeric
func (a Args) GetFloat(name Name, defaultValue float64) (float64, bool) {
	val, ok := a[name]
	if !ok {
		return defaultValue, false
	}
	if f, ok := ToFloat(val); ok {
		return f, true
	}
	return defaultValue, false
}

// GetSlice retrieves a slice value from args, returning nil and false if not
// found or wrong type
func (a Args) GetSlice(name Name) ([]any, bool) {
	val, ok := a[name]
	if !ok {
		return nil, false
	}
	s, ok := val.([]any)
	return s, ok
}

// Names returns the argument names in sorted order
func (a Args) Names() []Name {
	return slices.Sorted(maps.Keys(a))
}

// Clone returns a deep copy of the args
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	res := make(Args, len(a))
	for k, v := range a {
		res[k] = CloneValue(v)
	}
	return res
}

// ToFloat converts any Go numeric value to a float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CloneValue deep copies the JSON-shaped containers within a value. Scalars
// and other types are returned as-is
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(t))
		for k, val := range t {
			res[k] = CloneValue(val)
		}
		return res
	case Args:
		return t.Clone()
	case []any:
		res := make([]any, len(t))
		for i, val := range t {
			res[i] = CloneValue(val)
		}
		return res
	default:
		return v
	}
}
