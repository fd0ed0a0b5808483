// Package mapsafe reads typed values out of loosely typed option bags, such as
// the per-family `options` blocks of the configuration file.
package mapsafe

import "time"

// Get retrieves a typed value from a map[string]any.
// If the key is missing or the type cannot be converted, it returns the default value.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		if n, ok := toFloat(val); ok {
			return any(int(n)).(T)
		}
	case float64:
		if n, ok := toFloat(val); ok {
			return any(n).(T)
		}
	case string:
		if s, ok := val.(string); ok {
			return any(s).(T)
		}
	case bool:
		if b, ok := val.(bool); ok {
			return any(b).(T)
		}
	case time.Duration:
		switch x := val.(type) {
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				return any(d).(T)
			}
		default:
			// bare numbers are seconds
			if n, ok := toFloat(x); ok {
				return any(time.Duration(n * float64(time.Second))).(T)
			}
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}

	return defaultValue
}

// toFloat widens the numeric types produced by YAML and JSON decoders.
func toFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
