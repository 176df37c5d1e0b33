package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// paramString reads one string parameter.
// Params: params map and key.
// Returns: trimmed string and presence flag.
func paramString(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false
	}
	switch typed := raw.(type) {
	case string:
		return strings.TrimSpace(typed), true
	case fmt.Stringer:
		return strings.TrimSpace(typed.String()), true
	case int, int64, float64:
		return fmt.Sprint(typed), true
	default:
		return "", false
	}
}

// requireString reads a mandatory non-empty string parameter.
func requireString(params map[string]any, key string) (string, error) {
	value, ok := paramString(params, key)
	if !ok || value == "" {
		return "", fmt.Errorf("param %q is required", key)
	}
	return value, nil
}

// paramFloat reads one numeric parameter; TOML integers and numeric strings are accepted.
// Params: params map and key.
// Returns: float value, presence flag, and conversion error.
func paramFloat(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	var value float64
	switch typed := raw.(type) {
	case float64:
		value = typed
	case float32:
		value = float64(typed)
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	case int32:
		value = float64(typed)
	case uint64:
		value = float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, true, fmt.Errorf("param %q must be numeric: %w", key, err)
		}
		value = parsed
	default:
		return 0, true, fmt.Errorf("param %q must be numeric, got %T", key, raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, true, fmt.Errorf("param %q must be finite", key)
	}
	return value, true, nil
}

// requireFloat reads a mandatory numeric parameter.
func requireFloat(params map[string]any, key string) (float64, error) {
	value, ok, err := paramFloat(params, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("param %q is required", key)
	}
	return value, nil
}
