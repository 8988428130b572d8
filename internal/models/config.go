package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CameraConfig is the semi-structured per-camera configuration blob. Values
// arrive from JSON columns, so nested levels decode as map[string]any and
// numbers as float64. Accessors are total: missing keys, nil maps, and
// unexpected value types all read as the empty string.
type CameraConfig map[string]any

// String walks the given key path through nested maps and renders the leaf as
// a string. Numeric leaves render canonically (554, not 554.0).
func (c CameraConfig) String(path ...string) string {
	if len(path) == 0 {
		return ""
	}
	var current any = map[string]any(c)
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			if nested, isConfig := current.(CameraConfig); isConfig {
				node = map[string]any(nested)
			} else {
				return ""
			}
		}
		current, ok = node[key]
		if !ok {
			return ""
		}
	}
	return stringifyValue(current)
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Clone returns a shallow copy one level deep, enough for copy-on-write
// updates of top-level keys.
func (c CameraConfig) Clone() CameraConfig {
	if c == nil {
		return nil
	}
	out := make(CameraConfig, len(c))
	for key, value := range c {
		out[key] = value
	}
	return out
}
