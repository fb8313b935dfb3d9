package extractor

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Payload is a decoded provider document of unknown shape.
type Payload = map[string]any

// Lookup walks nested objects along path and returns the value found there.
func Lookup(payload Payload, path ...string) (any, bool) {
	var current any = payload

	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[key]
		if !ok {
			return nil, false
		}
	}

	return current, current != nil
}

// LookupString returns the string at path, or "" when it is missing or not a string.
func LookupString(payload Payload, path ...string) string {
	value, ok := Lookup(payload, path...)
	if !ok {
		return ""
	}

	text, ok := value.(string)
	if !ok {
		return ""
	}

	return text
}

// Object returns the nested object at path.
func Object(payload Payload, path ...string) (Payload, bool) {
	value, ok := Lookup(payload, path...)
	if !ok {
		return nil, false
	}

	object, ok := value.(map[string]any)

	return object, ok
}

type floatNumber interface {
	Float64() (float64, error)
}

// Number reads a JSON number or a numeric string.
func Number(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, !math.IsNaN(typed)
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}

		return parsed, true
	case floatNumber:
		parsed, err := typed.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

// truthy follows the loose truth rules of the provider's own tooling:
// empty strings, zero, false and null are all "absent".
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case string:
		return typed != ""
	case bool:
		return typed
	default:
		number, ok := Number(typed)
		if ok {
			return number != 0
		}

		return true
	}
}

// stringify renders a value as text, encoding anything that is not already a string as JSON.
func stringify(value any) string {
	text, ok := value.(string)
	if ok {
		return text
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	return string(encoded)
}
