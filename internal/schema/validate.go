package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jnst/trading-event-queue/internal/model"
)

const noPayloadFields = "This event key does not accept any payload fields."

// Validate checks payload against the schema registered for key and returns the
// normalized payload: optional fields that were omitted are present as nil, strings are
// trimmed, numbers are int64 or float64. Fields the schema does not declare are rejected.
// Error field names are prefixed with "payload.".
func Validate(key model.EventKey, payload map[string]any) (map[string]any, error) {
	entry, ok := Lookup(key)
	if !ok {
		return nil, model.NewValidationError("key", fmt.Sprintf("%q is not a valid choice.", key))
	}

	if len(entry.Schema) == 0 {
		if len(payload) > 0 {
			return nil, model.NewValidationError("payload", noPayloadFields)
		}
		return map[string]any{}, nil
	}

	verr := &model.ValidationError{}
	normalized := make(map[string]any, len(entry.Schema))

	for _, field := range entry.Schema {
		raw, present := payload[field.Name]
		if !present || raw == nil {
			switch {
			case field.Required && !present:
				verr.Add("payload."+field.Name, "This field is required.")
			case field.Required:
				verr.Add("payload."+field.Name, "This field may not be null.")
			default:
				normalized[field.Name] = nil
			}
			continue
		}

		value, msg := coerce(field, raw)
		if msg != "" {
			verr.Add("payload."+field.Name, msg)
			continue
		}
		normalized[field.Name] = value
	}

	for name := range payload {
		if !slices.ContainsFunc(entry.Schema, func(f Field) bool { return f.Name == name }) {
			verr.Add("payload."+name, "Unknown field.")
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	return normalized, nil
}

func coerce(field Field, raw any) (any, string) {
	switch field.Type {
	case TypeString:
		return coerceString(field, raw)
	case TypeInteger:
		n, ok := asInteger(raw)
		if !ok {
			return nil, "A valid integer is required."
		}
		return n, checkRange(field, float64(n))
	case TypeFloat:
		f, ok := asFloat(raw)
		if !ok {
			return nil, "A valid number is required."
		}
		return f, checkRange(field, f)
	default:
		return nil, fmt.Sprintf("Unsupported field type %q.", field.Type)
	}
}

func coerceString(field Field, raw any) (any, string) {
	s, ok := raw.(string)
	if !ok {
		return nil, "Not a valid string."
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "This field may not be blank."
	}

	if len(field.Choices) > 0 && !slices.Contains(field.Choices, s) {
		return nil, fmt.Sprintf("%q is not a valid choice.", s)
	}

	if field.MaxLength > 0 && utf8.RuneCountInString(s) > field.MaxLength {
		return nil, fmt.Sprintf("Ensure this field has no more than %d characters.", field.MaxLength)
	}

	return s, ""
}

func checkRange(field Field, v float64) string {
	if field.MinValue != nil && v < *field.MinValue {
		return "Ensure this value is greater than or equal to " + formatNumber(*field.MinValue) + "."
	}
	if field.MaxValue != nil && v > *field.MaxValue {
		return "Ensure this value is less than or equal to " + formatNumber(*field.MaxValue) + "."
	}
	return ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func asInteger(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return asInteger(f)
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil && !math.IsInf(f, 0)
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
