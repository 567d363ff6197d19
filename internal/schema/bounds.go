package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jnst/trading-event-queue/internal/model"
)

const (
	// MaxPayloadSize caps the compact JSON encoding of a payload or response, in bytes.
	MaxPayloadSize = 65536
	// MaxNestingDepth caps container nesting; the top-level object is depth 1.
	MaxNestingDepth = 5
)

// DecodeObject parses raw as a JSON object, keeping numbers as json.Number, and enforces
// the size and depth caps before anything else looks at the value. field names the
// input in validation errors.
func DecodeObject(field string, raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, model.NewValidationError(field, "This field is required.")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, model.NewValidationError(field, "Invalid JSON.")
	}
	if compact.Len() > MaxPayloadSize {
		return nil, SizeError(field)
	}

	dec := json.NewDecoder(&compact)
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, model.NewValidationError(field, "Invalid JSON.")
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, model.NewValidationError(field, "Expected a dictionary of items.")
	}

	if err := CheckDepth(field, obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// CheckDepth enforces MaxNestingDepth on an already-decoded object. Values directly
// inside the top-level object sit at depth 1; a value deeper than MaxNestingDepth fails.
// Empty containers add no level of their own.
func CheckDepth(field string, obj map[string]any) error {
	if tooDeep(obj, 0) {
		return model.NewValidationError(field,
			fmt.Sprintf("Payload nesting depth exceeds maximum of %d levels.", MaxNestingDepth))
	}

	return nil
}

// SizeError is the validation failure for an input larger than MaxPayloadSize.
func SizeError(field string) error {
	return model.NewValidationError(field, sizeMessage())
}

func sizeMessage() string {
	return fmt.Sprintf("Payload size exceeds maximum of %d bytes.", MaxPayloadSize)
}

func tooDeep(v any, current int) bool {
	if current > MaxNestingDepth {
		return true
	}

	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if tooDeep(child, current+1) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if tooDeep(child, current+1) {
				return true
			}
		}
	}

	return false
}
