package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidationFailed is returned when client input is rejected.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnauthenticated is returned when no valid caller identity is present.
	ErrUnauthenticated = errors.New("authentication credentials were not provided")
	// ErrPermissionDenied is returned when the caller's role or ownership forbids the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is the class of all missing-resource errors.
	ErrNotFound = errors.New("not found")
	// ErrThrottled is returned when the caller exceeded its request rate.
	ErrThrottled = errors.New("request was throttled")

	// ErrEventNotFound is returned when an event does not exist in the account.
	ErrEventNotFound = fmt.Errorf("%w: event", ErrNotFound)
	// ErrEventNotDelivered is returned by ack when the event is missing, belongs to another
	// account, or is not currently delivered.
	ErrEventNotDelivered = fmt.Errorf("%w: event not in delivered status", ErrNotFound)
	// ErrNoResponse is returned when an event exists but has no recorded response.
	ErrNoResponse = fmt.Errorf("%w: event response", ErrNotFound)

	// ErrAlreadyClaimed is returned by the store when a claim lost the race for an event.
	ErrAlreadyClaimed = errors.New("event already claimed")
)

// ValidationError carries per-field messages and unwraps to ErrValidationFailed.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

// Add appends a message for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no field messages were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// Err returns e, or nil when it holds no messages.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}

	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
