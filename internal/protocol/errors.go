package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is wrapped by every DecodeError
	ErrMalformed = errors.New("malformed event")

	// ErrInvalidEvent is wrapped by every ValidationError
	ErrInvalidEvent = errors.New("invalid event")

	ErrUnknownEventType = errors.New("unknown event type")
)

// DecodeError reports a payload that is not a well-formed envelope
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// ValidationError reports a well-formed envelope of a known type whose data
// lacks a required field
type ValidationError struct {
	Type  Type
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s event: missing %q", e.Type, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}
