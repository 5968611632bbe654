package queue

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to callers as structured failures. Infrastructure
// errors are wrapped with %w and reach the handler as internal errors.
var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrDoctorUnavailable = errors.New("doctor is not available")
	ErrCapacityExceeded  = errors.New("doctor has reached maximum daily patients")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ValidationError marks malformed input (bad identifiers, unknown status
// labels) as distinct from infrastructure failures.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
