package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors for callers and the HTTP boundary.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNoFeasibleSolution  ErrorKind = "no_feasible_solution"
	KindOptimizationTimeout ErrorKind = "optimization_timeout"
	KindTimeWindowViolation ErrorKind = "time_window_violation"
	KindCapacityViolation   ErrorKind = "capacity_violation"
	KindResourceNotFound    ErrorKind = "resource_not_found"
	KindServiceUnavailable  ErrorKind = "service_unavailable"
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindConflictingUpdate   ErrorKind = "conflicting_update"
	KindInternal            ErrorKind = "internal"
)

// DomainError is the base error type for all domain errors. It carries a kind
// so collaborators can branch on the class of failure without matching
// concrete types.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a domain error of the given kind.
func NewDomainError(kind ErrorKind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// WrapDomainError wraps an underlying error with a kind and message.
func WrapDomainError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind from an error chain.
// Returns KindInternal for errors that are not domain errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	*DomainError
	Field string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		DomainError: &DomainError{
			Kind:    KindInvalidInput,
			Message: fmt.Sprintf("%s: %s", field, message),
		},
		Field: field,
	}
}

// Unwrap exposes the embedded DomainError to errors.As, so KindOf sees
// KindInvalidInput through the wrapper.
func (e *ValidationError) Unwrap() error {
	return e.DomainError
}

// NotFoundError reports a missing entity by type and id.
type NotFoundError struct {
	*DomainError
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		DomainError: &DomainError{
			Kind:    KindResourceNotFound,
			Message: fmt.Sprintf("%s %s not found", entity, id),
		},
		Entity: entity,
		ID:     id,
	}
}

// Unwrap exposes the embedded DomainError to errors.As, so KindOf sees
// KindResourceNotFound through the wrapper.
func (e *NotFoundError) Unwrap() error {
	return e.DomainError
}
