package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrNotFound) matches any NOT_FOUND error regardless of message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeReferralCycle          = "REFERRAL_CYCLE"
	CodeAlreadySet             = "ALREADY_SET"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
)

// Common domain errors
var (
	ErrNotFound               = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists          = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrValidation             = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidStateTransition = NewDomainError(CodeInvalidStateTransition, "Transition not allowed from current state")
	ErrReferralCycle          = NewDomainError(CodeReferralCycle, "Referral would create a cycle")
	ErrAlreadySet             = NewDomainError(CodeAlreadySet, "Value has already been set")
	ErrConcurrencyConflict    = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// NewNotFoundError returns a NOT_FOUND error naming the missing entity
func NewNotFoundError(entity string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %v not found", entity, id))
}

// NewValidationError returns a VALIDATION_ERROR with the given message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewInvalidStateTransitionError describes an illegal move between two states
func NewInvalidStateTransitionError(entity, from, to string) *DomainError {
	return NewDomainError(CodeInvalidStateTransition,
		fmt.Sprintf("cannot transition %s from %s to %s", entity, from, to))
}

// NewConcurrencyConflictError reports a lost optimistic lock on the named entity
func NewConcurrencyConflictError(entity string) *DomainError {
	return NewDomainError(CodeConcurrencyConflict,
		fmt.Sprintf("The %s has been modified by another transaction", entity))
}
