package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReactivationExpired = errors.New("reactivation deadline expired")
	ErrNotFound            = errors.New("not found")
	ErrInvalidID           = errors.New("invalid id")
)

// ValidationError carries every violation found by one operation.
type ValidationError struct {
	Violations []string
}

// NewValidationError wraps violations, returning nil when there are none.
func NewValidationError(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: append([]string(nil), violations...)}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return ErrValidation.Error() + ": " + e.Violations[0]
	}
	return fmt.Sprintf("%s: %d violations: %s", ErrValidation, len(e.Violations), strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError names a status change outside the allowed edge set.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NotAllowedError describes an operation refused in the current status.
type NotAllowedError struct {
	Operation string
	Status    Status
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("%s: %s while %s", ErrOperationNotAllowed, e.Operation, e.Status)
}

func (e *NotAllowedError) Is(target error) bool {
	return target == ErrOperationNotAllowed
}

// Violations extracts the violation list from err, if it carries one.
func Violations(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return append([]string(nil), verr.Violations...)
	}
	return nil
}
