package model

import (
	"errors"
	"fmt"
)

// DuplicateSourceError is returned when a filename is already registered.
type DuplicateSourceError struct {
	Filename string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("source report already registered: %s", e.Filename)
}

// UnknownSourceError is returned when a source report id does not resolve.
type UnknownSourceError struct {
	ID int64
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("source report not found: %d", e.ID)
}

// ValidationError is returned for out-of-range or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError is returned when a status change would move a source
// report backwards or across terminal states.
type TransitionError struct {
	ID   int64
	From SourceStatus
	To   SourceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("source report %d: cannot transition from %s to %s", e.ID, e.From, e.To)
}

// IsDuplicateSource reports whether err (or any error in its chain) is a DuplicateSourceError.
func IsDuplicateSource(err error) bool {
	var e *DuplicateSourceError
	return errors.As(err, &e)
}

// IsUnknownSource reports whether err (or any error in its chain) is an UnknownSourceError.
func IsUnknownSource(err error) bool {
	var e *UnknownSourceError
	return errors.As(err, &e)
}

// IsValidation reports whether err (or any error in its chain) is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsTransition reports whether err (or any error in its chain) is a TransitionError.
func IsTransition(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}
