// Package errs contains sentinel and typed errors shared by the repository,
// service and transport layers so each layer can map them without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested person, user or content does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (handle or username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidIdentifier indicates a raw account identifier failed shape validation.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidProfile indicates a profile (and thus its person) failed validation.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrTimeout indicates the remote fetch did not finish before the deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTransport indicates the remote pod could not be reached or answered garbage.
	ErrTransport = errors.New("transport failure")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
)

// ResolutionError reports why a handle could not be resolved to a person.
// Kind is ErrNotFound or ErrTimeout; Cause keeps the underlying failure, if any.
type ResolutionError struct {
	Kind   error
	Handle string
	Cause  error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolve %q: %v: %v", e.Handle, e.Kind, e.Cause)
	}
	return fmt.Sprintf("resolve %q: %v", e.Handle, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *ResolutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NotResolved builds a ResolutionError of kind ErrNotFound.
func NotResolved(handle string, cause error) *ResolutionError {
	return &ResolutionError{Kind: ErrNotFound, Handle: handle, Cause: cause}
}

// TimedOut builds a ResolutionError of kind ErrTimeout.
func TimedOut(handle string, cause error) *ResolutionError {
	return &ResolutionError{Kind: ErrTimeout, Handle: handle, Cause: cause}
}

// FieldError names the field that made a profile invalid.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap makes every FieldError match ErrInvalidProfile.
func (e *FieldError) Unwrap() error { return ErrInvalidProfile }
