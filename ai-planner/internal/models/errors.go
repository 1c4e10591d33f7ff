package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a context key was never stored or has been purged.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed request at the ingestion boundary.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Msg)
}

// CollaboratorFault wraps an unexpected failure in a dependency of the pipeline,
// such as the capability catalog or the context store backend.
type CollaboratorFault struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorFault) Error() string {
	return fmt.Sprintf("%s fault: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorFault) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsCollaboratorFault(err error) bool {
	var f *CollaboratorFault
	return errors.As(err, &f)
}
