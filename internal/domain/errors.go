package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrStaleState              = errors.New("audit state changed since it was read")
	ErrDocumentVersionMismatch = errors.New("evaluation does not target the active document version")
	ErrJustificationRequired   = errors.New("justification is required")

	// ErrValidation wraps malformed caller input such as an invalid rule set.
	ErrValidation = errors.New("invalid input")
)

// InvalidStateError is returned for an unknown target state name.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %q", e.State)
}

// ForbiddenError is returned when the actor's role lacks a permission.
type ForbiddenError struct {
	ActorID    string
	Role       Role
	Permission Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %q with role %q lacks permission %q", e.ActorID, e.Role, e.Permission)
}

// TransitionNotAllowedError is returned by manual transitions along an edge
// that does not leave the audit's current state.
type TransitionNotAllowedError struct {
	From State
	To   State
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

// ConfigurationLockedError is returned when a non-admin edits a locked
// threshold configuration.
type ConfigurationLockedError struct {
	ConfigID string
}

func (e *ConfigurationLockedError) Error() string {
	return fmt.Sprintf("threshold configuration %s is locked", e.ConfigID)
}

// ParseWarning records a normalizer field that could not be resolved. It is
// collected, never returned as an error.
type ParseWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("row %d: %s: %s", w.Row, w.Field, w.Message)
}

func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}
