package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInsufficientCatalog is returned when a catalog cannot yield four distinct options.
	ErrInsufficientCatalog = errors.New("catalog has too few distinct entries for a round")
	// ErrRoundAlreadyResolved is returned for a second answer to the same round.
	ErrRoundAlreadyResolved = errors.New("round already resolved")
	// ErrUnknownActivity is returned for an activity kind the service does not offer.
	ErrUnknownActivity = errors.New("unknown activity")
	// ErrSessionNotFound is returned when a user answers without a running activity.
	ErrSessionNotFound = errors.New("activity session not found")
	// ErrSessionComplete is returned when answering after the final round.
	ErrSessionComplete = errors.New("activity session already complete")
	// ErrSessionIncomplete is returned when finalizing before the final round.
	ErrSessionIncomplete = errors.New("activity session not complete")
	// ErrProfileNotFound is returned when mutating a profile that was never created.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrOrganizationNotFound indicates an unknown organization id.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrOrganizationInUse blocks deleting an organization that still has members.
	ErrOrganizationInUse = errors.New("organization has assigned users")
	// ErrForbidden is returned when the actor's authority does not cover the request.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no identity accompanies a request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports invalid input to a create or update call.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(msg string, flds ...FieldError) error {
	return &ValidationError{Err: errors.New(msg), Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	parts := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return err.Err.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (err *ValidationError) Unwrap() error { return err.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
