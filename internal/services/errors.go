package services

import (
	"errors"
	"fmt"
	"strings"

	"teamup/internal/docstore"
)

var (
	// ErrNotFound is returned when a referenced entity is absent
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a create collides with an existing id
	ErrAlreadyExists = errors.New("already exists")
	// ErrMissingField is returned before any write when a mandatory input is absent
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidInput is returned for malformed payloads
	ErrInvalidInput = errors.New("invalid input")
	// ErrInconsistent marks a root/mirror or wishlist divergence. It is logged
	// and counted, never returned to end users.
	ErrInconsistent = errors.New("inconsistent state")
	// ErrStoreUnavailable wraps transport and infrastructure failures
	ErrStoreUnavailable = errors.New("store unavailable")
)

// MissingFieldError names the absent input
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

func missingField(field string) error {
	return &MissingFieldError{Field: field}
}

// PartialFailureError reports a multi-step operation that failed after some
// of its steps had already committed. Retrying the operation is safe.
type PartialFailureError struct {
	Op        string
	Completed []string
	Err       error
}

func (e *PartialFailureError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed after [%s]: %v", e.Op, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// storeErr maps docstore errors onto the service taxonomy, keeping the
// original error in the chain.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, docstore.ErrAlreadyExists):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrAlreadyExists, err))
	case errors.Is(err, docstore.ErrInvalidArgument):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrInvalidInput, err))
	default:
		return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
	}
}
