package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the public usecase operations matches
// exactly one of these with errors.Is.
var (
	// ErrValidation is returned for bad input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for duplicate ids and invalid status transitions.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a job or batch id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrExternalService is returned when the generation provider fails
	// (network, 429, 5xx, timeout) or an unexpected internal failure occurs.
	ErrExternalService = errors.New("external service error")
)

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = fmt.Errorf("job %w", ErrNotFound)

	// ErrBatchNotFound is returned when a batch cannot be found by ID.
	ErrBatchNotFound = fmt.Errorf("batch %w", ErrNotFound)

	// ErrDuplicateJob is returned when a job with the same ID already exists.
	ErrDuplicateJob = fmt.Errorf("%w: job already exists", ErrConflict)

	// ErrDuplicateBatch is returned when a batch with the same ID already exists.
	ErrDuplicateBatch = fmt.Errorf("%w: batch already exists", ErrConflict)

	// ErrInvalidTransition is returned when a status change is not in the transition table.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	// ErrJobTerminal is returned when an operation requires a non-terminal job.
	ErrJobTerminal = fmt.Errorf("%w: job is in a terminal state", ErrConflict)

	// ErrBatchTerminal is returned when an operation requires a non-terminal batch.
	ErrBatchTerminal = fmt.Errorf("%w: batch is in a terminal state", ErrConflict)

	// ErrResultRequired is returned when a job would complete without a result.
	ErrResultRequired = fmt.Errorf("%w: completed job requires a result", ErrConflict)

	// ErrResultNotAllowed is returned when a result is attached to a job that is not completed.
	ErrResultNotAllowed = fmt.Errorf("%w: result is only allowed on completed jobs", ErrConflict)

	// ErrErrorRequired is returned when a job would fail without an error message.
	ErrErrorRequired = fmt.Errorf("%w: failed job requires an error message", ErrConflict)

	// ErrErrorNotAllowed is returned when an error is attached to a job that is not failed.
	ErrErrorNotAllowed = fmt.Errorf("%w: error is only allowed on failed jobs", ErrConflict)

	// ErrExternalIDImmutable is returned when a job's external id would be replaced.
	ErrExternalIDImmutable = fmt.Errorf("%w: external id is already set", ErrConflict)

	// ErrResultNotReady is returned when a result is requested before completion.
	ErrResultNotReady = fmt.Errorf("%w: video result is not available", ErrConflict)
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind reports which of the four error kinds err belongs to, or "" if none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	}
	return ""
}
