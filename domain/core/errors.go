package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrSessionNotFound    = fmt.Errorf("%w: session", ErrNotFound)
	ErrTargetNotFound     = fmt.Errorf("%w: target", ErrNotFound)
	ErrCommitmentNotFound = fmt.Errorf("%w: commitment", ErrNotFound)

	// Protocol errors
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotYetDue         = errors.New("delay window has not elapsed")
	ErrAlreadyRevealed   = errors.New("commitment already revealed")
	ErrAlreadyScored     = errors.New("session already scored")
	ErrSessionExpired    = errors.New("session expired")

	// Validation errors
	ErrRange      = errors.New("value out of range")
	ErrValidation = errors.New("validation failed")

	// Oracle errors
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrTierFailed        = errors.New("scoring tier failed")

	// Randomness errors
	ErrLocalFallback = errors.New("beacon is a local fallback and not third-party auditable")

	// Concurrency errors
	ErrVersionConflict = errors.New("session version conflict")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, reason)
}

func NewRangeError(what string, got, max int) error {
	return fmt.Errorf("%w: %s %d not in [0,%d)", ErrRange, what, got, max)
}

func NewTransitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrRange)
}

// IsGuardError reports whether err is a state-machine guard failure,
// i.e. a caller error rather than a system fault.
func IsGuardError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotYetDue) ||
		errors.Is(err, ErrAlreadyRevealed) ||
		errors.Is(err, ErrAlreadyScored)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotYetDue) || errors.Is(err, ErrVersionConflict)
}
