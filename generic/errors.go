/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these with context; callers branch with errors.Is().

ERROR CATEGORIES:
  1. Store errors   - duplicate keys, missing records, backend faults
  2. Window errors  - malformed dates and ranges in report arguments
  3. Command errors - permission and lookup failures surfaced to users

NOT ERRORS:
  A malformed booking message is NOT an error. The parser returns a
  booking.Outcome value (WrongFormat / MissingField) instead.

USAGE:
  if errors.Is(err, generic.ErrDuplicateKey) {
      // Already recorded for this message id, safe to skip
  }

SEE ALSO:
  - store.go: TransactionStore contract
  - ledger.go: Idempotency ledger contract
  - period.go: Window parsing
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateKey is returned when a record already exists for the
	// source message id. Expected under redelivery.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDate is returned for dates that are not valid DDMMYYYY values.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidWindow is returned when a window ends before it starts or
	// a day count is out of range.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrPermissionDenied is returned when a command is issued by a non-owner
	// or from the wrong kind of chat.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownApartment is returned when an apartment argument matches nothing.
	ErrUnknownApartment = errors.New("unknown apartment")

	// ErrBackfillRunning is returned when a backfill is requested while one is active.
	ErrBackfillRunning = errors.New("backfill already running")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps a backend failure with the operation and key involved.
type StoreError struct {
	Op  string // e.g. "create", "update", "mark_processed"
	Key string // message id or record id
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DateError reports which argument failed to parse as a date.
type DateError struct {
	Input string
	Cause string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Cause)
}

func (e *DateError) Unwrap() error {
	return ErrInvalidDate
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid user input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrUnknownApartment) ||
		errors.Is(err, ErrPermissionDenied)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
