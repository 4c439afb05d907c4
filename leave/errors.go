/*
errors.go - Error taxonomy for the admission engine

ERROR CATEGORIES:
  1. Rejections - the interval or quota makes the request inadmissible
  2. Conflicts  - capacity or coverage rule violated on a chargeable day
  3. Access     - caller may not perform the operation
  4. Store      - version conflicts and lookup failures

Every rejection is returned to the caller as an error value. A capacity
conflict without force is not an error: Submit returns a Decision with
OutcomeNeedsConfirmation and the Conflict attached.
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when start is after end or the interval
	// is longer than MaxSpanDays.
	ErrInvalidRange = errors.New("invalid range")

	// ErrEmptyInterval is returned when the interval has no chargeable days.
	ErrEmptyInterval = errors.New("no chargeable days in interval")

	// ErrQuotaExceeded is returned when the request would exceed the allowance.
	ErrQuotaExceeded = errors.New("quota exceeded")

	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrCoverageInsufficient = errors.New("coverage insufficient")

	// ErrNeedsConfirmation marks a conflict the caller may override with force.
	ErrNeedsConfirmation = errors.New("needs confirmation")

	// ErrNotAuthorized is returned when the caller is neither owner nor admin.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound is returned for unknown employee or request ids.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned by Store.Replace when the
	// expected version is stale.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// QuotaExceededError details an allowance overrun.
type QuotaExceededError struct {
	EmployeeID string
	Allowance  int
	Committed  int
	Requested  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: allowance %d, committed %d, requested %d",
		e.Allowance, e.Committed, e.Requested)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Machine-readable codes returned by Code.
const (
	CodeInvalidRange         = "invalid_range"
	CodeEmptyInterval        = "empty_interval"
	CodeQuotaExceeded        = "quota_exceeded"
	CodeCapacityExceeded     = "capacity_exceeded"
	CodeCoverageInsufficient = "coverage_insufficient"
	CodeNeedsConfirmation    = "needs_confirmation"
	CodeNotAuthorized        = "not_authorized"
	CodeNotFound             = "not_found"
	CodeConcurrent           = "concurrent_modification"
	CodeInternal             = "internal"
)

// Code maps an error to a stable machine-readable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return CodeInvalidRange
	case errors.Is(err, ErrEmptyInterval):
		return CodeEmptyInterval
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrCoverageInsufficient):
		return CodeCoverageInsufficient
	case errors.Is(err, ErrNeedsConfirmation):
		return CodeNeedsConfirmation
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConcurrentModification):
		return CodeConcurrent
	}
	return CodeInternal
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the submitted interval.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrEmptyInterval) ||
		errors.Is(err, ErrQuotaExceeded)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
