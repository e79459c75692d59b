/*
errors.go - Centralized error types for the case ledger

PURPOSE:
  All error kinds in one place. Every ledger and settlement failure is
  structured (kind + context) and surfaced to the immediate caller; nothing
  here is ever swallowed. Advisory-oracle failures are NOT here: those are
  absorbed by advisory.Guard.

ERROR CATEGORIES:
  1. ValidationError   - bad registration fields or a non-positive amount
  2. OverpaymentError  - amount exceeds the remaining balance (carries it)
  3. InvalidStateError - operation not allowed in the case's current status
  4. NotFoundError     - unknown case identifier
  5. IntegrityError    - a stored case violates an invariant

USAGE:
  var over *ledger.OverpaymentError
  if errors.As(err, &over) {
      fmt.Printf("only %d left to pay\n", over.Remaining)
  }
  if errors.Is(err, ledger.ErrInvalidState) { ... }

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when registration input or an amount is invalid.
	ErrValidation = errors.New("validation failed")

	// ErrOverpayment is returned when a contribution exceeds the remaining balance.
	ErrOverpayment = errors.New("contribution exceeds remaining balance")

	// ErrInvalidState is returned when the case status does not allow the operation.
	ErrInvalidState = errors.New("operation not allowed in current case status")

	// ErrNotFound is returned when a referenced case doesn't exist.
	ErrNotFound = errors.New("case not found")

	// ErrIntegrity is returned when a case violates a funding invariant.
	ErrIntegrity = errors.New("case integrity violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists every offending field with a short message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// OverpaymentError reports the exact remaining balance so the caller can retry.
type OverpaymentError struct {
	CaseID    CaseID
	Remaining Money
	Requested Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("contribution of %d exceeds remaining balance of %d for case %s",
		e.Requested, e.Remaining, e.CaseID)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

type InvalidStateError struct {
	CaseID    CaseID
	Status    Status
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s case %s in status %s", e.Operation, e.CaseID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

type NotFoundError struct {
	CaseID CaseID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("case not found: %s", e.CaseID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type IntegrityError struct {
	CaseID CaseID
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("case %s: %s", e.CaseID, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or case state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing case.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
