/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All rejection and failure signals in one place. Every error that can come
  out of the submit path is either one of these sentinels or wraps one, so
  callers branch with errors.Is/errors.As and nothing else.

ERROR CATEGORIES:
  1. Rejections - the mutation was refused before any side effect
  2. Skips      - not an error in substance (duplicate accrual period)
  3. Storage    - the persistence layer is unavailable; caller decides retry

USAGE:
  if errors.Is(err, ledger.ErrUnauthorized) { ... }

  var nbe *ledger.NegativeBalanceError
  if errors.As(err, &nbe) { ... nbe.Resulting ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransaction is returned when a submit request is malformed:
	// missing fields, zero quantity, off-grid quantity, missing reason on a
	// kind that requires one. Rejected before any side effect.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnknownEmployee is returned when the employee reference does not
	// resolve against the HR-record collaborator.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrLockedEmployee is returned when the employee's lock flag is set and
	// the transaction kind is not lock-exempt.
	ErrLockedEmployee = errors.New("employee is locked")

	// ErrUnauthorized is returned when the actor's role is not permitted to
	// create the requested transaction kind.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrNegativeBalance is returned when the category forbids negative
	// balances and the transaction would drive the balance below zero.
	ErrNegativeBalance = errors.New("negative balance not permitted")

	// ErrDuplicateAccrualPeriod signals the idempotence guard: an accrual
	// for this employee/category/period is already posted. Callers treat
	// this as a skip, not a failure.
	ErrDuplicateAccrualPeriod = errors.New("accrual already posted for period")

	// ErrDuplicateTransactionID is returned when a transaction ID collides
	// with an existing one. Expected only on replays.
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")

	// ErrTransactionNotFound is returned when a referenced transaction
	// (e.g. the target of a reversal) does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrStorageUnavailable is returned when the persistence layer fails.
	// The engine never retries; backoff policy belongs to the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownCategory is returned when no policy exists for the
	// requested leave category.
	ErrUnknownCategory = errors.New("unknown leave category")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnauthorizedError reports which role/kind pairing was refused.
type UnauthorizedError struct {
	Role Role
	Kind Kind
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("role %s may not create %s transactions", e.Role, e.Kind)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// LockedEmployeeError reports a rejection due to the employee lock flag.
type LockedEmployeeError struct {
	EmployeeID EmployeeID
	Kind       Kind
}

func (e *LockedEmployeeError) Error() string {
	return fmt.Sprintf("employee %s is locked; %s transactions are not accepted", e.EmployeeID, e.Kind)
}

func (e *LockedEmployeeError) Unwrap() error { return ErrLockedEmployee }

// NegativeBalanceError reports the balance the transaction would have produced.
type NegativeBalanceError struct {
	EmployeeID EmployeeID
	Category   Category
	Current    Quantity
	Requested  Quantity
	Resulting  Quantity
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("balance for %s/%s would fall to %s (current %s, requested %s)",
		e.EmployeeID, e.Category, e.Resulting, e.Current, e.Requested)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// InvalidTransactionError reports which field made the request malformed.
type InvalidTransactionError struct {
	Field  string
	Detail string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Detail)
}

func (e *InvalidTransactionError) Unwrap() error { return ErrInvalidTransaction }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection reports whether the error is a policy/validation rejection,
// i.e. the caller's input was refused and retrying unchanged will not help.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrUnknownEmployee) ||
		errors.Is(err, ErrLockedEmployee) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrUnknownCategory)
}

// IsSkip reports whether the error is the accrual idempotence guard,
// which is informational rather than a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrDuplicateAccrualPeriod)
}

// IsStorage reports whether the error indicates the persistence layer
// is unavailable.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
