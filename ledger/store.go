/*
store.go - Persistence contracts for the ledger engine

PURPOSE:
  Defines the interfaces between the engine and its storage. The Store holds
  transactions; the AuditLog holds mutation-attempt records; the Directory is
  the read-only HR-record collaborator.

APPEND-ONLY CONTRACT:
  Store and AuditLog expose Append and reads only. There is no Update and no
  Delete, deliberately: corrections are reversal transactions, and the audit
  log is evidence. A restored backup of the underlying storage replays to
  identical balances because reads are fully ordered (effective date, then
  transaction ID, which encodes creation order).

IMPLEMENTATIONS:
  - store/sqlite: durable SQLite store used by the server
  - ledger/store: in-memory store used by tests and dev setups
*/
package ledger

import "context"

// =============================================================================
// STORE - Append-only transaction persistence
// =============================================================================

// Store persists ledger transactions. Append-only: no update, no delete.
type Store interface {
	// Append persists one transaction atomically. It is either fully
	// visible to subsequent reads or not visible at all.
	Append(ctx context.Context, tx Transaction) error

	// Get returns a single transaction by ID.
	Get(ctx context.Context, id TransactionID) (Transaction, error)

	// Load returns all transactions for employee+category, ordered by
	// effective date then creation order.
	Load(ctx context.Context, employeeID EmployeeID, category Category) ([]Transaction, error)

	// LoadRange returns the ordered transactions with effective date in
	// [from, to].
	LoadRange(ctx context.Context, employeeID EmployeeID, category Category, from, to TimePoint) ([]Transaction, error)

	// LoadByEmployee returns all transactions for an employee across all
	// categories, ordered as above.
	LoadByEmployee(ctx context.Context, employeeID EmployeeID) ([]Transaction, error)

	// HasAccrual reports whether a live accrual transaction exists for the
	// employee/category/period. Accruals negated by a reversal do not
	// count. This is the idempotence check the accrual generator performs
	// before posting.
	HasAccrual(ctx context.Context, employeeID EmployeeID, category Category, periodKey string) (bool, error)
}

// =============================================================================
// AUDIT LOG - Append-only record of mutation attempts
// =============================================================================

// AuditLog persists audit events. Also append-only.
type AuditLog interface {
	Append(ctx context.Context, event AuditEvent) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter narrows an audit query. Nil fields match everything.
type AuditFilter struct {
	EmployeeID *EmployeeID
	ActorID    *string
	Outcome    *AuditOutcome
	From       *TimePoint
	To         *TimePoint
}

// =============================================================================
// DIRECTORY - Read-only HR-record collaborator
// =============================================================================

// Directory resolves employee references. The engine reads status, lock
// state, rate tier and hire date at validation time and never caches them
// beyond the single validation.
type Directory interface {
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)

	// ListEmployees enumerates employees for the accrual generator run.
	ListEmployees(ctx context.Context) ([]Employee, error)
}
