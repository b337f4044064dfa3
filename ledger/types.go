/*
Package ledger provides the core leave-balance engine.

PURPOSE:
  This package contains the types and algorithms that make leave balances
  trustworthy: an append-only transaction log, a pure balance fold, a
  declarative access policy, and an audit trail that records every mutation
  attempt whether it was accepted or not.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A signed amount of leave in days, exact decimal arithmetic
  - Transaction: An immutable ledger entry recording a balance change
  - Kind: What caused the change (accrual, deduction, override, ...)
  - Actor: Who requested the change, with their authority role
  - Employee: The read-only view of an employee the engine depends on

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal on a half-day grid, no float drift
  3. Derivation: Balance is never stored; it is always the fold of the log
  4. Auditability: Every attempt leaves an AuditEvent, rejected ones included

SEE ALSO:
  - balance.go: Balance calculation from transactions
  - access.go: Role x kind authorization table
  - service.go: The gated append path everything goes through
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Signed amount of leave, in days, half-day precision
// =============================================================================

// Quantity is a signed number of leave days. Positive credits, negative
// debits. All arithmetic is exact; values are expected to sit on the
// half-day grid (multiples of 0.5).
type Quantity struct {
	value decimal.Decimal
}

var halfDay = decimal.NewFromFloat(0.5)

func Days(v float64) Quantity              { return Quantity{value: decimal.NewFromFloat(v)} }
func DaysFromInt(v int) Quantity           { return Quantity{value: decimal.NewFromInt(int64(v))} }
func ZeroQuantity() Quantity               { return Quantity{value: decimal.Zero} }
func QuantityFromDecimal(d decimal.Decimal) Quantity { return Quantity{value: d} }

// ParseQuantity parses a decimal string such as "-1.5".
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: d}, nil
}

func (q Quantity) Add(o Quantity) Quantity { return Quantity{value: q.value.Add(o.value)} }
func (q Quantity) Sub(o Quantity) Quantity { return Quantity{value: q.value.Sub(o.value)} }
func (q Quantity) Neg() Quantity           { return Quantity{value: q.value.Neg()} }
func (q Quantity) Mul(n int) Quantity      { return Quantity{value: q.value.Mul(decimal.NewFromInt(int64(n)))} }
func (q Quantity) IsZero() bool            { return q.value.IsZero() }
func (q Quantity) IsNegative() bool        { return q.value.IsNegative() }
func (q Quantity) IsPositive() bool        { return q.value.IsPositive() }
func (q Quantity) Equal(o Quantity) bool   { return q.value.Equal(o.value) }
func (q Quantity) LessThan(o Quantity) bool { return q.value.LessThan(o.value) }
func (q Quantity) String() string          { return q.value.String() }
func (q Quantity) Decimal() decimal.Decimal { return q.value }

// OnHalfDayGrid reports whether the quantity is a multiple of half a day.
// Quantities off the grid are rejected as invalid before they reach the log.
func (q Quantity) OnHalfDayGrid() bool {
	return q.value.Mod(halfDay).IsZero()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type TransactionID string
type AuditEventID string

// Category identifies a leave category. Concrete values are defined by the
// leave domain package; this engine treats them as opaque keys.
type Category string

// =============================================================================
// TRANSACTION - Atomic, immutable change to a leave balance
// =============================================================================

// Kind classifies what caused a transaction.
type Kind string

const (
	KindAccrual             Kind = "accrual"              // Policy-driven monthly credit
	KindDeduction           Kind = "deduction"            // Leave taken
	KindPromotionAdjustment Kind = "promotion_adjustment" // One-time catch-up after a rate change
	KindManualOverride      Kind = "manual_override"      // Human-authorized correction delta
	KindReversal            Kind = "reversal"             // Negates a prior transaction
)

// Kinds lists every transaction kind, in a stable order.
func Kinds() []Kind {
	return []Kind{KindAccrual, KindDeduction, KindPromotionAdjustment, KindManualOverride, KindReversal}
}

// Transaction is the atomic unit of the ledger. Once appended it is never
// edited or deleted; a correction is always a new transaction, usually a
// reversal referencing the original.
type Transaction struct {
	ID          TransactionID
	EmployeeID  EmployeeID
	Category    Category
	Quantity    Quantity // signed: positive credit, negative debit
	EffectiveAt TimePoint
	Kind        Kind

	// Actor caused the change; Recorder entered it. They differ when an
	// admin records leave approved by a manager.
	Actor    string
	Recorder string

	// Reason is free text, mandatory for manual overrides and reversals.
	Reason string

	// PeriodKey tags accruals with their period ("2025-11") so the
	// generator can detect an already-posted period.
	PeriodKey string

	// ReversalOf references the transaction this one negates.
	ReversalOf TransactionID

	CreatedAt time.Time
}

// =============================================================================
// ACTOR - Who is asking, and with what authority
// =============================================================================

type Role string

const (
	RoleSystem      Role = "system"       // accrual generator, promotion feed
	RoleOperator    Role = "operator"     // day-to-day admin (admin_1)
	RoleSeniorAdmin Role = "senior_admin" // admin_master
	RoleDeveloper   Role = "developer"    // highest tier
)

type Actor struct {
	ID   string
	Role Role
}

// SystemActor is the identity the engine's own producers submit under.
func SystemActor(id string) Actor { return Actor{ID: id, Role: RoleSystem} }

// =============================================================================
// EMPLOYEE - Read-only collaborator view
// =============================================================================

// EmploymentStatus is owned by the HR-record collaborator. The engine only
// reads it; `left` implies the lock flag.
type EmploymentStatus string

const (
	StatusActive         EmploymentStatus = "active"
	StatusLeft           EmploymentStatus = "left"
	StatusLeaveOfAbsence EmploymentStatus = "on_leave_of_absence"
)

// Employee is the slice of the HR record the ledger engine depends on.
type Employee struct {
	ID       EmployeeID
	Name     string
	Status   EmploymentStatus
	RateTier string
	HireDate TimePoint
}

// Locked reports whether the employee accepts new transactions. Lock state
// is derived from status, never stored separately.
func (e Employee) Locked() bool { return e.Status == StatusLeft }

// Active reports whether the employee accrues leave.
func (e Employee) Active() bool { return e.Status == StatusActive }
