/*
balance.go - Balance derivation from the transaction log

PURPOSE:
  Answers "how much leave does this employee have?" by folding the ledger.
  There is no stored balance anywhere in the system; this fold IS the
  balance, recomputable from scratch at any time.

FOLD SEMANTICS:
  Balance(asOf) = sum of signed quantities with effective date <= asOf.

  Reversals get no special treatment: a reversal carries the negated
  quantity of its original, so plain summation cancels the pair. That keeps
  the fold associative and order-independent for any subset filtering.

NEGATIVE BALANCES:
  The calculator always reports the true arithmetic balance, even below
  zero. Preventing negative balances is the submit path's job at validation
  time; the calculator never clamps.
*/
package ledger

import "context"

// =============================================================================
// PURE FOLD - No storage, no state
// =============================================================================

// Fold sums the signed quantities of all transactions with effective date
// on or before asOf. Deterministic and order-independent.
func Fold(txs []Transaction, asOf TimePoint) Quantity {
	total := ZeroQuantity()
	for _, tx := range txs {
		if tx.EffectiveAt.After(asOf) {
			continue
		}
		total = total.Add(tx.Quantity)
	}
	return total
}

// BalanceSnapshot is a derived view for one employee/category pair.
// It has no lifecycle: it exists only as a query result.
type BalanceSnapshot struct {
	EmployeeID EmployeeID
	Category   Category
	AsOf       TimePoint

	// Balance is the signed fold of the ledger up to AsOf.
	Balance Quantity

	// Accrued sums all credits (positive quantities) up to AsOf.
	Accrued Quantity

	// Used sums all debits (negative quantities) up to AsOf, reported
	// as a positive number.
	Used Quantity
}

// Snapshot folds a transaction slice into a balance snapshot.
func Snapshot(employeeID EmployeeID, category Category, txs []Transaction, asOf TimePoint) BalanceSnapshot {
	s := BalanceSnapshot{
		EmployeeID: employeeID,
		Category:   category,
		AsOf:       asOf,
		Balance:    ZeroQuantity(),
		Accrued:    ZeroQuantity(),
		Used:       ZeroQuantity(),
	}
	for _, tx := range txs {
		if tx.EffectiveAt.After(asOf) {
			continue
		}
		s.Balance = s.Balance.Add(tx.Quantity)
		if tx.Quantity.IsPositive() {
			s.Accrued = s.Accrued.Add(tx.Quantity)
		} else {
			s.Used = s.Used.Add(tx.Quantity.Neg())
		}
	}
	return s
}

// =============================================================================
// CALCULATOR - Fold over a Store
// =============================================================================

// Calculator computes balances by reading the store and folding. It holds
// no state of its own; repeated invocations over the same ledger return
// identical results.
type Calculator struct {
	Store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{Store: store}
}

// BalanceAt returns the signed balance for employee/category as of a date.
func (c *Calculator) BalanceAt(ctx context.Context, employeeID EmployeeID, category Category, asOf TimePoint) (Quantity, error) {
	txs, err := c.Store.Load(ctx, employeeID, category)
	if err != nil {
		return Quantity{}, err
	}
	return Fold(txs, asOf), nil
}

// SnapshotAt returns balance, accrued-to-date and usage-to-date.
func (c *Calculator) SnapshotAt(ctx context.Context, employeeID EmployeeID, category Category, asOf TimePoint) (BalanceSnapshot, error) {
	txs, err := c.Store.Load(ctx, employeeID, category)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return Snapshot(employeeID, category, txs, asOf), nil
}
