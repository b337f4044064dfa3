/*
Package store provides the in-memory implementations of the ledger's
persistence contracts. Tests and dev setups use them; the server uses the
SQLite implementations in store/sqlite.

ORDERING:
  The memory store keeps each (employee, category) slice sorted by effective
  date then transaction ID, inserting at the right position on append. Reads
  therefore return the same order the SQLite store produces with its
  ORDER BY clause, and folds over either store agree.
*/
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - ledger.Store + ledger.AuditLog
// =============================================================================

// Memory is a thread-safe in-memory transaction store and audit log.
type Memory struct {
	mu     sync.RWMutex
	txs    map[string][]ledger.Transaction // key: employee + category
	byID   map[ledger.TransactionID]ledger.Transaction
	events []ledger.AuditEvent
}

func NewMemory() *Memory {
	return &Memory{
		txs:  make(map[string][]ledger.Transaction),
		byID: make(map[ledger.TransactionID]ledger.Transaction),
	}
}

func key(employeeID ledger.EmployeeID, category ledger.Category) string {
	return string(employeeID) + "\x00" + string(category)
}

func orderedBefore(a, b ledger.Transaction) bool {
	if !a.EffectiveAt.Equal(b.EffectiveAt) {
		return a.EffectiveAt.Before(b.EffectiveAt)
	}
	return a.ID < b.ID
}

// Append inserts the transaction in (effective date, ID) order.
func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrDuplicateTransactionID)
	}

	k := key(tx.EmployeeID, tx.Category)
	list := m.txs[k]
	idx := sort.Search(len(list), func(i int) bool {
		return orderedBefore(tx, list[i])
	})
	list = append(list, ledger.Transaction{})
	copy(list[idx+1:], list[idx:])
	list[idx] = tx

	m.txs[k] = list
	m.byID[tx.ID] = tx
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.byID[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrTransactionNotFound)
	}
	return tx, nil
}

func (m *Memory) Load(_ context.Context, employeeID ledger.EmployeeID, category ledger.Category) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.txs[key(employeeID, category)]
	out := make([]ledger.Transaction, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) LoadRange(ctx context.Context, employeeID ledger.EmployeeID, category ledger.Category, from, to ledger.TimePoint) ([]ledger.Transaction, error) {
	all, err := m.Load(ctx, employeeID, category)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, 0, len(all))
	for _, tx := range all {
		if tx.EffectiveAt.AfterOrEqual(from) && tx.EffectiveAt.BeforeOrEqual(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) LoadByEmployee(_ context.Context, employeeID ledger.EmployeeID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Transaction
	for _, tx := range m.byID {
		if tx.EmployeeID == employeeID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return orderedBefore(out[i], out[j]) })
	return out, nil
}

// HasAccrual reports whether a live accrual exists for the period. An
// accrual negated by a reversal does not count, so an edited accrual's
// period accepts exactly one corrected entry.
func (m *Memory) HasAccrual(_ context.Context, employeeID ledger.EmployeeID, category ledger.Category, periodKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reversed := make(map[ledger.TransactionID]bool)
	list := m.txs[key(employeeID, category)]
	for _, tx := range list {
		if tx.Kind == ledger.KindReversal && tx.ReversalOf != "" {
			reversed[tx.ReversalOf] = true
		}
	}
	for _, tx := range list {
		if tx.Kind == ledger.KindAccrual && tx.PeriodKey == periodKey && !reversed[tx.ID] {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, event ledger.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) QueryEvents(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.AuditEvent
	for _, ev := range m.events {
		if matchesFilter(ev, filter) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func matchesFilter(ev ledger.AuditEvent, f ledger.AuditFilter) bool {
	if f.EmployeeID != nil && ev.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.ActorID != nil && ev.ActorID != *f.ActorID {
		return false
	}
	if f.Outcome != nil && ev.Outcome != *f.Outcome {
		return false
	}
	if f.From != nil && ev.At.Before(f.From.Time) {
		return false
	}
	if f.To != nil && !ev.At.Before(f.To.Time.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// MemoryAuditLog adapts Memory to the ledger.AuditLog interface so the same
// instance can back both the store and the trail in tests.
type MemoryAuditLog struct {
	*Memory
}

func (a MemoryAuditLog) Append(ctx context.Context, event ledger.AuditEvent) error {
	return a.AppendEvent(ctx, event)
}

func (a MemoryAuditLog) Query(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	return a.QueryEvents(ctx, filter)
}

// =============================================================================
// MEMORY DIRECTORY - ledger.Directory
// =============================================================================

// MemoryDirectory is an in-memory employee directory.
type MemoryDirectory struct {
	mu        sync.RWMutex
	employees map[ledger.EmployeeID]ledger.Employee
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{employees: make(map[ledger.EmployeeID]ledger.Employee)}
}

// SetEmployee adds or replaces an employee record.
func (d *MemoryDirectory) SetEmployee(emp ledger.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[emp.ID] = emp
}

func (d *MemoryDirectory) GetEmployee(_ context.Context, id ledger.EmployeeID) (ledger.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	emp, ok := d.employees[id]
	if !ok {
		return ledger.Employee{}, fmt.Errorf("employee %s: %w", id, ledger.ErrUnknownEmployee)
	}
	return emp, nil
}

func (d *MemoryDirectory) ListEmployees(_ context.Context) ([]ledger.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ledger.Employee, 0, len(d.employees))
	for _, emp := range d.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
