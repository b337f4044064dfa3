/*
Package sqlite provides the SQLite-backed implementation of the ledger's
storage interfaces.

PURPOSE:
  Durable persistence for the leave ledger: transactions, audit events, the
  employee directory, and the promotion (tier change) history. One Store
  value implements ledger.Store, ledger.AuditLog, ledger.Directory and
  leave.TierChangeStore.

APPEND-ONLY ENFORCEMENT:
  No UPDATE and no DELETE ever touch the transactions or audit_events
  tables. Corrections are reversal transactions; the audit log is evidence.
  The only mutable table is employees (HR status changes) plus the
  append-only tier_changes.

ORDERING AND REPLAY:
  Reads order by (effective_at, id). Transaction IDs are ULIDs, so the ID
  tie-breaker reproduces creation order. Replaying a restored backup of the
  database file therefore folds to the exact same balances.

DUPLICATE ACCRUALS:
  The accrual-period guard is a query, not a unique index: an accrual
  negated by a reversal must free its period for one corrected entry, which
  a blanket unique index on (employee, category, period) would forbid. The
  service serializes mutations per employee and category, so the
  check-then-insert is race-free.

WAL MODE:
  The database opens with WAL journaling: readers do not block, one writer
  at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// Store implements the storage interfaces over one SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.Store          = (*Store)(nil)
	_ ledger.Directory      = (*Store)(nil)
	_ leave.TierChangeStore = (*Store)(nil)
)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing connection without migrating. Tests use this
// with sqlmock to exercise storage-failure paths.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category TEXT NOT NULL,
		quantity TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL,
		recorder TEXT NOT NULL,
		reason TEXT,
		period_key TEXT,
		reversal_of TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: ordered ledger reads per employee and category
	CREATE INDEX IF NOT EXISTS idx_transactions_employee_category
		ON transactions(employee_id, category, effective_at, id);

	-- Accrual-period guard lookups
	CREATE INDEX IF NOT EXISTS idx_transactions_period
		ON transactions(employee_id, category, period_key)
		WHERE period_key IS NOT NULL AND period_key != '';

	-- Reversal chasing for the period guard
	CREATE INDEX IF NOT EXISTS idx_transactions_reversal_of
		ON transactions(reversal_of) WHERE reversal_of IS NOT NULL AND reversal_of != '';

	-- Audit events (append-only evidence)
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		operation TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		category TEXT,
		outcome TEXT NOT NULL,
		reason TEXT,
		transaction_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee ON audit_events(employee_id, at);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_events(actor_id, at);

	-- Employee directory
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		rate_tier TEXT NOT NULL DEFAULT 'standard',
		hire_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Promotion history (append-only)
	CREATE TABLE IF NOT EXISTS tier_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		from_tier TEXT NOT NULL,
		to_tier TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tier_changes_employee
		ON tier_changes(employee_id, effective_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO transactions
		(id, employee_id, category, quantity, effective_at, kind, actor, recorder,
		 reason, period_key, reversal_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.EmployeeID),
		string(tx.Category),
		tx.Quantity.String(),
		tx.EffectiveAt.String(),
		string(tx.Kind),
		tx.Actor,
		tx.Recorder,
		tx.Reason,
		tx.PeriodKey,
		string(tx.ReversalOf),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrDuplicateTransactionID)
		}
		return storageErr("append transaction", err)
	}
	return nil
}

// Get returns a single transaction by ID.
func (s *Store) Get(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectTransactions+" WHERE id = ?", string(id))
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrTransactionNotFound)
	}
	if err != nil {
		return ledger.Transaction{}, storageErr("get transaction", err)
	}
	return tx, nil
}

// Load returns the ordered ledger for one employee and category.
func (s *Store) Load(ctx context.Context, employeeID ledger.EmployeeID, category ledger.Category) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectTransactions + `
		WHERE employee_id = ? AND category = ?
		ORDER BY effective_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, string(employeeID), string(category))
}

// LoadRange returns the ordered transactions with effective date in [from, to].
func (s *Store) LoadRange(ctx context.Context, employeeID ledger.EmployeeID, category ledger.Category, from, to ledger.TimePoint) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectTransactions + `
		WHERE employee_id = ? AND category = ?
		  AND effective_at >= ? AND effective_at <= ?
		ORDER BY effective_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query,
		string(employeeID), string(category), from.String(), to.String())
}

// LoadByEmployee returns all transactions for an employee across categories.
func (s *Store) LoadByEmployee(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectTransactions + `
		WHERE employee_id = ?
		ORDER BY effective_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, string(employeeID))
}

// HasAccrual reports whether a live accrual exists for the period. Accruals
// negated by a reversal do not count.
func (s *Store) HasAccrual(ctx context.Context, employeeID ledger.EmployeeID, category ledger.Category, periodKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM transactions t
		WHERE t.employee_id = ? AND t.category = ?
		  AND t.kind = 'accrual' AND t.period_key = ?
		  AND NOT EXISTS (
			SELECT 1 FROM transactions r
			WHERE r.kind = 'reversal' AND r.reversal_of = t.id
		  )
	`

	var count int
	err := s.db.QueryRowContext(ctx, query,
		string(employeeID), string(category), periodKey,
	).Scan(&count)
	if err != nil {
		return false, storageErr("accrual period check", err)
	}
	return count > 0, nil
}

const selectTransactions = `
	SELECT id, employee_id, category, quantity, effective_at, kind, actor,
	       recorder, reason, period_key, reversal_of, created_at
	FROM transactions
`

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query transactions", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate transactions", err)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		id          string
		employeeID  string
		category    string
		quantity    string
		effectiveAt string
		kind        string
		reason      sql.NullString
		periodKey   sql.NullString
		reversalOf  sql.NullString
		createdAt   string
	)

	err := row.Scan(
		&id, &employeeID, &category, &quantity, &effectiveAt, &kind,
		&tx.Actor, &tx.Recorder, &reason, &periodKey, &reversalOf, &createdAt,
	)
	if err != nil {
		return tx, err
	}

	tx.ID = ledger.TransactionID(id)
	tx.EmployeeID = ledger.EmployeeID(employeeID)
	tx.Category = ledger.Category(category)
	tx.Kind = ledger.Kind(kind)
	tx.Reason = reason.String
	tx.PeriodKey = periodKey.String
	tx.ReversalOf = ledger.TransactionID(reversalOf.String)

	tx.Quantity, err = ledger.ParseQuantity(quantity)
	if err != nil {
		return tx, fmt.Errorf("corrupt quantity %q on %s: %w", quantity, id, err)
	}
	tx.EffectiveAt, err = ledger.ParseDate(effectiveAt)
	if err != nil {
		return tx, fmt.Errorf("corrupt effective date %q on %s: %w", effectiveAt, id, err)
	}
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return tx, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AppendEvent adds one audit event.
func (s *Store) AppendEvent(ctx context.Context, event ledger.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_events
		(id, at, actor_id, actor_role, operation, employee_id, category, outcome,
		 reason, transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.ID),
		event.At.Format(time.RFC3339Nano),
		event.ActorID,
		string(event.ActorRole),
		event.Operation,
		string(event.EmployeeID),
		string(event.Category),
		string(event.Outcome),
		event.Reason,
		string(event.TransactionID),
	)
	if err != nil {
		return storageErr("append audit event", err)
	}
	return nil
}

// QueryEvents returns audit events matching the filter, oldest first.
func (s *Store) QueryEvents(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, at, actor_id, actor_role, operation, employee_id, category,
		       outcome, reason, transaction_id
		FROM audit_events
	`
	var conds []string
	var args []any
	if filter.EmployeeID != nil {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(*filter.EmployeeID))
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.Outcome != nil {
		conds = append(conds, "outcome = ?")
		args = append(args, string(*filter.Outcome))
	}
	if filter.From != nil {
		conds = append(conds, "at >= ?")
		args = append(args, filter.From.Time.Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		conds = append(conds, "at < ?")
		args = append(args, filter.To.AddDays(1).Time.Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query audit events", err)
	}
	defer rows.Close()

	var events []ledger.AuditEvent
	for rows.Next() {
		var (
			ev            ledger.AuditEvent
			id            string
			at            string
			actorRole     string
			employeeID    string
			category      sql.NullString
			outcome       string
			reason        sql.NullString
			transactionID sql.NullString
		)
		if err := rows.Scan(&id, &at, &ev.ActorID, &actorRole, &ev.Operation,
			&employeeID, &category, &outcome, &reason, &transactionID); err != nil {
			return nil, storageErr("scan audit event", err)
		}
		ev.ID = ledger.AuditEventID(id)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		ev.ActorRole = ledger.Role(actorRole)
		ev.EmployeeID = ledger.EmployeeID(employeeID)
		ev.Category = ledger.Category(category.String)
		ev.Outcome = ledger.AuditOutcome(outcome)
		ev.Reason = reason.String
		ev.TransactionID = ledger.TransactionID(transactionID.String)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate audit events", err)
	}
	return events, nil
}

// AuditLog adapts the store to the ledger.AuditLog interface; Append on
// the Store itself is taken by the transaction path.
func (s *Store) AuditLog() ledger.AuditLog {
	return auditLog{s}
}

type auditLog struct{ store *Store }

func (a auditLog) Append(ctx context.Context, event ledger.AuditEvent) error {
	return a.store.AppendEvent(ctx, event)
}

func (a auditLog) Query(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEvent, error) {
	return a.store.QueryEvents(ctx, filter)
}

// =============================================================================
// EMPLOYEE DIRECTORY (ledger.Directory interface)
// =============================================================================

// SaveEmployee inserts or updates an employee record.
func (s *Store) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, status, rate_tier, hire_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			rate_tier = excluded.rate_tier,
			hire_date = excluded.hire_date,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		string(emp.ID), emp.Name, string(emp.Status), emp.RateTier,
		emp.HireDate.String(), now, now,
	)
	if err != nil {
		return storageErr("save employee", err)
	}
	return nil
}

// SetEmployeeStatus updates only the status field (lock and unlock).
func (s *Store) SetEmployeeStatus(ctx context.Context, id ledger.EmployeeID, status ledger.EmploymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE employees SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC().Format(time.RFC3339), string(id),
	)
	if err != nil {
		return storageErr("set employee status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("employee %s: %w", id, ledger.ErrUnknownEmployee)
	}
	return nil
}

// GetEmployee returns one employee record.
func (s *Store) GetEmployee(ctx context.Context, id ledger.EmployeeID) (ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, status, rate_tier, hire_date FROM employees WHERE id = ?",
		string(id),
	)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return ledger.Employee{}, fmt.Errorf("employee %s: %w", id, ledger.ErrUnknownEmployee)
	}
	if err != nil {
		return ledger.Employee{}, storageErr("get employee", err)
	}
	return emp, nil
}

// ListEmployees enumerates all employees in ID order.
func (s *Store) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, status, rate_tier, hire_date FROM employees ORDER BY id ASC")
	if err != nil {
		return nil, storageErr("list employees", err)
	}
	defer rows.Close()

	var employees []ledger.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, storageErr("scan employee", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate employees", err)
	}
	return employees, nil
}

func scanEmployee(row rowScanner) (ledger.Employee, error) {
	var (
		emp      ledger.Employee
		id       string
		status   string
		hireDate string
	)
	if err := row.Scan(&id, &emp.Name, &status, &emp.RateTier, &hireDate); err != nil {
		return emp, err
	}
	emp.ID = ledger.EmployeeID(id)
	emp.Status = ledger.EmploymentStatus(status)
	emp.HireDate, _ = ledger.ParseDate(hireDate)
	return emp, nil
}

// =============================================================================
// TIER CHANGES (leave.TierChangeStore interface)
// =============================================================================

// AppendTierChange records one promotion.
func (s *Store) AppendTierChange(ctx context.Context, change leave.TierChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tier_changes (employee_id, from_tier, to_tier, effective_at, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(change.EmployeeID), change.FromTier, change.ToTier,
		change.EffectiveAt.String(), change.RecordedAt.String(),
	)
	if err != nil {
		return storageErr("append tier change", err)
	}
	return nil
}

// TierChanges returns the employee's promotion history by effective date.
func (s *Store) TierChanges(ctx context.Context, employeeID ledger.EmployeeID) ([]leave.TierChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, from_tier, to_tier, effective_at, recorded_at
		FROM tier_changes
		WHERE employee_id = ?
		ORDER BY effective_at ASC, id ASC
	`, string(employeeID))
	if err != nil {
		return nil, storageErr("query tier changes", err)
	}
	defer rows.Close()

	var changes []leave.TierChange
	for rows.Next() {
		var (
			c           leave.TierChange
			empID       string
			effectiveAt string
			recordedAt  string
		)
		if err := rows.Scan(&empID, &c.FromTier, &c.ToTier, &effectiveAt, &recordedAt); err != nil {
			return nil, storageErr("scan tier change", err)
		}
		c.EmployeeID = ledger.EmployeeID(empID)
		c.EffectiveAt, _ = ledger.ParseDate(effectiveAt)
		c.RecordedAt, _ = ledger.ParseDate(recordedAt)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tier changes", err)
	}
	return changes, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// storageErr wraps a driver failure so callers can match ErrStorageUnavailable.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ledger.ErrStorageUnavailable, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
