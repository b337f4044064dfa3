/*
service.go - The gated submit path

PURPOSE:
  Every mutation of the ledger flows through Service.Submit. The submit path
  validates the request, resolves the employee, evaluates the access policy,
  resolves and checks reversal targets, enforces the negative-balance rule,
  and posts the transaction. Each attempt produces exactly one audit event,
  accepted or rejected.

KEY CONCEPTS:
  - Serialization: mutations for the same (employee, category) pair run one
    at a time, behind a keyed mutex. The critical section covers the
    read-balance / validate / append sequence, so two concurrent deductions
    cannot both pass the balance check against a stale read.
  - Reads are lock-free: balance and history queries never take the mutex.
    They fold whatever the store returns, which is always a consistent
    prefix of the ledger.
  - Rejections are first-class: policy denials, lock denials and balance
    violations return typed errors AND land in the audit trail.

SEE ALSO:
  - access.go for the role x kind policy table
  - balance.go for the fold the validation uses
  - leave/override.go for the edit-historical workflow built on Submit
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warp/leave-ledger/ids"
)

// =============================================================================
// KEYED MUTEX - Per (employee, category) serialization
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func mutationKey(employeeID EmployeeID, category Category) string {
	return string(employeeID) + "\x00" + string(category)
}

// =============================================================================
// SUBMIT REQUEST
// =============================================================================

// SubmitRequest describes one transaction attempt.
type SubmitRequest struct {
	Kind       Kind
	EmployeeID EmployeeID
	Category   Category
	Quantity   Quantity
	EffectiveAt TimePoint

	// Actor is who the transaction is attributed to; Recorder is who keyed
	// it in when they differ (an admin recording on behalf of the system).
	Actor    Actor
	Recorder string

	// Reason is mandatory for manual overrides and reversals.
	Reason string

	// PeriodKey marks accrual transactions with their "YYYY-MM" period for
	// the duplicate-period guard. Mandatory for accruals, empty otherwise.
	PeriodKey string

	// ReversalOf names the transaction a reversal negates. The target must
	// exist on the same ledger; its quantity fixes the reversal's quantity.
	ReversalOf TransactionID
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the single write path into the ledger.
type Service struct {
	Store     Store
	Trail     *Trail
	Directory Directory
	Access    *AccessPolicy
	Policies  PolicySet

	locks *keyedMutex
}

func NewService(store Store, trail *Trail, directory Directory, access *AccessPolicy, policies PolicySet) *Service {
	return &Service{
		Store:     store,
		Trail:     trail,
		Directory: directory,
		Access:    access,
		Policies:  policies,
		locks:     newKeyedMutex(),
	}
}

// Submit runs the full gated write path and returns the posted transaction.
// Every call produces exactly one audit event. On rejection the returned
// error wraps one of the package sentinels.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Transaction, error) {
	if err := s.validate(req); err != nil {
		return Transaction{}, s.reject(ctx, req, err)
	}

	unlock := s.locks.lock(mutationKey(req.EmployeeID, req.Category))
	defer unlock()

	emp, err := s.Directory.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, ErrUnknownEmployee) {
			return Transaction{}, s.reject(ctx, req, err)
		}
		return Transaction{}, err
	}

	if decision := s.Access.Authorize(req.Actor.Role, req.Kind, emp.Locked()); !decision.Allowed {
		if emp.Locked() && !s.Access.LockExempt(req.Kind) {
			return Transaction{}, s.reject(ctx, req, &LockedEmployeeError{EmployeeID: req.EmployeeID, Kind: req.Kind})
		}
		return Transaction{}, s.reject(ctx, req, &UnauthorizedError{Role: req.Actor.Role, Kind: req.Kind})
	}

	if req.Kind == KindAccrual {
		exists, err := s.Store.HasAccrual(ctx, req.EmployeeID, req.Category, req.PeriodKey)
		if err != nil {
			return Transaction{}, err
		}
		if exists {
			return Transaction{}, s.reject(ctx, req, fmt.Errorf("period %s: %w", req.PeriodKey, ErrDuplicateAccrualPeriod))
		}
	}

	if req.Kind == KindReversal {
		if err := s.resolveReversal(ctx, &req); err != nil {
			if errors.Is(err, ErrStorageUnavailable) {
				return Transaction{}, err
			}
			return Transaction{}, s.reject(ctx, req, err)
		}
	}

	if err := s.checkBalance(ctx, req); err != nil {
		return Transaction{}, s.reject(ctx, req, err)
	}

	tx := Transaction{
		ID:          TransactionID(ids.New()),
		EmployeeID:  req.EmployeeID,
		Category:    req.Category,
		Quantity:    req.Quantity,
		EffectiveAt: req.EffectiveAt,
		Kind:        req.Kind,
		Actor:       req.Actor.ID,
		Recorder:    req.Recorder,
		Reason:      req.Reason,
		PeriodKey:   req.PeriodKey,
		ReversalOf:  req.ReversalOf,
		CreatedAt:   nowUTC(),
	}
	if tx.Recorder == "" {
		tx.Recorder = req.Actor.ID
	}

	if err := s.Store.Append(ctx, tx); err != nil {
		return Transaction{}, err
	}

	if _, err := s.Trail.Record(ctx, AuditEvent{
		ActorID:       req.Actor.ID,
		ActorRole:     req.Actor.Role,
		Operation:     "submit:" + string(req.Kind),
		EmployeeID:    req.EmployeeID,
		Category:      req.Category,
		Outcome:       OutcomeAccepted,
		TransactionID: tx.ID,
	}); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// validate checks request shape before any storage access.
func (s *Service) validate(req SubmitRequest) error {
	if req.EmployeeID == "" {
		return &InvalidTransactionError{Field: "employee_id", Detail: "required"}
	}
	if req.Category == "" {
		return &InvalidTransactionError{Field: "category", Detail: "required"}
	}
	if _, ok := s.Policies.PolicyFor(req.Category); !ok {
		return fmt.Errorf("category %q: %w", req.Category, ErrUnknownCategory)
	}
	if !validKind(req.Kind) {
		return &InvalidTransactionError{Field: "kind", Detail: fmt.Sprintf("unknown kind %q", req.Kind)}
	}
	if req.Quantity.IsZero() && req.Kind != KindReversal {
		return &InvalidTransactionError{Field: "quantity", Detail: "must be non-zero"}
	}
	if !req.Quantity.OnHalfDayGrid() {
		return &InvalidTransactionError{Field: "quantity", Detail: "must be a multiple of 0.5 days"}
	}
	if req.EffectiveAt.IsZero() {
		return &InvalidTransactionError{Field: "effective_at", Detail: "required"}
	}
	if req.Actor.ID == "" {
		return &InvalidTransactionError{Field: "actor", Detail: "required"}
	}
	switch req.Kind {
	case KindManualOverride, KindReversal:
		if req.Reason == "" {
			return &InvalidTransactionError{Field: "reason", Detail: "required for " + string(req.Kind)}
		}
	}
	if req.Kind == KindReversal && req.ReversalOf == "" {
		return &InvalidTransactionError{Field: "reversal_of", Detail: "required for reversal"}
	}
	if req.Kind != KindReversal && req.ReversalOf != "" {
		return &InvalidTransactionError{Field: "reversal_of", Detail: "only valid on reversal"}
	}
	if req.Kind != KindAccrual && req.PeriodKey != "" {
		return &InvalidTransactionError{Field: "period_key", Detail: "only valid on accrual"}
	}
	if req.Kind == KindAccrual && req.PeriodKey == "" {
		return &InvalidTransactionError{Field: "period_key", Detail: "required for accrual"}
	}
	return nil
}

// resolveReversal loads the reversal target and enforces the shape of a
// reversal: same ledger, not itself a reversal, not already reversed, and a
// quantity that is the full negation of the original. An empty quantity is
// filled in from the original. Runs inside the keyed critical section, so
// the already-reversed check cannot race a concurrent reversal.
func (s *Service) resolveReversal(ctx context.Context, req *SubmitRequest) error {
	original, err := s.Store.Get(ctx, req.ReversalOf)
	if err != nil {
		return err
	}
	if original.EmployeeID != req.EmployeeID || original.Category != req.Category {
		return &InvalidTransactionError{Field: "reversal_of", Detail: fmt.Sprintf("transaction %s belongs to a different ledger", original.ID)}
	}
	if original.Kind == KindReversal {
		return &InvalidTransactionError{Field: "reversal_of", Detail: "a reversal cannot be reversed"}
	}

	txs, err := s.Store.Load(ctx, req.EmployeeID, req.Category)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if tx.Kind == KindReversal && tx.ReversalOf == original.ID {
			return &InvalidTransactionError{Field: "reversal_of", Detail: fmt.Sprintf("transaction %s is already reversed by %s", original.ID, tx.ID)}
		}
	}

	negated := original.Quantity.Neg()
	if req.Quantity.IsZero() {
		req.Quantity = negated
		return nil
	}
	if !req.Quantity.Equal(negated) {
		return &InvalidTransactionError{Field: "quantity", Detail: fmt.Sprintf("reversal of %s must carry %s", original.ID, negated)}
	}
	return nil
}

// checkBalance enforces the negative-balance rule for debits on categories
// that disallow negative balances. The fold covers the entire ledger, not
// just entries up to the request's effective date, so a backdated debit
// cannot sneak the running balance below zero at a later point.
func (s *Service) checkBalance(ctx context.Context, req SubmitRequest) error {
	if !req.Quantity.IsNegative() {
		return nil
	}
	policy, _ := s.Policies.PolicyFor(req.Category)
	if policy.AllowNegative {
		return nil
	}
	txs, err := s.Store.Load(ctx, req.EmployeeID, req.Category)
	if err != nil {
		return err
	}
	current := ZeroQuantity()
	for _, tx := range txs {
		current = current.Add(tx.Quantity)
	}
	resulting := current.Add(req.Quantity)
	if resulting.IsNegative() {
		return &NegativeBalanceError{
			EmployeeID: req.EmployeeID,
			Category:   req.Category,
			Current:    current,
			Requested:  req.Quantity,
			Resulting:  resulting,
		}
	}
	return nil
}

// reject records the rejection in the audit trail and returns the original
// error. An audit write failure takes precedence: the caller must know the
// attempt left no trace.
func (s *Service) reject(ctx context.Context, req SubmitRequest, cause error) error {
	if _, auditErr := s.Trail.Record(ctx, AuditEvent{
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Operation:  "submit:" + string(req.Kind),
		EmployeeID: req.EmployeeID,
		Category:   req.Category,
		Outcome:    OutcomeRejected,
		Reason:     cause.Error(),
	}); auditErr != nil {
		return auditErr
	}
	return cause
}

func validKind(k Kind) bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// =============================================================================
// READ PATHS - Never take the mutation lock
// =============================================================================

// History returns the ordered ledger for one employee/category pair.
func (s *Service) History(ctx context.Context, employeeID EmployeeID, category Category) ([]Transaction, error) {
	if _, err := s.Directory.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.Store.Load(ctx, employeeID, category)
}

// Balance folds the ledger for one employee/category pair as of a date.
func (s *Service) Balance(ctx context.Context, employeeID EmployeeID, category Category, asOf TimePoint) (BalanceSnapshot, error) {
	if _, err := s.Directory.GetEmployee(ctx, employeeID); err != nil {
		return BalanceSnapshot{}, err
	}
	txs, err := s.Store.Load(ctx, employeeID, category)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	return Snapshot(employeeID, category, txs, asOf), nil
}

// AuditTrail exposes the audit query surface.
func (s *Service) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return s.Trail.Query(ctx, filter)
}
