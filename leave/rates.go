/*
rates.go - Accrual rate tiers and promotion recalculation

PURPOSE:
  Maps employees to monthly accrual rates through a tier schedule, and
  implements the promotion workflow: a rate change applies to future
  accruals only, optionally paired with a one-time promotion-adjustment
  credit. Past accruals are never rewritten.

CATCH-UP SEMANTICS:
  When a promotion is recorded after accruals for months at or past its
  effective date have already posted, those months accrued at the old rate.
  The catch-up credit is (new rate - old rate) summed over exactly those
  already-posted months. If the promotion lands before any affected accrual
  has run, the catch-up is zero and the new rate simply applies forward.
*/
package leave

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// TIERS
// =============================================================================

// DefaultTiers maps rate-tier names to monthly paid-planned accrual rates.
func DefaultTiers() map[string]ledger.Quantity {
	return map[string]ledger.Quantity{
		"standard": ledger.Days(1.5),
		"senior":   ledger.Days(2.0),
		"lead":     ledger.Days(2.5),
	}
}

// TierChange records a promotion: from its effective date forward the
// employee accrues at the new tier's rate.
type TierChange struct {
	EmployeeID  ledger.EmployeeID
	FromTier    string
	ToTier      string
	EffectiveAt ledger.TimePoint
	RecordedAt  ledger.TimePoint
}

// TierChangeStore persists the promotion history.
type TierChangeStore interface {
	AppendTierChange(ctx context.Context, change TierChange) error

	// TierChanges returns the employee's changes ordered by effective date.
	TierChanges(ctx context.Context, employeeID ledger.EmployeeID) ([]TierChange, error)
}

// MemoryTierChanges is the in-memory TierChangeStore used by tests and dev
// setups.
type MemoryTierChanges struct {
	mu      sync.RWMutex
	changes map[ledger.EmployeeID][]TierChange
}

func NewMemoryTierChanges() *MemoryTierChanges {
	return &MemoryTierChanges{changes: make(map[ledger.EmployeeID][]TierChange)}
}

func (m *MemoryTierChanges) AppendTierChange(_ context.Context, change TierChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.changes[change.EmployeeID], change)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].EffectiveAt.Before(list[j].EffectiveAt)
	})
	m.changes[change.EmployeeID] = list
	return nil
}

func (m *MemoryTierChanges) TierChanges(_ context.Context, employeeID ledger.EmployeeID) ([]TierChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.changes[employeeID]
	out := make([]TierChange, len(list))
	copy(out, list)
	return out, nil
}

// =============================================================================
// RATE SCHEDULE
// =============================================================================

// RateSchedule resolves an employee's monthly accrual rate at a point in
// time, from the tier history plus the directory's current tier.
type RateSchedule struct {
	Changes   TierChangeStore
	Tiers     map[string]ledger.Quantity
	Directory ledger.Directory
}

func NewRateSchedule(changes TierChangeStore, directory ledger.Directory) *RateSchedule {
	return &RateSchedule{Changes: changes, Tiers: DefaultTiers(), Directory: directory}
}

// RateAt returns the employee's monthly paid-planned accrual rate as of a
// date: the rate of the latest tier change effective on or before the date,
// or the employee's directory tier when no change applies.
func (r *RateSchedule) RateAt(ctx context.Context, employeeID ledger.EmployeeID, at ledger.TimePoint) (ledger.Quantity, error) {
	changes, err := r.Changes.TierChanges(ctx, employeeID)
	if err != nil {
		return ledger.Quantity{}, err
	}
	tier := ""
	for _, c := range changes {
		if c.EffectiveAt.BeforeOrEqual(at) {
			tier = c.ToTier
		}
	}
	if tier == "" && len(changes) > 0 {
		// Before the first recorded change the employee was on that
		// change's starting tier.
		tier = changes[0].FromTier
	}
	if tier == "" {
		emp, err := r.Directory.GetEmployee(ctx, employeeID)
		if err != nil {
			return ledger.Quantity{}, err
		}
		tier = emp.RateTier
	}
	rate, ok := r.Tiers[tier]
	if !ok {
		return ledger.Quantity{}, fmt.Errorf("unknown rate tier %q for employee %s", tier, employeeID)
	}
	return rate, nil
}

// =============================================================================
// PROMOTION RECALCULATOR
// =============================================================================

// PromotionRecalculator applies a recorded promotion to the ledger: it
// persists the tier change and posts the catch-up adjustment for accrual
// periods that already ran at the old rate.
type PromotionRecalculator struct {
	Service  *ledger.Service
	Schedule *RateSchedule
	Store    ledger.Store
}

func NewPromotionRecalculator(service *ledger.Service, schedule *RateSchedule, store ledger.Store) *PromotionRecalculator {
	return &PromotionRecalculator{Service: service, Schedule: schedule, Store: store}
}

// PromotionResult reports what a promotion did to the ledger.
type PromotionResult struct {
	Change TierChange

	// CatchUp is the one-time promotion-adjustment posted, if any.
	CatchUp *ledger.Transaction

	// PeriodsAdjusted lists the period keys the catch-up covered.
	PeriodsAdjusted []string
}

// OnPromotion records the tier change and posts the catch-up credit for any
// accrual period at or after the effective date that already posted at the
// old rate. Past transactions are never modified.
func (p *PromotionRecalculator) OnPromotion(ctx context.Context, change TierChange) (PromotionResult, error) {
	oldRate, ok := p.Schedule.Tiers[change.FromTier]
	if !ok {
		return PromotionResult{}, fmt.Errorf("unknown rate tier %q", change.FromTier)
	}
	newRate, ok := p.Schedule.Tiers[change.ToTier]
	if !ok {
		return PromotionResult{}, fmt.Errorf("unknown rate tier %q", change.ToTier)
	}

	catchUp, periods, err := p.computeCatchUp(ctx, change.EmployeeID, change.EffectiveAt, oldRate, newRate)
	if err != nil {
		return PromotionResult{}, err
	}

	if err := p.Schedule.Changes.AppendTierChange(ctx, change); err != nil {
		return PromotionResult{}, err
	}

	result := PromotionResult{Change: change, PeriodsAdjusted: periods}
	if !catchUp.IsZero() {
		tx, err := p.Service.Submit(ctx, ledger.SubmitRequest{
			Kind:        ledger.KindPromotionAdjustment,
			EmployeeID:  change.EmployeeID,
			Category:    PaidPlanned,
			Quantity:    catchUp,
			EffectiveAt: change.RecordedAt,
			Actor:       ledger.SystemActor("promotion-recalculator"),
			Reason: fmt.Sprintf("promotion %s -> %s effective %s, catch-up over %d period(s)",
				change.FromTier, change.ToTier, change.EffectiveAt, len(periods)),
		})
		if err != nil {
			return PromotionResult{}, err
		}
		result.CatchUp = &tx
	}
	return result, nil
}

// computeCatchUp sums (new - old) over the accrual periods at or after the
// promotion's effective date that have already posted.
func (p *PromotionRecalculator) computeCatchUp(ctx context.Context, employeeID ledger.EmployeeID, effectiveAt ledger.TimePoint, oldRate, newRate ledger.Quantity) (ledger.Quantity, []string, error) {
	perPeriod := newRate.Sub(oldRate)
	total := ledger.ZeroQuantity()
	var periods []string
	if perPeriod.IsZero() {
		return total, nil, nil
	}

	txs, err := p.Store.Load(ctx, employeeID, PaidPlanned)
	if err != nil {
		return ledger.Quantity{}, nil, err
	}
	cutoff := effectiveAt.PeriodKey()
	for _, tx := range txs {
		if tx.Kind != ledger.KindAccrual || tx.PeriodKey == "" {
			continue
		}
		if tx.PeriodKey < cutoff {
			continue
		}
		total = total.Add(perPeriod)
		periods = append(periods, tx.PeriodKey)
	}
	return total, periods, nil
}
