/*
override.go - Manual overrides and the edit-historical workflow

PURPOSE:
  Manual overrides are the human escape hatch: a signed delta with a
  mandatory reason and an accountable actor, posted as a regular ledger
  transaction. Editing a posted record never mutates it; the edit workflow
  posts a reversal of the original plus a fresh corrected entry, leaving
  all three visible in history.
*/
package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// OVERRIDE HANDLER
// =============================================================================

// OverrideHandler posts manual corrections through the gated submit path.
type OverrideHandler struct {
	Service *ledger.Service
	Store   ledger.Store
	Access  *ledger.AccessPolicy
}

func NewOverrideHandler(service *ledger.Service, store ledger.Store, access *ledger.AccessPolicy) *OverrideHandler {
	return &OverrideHandler{Service: service, Store: store, Access: access}
}

// OverrideRequest is a manual balance correction.
type OverrideRequest struct {
	EmployeeID  ledger.EmployeeID
	Category    ledger.Category
	Delta       ledger.Quantity // signed
	EffectiveAt ledger.TimePoint
	Actor       ledger.Actor
	Reason      string
}

// Apply posts the override. Authorization, the mandatory reason, and the
// negative-balance rule are all enforced by the submit path.
func (h *OverrideHandler) Apply(ctx context.Context, req OverrideRequest) (ledger.Transaction, error) {
	return h.Service.Submit(ctx, ledger.SubmitRequest{
		Kind:        ledger.KindManualOverride,
		EmployeeID:  req.EmployeeID,
		Category:    req.Category,
		Quantity:    req.Delta,
		EffectiveAt: req.EffectiveAt,
		Actor:       req.Actor,
		Reason:      req.Reason,
	})
}

// =============================================================================
// EDIT HISTORICAL - Reversal plus corrected entry
// =============================================================================

// EditRequest corrects a posted transaction. The original stays in the
// ledger untouched; the workflow posts its negation and the corrected
// values as two new transactions.
type EditRequest struct {
	TransactionID ledger.TransactionID
	Actor         ledger.Actor
	Reason        string

	// Corrected values. Zero-value fields inherit from the original.
	Quantity    ledger.Quantity
	EffectiveAt ledger.TimePoint
}

// EditResult pairs the reversal with the corrected entry.
type EditResult struct {
	Original  ledger.Transaction
	Reversal  ledger.Transaction
	Corrected ledger.Transaction
}

// Edit runs the reversal-plus-corrected-entry workflow. It requires the
// edit-historical privilege, which sits above the right to post a lone
// reversal.
//
// The two legs post in order through the full submit gate. If the corrected
// entry is rejected after the reversal posted, the original values are
// reposted so the balance lands back where it started; every leg stays
// visible in the ledger and the audit trail.
func (h *OverrideHandler) Edit(ctx context.Context, req EditRequest) (EditResult, error) {
	if !h.Access.CanEditHistorical(req.Actor.Role) {
		return EditResult{}, &ledger.UnauthorizedError{Role: req.Actor.Role, Kind: ledger.KindReversal}
	}
	if req.Reason == "" {
		return EditResult{}, &ledger.InvalidTransactionError{Field: "reason", Detail: "required for edit"}
	}

	original, err := h.Store.Get(ctx, req.TransactionID)
	if err != nil {
		return EditResult{}, err
	}
	if original.Kind == ledger.KindReversal {
		return EditResult{}, &ledger.InvalidTransactionError{Field: "transaction_id", Detail: "cannot edit a reversal"}
	}

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity = original.Quantity
	}
	effectiveAt := req.EffectiveAt
	if effectiveAt.IsZero() {
		effectiveAt = original.EffectiveAt
	}

	reversal, err := h.Service.Submit(ctx, ledger.SubmitRequest{
		Kind:        ledger.KindReversal,
		EmployeeID:  original.EmployeeID,
		Category:    original.Category,
		Quantity:    original.Quantity.Neg(),
		EffectiveAt: original.EffectiveAt,
		Actor:       req.Actor,
		Reason:      fmt.Sprintf("edit of %s: %s", original.ID, req.Reason),
		ReversalOf:  original.ID,
	})
	if err != nil {
		return EditResult{}, err
	}

	corrected, err := h.Service.Submit(ctx, ledger.SubmitRequest{
		Kind:        original.Kind,
		EmployeeID:  original.EmployeeID,
		Category:    original.Category,
		Quantity:    quantity,
		EffectiveAt: effectiveAt,
		Actor:       req.Actor,
		Reason:      fmt.Sprintf("corrected entry for %s: %s", original.ID, req.Reason),
		PeriodKey:   correctedPeriodKey(original, effectiveAt),
	})
	if err != nil {
		// The reversal posted but the corrected entry did not. Repost the
		// original values to bring the balance back where it started; if
		// even that fails the caller gets a storage error and the audit
		// trail shows the partial edit.
		if _, undoErr := h.Service.Submit(ctx, ledger.SubmitRequest{
			Kind:        original.Kind,
			EmployeeID:  original.EmployeeID,
			Category:    original.Category,
			Quantity:    original.Quantity,
			EffectiveAt: original.EffectiveAt,
			Actor:       req.Actor,
			Reason:      fmt.Sprintf("restores %s after incomplete edit", original.ID),
			PeriodKey:   original.PeriodKey,
		}); undoErr != nil {
			return EditResult{}, fmt.Errorf("edit of %s left a dangling reversal %s: %w", original.ID, reversal.ID, undoErr)
		}
		return EditResult{}, err
	}

	return EditResult{Original: original, Reversal: reversal, Corrected: corrected}, nil
}

// correctedPeriodKey carries the period key onto the corrected entry when
// the original was an accrual. The duplicate guard ignores reversed
// accruals, so after the reversal posts the period is free for exactly one
// corrected entry, and one-accrual-per-period holds going forward.
func correctedPeriodKey(original ledger.Transaction, effectiveAt ledger.TimePoint) string {
	if original.Kind != ledger.KindAccrual {
		return ""
	}
	return effectiveAt.PeriodKey()
}
