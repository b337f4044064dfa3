/*
Package leave holds the leave-domain policy on top of the ledger engine:
the concrete leave categories, the monthly accrual generator, the
promotion rate schedule, and the manual-override workflow.

The ledger package knows nothing about paid-planned leave or comp-off; it
moves opaque categories. This package gives those categories meaning.
*/
package leave

import "github.com/warp/leave-ledger/ledger"

// =============================================================================
// CATEGORIES
// =============================================================================

const (
	// PaidPlanned is the main earned-leave category. It accrues monthly at
	// the employee's rate tier and is the only category promotions affect.
	PaidPlanned ledger.Category = "paid_planned"

	PaidUnplanned ledger.Category = "paid_unplanned"
	PaidSick      ledger.Category = "paid_sick"
	Casual        ledger.Category = "casual"

	// Unpaid tracks usage only and may run negative.
	Unpaid ledger.Category = "unpaid"

	// CompOff is credited ad hoc for work on holidays, not by the monthly
	// generator.
	CompOff ledger.Category = "comp_off"

	OutdoorDutyFull ledger.Category = "outdoor_duty_full"
	OutdoorDutyHalf ledger.Category = "outdoor_duty_half"

	// EarlyLateComing accumulates attendance penalties as debits against
	// paid time; it may run negative.
	EarlyLateComing ledger.Category = "early_late_coming"
)

// =============================================================================
// POLICY SET
// =============================================================================

// Policies is the standard category policy table.
type Policies struct {
	byCategory map[ledger.Category]ledger.CategoryPolicy
	order      []ledger.CategoryPolicy
}

var _ ledger.PolicySet = (*Policies)(nil)

// DefaultPolicies returns the standard set of leave categories.
func DefaultPolicies() *Policies {
	list := []ledger.CategoryPolicy{
		{Category: PaidPlanned, Name: "Paid Planned Leave", AccruesByTier: true, Paid: true},
		{Category: PaidUnplanned, Name: "Paid Unplanned Leave", MonthlyAccrual: ledger.Days(0.5), Paid: true},
		{Category: PaidSick, Name: "Paid Sick Leave", MonthlyAccrual: ledger.Days(0.5), Paid: true},
		{Category: Casual, Name: "Casual Leave", MonthlyAccrual: ledger.Days(0.5), Paid: true},
		{Category: Unpaid, Name: "Unpaid Leave", AllowNegative: true},
		{Category: CompOff, Name: "Compensatory Off", Paid: true},
		{Category: OutdoorDutyFull, Name: "Outdoor Duty (Full Day)"},
		{Category: OutdoorDutyHalf, Name: "Outdoor Duty (Half Day)"},
		{Category: EarlyLateComing, Name: "Early/Late Coming", AllowNegative: true},
	}
	p := &Policies{
		byCategory: make(map[ledger.Category]ledger.CategoryPolicy, len(list)),
		order:      list,
	}
	for _, cp := range list {
		p.byCategory[cp.Category] = cp
	}
	return p
}

func (p *Policies) PolicyFor(category ledger.Category) (ledger.CategoryPolicy, bool) {
	cp, ok := p.byCategory[category]
	return cp, ok
}

func (p *Policies) Categories() []ledger.CategoryPolicy {
	out := make([]ledger.CategoryPolicy, len(p.order))
	copy(out, p.order)
	return out
}
