/*
access.go - Role x kind authorization table

PURPOSE:
  Pure authorization: (actor role, transaction kind, employee lock state) ->
  allow or deny with a reason. The policy is a data table, not code paths;
  adding a role or kind is a table edit.

POLICY TABLE (default):

  role          | accrual | deduction | promo-adj | override | reversal | edit-historical
  --------------+---------+-----------+-----------+----------+----------+----------------
  system        |   yes   |    yes    |    yes    |    no    |    no    |      no
  operator      |   no    |    yes    |    no     |    no    |    no    |      no
  senior_admin  |   no    |    yes    |    yes    |   yes    |   yes    |      no
  developer     |   yes   |    yes    |    yes    |   yes    |   yes    |     yes

  Accruals are produced by the generator, never keyed in by admins; crediting
  a balance by hand is what manual overrides are for. The developer keeps the
  accrual kind because the edit workflow reposts corrected accrual entries.

  "edit-historical" is the reversal-plus-corrected-entry workflow over a
  previously posted record; it is a distinct privilege from posting a lone
  reversal.

LOCK STATE:
  Lock overrides role. A locked employee accepts no new transactions except
  the lock-exempt kinds (by default only reversals, so a final settlement
  can still undo an erroneous entry), regardless of who is asking.
*/
package ledger

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision              { return Decision{Allowed: true} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// AccessPolicy gates which roles may create which transaction kinds, and
// which kinds remain accepted for locked employees.
type AccessPolicy struct {
	allowed        map[Role]map[Kind]bool
	lockExempt     map[Kind]bool
	historicalEdit map[Role]bool
}

// DefaultAccessPolicy returns the standard policy table.
func DefaultAccessPolicy() *AccessPolicy {
	return &AccessPolicy{
		allowed: map[Role]map[Kind]bool{
			RoleSystem: {
				KindAccrual:             true,
				KindDeduction:           true,
				KindPromotionAdjustment: true,
			},
			RoleOperator: {
				KindDeduction: true,
			},
			RoleSeniorAdmin: {
				KindDeduction:           true,
				KindPromotionAdjustment: true,
				KindManualOverride:      true,
				KindReversal:            true,
			},
			RoleDeveloper: {
				KindAccrual:             true,
				KindDeduction:           true,
				KindPromotionAdjustment: true,
				KindManualOverride:      true,
				KindReversal:            true,
			},
		},
		lockExempt: map[Kind]bool{
			KindReversal: true,
		},
		historicalEdit: map[Role]bool{
			RoleDeveloper: true,
		},
	}
}

// Authorize evaluates the table for a single transaction attempt.
// Lock state is checked first: it overrides role for non-exempt kinds.
func (p *AccessPolicy) Authorize(role Role, kind Kind, locked bool) Decision {
	if locked && !p.lockExempt[kind] {
		return deny("employee is locked")
	}
	if p.allowed[role][kind] {
		return allow()
	}
	return deny("role " + string(role) + " may not create " + string(kind))
}

// CanEditHistorical reports whether the role may run the
// reversal-plus-corrected-entry workflow over a posted record.
func (p *AccessPolicy) CanEditHistorical(role Role) bool {
	return p.historicalEdit[role]
}

// LockExempt reports whether the kind is accepted for locked employees.
func (p *AccessPolicy) LockExempt(kind Kind) bool {
	return p.lockExempt[kind]
}

// AllowLockExempt marks a kind as accepted for locked employees. The
// settlement workflow configures this; the default exempts reversals only.
func (p *AccessPolicy) AllowLockExempt(kind Kind) {
	p.lockExempt[kind] = true
}
