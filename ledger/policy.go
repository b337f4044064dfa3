package ledger

// =============================================================================
// CATEGORY POLICY - Per-category behavior
// =============================================================================

// CategoryPolicy defines how a leave category behaves. The leave domain
// package supplies the concrete set; the engine consults it for the
// negative-balance rule and the accrual generator for rates.
type CategoryPolicy struct {
	Category Category
	Name     string

	// MonthlyAccrual is the base accrual per period. Zero means the
	// category does not accrue (e.g. unpaid leave, penalties).
	MonthlyAccrual Quantity

	// AccruesByTier: the employee's rate-tier schedule replaces the base
	// monthly accrual. Used for the main paid-leave category where
	// promotions change the rate.
	AccruesByTier bool

	// AllowNegative: the balance may go below zero (unpaid categories,
	// penalty categories). When false the submit path rejects any
	// transaction that would drive the arithmetic balance negative.
	AllowNegative bool

	// Paid: whether this category represents paid leave. Unpaid categories
	// never accrue and track usage only.
	Paid bool
}

// PolicySet resolves a category to its policy.
type PolicySet interface {
	PolicyFor(category Category) (CategoryPolicy, bool)

	// Categories returns every known category, in a stable order.
	Categories() []CategoryPolicy
}
