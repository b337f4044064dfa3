/*
dto.go - Request and response shapes for the HTTP API

All quantities travel as decimal strings ("1.5", "-0.5") to keep the
half-day precision intact across JSON; dates are "2006-01-02".
*/
package api

// ErrorResponse is the JSON body for every error status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	RateTier string `json:"rate_tier"`
	HireDate string `json:"hire_date"`
	Locked   bool   `json:"locked"`
}

type CreateEmployeeRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RateTier string `json:"rate_tier"`
	HireDate string `json:"hire_date"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID          string `json:"id"`
	EmployeeID  string `json:"employee_id"`
	Category    string `json:"category"`
	Quantity    string `json:"quantity"`
	EffectiveAt string `json:"effective_at"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor"`
	Recorder    string `json:"recorder,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PeriodKey   string `json:"period_key,omitempty"`
	ReversalOf  string `json:"reversal_of,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// SubmitTransactionRequest posts one ledger transaction. The actor comes
// from the bearer token, never from the body.
type SubmitTransactionRequest struct {
	Kind        string `json:"kind"`
	EmployeeID  string `json:"employee_id"`
	Category    string `json:"category"`
	Quantity    string `json:"quantity"`
	EffectiveAt string `json:"effective_at"`
	Reason      string `json:"reason,omitempty"`
	ReversalOf  string `json:"reversal_of,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	EmployeeID string `json:"employee_id"`
	Category   string `json:"category"`
	AsOf       string `json:"as_of"`
	Balance    string `json:"balance"`
	Accrued    string `json:"accrued"`
	Used       string `json:"used"`
}

// =============================================================================
// OVERRIDES AND EDITS
// =============================================================================

type OverrideRequest struct {
	EmployeeID  string `json:"employee_id"`
	Category    string `json:"category"`
	Delta       string `json:"delta"`
	EffectiveAt string `json:"effective_at"`
	Reason      string `json:"reason"`
}

type EditTransactionRequest struct {
	Reason      string `json:"reason"`
	Quantity    string `json:"quantity,omitempty"`
	EffectiveAt string `json:"effective_at,omitempty"`
}

type EditResultDTO struct {
	Original  TransactionDTO `json:"original"`
	Reversal  TransactionDTO `json:"reversal"`
	Corrected TransactionDTO `json:"corrected"`
}

// =============================================================================
// PROMOTIONS
// =============================================================================

type PromotionRequest struct {
	EmployeeID  string `json:"employee_id"`
	FromTier    string `json:"from_tier"`
	ToTier      string `json:"to_tier"`
	EffectiveAt string `json:"effective_at"`
}

type PromotionResultDTO struct {
	EmployeeID      string          `json:"employee_id"`
	FromTier        string          `json:"from_tier"`
	ToTier          string          `json:"to_tier"`
	EffectiveAt     string          `json:"effective_at"`
	CatchUp         *TransactionDTO `json:"catch_up,omitempty"`
	PeriodsAdjusted []string        `json:"periods_adjusted,omitempty"`
}

// =============================================================================
// ACCRUALS
// =============================================================================

type RunAccrualRequest struct {
	// Period is "YYYY-MM"; empty means the current month.
	Period string `json:"period,omitempty"`
}

type BackfillRequest struct {
	From string `json:"from"` // "YYYY-MM"
	To   string `json:"to"`
}

type RunSummaryDTO struct {
	Period     string `json:"period"`
	Posted     int    `json:"posted"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEventDTO struct {
	ID            string `json:"id"`
	At            string `json:"at"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
	Operation     string `json:"operation"`
	EmployeeID    string `json:"employee_id"`
	Category      string `json:"category,omitempty"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}
