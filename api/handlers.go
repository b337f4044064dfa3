/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the ledger engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates everything else to the domain packages.

ENDPOINTS:
  Employees:
    GET    /api/employees                 List all employees
    POST   /api/employees                 Create employee
    GET    /api/employees/{id}            Get employee details
    POST   /api/employees/{id}/status     Change employment status (lock/unlock)
    GET    /api/employees/{id}/balance    Balance for one category
    GET    /api/employees/{id}/balances   Balances across all categories
    GET    /api/employees/{id}/ledger     Transaction history

  Transactions:
    POST   /api/transactions              Submit a transaction
    POST   /api/transactions/{id}/edit    Reversal-plus-corrected-entry edit

  Admin:
    POST   /api/overrides                 Manual balance override
    POST   /api/promotions                Record a promotion
    POST   /api/accruals/run              Run one accrual period
    POST   /api/accruals/backfill         Fill accrual gaps over a range

  Audit:
    GET    /api/audit                     Query the audit trail

ERROR HANDLING:
  Rejections map to HTTP status by their sentinel:
  - 400: invalid transaction, unknown category
  - 403: unauthorized role, locked employee
  - 404: unknown employee, unknown transaction
  - 409: duplicate accrual period
  - 422: negative balance violation
  - 503: storage unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer-token actor extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// EmployeeAdmin is the write side of the employee directory.
type EmployeeAdmin interface {
	SaveEmployee(ctx context.Context, emp ledger.Employee) error
	SetEmployeeStatus(ctx context.Context, id ledger.EmployeeID, status ledger.EmploymentStatus) error
}

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Service    *ledger.Service
	Overrides  *leave.OverrideHandler
	Generator  *leave.AccrualGenerator
	Promotions *leave.PromotionRecalculator
	Directory  ledger.Directory
	Admin      EmployeeAdmin
	Policies   ledger.PolicySet
	Metrics    *Metrics
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Directory.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates a new employee record.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	hireDate := ledger.Today()
	if req.HireDate != "" {
		var err error
		hireDate, err = ledger.ParseDate(req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire_date", err)
			return
		}
	}
	tier := req.RateTier
	if tier == "" {
		tier = "standard"
	}

	emp := ledger.Employee{
		ID:       ledger.EmployeeID(req.ID),
		Name:     req.Name,
		Status:   ledger.StatusActive,
		RateTier: tier,
		HireDate: hireDate,
	}
	if err := h.Admin.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// SetEmployeeStatus changes employment status. Setting "left" locks the
// employee's ledgers.
func (h *Handler) SetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := ledger.EmploymentStatus(req.Status)
	switch status {
	case ledger.StatusActive, ledger.StatusLeft, ledger.StatusLeaveOfAbsence:
	default:
		writeError(w, http.StatusBadRequest, "Unknown status", nil)
		return
	}

	if err := h.Admin.SetEmployeeStatus(r.Context(), id, status); err != nil {
		writeDomainError(w, err)
		return
	}

	emp, err := h.Directory.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// =============================================================================
// BALANCE AND HISTORY HANDLERS
// =============================================================================

// GetBalance returns the balance for one employee and category.
// Query params: category (required), as_of (optional, default today).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))
	category := ledger.Category(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category query parameter is required", nil)
		return
	}

	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	snapshot, err := h.Service.Balance(r.Context(), id, category, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(snapshot))
}

// ListBalances returns balances for every known category.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	asOf, ok := h.asOfParam(w, r)
	if !ok {
		return
	}

	var dtos []BalanceDTO
	for _, policy := range h.Policies.Categories() {
		snapshot, err := h.Service.Balance(r.Context(), id, policy.Category, asOf)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		dtos = append(dtos, toBalanceDTO(snapshot))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLedger returns the ordered transaction history for one category.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))
	category := ledger.Category(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category query parameter is required", nil)
		return
	}

	txs, err := h.Service.History(r.Context(), id, category)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) asOfParam(w http.ResponseWriter, r *http.Request) (ledger.TimePoint, bool) {
	asOf := ledger.Today()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := ledger.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return ledger.TimePoint{}, false
		}
		asOf = parsed
	}
	return asOf, true
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// SubmitTransaction posts one transaction through the gated submit path.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No actor in request", nil)
		return
	}

	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := ledger.ParseQuantity(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	effectiveAt, err := ledger.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	tx, err := h.Service.Submit(r.Context(), ledger.SubmitRequest{
		Kind:        ledger.Kind(req.Kind),
		EmployeeID:  ledger.EmployeeID(req.EmployeeID),
		Category:    ledger.Category(req.Category),
		Quantity:    quantity,
		EffectiveAt: effectiveAt,
		Actor:       actor,
		Reason:      req.Reason,
		ReversalOf:  ledger.TransactionID(req.ReversalOf),
	})
	if err != nil {
		h.Metrics.SubmitsRejected.WithLabelValues(req.Kind).Inc()
		writeDomainError(w, err)
		return
	}

	h.Metrics.TransactionsPosted.WithLabelValues(string(tx.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// EditTransaction runs the reversal-plus-corrected-entry workflow.
func (h *Handler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No actor in request", nil)
		return
	}

	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req EditTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	edit := leave.EditRequest{
		TransactionID: id,
		Actor:         actor,
		Reason:        req.Reason,
	}
	if req.Quantity != "" {
		quantity, err := ledger.ParseQuantity(req.Quantity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity", err)
			return
		}
		edit.Quantity = quantity
	}
	if req.EffectiveAt != "" {
		effectiveAt, err := ledger.ParseDate(req.EffectiveAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
			return
		}
		edit.EffectiveAt = effectiveAt
	}

	result, err := h.Overrides.Edit(r.Context(), edit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Metrics.TransactionsPosted.WithLabelValues(string(ledger.KindReversal)).Inc()
	h.Metrics.TransactionsPosted.WithLabelValues(string(result.Corrected.Kind)).Inc()
	writeJSON(w, http.StatusOK, EditResultDTO{
		Original:  toTransactionDTO(result.Original),
		Reversal:  toTransactionDTO(result.Reversal),
		Corrected: toTransactionDTO(result.Corrected),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ApplyOverride posts a manual balance correction.
func (h *Handler) ApplyOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No actor in request", nil)
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	delta, err := ledger.ParseQuantity(req.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delta", err)
		return
	}
	effectiveAt := ledger.Today()
	if req.EffectiveAt != "" {
		effectiveAt, err = ledger.ParseDate(req.EffectiveAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
			return
		}
	}

	tx, err := h.Overrides.Apply(r.Context(), leave.OverrideRequest{
		EmployeeID:  ledger.EmployeeID(req.EmployeeID),
		Category:    ledger.Category(req.Category),
		Delta:       delta,
		EffectiveAt: effectiveAt,
		Actor:       actor,
		Reason:      req.Reason,
	})
	if err != nil {
		h.Metrics.SubmitsRejected.WithLabelValues(string(ledger.KindManualOverride)).Inc()
		writeDomainError(w, err)
		return
	}

	h.Metrics.TransactionsPosted.WithLabelValues(string(tx.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// RecordPromotion records a tier change and posts the catch-up credit.
func (h *Handler) RecordPromotion(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No actor in request", nil)
		return
	}
	// Promotions feed the system-actor path; the HTTP caller only needs a
	// role that could post the adjustment itself.
	if actor.Role != ledger.RoleSeniorAdmin && actor.Role != ledger.RoleDeveloper {
		writeError(w, http.StatusForbidden, "Insufficient role for promotions", nil)
		return
	}

	var req PromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveAt, err := ledger.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	result, err := h.Promotions.OnPromotion(r.Context(), leave.TierChange{
		EmployeeID:  ledger.EmployeeID(req.EmployeeID),
		FromTier:    req.FromTier,
		ToTier:      req.ToTier,
		EffectiveAt: effectiveAt,
		RecordedAt:  ledger.Today(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := PromotionResultDTO{
		EmployeeID:      req.EmployeeID,
		FromTier:        result.Change.FromTier,
		ToTier:          result.Change.ToTier,
		EffectiveAt:     result.Change.EffectiveAt.String(),
		PeriodsAdjusted: result.PeriodsAdjusted,
	}
	if result.CatchUp != nil {
		h.Metrics.TransactionsPosted.WithLabelValues(string(ledger.KindPromotionAdjustment)).Inc()
		catchUp := toTransactionDTO(*result.CatchUp)
		dto.CatchUp = &catchUp
	}
	writeJSON(w, http.StatusCreated, dto)
}

// RunAccrual triggers the generator for one period.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	period := ledger.StartOfMonth(ledger.Today())
	if req.Period != "" {
		start, _, err := ledger.ParsePeriodKey(req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
		period = start
	}

	summary, err := h.Generator.RunPeriod(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// BackfillAccruals fills accrual gaps over a month range.
func (h *Handler) BackfillAccruals(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, _, err := ledger.ParsePeriodKey(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from period", err)
		return
	}
	to, _, err := ledger.ParsePeriodKey(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to period", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to period precedes from period", nil)
		return
	}

	summaries, err := h.Generator.Backfill(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]RunSummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toRunSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns audit events matching the query parameters.
// Params: employee_id, actor_id, outcome, from, to (dates).
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	var filter ledger.AuditFilter
	q := r.URL.Query()

	if v := q.Get("employee_id"); v != "" {
		id := ledger.EmployeeID(v)
		filter.EmployeeID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := q.Get("outcome"); v != "" {
		outcome := ledger.AuditOutcome(v)
		if outcome != ledger.OutcomeAccepted && outcome != ledger.OutcomeRejected {
			writeError(w, http.StatusBadRequest, "Unknown outcome", nil)
			return
		}
		filter.Outcome = &outcome
	}
	if v := q.Get("from"); v != "" {
		from, err := ledger.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := ledger.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		filter.To = &to
	}

	events, err := h.Service.AuditTrail(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toAuditEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DTO CONVERSION AND ERROR MAPPING
// =============================================================================

func toEmployeeDTO(e ledger.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:       string(e.ID),
		Name:     e.Name,
		Status:   string(e.Status),
		RateTier: e.RateTier,
		HireDate: e.HireDate.String(),
		Locked:   e.Locked(),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		EmployeeID:  string(tx.EmployeeID),
		Category:    string(tx.Category),
		Quantity:    tx.Quantity.String(),
		EffectiveAt: tx.EffectiveAt.String(),
		Kind:        string(tx.Kind),
		Actor:       tx.Actor,
		Recorder:    tx.Recorder,
		Reason:      tx.Reason,
		PeriodKey:   tx.PeriodKey,
		ReversalOf:  string(tx.ReversalOf),
		CreatedAt:   tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toBalanceDTO(s ledger.BalanceSnapshot) BalanceDTO {
	return BalanceDTO{
		EmployeeID: string(s.EmployeeID),
		Category:   string(s.Category),
		AsOf:       s.AsOf.String(),
		Balance:    s.Balance.String(),
		Accrued:    s.Accrued.String(),
		Used:       s.Used.String(),
	}
}

func toRunSummaryDTO(s leave.RunSummary) RunSummaryDTO {
	return RunSummaryDTO{
		Period:     s.Period,
		Posted:     s.Posted,
		Duplicates: s.Duplicates,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
	}
}

func toAuditEventDTO(ev ledger.AuditEvent) AuditEventDTO {
	return AuditEventDTO{
		ID:            string(ev.ID),
		At:            ev.At.Format("2006-01-02T15:04:05.000Z07:00"),
		ActorID:       ev.ActorID,
		ActorRole:     string(ev.ActorRole),
		Operation:     ev.Operation,
		EmployeeID:    string(ev.EmployeeID),
		Category:      string(ev.Category),
		Outcome:       string(ev.Outcome),
		Reason:        ev.Reason,
		TransactionID: string(ev.TransactionID),
	}
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidTransaction), errors.Is(err, ledger.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
	case errors.Is(err, ledger.ErrUnauthorized), errors.Is(err, ledger.ErrLockedEmployee):
		writeError(w, http.StatusForbidden, "Not allowed", err)
	case errors.Is(err, ledger.ErrUnknownEmployee), errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrDuplicateAccrualPeriod), errors.Is(err, ledger.ErrDuplicateTransactionID):
		writeError(w, http.StatusConflict, "Duplicate", err)
	case errors.Is(err, ledger.ErrNegativeBalance):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient balance", err)
	case errors.Is(err, ledger.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
