package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router    http.Handler
	auth      *api.AuthManager
	service   *ledger.Service
	directory *store.MemoryDirectory
	overrides *leave.OverrideHandler
}

// memoryAdmin adapts the in-memory directory to the write-side interface the
// handlers need.
type memoryAdmin struct {
	dir *store.MemoryDirectory
}

func (a memoryAdmin) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	a.dir.SetEmployee(emp)
	return nil
}

func (a memoryAdmin) SetEmployeeStatus(ctx context.Context, id ledger.EmployeeID, status ledger.EmploymentStatus) error {
	emp, err := a.dir.GetEmployee(ctx, id)
	if err != nil {
		return err
	}
	emp.Status = status
	a.dir.SetEmployee(emp)
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	memory := store.NewMemory()
	directory := store.NewMemoryDirectory()
	policies := leave.DefaultPolicies()
	access := ledger.DefaultAccessPolicy()
	trail := ledger.NewTrail(store.MemoryAuditLog{Memory: memory})
	service := ledger.NewService(memory, trail, directory, access, policies)

	schedule := leave.NewRateSchedule(leave.NewMemoryTierChanges(), directory)
	generator := leave.NewAccrualGenerator(service, directory, policies, schedule)
	promotions := leave.NewPromotionRecalculator(service, schedule, memory)
	overrides := leave.NewOverrideHandler(service, memory, access)

	metrics, registry := api.NewMetrics()
	handler := &api.Handler{
		Service:    service,
		Overrides:  overrides,
		Generator:  generator,
		Promotions: promotions,
		Directory:  directory,
		Admin:      memoryAdmin{dir: directory},
		Policies:   policies,
		Metrics:    metrics,
	}

	auth, err := api.NewAuthManager("test-secret", "leave-ledger-test", time.Hour)
	require.NoError(t, err)

	return &testServer{
		router:    api.NewRouter(handler, auth, registry),
		auth:      auth,
		service:   service,
		directory: directory,
		overrides: overrides,
	}
}

func (s *testServer) addEmployee(id string) {
	s.directory.SetEmployee(ledger.Employee{
		ID: ledger.EmployeeID(id), Name: id, Status: ledger.StatusActive,
		RateTier: "standard", HireDate: ledger.NewDate(2023, 6, 1),
	})
}

// seedBalance credits an opening balance straight through the domain layer.
func (s *testServer) seedBalance(t *testing.T, emp string, cat ledger.Category, days float64) {
	t.Helper()
	_, err := s.overrides.Apply(context.Background(), leave.OverrideRequest{
		EmployeeID:  ledger.EmployeeID(emp),
		Category:    cat,
		Delta:       ledger.Days(days),
		EffectiveAt: ledger.NewDate(2024, 1, 1),
		Actor:       ledger.Actor{ID: "admin_master", Role: ledger.RoleSeniorAdmin},
		Reason:      "opening balance",
	})
	require.NoError(t, err)
}

func (s *testServer) token(t *testing.T, actorID string, role ledger.Role) string {
	t.Helper()
	token, err := s.auth.Issue(time.Now(), actorID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAPI_MutationsRequireBearerToken(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	body := api.SubmitTransactionRequest{
		Kind: "deduction", EmployeeID: "emp-1", Category: "unpaid",
		Quantity: "-1", EffectiveAt: "2024-01-10",
	}

	rec := srv.do(t, http.MethodPost, "/api/transactions", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/transactions", "not-a-jwt", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RejectsTokenSignedWithWrongSecret(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	other, err := api.NewAuthManager("different-secret", "leave-ledger-test", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(time.Now(), "admin_1", ledger.RoleOperator)
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/transactions", forged, api.SubmitTransactionRequest{
		Kind: "deduction", EmployeeID: "emp-1", Category: "unpaid",
		Quantity: "-1", EffectiveAt: "2024-01-10",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ReadsAreOpen(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	rec := srv.do(t, http.MethodGet, "/api/employees", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/employees/emp-1/balance?category=paid_planned", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestAPI_SubmitDeduction(t *testing.T) {
	// GIVEN: An employee with 2 days of paid planned leave
	// WHEN: An operator posts a 1-day deduction over HTTP
	// THEN: 201, and the balance endpoint reflects it

	srv := newTestServer(t)
	srv.addEmployee("emp-1")
	srv.seedBalance(t, "emp-1", leave.PaidPlanned, 2)

	rec := srv.do(t, http.MethodPost, "/api/transactions",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "paid_planned",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tx := decode[api.TransactionDTO](t, rec)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "deduction", tx.Kind)
	assert.Equal(t, "admin_1", tx.Actor, "actor comes from the token, not the body")

	rec = srv.do(t, http.MethodGet,
		"/api/employees/emp-1/balance?category=paid_planned&as_of=2024-01-31", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "1", balance.Balance)
}

func TestAPI_OperatorCannotPostOverride(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	rec := srv.do(t, http.MethodPost, "/api/overrides",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.OverrideRequest{
			EmployeeID: "emp-1", Category: "paid_planned",
			Delta: "1", EffectiveAt: "2024-01-10", Reason: "fixup attempt",
		})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_OverdraftReturns422(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")
	srv.seedBalance(t, "emp-1", leave.PaidPlanned, 0.5)

	rec := srv.do(t, http.MethodPost, "/api/transactions",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "paid_planned",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "Insufficient balance", resp.Error)
}

func TestAPI_UnknownEmployeeReturns404(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/transactions",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "nobody", Category: "unpaid",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_MalformedQuantityReturns400(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	rec := srv.do(t, http.MethodPost, "/api/transactions",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "unpaid",
			Quantity: "one day", EffectiveAt: "2024-01-10",
		})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EMPLOYEE LIFECYCLE
// =============================================================================

func TestAPI_CreateAndLockEmployee(t *testing.T) {
	// GIVEN: An employee created over HTTP
	// WHEN: Status changes to "left"
	// THEN: The record reads locked, and new deductions bounce with 403

	srv := newTestServer(t)
	token := srv.token(t, "admin_master", ledger.RoleSeniorAdmin)

	rec := srv.do(t, http.MethodPost, "/api/employees", token, api.CreateEmployeeRequest{
		ID: "emp-1", Name: "Aparna", RateTier: "standard", HireDate: "2023-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.EmployeeDTO](t, rec)
	assert.False(t, created.Locked)

	srv.seedBalance(t, "emp-1", leave.PaidPlanned, 5)

	rec = srv.do(t, http.MethodPost, "/api/employees/emp-1/status", token,
		api.SetStatusRequest{Status: "left"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[api.EmployeeDTO](t, rec)
	assert.True(t, updated.Locked)

	rec = srv.do(t, http.MethodPost, "/api/transactions", token,
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "paid_planned",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Balance reads keep working on locked employees
	rec = srv.do(t, http.MethodGet,
		"/api/employees/emp-1/balance?category=paid_planned", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// ACCRUAL TRIGGERS
// =============================================================================

func TestAPI_RunAccrualIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")
	token := srv.token(t, "admin_master", ledger.RoleSeniorAdmin)

	rec := srv.do(t, http.MethodPost, "/api/accruals/run", token,
		api.RunAccrualRequest{Period: "2024-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[api.RunSummaryDTO](t, rec)
	assert.Equal(t, "2024-01", first.Period)
	assert.Equal(t, 4, first.Posted)

	rec = srv.do(t, http.MethodPost, "/api/accruals/run", token,
		api.RunAccrualRequest{Period: "2024-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	rerun := decode[api.RunSummaryDTO](t, rec)
	assert.Zero(t, rerun.Posted)
	assert.Equal(t, 4, rerun.Duplicates)
}

func TestAPI_BackfillValidatesRange(t *testing.T) {
	srv := newTestServer(t)
	token := srv.token(t, "admin_master", ledger.RoleSeniorAdmin)

	rec := srv.do(t, http.MethodPost, "/api/accruals/backfill", token,
		api.BackfillRequest{From: "2024-03", To: "2024-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PROMOTIONS
// =============================================================================

func TestAPI_PromotionRequiresSeniorRole(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	body := api.PromotionRequest{
		EmployeeID: "emp-1", FromTier: "standard", ToTier: "senior",
		EffectiveAt: "2024-03-01",
	}

	rec := srv.do(t, http.MethodPost, "/api/promotions",
		srv.token(t, "admin_1", ledger.RoleOperator), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/promotions",
		srv.token(t, "admin_master", ledger.RoleSeniorAdmin), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[api.PromotionResultDTO](t, rec)
	assert.Equal(t, "senior", result.ToTier)
	assert.Nil(t, result.CatchUp, "no accrued periods yet, nothing to catch up")
}

// =============================================================================
// EDITS
// =============================================================================

func TestAPI_EditTransaction(t *testing.T) {
	// GIVEN: A posted deduction
	// WHEN: A developer edits it over HTTP
	// THEN: The response carries original, reversal and corrected entries

	srv := newTestServer(t)
	srv.addEmployee("emp-1")
	srv.seedBalance(t, "emp-1", leave.PaidPlanned, 3)

	rec := srv.do(t, http.MethodPost, "/api/transactions",
		srv.token(t, "admin_1", ledger.RoleOperator),
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "paid_planned",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	require.Equal(t, http.StatusCreated, rec.Code)
	posted := decode[api.TransactionDTO](t, rec)

	editPath := fmt.Sprintf("/api/transactions/%s/edit", posted.ID)

	// A senior admin cannot edit
	rec = srv.do(t, http.MethodPost, editPath,
		srv.token(t, "admin_master", ledger.RoleSeniorAdmin),
		api.EditTransactionRequest{Reason: "fix", Quantity: "-0.5"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A developer can
	rec = srv.do(t, http.MethodPost, editPath,
		srv.token(t, "dev-1", ledger.RoleDeveloper),
		api.EditTransactionRequest{Reason: "only the morning was taken", Quantity: "-0.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[api.EditResultDTO](t, rec)
	assert.Equal(t, posted.ID, result.Original.ID)
	assert.Equal(t, posted.ID, result.Reversal.ReversalOf)
	assert.Equal(t, "1", result.Reversal.Quantity)
	assert.Equal(t, "-0.5", result.Corrected.Quantity)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAPI_AuditTrailFilters(t *testing.T) {
	// GIVEN: One accepted and one rejected submit
	// WHEN: Querying with outcome filters
	// THEN: Each filter returns exactly its side

	srv := newTestServer(t)
	srv.addEmployee("emp-1")
	srv.seedBalance(t, "emp-1", leave.PaidPlanned, 1)

	operator := srv.token(t, "admin_1", ledger.RoleOperator)
	srv.do(t, http.MethodPost, "/api/transactions", operator,
		api.SubmitTransactionRequest{
			Kind: "deduction", EmployeeID: "emp-1", Category: "paid_planned",
			Quantity: "-1", EffectiveAt: "2024-01-10",
		})
	srv.do(t, http.MethodPost, "/api/overrides", operator,
		api.OverrideRequest{
			EmployeeID: "emp-1", Category: "paid_planned",
			Delta: "1", EffectiveAt: "2024-01-10", Reason: "denied attempt",
		})

	rec := srv.do(t, http.MethodGet, "/api/audit?outcome=rejected&actor_id=admin_1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[[]api.AuditEventDTO](t, rec)
	require.Len(t, rejected, 1)
	assert.Equal(t, "submit:manual_override", rejected[0].Operation)

	rec = srv.do(t, http.MethodGet, "/api/audit?outcome=accepted&actor_id=admin_1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decode[[]api.AuditEventDTO](t, rec)
	require.Len(t, accepted, 1)
	assert.NotEmpty(t, accepted[0].TransactionID)

	rec = srv.do(t, http.MethodGet, "/api/audit?outcome=sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

func TestAPI_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmployee("emp-1")

	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/employees/emp-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	// Request series are labeled by route pattern, not by the raw path, so
	// per-employee URLs do not fan out into per-employee series
	assert.Contains(t, rec.Body.String(), "/api/employees/{id}")
	assert.NotContains(t, rec.Body.String(), "/api/employees/emp-1")
}
