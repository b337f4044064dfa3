package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/ids"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTx(emp string, cat ledger.Category, qty float64, date ledger.TimePoint, kind ledger.Kind) ledger.Transaction {
	return ledger.Transaction{
		ID:          ledger.TransactionID(ids.New()),
		EmployeeID:  ledger.EmployeeID(emp),
		Category:    cat,
		Quantity:    ledger.Days(qty),
		EffectiveAt: date,
		Kind:        kind,
		Actor:       "test",
		Recorder:    "test",
		CreatedAt:   time.Now().UTC(),
	}
}

// =============================================================================
// TRANSACTION ROUND TRIPS
// =============================================================================

func TestStore_AppendAndLoadOrdered(t *testing.T) {
	// GIVEN: Transactions appended out of effective-date order
	// WHEN: Loading the ledger
	// THEN: Rows come back ordered by effective date, then ID

	store := newTestStore(t)
	ctx := context.Background()

	march := newTx("emp-1", "paid_planned", -1, ledger.NewDate(2024, 3, 5), ledger.KindDeduction)
	jan := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	feb := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 2, 29), ledger.KindAccrual)

	for _, tx := range []ledger.Transaction{march, jan, feb} {
		require.NoError(t, store.Append(ctx, tx))
	}

	txs, err := store.Load(ctx, "emp-1", "paid_planned")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, jan.ID, txs[0].ID)
	assert.Equal(t, feb.ID, txs[1].ID)
	assert.Equal(t, march.ID, txs[2].ID)
}

func TestStore_RoundTripPreservesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	original.PeriodKey = "2024-01"
	original.Reason = "monthly accrual"
	require.NoError(t, store.Append(ctx, original))

	got, err := store.Get(ctx, original.ID)
	require.NoError(t, err)

	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.EmployeeID, got.EmployeeID)
	assert.Equal(t, original.Category, got.Category)
	assert.True(t, original.Quantity.Equal(got.Quantity))
	assert.True(t, original.EffectiveAt.Equal(got.EffectiveAt))
	assert.Equal(t, original.Kind, got.Kind)
	assert.Equal(t, original.PeriodKey, got.PeriodKey)
	assert.Equal(t, original.Reason, got.Reason)
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	require.NoError(t, store.Append(ctx, tx))

	err := store.Append(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransactionID)
}

func TestStore_LoadRangeFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for month := 1; month <= 6; month++ {
		tx := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, time.Month(month), 15), ledger.KindAccrual)
		require.NoError(t, store.Append(ctx, tx))
	}

	txs, err := store.LoadRange(ctx, "emp-1", "paid_planned",
		ledger.NewDate(2024, 2, 1), ledger.NewDate(2024, 4, 30))
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

// =============================================================================
// ACCRUAL PERIOD GUARD
// =============================================================================

func TestStore_HasAccrualIgnoresReversedEntries(t *testing.T) {
	// GIVEN: A January accrual that was later reversed
	// WHEN: Checking the period
	// THEN: The period reads as free; posting a replacement re-occupies it

	store := newTestStore(t)
	ctx := context.Background()

	accrual := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	accrual.PeriodKey = "2024-01"
	require.NoError(t, store.Append(ctx, accrual))

	exists, err := store.HasAccrual(ctx, "emp-1", "paid_planned", "2024-01")
	require.NoError(t, err)
	assert.True(t, exists)

	reversal := newTx("emp-1", "paid_planned", -1.5, ledger.NewDate(2024, 1, 31), ledger.KindReversal)
	reversal.ReversalOf = accrual.ID
	require.NoError(t, store.Append(ctx, reversal))

	exists, err = store.HasAccrual(ctx, "emp-1", "paid_planned", "2024-01")
	require.NoError(t, err)
	assert.False(t, exists, "reversed accrual frees its period")

	corrected := newTx("emp-1", "paid_planned", 2, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	corrected.PeriodKey = "2024-01"
	require.NoError(t, store.Append(ctx, corrected))

	exists, err = store.HasAccrual(ctx, "emp-1", "paid_planned", "2024-01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_HasAccrualScopedToEmployeeAndCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	accrual := newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual)
	accrual.PeriodKey = "2024-01"
	require.NoError(t, store.Append(ctx, accrual))

	other, err := store.HasAccrual(ctx, "emp-2", "paid_planned", "2024-01")
	require.NoError(t, err)
	assert.False(t, other)

	otherCat, err := store.HasAccrual(ctx, "emp-1", "paid_sick", "2024-01")
	require.NoError(t, err)
	assert.False(t, otherCat)
}

// =============================================================================
// REPLAY DETERMINISM
// =============================================================================

func TestStore_ReplayFoldsIdentically(t *testing.T) {
	// GIVEN: The same transactions appended to two stores in different order
	// WHEN: Folding both ledgers
	// THEN: Balances agree; (effective_at, id) ordering is total

	ctx := context.Background()
	txs := []ledger.Transaction{
		newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual),
		newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 2, 29), ledger.KindAccrual),
		newTx("emp-1", "paid_planned", -2, ledger.NewDate(2024, 3, 4), ledger.KindDeduction),
		newTx("emp-1", "paid_planned", 0.5, ledger.NewDate(2024, 3, 4), ledger.KindManualOverride),
	}

	forward := newTestStore(t)
	for _, tx := range txs {
		require.NoError(t, forward.Append(ctx, tx))
	}

	backward := newTestStore(t)
	for i := len(txs) - 1; i >= 0; i-- {
		require.NoError(t, backward.Append(ctx, txs[i]))
	}

	asOf := ledger.NewDate(2024, 12, 31)
	b1, err := ledger.NewCalculator(forward).BalanceAt(ctx, "emp-1", "paid_planned", asOf)
	require.NoError(t, err)
	b2, err := ledger.NewCalculator(backward).BalanceAt(ctx, "emp-1", "paid_planned", asOf)
	require.NoError(t, err)

	assert.True(t, b1.Equal(b2))
	assert.True(t, b1.Equal(ledger.Days(1.5)))

	// Row order agrees too
	rows1, err := forward.Load(ctx, "emp-1", "paid_planned")
	require.NoError(t, err)
	rows2, err := backward.Load(ctx, "emp-1", "paid_planned")
	require.NoError(t, err)
	require.Equal(t, len(rows1), len(rows2))
	for i := range rows1 {
		assert.Equal(t, rows1[i].ID, rows2[i].ID)
	}
}

// =============================================================================
// AUDIT EVENTS
// =============================================================================

func TestStore_AuditEventRoundTripAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []ledger.AuditEvent{
		{ID: "ev-1", At: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), ActorID: "admin_1",
			ActorRole: ledger.RoleOperator, Operation: "submit:deduction",
			EmployeeID: "emp-1", Category: "paid_planned", Outcome: ledger.OutcomeAccepted, TransactionID: "tx-1"},
		{ID: "ev-2", At: time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC), ActorID: "admin_1",
			ActorRole: ledger.RoleOperator, Operation: "submit:manual_override",
			EmployeeID: "emp-1", Category: "paid_planned", Outcome: ledger.OutcomeRejected, Reason: "role denied"},
		{ID: "ev-3", At: time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC), ActorID: "admin_master",
			ActorRole: ledger.RoleSeniorAdmin, Operation: "submit:manual_override",
			EmployeeID: "emp-2", Category: "casual", Outcome: ledger.OutcomeAccepted, TransactionID: "tx-2"},
	}
	for _, ev := range events {
		require.NoError(t, store.AppendEvent(ctx, ev))
	}

	all, err := store.QueryEvents(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rejected := ledger.OutcomeRejected
	got, err := store.QueryEvents(ctx, ledger.AuditFilter{Outcome: &rejected})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.AuditEventID("ev-2"), got[0].ID)

	emp := ledger.EmployeeID("emp-2")
	got, err = store.QueryEvents(ctx, ledger.AuditFilter{EmployeeID: &emp})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.AuditEventID("ev-3"), got[0].ID)
}

// =============================================================================
// EMPLOYEES AND TIER CHANGES
// =============================================================================

func TestStore_EmployeeLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp := ledger.Employee{
		ID: "emp-1", Name: "Aparna", Status: ledger.StatusActive,
		RateTier: "standard", HireDate: ledger.NewDate(2023, 6, 1),
	}
	require.NoError(t, store.SaveEmployee(ctx, emp))

	got, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, emp.Name, got.Name)
	assert.False(t, got.Locked())

	require.NoError(t, store.SetEmployeeStatus(ctx, "emp-1", ledger.StatusLeft))
	got, err = store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, got.Locked())

	_, err = store.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrUnknownEmployee)

	err = store.SetEmployeeStatus(ctx, "nobody", ledger.StatusActive)
	assert.ErrorIs(t, err, ledger.ErrUnknownEmployee)
}

func TestStore_TierChangesOrderedByEffectiveDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	second := leave.TierChange{
		EmployeeID: "emp-1", FromTier: "senior", ToTier: "lead",
		EffectiveAt: ledger.NewDate(2025, 1, 1), RecordedAt: ledger.NewDate(2024, 12, 15),
	}
	first := leave.TierChange{
		EmployeeID: "emp-1", FromTier: "standard", ToTier: "senior",
		EffectiveAt: ledger.NewDate(2024, 3, 1), RecordedAt: ledger.NewDate(2024, 2, 20),
	}
	require.NoError(t, store.AppendTierChange(ctx, second))
	require.NoError(t, store.AppendTierChange(ctx, first))

	changes, err := store.TierChanges(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "senior", changes[0].ToTier)
	assert.Equal(t, "lead", changes[1].ToTier)
}

// =============================================================================
// STORAGE FAILURES (sqlmock)
// =============================================================================

func TestStore_DriverFailuresMapToStorageUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewWithDB(db)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("append", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO transactions").WillReturnError(boom)
		err := store.Append(ctx, newTx("emp-1", "paid_planned", 1.5, ledger.NewDate(2024, 1, 31), ledger.KindAccrual))
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
		assert.True(t, ledger.IsStorage(err))
	})

	t.Run("load", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, employee_id").WillReturnError(boom)
		_, err := store.Load(ctx, "emp-1", "paid_planned")
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	})

	t.Run("accrual check", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
		_, err := store.HasAccrual(ctx, "emp-1", "paid_planned", "2024-01")
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	})

	t.Run("audit append", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO audit_events").WillReturnError(boom)
		err := store.AppendEvent(ctx, ledger.AuditEvent{ID: "ev-1", At: time.Now(), ActorID: "a", Outcome: ledger.OutcomeAccepted})
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
