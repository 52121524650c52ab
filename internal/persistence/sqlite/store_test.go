package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

var base = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "backoffice.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seed creates family-1 with two children and the hourly and per-child services.
func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Families.CreateFamily(ctx, persistence.Family{ID: "family-1", Name: "Rivera", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, store.Families.CreateFamily(ctx, persistence.Family{ID: "family-2", Name: "Okafor", CreatedAt: base, UpdatedAt: base}))
	for _, id := range []string{"child-1", "child-2"} {
		require.NoError(t, store.Families.CreateChild(ctx, persistence.Child{ID: id, FamilyID: "family-1", Name: id, CreatedAt: base, UpdatedAt: base}))
	}
	require.NoError(t, store.Families.CreateChild(ctx, persistence.Child{ID: "child-9", FamilyID: "family-2", Name: "child-9", CreatedAt: base, UpdatedAt: base}))

	require.NoError(t, store.Services.UpsertService(ctx, persistence.Service{
		ID: "svc-hourly", Name: "Nanny", PricingMode: "HOURLY",
		DefaultHourlyRate: decimal.NewFromInt(20), CreatedAt: base, UpdatedAt: base,
	}))
	require.NoError(t, store.Services.UpsertService(ctx, persistence.Service{
		ID: "svc-child", Name: "Group care", PricingMode: "PER_CHILD", RequiresChildren: true,
		DefaultHourlyRate: decimal.NewFromInt(20), CreatedAt: base, UpdatedAt: base,
	}))
}

func seedRule(t *testing.T, store *Store, id string) persistence.RecurrenceRule {
	t.Helper()

	rule := persistence.RecurrenceRule{
		ID:            id,
		FamilyID:      "family-1",
		ServiceID:     "svc-child",
		Kind:          "WEEKLY",
		Weekdays:      1<<time.Monday | 1<<time.Wednesday | 1<<time.Friday,
		StartTime:     wallclock.Clock{Hour: 6},
		EndTime:       wallclock.Clock{Hour: 14, Minute: 30},
		StartsOn:      wallclock.NewDate(2024, time.January, 1),
		OffsetMinutes: -360,
		ChildIDs:      []string{"child-1", "child-2"},
		CreatedAt:     base,
		UpdatedAt:     base,
	}
	require.NoError(t, store.Recurrences.UpsertRecurrence(context.Background(), rule))
	return rule
}

func newSession(id string, ruleID *string, start time.Time, status string, confirmed bool) persistence.Session {
	return persistence.Session{
		ID:             id,
		FamilyID:       "family-1",
		ServiceID:      "svc-child",
		SourceRuleID:   ruleID,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(4 * time.Hour),
		Status:         status,
		IsConfirmed:    confirmed,
		HourlyRate:     decimal.NewFromInt(20),
		ChildIDs:       []string{"child-1", "child-2"},
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.Pool.Migrate(context.Background()))

	var applied int
	require.NoError(t, store.Pool.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), applied)
}

func TestFamilyRepository_MissingChildIDs(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	seed(t, store)

	missing, err := store.Families.MissingChildIDs(context.Background(), "family-1", []string{"child-2", "child-9", "ghost", "child-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"child-9", "ghost"}, missing)

	children, err := store.Families.ListChildren(context.Background(), "family-1")
	require.NoError(t, err)
	assert.Len(t, children, 2)

	_, err = store.Families.GetFamily(context.Background(), "nope")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecurrenceRepository_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)

	rule := seedRule(t, store, "rule-1")
	ends := wallclock.NewDate(2024, time.March, 31)
	rate := decimal.RequireFromString("22.50")
	rule.EndsOn = &ends
	rule.HourlyRateOverride = &rate
	rule.ChildIDs = []string{"child-2"}
	require.NoError(t, store.Recurrences.UpsertRecurrence(ctx, rule))

	got, err := store.Recurrences.GetRecurrence(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, rule.StartTime, got.StartTime)
	assert.Equal(t, rule.EndTime, got.EndTime)
	assert.Equal(t, rule.StartsOn, got.StartsOn)
	require.NotNil(t, got.EndsOn)
	assert.Equal(t, ends, *got.EndsOn)
	require.NotNil(t, got.HourlyRateOverride)
	assert.True(t, rate.Equal(*got.HourlyRateOverride))
	assert.Equal(t, -360, got.OffsetMinutes)
	assert.Equal(t, rule.Weekdays, got.Weekdays)
	assert.Equal(t, []string{"child-2"}, got.ChildIDs)

	rules, err := store.Recurrences.ListRecurrencesForFamily(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	bad := rule
	bad.ID = "rule-bad"
	bad.ChildIDs = []string{"ghost"}
	err = store.Recurrences.UpsertRecurrence(ctx, bad)
	assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)
	_, err = store.Recurrences.GetRecurrence(ctx, "rule-bad")
	assert.ErrorIs(t, err, persistence.ErrNotFound, "failed upsert must roll back")
}

func TestSessionRepository_InsertGeneratedIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	ruleID := seedRule(t, store, "rule-1").ID

	batch := []persistence.Session{
		newSession("s-1", &ruleID, base, "SCHEDULED", false),
		newSession("s-2", &ruleID, base.Add(48*time.Hour), "SCHEDULED", false),
	}
	created, existing, err := store.Sessions.InsertGeneratedSessions(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Empty(t, existing)

	again := []persistence.Session{
		newSession("s-1b", &ruleID, base, "SCHEDULED", false),
		newSession("s-3", &ruleID, base.Add(96*time.Hour), "SCHEDULED", false),
	}
	created, existing, err = store.Sessions.InsertGeneratedSessions(ctx, again)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "s-3", created[0].ID)
	require.Len(t, existing, 1)
	assert.Equal(t, "s-1", existing[0].ID)
	assert.Equal(t, []string{"child-1", "child-2"}, existing[0].ChildIDs)

	all, err := store.Sessions.ListSessions(ctx, persistence.SessionFilter{SourceRuleID: ruleID})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSessionRepository_MovedSessionHoldsOccurrence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	ruleID := seedRule(t, store, "rule-1").ID

	_, _, err := store.Sessions.InsertGeneratedSessions(ctx, []persistence.Session{
		newSession("s-1", &ruleID, base, "SCHEDULED", false),
	})
	require.NoError(t, err)

	stored, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	stored.ScheduledStart = base.Add(2 * time.Hour)
	stored.ScheduledEnd = base.Add(5 * time.Hour)
	_, err = store.Sessions.UpdateSession(ctx, stored)
	require.NoError(t, err)

	created, existing, err := store.Sessions.InsertGeneratedSessions(ctx, []persistence.Session{
		newSession("s-1b", &ruleID, base, "SCHEDULED", false),
		newSession("s-2", &ruleID, base.Add(2*time.Hour), "SCHEDULED", false),
	})
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, "s-1", existing[0].ID)
	assert.True(t, base.Add(2*time.Hour).Equal(existing[0].ScheduledStart))
	require.Len(t, created, 1, "the moved session's new start is not an occurrence slot")
	assert.Equal(t, "s-2", created[0].ID)
}

func TestSessionRepository_UpdateDetectsStaleVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)

	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "SCHEDULED", false)))
	current, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version)

	current.Status = "IN_PROGRESS"
	updated, err := store.Sessions.UpdateSession(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	current.Status = "CANCELLED"
	_, err = store.Sessions.UpdateSession(ctx, current)
	assert.ErrorIs(t, err, persistence.ErrStaleWrite)

	missing := current
	missing.ID = "ghost"
	_, err = store.Sessions.UpdateSession(ctx, missing)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSessionRepository_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)

	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "COMPLETED", true)))
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-2", nil, base.Add(24*time.Hour), "COMPLETED", false)))
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-3", nil, base.Add(48*time.Hour), "SCHEDULED", false)))

	confirmed := true
	billable, err := store.Sessions.ListSessions(ctx, persistence.SessionFilter{
		FamilyID:  "family-1",
		Statuses:  []string{"COMPLETED"},
		Confirmed: &confirmed,
		Unpaid:    true,
	})
	require.NoError(t, err)
	require.Len(t, billable, 1)
	assert.Equal(t, "s-1", billable[0].ID)

	after := base.Add(time.Hour)
	later, err := store.Sessions.ListSessions(ctx, persistence.SessionFilter{StartsAfter: &after})
	require.NoError(t, err)
	assert.Len(t, later, 2)

	byID, err := store.Sessions.ListSessionsByIDs(ctx, []string{"s-3", "s-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "s-1", byID[0].ID)
}

func TestPaymentRepository_StampsAtomically(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)

	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "COMPLETED", true)))
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-2", nil, base.Add(24*time.Hour), "COMPLETED", false)))

	paidAt := base.Add(72 * time.Hour)
	payment := persistence.Payment{
		ID: "pay-1", FamilyID: "family-1", Amount: decimal.NewFromInt(160), Tips: decimal.Zero,
		Method: "CASH", Status: "PAID", SessionIDs: []string{"s-1", "s-2"},
		PaidAt: &paidAt, CreatedAt: paidAt, UpdatedAt: paidAt,
	}
	err := store.Payments.RecordPayment(ctx, payment)
	var stampErr *persistence.StampError
	require.ErrorAs(t, err, &stampErr)
	assert.Equal(t, "s-2", stampErr.SessionID)
	assert.ErrorIs(t, err, persistence.ErrNotEligible)

	s1, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, s1.PaymentID, "rolled back payment must not leave a stamp")
	_, err = store.Payments.GetPayment(ctx, "pay-1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	payment.SessionIDs = []string{"s-1"}
	require.NoError(t, store.Payments.RecordPayment(ctx, payment))

	second := payment
	second.ID = "pay-2"
	err = store.Payments.RecordPayment(ctx, second)
	require.ErrorAs(t, err, &stampErr)
	assert.ErrorIs(t, err, persistence.ErrAlreadyStamped)
	assert.Equal(t, "pay-1", stampErr.PaymentID)

	got, err := store.Payments.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, got.SessionIDs)
	assert.Equal(t, "160.00", got.Amount.StringFixed(2))
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))
}

func TestPaymentRepository_RejectsStalePricedVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "COMPLETED", true)))

	priced, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)

	require.NoError(t, store.Expenses.CreateExpense(ctx, persistence.Expense{
		ID: "exp-1", SessionID: "s-1", Description: "Museum tickets", Amount: decimal.NewFromInt(15), CreatedAt: base,
	}))

	payment := persistence.Payment{
		ID: "pay-1", FamilyID: "family-1", Amount: decimal.NewFromInt(80), Tips: decimal.Zero,
		Method: "CASH", Status: "PAID", SessionIDs: []string{"s-1"}, SessionVersions: []int64{priced.Version},
		CreatedAt: base, UpdatedAt: base,
	}
	err = store.Payments.RecordPayment(ctx, payment)
	var stampErr *persistence.StampError
	require.ErrorAs(t, err, &stampErr)
	assert.Equal(t, "s-1", stampErr.SessionID)
	assert.ErrorIs(t, err, persistence.ErrStaleWrite)

	_, err = store.Payments.GetPayment(ctx, "pay-1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	current, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, current.PaymentID)
	assert.Equal(t, priced.Version+1, current.Version)

	payment.SessionVersions = []int64{current.Version, current.Version}
	assert.ErrorIs(t, store.Payments.RecordPayment(ctx, payment), persistence.ErrConstraintViolation)

	payment.Amount = decimal.NewFromInt(95)
	payment.SessionVersions = []int64{current.Version}
	require.NoError(t, store.Payments.RecordPayment(ctx, payment))
}

func TestPaymentRepository_ConcurrentPaymentsStampOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "COMPLETED", true)))

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Payments.RecordPayment(ctx, persistence.Payment{
				ID: fmt.Sprintf("pay-%d", i), FamilyID: "family-1",
				Amount: decimal.NewFromInt(80), Tips: decimal.Zero, Method: "CASH", Status: "PAID",
				SessionIDs: []string{"s-1"}, CreatedAt: base, UpdatedAt: base,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, persistence.ErrAlreadyStamped), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestPaymentRepository_CancelReleasesSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("s-1", nil, base, "COMPLETED", true)))

	require.NoError(t, store.Payments.RecordPayment(ctx, persistence.Payment{
		ID: "pay-1", FamilyID: "family-1", Amount: decimal.NewFromInt(80), Tips: decimal.NewFromInt(5),
		Method: "CARD", Status: "PAID", SessionIDs: []string{"s-1"}, CreatedAt: base, UpdatedAt: base,
	}))

	cancelled, err := store.Payments.CancelPayment(ctx, "pay-1", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, []string{"s-1"}, cancelled.SessionIDs)

	s1, err := store.Sessions.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, s1.PaymentID)

	again, err := store.Payments.CancelPayment(ctx, "pay-1", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", again.Status)

	payments, err := store.Payments.ListPayments(ctx, "family-1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = store.Payments.CancelPayment(ctx, "ghost", base)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecurrenceRepository_DeleteProtectsFutureSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	ruleID := seedRule(t, store, "rule-1").ID

	_, _, err := store.Sessions.InsertGeneratedSessions(ctx, []persistence.Session{
		newSession("past", &ruleID, base, "COMPLETED", true),
		newSession("future", &ruleID, base.Add(7*24*time.Hour), "SCHEDULED", false),
	})
	require.NoError(t, err)

	now := base.Add(24 * time.Hour)
	_, err = store.Recurrences.DeleteRecurrence(ctx, ruleID, now, false)
	assert.ErrorIs(t, err, persistence.ErrReferenced)

	cancelled, err := store.Recurrences.DeleteRecurrence(ctx, ruleID, now, true)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	future, err := store.Sessions.GetSession(ctx, "future")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", future.Status)
	assert.Nil(t, future.SourceRuleID)

	past, err := store.Sessions.GetSession(ctx, "past")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", past.Status)

	_, err = store.Recurrences.DeleteRecurrence(ctx, ruleID, now, true)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestExpenseRepository_LocksPaidAndCancelledSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	seed(t, store)
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("open", nil, base, "COMPLETED", true)))
	require.NoError(t, store.Sessions.CreateSession(ctx, newSession("gone", nil, base.Add(time.Hour*24), "CANCELLED", false)))

	require.NoError(t, store.Expenses.CreateExpense(ctx, persistence.Expense{
		ID: "exp-1", SessionID: "open", Description: "Museum tickets", Amount: decimal.NewFromInt(15), CreatedAt: base,
	}))
	err := store.Expenses.CreateExpense(ctx, persistence.Expense{
		ID: "exp-2", SessionID: "gone", Description: "Snacks", Amount: decimal.NewFromInt(3), CreatedAt: base,
	})
	assert.ErrorIs(t, err, persistence.ErrSessionLocked)

	require.NoError(t, store.Payments.RecordPayment(ctx, persistence.Payment{
		ID: "pay-1", FamilyID: "family-1", Amount: decimal.NewFromInt(175), Tips: decimal.Zero,
		Method: "CASH", Status: "PAID", SessionIDs: []string{"open"}, CreatedAt: base, UpdatedAt: base,
	}))
	err = store.Expenses.CreateExpense(ctx, persistence.Expense{
		ID: "exp-3", SessionID: "open", Description: "Late pickup", Amount: decimal.NewFromInt(10), CreatedAt: base,
	})
	assert.ErrorIs(t, err, persistence.ErrSessionLocked)

	grouped, err := store.Expenses.ListExpensesForSessions(ctx, []string{"open", "gone"})
	require.NoError(t, err)
	require.Len(t, grouped["open"], 1)
	assert.Equal(t, "15.00", grouped["open"][0].Amount.StringFixed(2))
	assert.Empty(t, grouped["gone"])
}

func TestBlackoutRepository_ListsOverlapping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Blackouts.CreateBlackout(ctx, persistence.Blackout{
		ID: "b-1", StartsAt: base, EndsAt: base.Add(24 * time.Hour), AllDay: true, Reason: "Holiday", CreatedAt: base,
	}))
	require.NoError(t, store.Blackouts.CreateBlackout(ctx, persistence.Blackout{
		ID: "b-2", StartsAt: base.Add(72 * time.Hour), EndsAt: base.Add(75 * time.Hour), CreatedAt: base,
	}))
	err := store.Blackouts.CreateBlackout(ctx, persistence.Blackout{ID: "b-3", StartsAt: base, EndsAt: base, CreatedAt: base})
	assert.ErrorIs(t, err, persistence.ErrConstraintViolation)

	from := base.Add(24 * time.Hour)
	to := base.Add(73 * time.Hour)
	got, err := store.Blackouts.ListBlackouts(ctx, persistence.BlackoutFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1, "a period ending exactly at From does not overlap")
	assert.Equal(t, "b-2", got[0].ID)

	require.NoError(t, store.Blackouts.DeleteBlackout(ctx, "b-2"))
	assert.ErrorIs(t, store.Blackouts.DeleteBlackout(ctx, "b-2"), persistence.ErrNotFound)
}
