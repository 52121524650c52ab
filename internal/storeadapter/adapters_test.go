package storeadapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/persistence/sqlite"
	"github.com/example/childcare-backoffice/internal/recurrence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

var (
	base    = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	central = wallclock.MustOffset(-360)
)

type harness struct {
	store     *sqlite.Store
	repos     *Repositories
	rules     *application.RuleService
	schedules *application.ScheduleService
	sessions  *application.SessionService
	billing   *application.BillingService
	payments  *application.PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.OpenStore(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "backoffice.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Families.CreateFamily(ctx, persistence.Family{ID: "family-1", Name: "Rivera", CreatedAt: base, UpdatedAt: base}))
	for _, id := range []string{"child-1", "child-2"} {
		require.NoError(t, store.Families.CreateChild(ctx, persistence.Child{ID: id, FamilyID: "family-1", Name: id, CreatedAt: base, UpdatedAt: base}))
	}
	require.NoError(t, store.Services.UpsertService(ctx, persistence.Service{
		ID: "svc-child", Name: "Group care", PricingMode: "PER_CHILD", RequiresChildren: true,
		DefaultHourlyRate: decimal.NewFromInt(20), CreatedAt: base, UpdatedAt: base,
	}))

	var seq int
	nextID := func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	now := func() time.Time { return base }

	formatter, err := billing.NewFormatter("en-US", "USD")
	require.NoError(t, err)

	repos := New(store)
	billingService := application.NewBillingService(repos.Sessions, repos.Services, repos.Expenses, formatter)
	return &harness{
		store:     store,
		repos:     repos,
		rules:     application.NewRuleService(repos.Rules, repos.Services, repos.Children, nextID, now),
		schedules: application.NewScheduleService(repos.Rules, repos.Services, repos.Sessions, repos.Blackouts, nextID, now),
		sessions:  application.NewSessionService(repos.Sessions, repos.Services, repos.Children, nextID, now),
		billing:   billingService,
		payments:  application.NewPaymentService(repos.Payments, billingService, nextID, now),
	}
}

func (h *harness) createWeeklyRule(t *testing.T) application.Rule {
	t.Helper()

	rule, err := h.rules.CreateOrUpdateRule(context.Background(), application.SaveRuleParams{
		Input: application.RuleInput{
			FamilyID:  "family-1",
			ServiceID: "svc-child",
			Kind:      "WEEKLY",
			Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
			StartTime: "06:00",
			EndTime:   "14:30",
			StartDate: "2024-01-01",
			ChildIDs:  []string{"child-1", "child-2"},
		},
		Offset: central,
	})
	require.NoError(t, err)
	return rule
}

func TestRuleStore_RoundTripsPatternAndOffset(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	created := h.createWeeklyRule(t)

	loaded, err := h.repos.Rules.GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, recurrence.KindWeekly, loaded.Pattern.Kind())
	assert.Equal(t, recurrence.WeekdaysOf(time.Monday, time.Wednesday), loaded.Pattern.Weekdays())
	assert.Equal(t, -360, loaded.Offset.Minutes())
	assert.Equal(t, wallclock.Clock{Hour: 14, Minute: 30}, loaded.Window.End)
	assert.Nil(t, loaded.Validity.EndDate)
	assert.ElementsMatch(t, []string{"child-1", "child-2"}, loaded.ChildIDs)

	_, err = h.rules.GetRule(context.Background(), "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestExpandThroughStore_SkipsBlackoutsAndIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	rule := h.createWeeklyRule(t)

	// Wednesday 2024-01-10, midnight to midnight in UTC-06:00.
	require.NoError(t, h.repos.Blackouts.CreateBlackout(ctx, application.Blackout{
		ID:        "holiday",
		StartsAt:  time.Date(2024, time.January, 10, 6, 0, 0, 0, time.UTC),
		EndsAt:    time.Date(2024, time.January, 11, 6, 0, 0, 0, time.UTC),
		AllDay:    true,
		CreatedAt: base,
	}))

	params := application.ExpandScheduleParams{
		RuleID:     rule.ID,
		RangeStart: wallclock.NewDate(2024, time.January, 8),
		RangeEnd:   wallclock.NewDate(2024, time.January, 14),
	}
	first, err := h.schedules.ExpandSchedule(ctx, params)
	require.NoError(t, err)
	require.Len(t, first.Created, 1)
	require.Len(t, first.Skipped, 1)

	session := first.Created[0]
	assert.Equal(t, time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC), session.Start.UTC())
	assert.Equal(t, lifecycle.StatusScheduled, session.Status)
	assert.False(t, session.Confirmed)
	assert.Equal(t, application.SkipReasonBlackedOut, first.Skipped[0].Reason)
	assert.Equal(t, "holiday", first.Skipped[0].BlackoutID)

	second, err := h.schedules.ExpandSchedule(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Len(t, second.Skipped, 2)
	assert.Equal(t, application.SkipReasonAlreadyExists, second.Skipped[0].Reason)
	assert.Equal(t, session.ID, second.Skipped[0].ExistingSessionID)
	assert.Equal(t, application.SkipReasonBlackedOut, second.Skipped[1].Reason)

	listed, err := h.sessions.ListSessions(ctx, application.SessionFilter{RuleID: rule.ID})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestPaymentThroughStore_StampsAndReleasesSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	rule := h.createWeeklyRule(t)

	expansion, err := h.schedules.ExpandSchedule(ctx, application.ExpandScheduleParams{
		RuleID:     rule.ID,
		RangeStart: wallclock.NewDate(2024, time.January, 8),
		RangeEnd:   wallclock.NewDate(2024, time.January, 8),
	})
	require.NoError(t, err)
	require.Len(t, expansion.Created, 1)
	sessionID := expansion.Created[0].ID

	completed := lifecycle.StatusCompleted
	confirmed := true
	_, err = h.sessions.TransitionSession(ctx, application.TransitionSessionParams{
		SessionID: sessionID,
		Status:    &completed,
	})
	require.NoError(t, err)

	billable, err := h.sessions.ListBillableSessions(ctx, "family-1")
	require.NoError(t, err)
	assert.Empty(t, billable, "unconfirmed sessions are not billable")

	_, err = h.sessions.TransitionSession(ctx, application.TransitionSessionParams{
		SessionID: sessionID,
		Confirmed: &confirmed,
	})
	require.NoError(t, err)

	billable, err = h.sessions.ListBillableSessions(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, billable, 1)

	amount, err := h.billing.ComputeSessionAmount(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, amount.Breakdown.Multiplier)
	assert.True(t, decimal.NewFromInt(340).Equal(amount.Breakdown.Total), "got %s", amount.Breakdown.Total)

	params := application.RecordPaymentParams{
		FamilyID:   "family-1",
		SessionIDs: []string{sessionID},
		Tips:       decimal.NewFromInt(10),
		Method:     "cash",
	}
	payment, err := h.payments.RecordPayment(ctx, params)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(350).Equal(payment.Amount), "got %s", payment.Amount)
	assert.Equal(t, application.PaymentStatusPaid, payment.Status)

	stored, err := h.repos.Sessions.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, payment.ID, *stored.PaymentID)

	_, err = h.payments.RecordPayment(ctx, params)
	var paid *application.AlreadyPaidError
	require.True(t, errors.As(err, &paid), "got %v", err)
	assert.Equal(t, sessionID, paid.SessionID)

	cancelled, err := h.payments.CancelPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, application.PaymentStatusCancelled, cancelled.Status)

	released, err := h.repos.Sessions.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, released.PaymentID)

	listed, err := h.payments.ListPayments(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, []string{sessionID}, listed[0].SessionIDs)
}

func TestRuleDelete_ProtectsFutureSessionsUntilCascade(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	rule := h.createWeeklyRule(t)

	_, err := h.schedules.ExpandSchedule(ctx, application.ExpandScheduleParams{
		RuleID:     rule.ID,
		RangeStart: wallclock.NewDate(2024, time.January, 8),
		RangeEnd:   wallclock.NewDate(2024, time.January, 10),
	})
	require.NoError(t, err)

	_, err = h.rules.DeleteRule(ctx, rule.ID, false)
	assert.ErrorIs(t, err, application.ErrRuleInUse)

	cancelled, err := h.rules.DeleteRule(ctx, rule.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	remaining, err := h.sessions.ListSessions(ctx, application.SessionFilter{
		FamilyID: "family-1",
		Statuses: []lifecycle.Status{lifecycle.StatusCancelled},
	})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	for _, session := range remaining {
		assert.Nil(t, session.SourceRuleID)
	}
}

func TestServiceCatalog_RejectsUnknownPricingMode(t *testing.T) {
	t.Parallel()

	_, err := toApplicationService(persistence.Service{ID: "svc-x", PricingMode: "FLAT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "svc-x")
}

func TestCatalogThroughStore(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	var seq int
	catalog := application.NewCatalogService(h.repos.Families, h.repos.Services, h.repos.Rules, func() string {
		seq++
		return fmt.Sprintf("cat-%d", seq)
	}, func() time.Time { return base })

	family, err := catalog.CreateFamily(ctx, application.FamilyInput{Name: "Okafor"})
	require.NoError(t, err)
	_, err = catalog.AddChild(ctx, application.ChildInput{FamilyID: family.ID, Name: "Zed"})
	require.NoError(t, err)
	_, err = catalog.AddChild(ctx, application.ChildInput{FamilyID: family.ID, Name: "Ada"})
	require.NoError(t, err)

	loaded, err := catalog.GetFamily(ctx, family.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Children, 2)
	assert.Equal(t, "Ada", loaded.Children[0].Name)

	service, err := catalog.SaveService(ctx, "", application.ServiceInput{
		Name: "Drop-in", PricingMode: "HOURLY", DefaultHourlyRate: decimal.NewFromInt(15),
	})
	require.NoError(t, err)
	services, err := catalog.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 2)

	stored, err := h.repos.Services.GetService(ctx, service.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PricingHourly, stored.PricingMode)
	assert.True(t, decimal.NewFromInt(15).Equal(stored.DefaultHourlyRate))

	h.createWeeklyRule(t)
	rules, err := catalog.ListFamilyRules(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, recurrence.KindWeekly, rules[0].Pattern.Kind())

	rules, err = catalog.ListFamilyRules(ctx, family.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
