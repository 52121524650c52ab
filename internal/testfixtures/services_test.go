package testfixtures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

type capturingRuleRepo struct {
	stored application.Rule
}

func (c *capturingRuleRepo) UpsertRule(ctx context.Context, rule application.Rule) error {
	c.stored = rule
	return nil
}

func (c *capturingRuleRepo) GetRule(ctx context.Context, id string) (application.Rule, error) {
	return application.Rule{}, application.ErrNotFound
}

func (c *capturingRuleRepo) DeleteRule(ctx context.Context, id string, now time.Time, cascade bool) (int, error) {
	return 0, nil
}

type staticCatalog struct {
	service application.Service
}

func (s staticCatalog) GetService(ctx context.Context, id string) (application.Service, error) {
	if id != s.service.ID {
		return application.Service{}, application.ErrNotFound
	}
	return s.service, nil
}

type noMissingChildren struct{}

func (noMissingChildren) MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error) {
	return nil, nil
}

func TestServiceFactoryNewRuleService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingRuleRepo{}
	catalog := staticCatalog{service: application.Service{ID: "svc", PricingMode: "HOURLY", DefaultHourlyRate: decimal.NewFromInt(20)}}

	svc := factory.NewRuleService(RuleServiceDeps{Rules: repo, Services: catalog, Children: noMissingChildren{}})
	rule, err := svc.CreateOrUpdateRule(context.Background(), NewRuleFixture("family", "svc").SaveParams())
	if err != nil {
		t.Fatalf("CreateOrUpdateRule returned error: %v", err)
	}

	if rule.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", rule.ID)
	}
	if repo.stored.ID != rule.ID {
		t.Fatalf("repository received unexpected ID: %q", repo.stored.ID)
	}
	if !rule.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), rule.CreatedAt)
	}
	if rule.Offset.Minutes() != CentralOffset.Minutes() {
		t.Fatalf("expected offset %s, got %s", CentralOffset, rule.Offset)
	}
}

func TestHarnessExpandsSeededRule(t *testing.T) {
	harness := NewSQLiteHarness(t)
	family := harness.SeedFamily(NewFamilyFixture())
	service := harness.SeedService(NewServiceFixture())
	harness.SeedBlackout(AllDayBlackout("closed", wallclock.NewDate(2024, time.January, 10), CentralOffset))

	services := NewServiceFactory().NewServices(harness.Repos)
	ctx := context.Background()

	rule, err := services.Rules.CreateOrUpdateRule(ctx, NewRuleFixture(family.ID, service.ID).SaveParams())
	if err != nil {
		t.Fatalf("CreateOrUpdateRule returned error: %v", err)
	}

	result, err := services.Schedules.ExpandSchedule(ctx, application.ExpandScheduleParams{
		RuleID:     rule.ID,
		RangeStart: wallclock.NewDate(2024, time.January, 8),
		RangeEnd:   wallclock.NewDate(2024, time.January, 12),
	})
	if err != nil {
		t.Fatalf("ExpandSchedule returned error: %v", err)
	}
	if len(result.Created) != 2 || len(result.Skipped) != 1 {
		t.Fatalf("expected 2 created and 1 skipped, got %d and %d", len(result.Created), len(result.Skipped))
	}
	if result.Skipped[0].BlackoutID != "closed" {
		t.Fatalf("expected skip by blackout closed, got %+v", result.Skipped[0])
	}
}

func TestHarnessRecordsPaymentForSeededSession(t *testing.T) {
	harness := NewSQLiteHarness(t)
	family := harness.SeedFamily(NewFamilyFixture())
	service := harness.SeedService(NewServiceFixture())
	session := harness.SeedSession(NewSessionFixture(family.ID, service.ID, Billable()))
	pending := harness.SeedSession(NewSessionFixture(family.ID, service.ID,
		WithSessionStatus(lifecycle.StatusInProgress, false),
		WithSessionTimes(ReferenceTime().Add(24*time.Hour), ReferenceTime().Add(26*time.Hour)),
	))

	services := NewServiceFactory(WithIDGenerator(NewUUIDGenerator())).NewServices(harness.Repos)
	ctx := context.Background()

	billable, err := services.Sessions.ListBillableSessions(ctx, family.ID)
	if err != nil {
		t.Fatalf("ListBillableSessions returned error: %v", err)
	}
	if len(billable) != 1 || billable[0].ID != session.ID {
		t.Fatalf("expected only %s to be billable, got %+v", session.ID, billable)
	}

	payment, err := services.Payments.RecordPayment(ctx, application.RecordPaymentParams{
		FamilyID:   family.ID,
		SessionIDs: []string{session.ID},
		Tips:       decimal.NewFromInt(5),
		Method:     "CARD",
	})
	if err != nil {
		t.Fatalf("RecordPayment returned error: %v", err)
	}
	if !payment.Amount.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected amount 45, got %s", payment.Amount)
	}

	_, err = services.Payments.RecordPayment(ctx, application.RecordPaymentParams{
		FamilyID:   family.ID,
		SessionIDs: []string{pending.ID},
		Method:     "CARD",
	})
	var notBillable *application.NotBillableError
	if !errors.As(err, &notBillable) {
		t.Fatalf("expected NotBillableError, got %v", err)
	}
}
