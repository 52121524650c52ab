// Package storeadapter maps the persistence repositories onto the ports the
// application services depend on.
package storeadapter

import (
	"context"
	"time"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/persistence/sqlite"
)

// Repositories exposes one adapter per application port.
type Repositories struct {
	Families  *FamilyStore
	Rules     *RuleStore
	Services  *ServiceCatalog
	Children  *ChildDirectory
	Sessions  *SessionStore
	Blackouts *BlackoutStore
	Expenses  *ExpenseStore
	Payments  *PaymentStore
}

var (
	_ application.FamilyRepository       = (*FamilyStore)(nil)
	_ application.RuleRepository         = (*RuleStore)(nil)
	_ application.RuleLister             = (*RuleStore)(nil)
	_ application.RuleReader             = (*RuleStore)(nil)
	_ application.ServiceRepository      = (*ServiceCatalog)(nil)
	_ application.ChildDirectory         = (*ChildDirectory)(nil)
	_ application.SessionRepository      = (*SessionStore)(nil)
	_ application.GeneratedSessionWriter = (*SessionStore)(nil)
	_ application.SessionReader          = (*SessionStore)(nil)
	_ application.BlackoutRepository     = (*BlackoutStore)(nil)
	_ application.ExpenseRepository      = (*ExpenseStore)(nil)
	_ application.ExpenseReader          = (*ExpenseStore)(nil)
	_ application.PaymentRepository      = (*PaymentStore)(nil)
)

// New wires adapters over an opened store.
func New(store *sqlite.Store) *Repositories {
	return &Repositories{
		Families:  &FamilyStore{repo: store.Families},
		Rules:     &RuleStore{repo: store.Recurrences},
		Services:  &ServiceCatalog{repo: store.Services},
		Children:  &ChildDirectory{repo: store.Families},
		Sessions:  &SessionStore{repo: store.Sessions},
		Blackouts: &BlackoutStore{repo: store.Blackouts},
		Expenses:  &ExpenseStore{repo: store.Expenses},
		Payments:  &PaymentStore{repo: store.Payments},
	}
}

type FamilyStore struct {
	repo persistence.FamilyRepository
}

func (a *FamilyStore) CreateFamily(ctx context.Context, family application.Family) error {
	return a.repo.CreateFamily(ctx, persistence.Family{
		ID:        family.ID,
		Name:      family.Name,
		CreatedAt: family.CreatedAt,
		UpdatedAt: family.UpdatedAt,
	})
}

// GetFamily loads the family and its children ordered by name.
func (a *FamilyStore) GetFamily(ctx context.Context, id string) (application.Family, error) {
	stored, err := a.repo.GetFamily(ctx, id)
	if err != nil {
		return application.Family{}, err
	}
	children, err := a.repo.ListChildren(ctx, id)
	if err != nil {
		return application.Family{}, err
	}
	return toApplicationFamily(stored, children), nil
}

func (a *FamilyStore) CreateChild(ctx context.Context, child application.Child) error {
	return a.repo.CreateChild(ctx, persistence.Child{
		ID:        child.ID,
		FamilyID:  child.FamilyID,
		Name:      child.Name,
		CreatedAt: child.CreatedAt,
		UpdatedAt: child.CreatedAt,
	})
}

type RuleStore struct {
	repo persistence.RecurrenceRepository
}

func (a *RuleStore) UpsertRule(ctx context.Context, rule application.Rule) error {
	return a.repo.UpsertRecurrence(ctx, toPersistenceRule(rule))
}

func (a *RuleStore) GetRule(ctx context.Context, id string) (application.Rule, error) {
	stored, err := a.repo.GetRecurrence(ctx, id)
	if err != nil {
		return application.Rule{}, err
	}
	return toApplicationRule(stored)
}

func (a *RuleStore) ListRulesForFamily(ctx context.Context, familyID string) ([]application.Rule, error) {
	models, err := a.repo.ListRecurrencesForFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	rules := make([]application.Rule, 0, len(models))
	for _, model := range models {
		rule, err := toApplicationRule(model)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (a *RuleStore) DeleteRule(ctx context.Context, id string, now time.Time, cascade bool) (int, error) {
	return a.repo.DeleteRecurrence(ctx, id, now, cascade)
}

type ServiceCatalog struct {
	repo persistence.ServiceRepository
}

func (a *ServiceCatalog) GetService(ctx context.Context, id string) (application.Service, error) {
	stored, err := a.repo.GetService(ctx, id)
	if err != nil {
		return application.Service{}, err
	}
	return toApplicationService(stored)
}

func (a *ServiceCatalog) UpsertService(ctx context.Context, service application.Service) error {
	return a.repo.UpsertService(ctx, persistence.Service{
		ID:                service.ID,
		Name:              service.Name,
		PricingMode:       string(service.PricingMode),
		RequiresChildren:  service.RequiresChildren,
		DefaultHourlyRate: service.DefaultHourlyRate,
		CreatedAt:         service.CreatedAt,
		UpdatedAt:         service.UpdatedAt,
	})
}

func (a *ServiceCatalog) ListServices(ctx context.Context) ([]application.Service, error) {
	models, err := a.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	services := make([]application.Service, 0, len(models))
	for _, model := range models {
		service, err := toApplicationService(model)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, nil
}

type ChildDirectory struct {
	repo persistence.FamilyRepository
}

func (a *ChildDirectory) MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error) {
	return a.repo.MissingChildIDs(ctx, familyID, ids)
}

type SessionStore struct {
	repo persistence.SessionRepository
}

func (a *SessionStore) InsertGeneratedSessions(ctx context.Context, sessions []application.Session) ([]application.Session, []application.Session, error) {
	models := make([]persistence.Session, 0, len(sessions))
	for _, session := range sessions {
		models = append(models, toPersistenceSession(session))
	}
	created, existing, err := a.repo.InsertGeneratedSessions(ctx, models)
	if err != nil {
		return nil, nil, err
	}
	return toApplicationSessions(created), toApplicationSessions(existing), nil
}

func (a *SessionStore) CreateSession(ctx context.Context, session application.Session) error {
	return a.repo.CreateSession(ctx, toPersistenceSession(session))
}

func (a *SessionStore) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *SessionStore) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.UpdateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *SessionStore) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error) {
	models, err := a.repo.ListSessions(ctx, toPersistenceSessionFilter(filter))
	if err != nil {
		return nil, err
	}
	return toApplicationSessions(models), nil
}

func (a *SessionStore) ListSessionsByIDs(ctx context.Context, ids []string) ([]application.Session, error) {
	models, err := a.repo.ListSessionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return toApplicationSessions(models), nil
}

type BlackoutStore struct {
	repo persistence.BlackoutRepository
}

func (a *BlackoutStore) CreateBlackout(ctx context.Context, b application.Blackout) error {
	return a.repo.CreateBlackout(ctx, toPersistenceBlackout(b))
}

func (a *BlackoutStore) ListBlackouts(ctx context.Context, from, to *time.Time) ([]application.Blackout, error) {
	models, err := a.repo.ListBlackouts(ctx, persistence.BlackoutFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	blackouts := make([]application.Blackout, 0, len(models))
	for _, model := range models {
		blackouts = append(blackouts, toApplicationBlackout(model))
	}
	return blackouts, nil
}

func (a *BlackoutStore) DeleteBlackout(ctx context.Context, id string) error {
	return a.repo.DeleteBlackout(ctx, id)
}

type ExpenseStore struct {
	repo persistence.ExpenseRepository
}

func (a *ExpenseStore) CreateExpense(ctx context.Context, expense application.Expense) error {
	return a.repo.CreateExpense(ctx, persistence.Expense{
		ID:          expense.ID,
		SessionID:   expense.SessionID,
		Description: expense.Description,
		Amount:      expense.Amount,
		CreatedAt:   expense.CreatedAt,
	})
}

func (a *ExpenseStore) ListExpensesForSessions(ctx context.Context, sessionIDs []string) (map[string][]application.Expense, error) {
	grouped, err := a.repo.ListExpensesForSessions(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]application.Expense, len(grouped))
	for sessionID, models := range grouped {
		expenses := make([]application.Expense, 0, len(models))
		for _, model := range models {
			expenses = append(expenses, toApplicationExpense(model))
		}
		out[sessionID] = expenses
	}
	return out, nil
}

type PaymentStore struct {
	repo persistence.PaymentRepository
}

func (a *PaymentStore) RecordPayment(ctx context.Context, payment application.Payment) error {
	return a.repo.RecordPayment(ctx, toPersistencePayment(payment))
}

func (a *PaymentStore) GetPayment(ctx context.Context, id string) (application.Payment, error) {
	stored, err := a.repo.GetPayment(ctx, id)
	if err != nil {
		return application.Payment{}, err
	}
	return toApplicationPayment(stored), nil
}

func (a *PaymentStore) ListPayments(ctx context.Context, familyID string) ([]application.Payment, error) {
	models, err := a.repo.ListPayments(ctx, familyID)
	if err != nil {
		return nil, err
	}
	payments := make([]application.Payment, 0, len(models))
	for _, model := range models {
		payments = append(payments, toApplicationPayment(model))
	}
	return payments, nil
}

func (a *PaymentStore) CancelPayment(ctx context.Context, id string, now time.Time) (application.Payment, error) {
	stored, err := a.repo.CancelPayment(ctx, id, now)
	if err != nil {
		return application.Payment{}, err
	}
	return toApplicationPayment(stored), nil
}
