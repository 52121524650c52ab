package persistence

import (
	"context"
	"time"
)

// FamilyRepository stores families and their children.
type FamilyRepository interface {
	CreateFamily(ctx context.Context, family Family) error
	GetFamily(ctx context.Context, id string) (Family, error)
	CreateChild(ctx context.Context, child Child) error
	ListChildren(ctx context.Context, familyID string) ([]Child, error)
	MissingChildIDs(ctx context.Context, familyID string, ids []string) ([]string, error)
}

// ServiceRepository stores the service catalog.
type ServiceRepository interface {
	UpsertService(ctx context.Context, service Service) error
	GetService(ctx context.Context, id string) (Service, error)
	ListServices(ctx context.Context) ([]Service, error)
}

// RecurrenceRepository stores recurrence rules and their assigned children.
type RecurrenceRepository interface {
	UpsertRecurrence(ctx context.Context, rule RecurrenceRule) error
	GetRecurrence(ctx context.Context, id string) (RecurrenceRule, error)
	ListRecurrencesForFamily(ctx context.Context, familyID string) ([]RecurrenceRule, error)
	// DeleteRecurrence removes a rule. Unpaid SCHEDULED sessions starting at
	// or after now block the delete with ErrReferenced unless cascade is set,
	// in which case they are cancelled in the same transaction.
	DeleteRecurrence(ctx context.Context, id string, now time.Time, cascade bool) (int, error)
}

// SessionFilter narrows session queries. Zero fields do not filter.
type SessionFilter struct {
	FamilyID     string
	SourceRuleID string
	Statuses     []string
	StartsAfter  *time.Time
	StartsBefore *time.Time
	Confirmed    *bool
	Unpaid       bool
}

// SessionRepository stores sessions and their children.
type SessionRepository interface {
	// InsertGeneratedSessions inserts rule-generated sessions in one
	// transaction. A candidate whose (source rule, generated start) slot is
	// already held, even by a session since moved, is not inserted; the
	// holder is returned in existing, in candidate order.
	InsertGeneratedSessions(ctx context.Context, sessions []Session) (created []Session, existing []Session, err error)
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// UpdateSession writes mutable fields when the stored version matches
	// session.Version, otherwise ErrStaleWrite.
	UpdateSession(ctx context.Context, session Session) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	ListSessionsByIDs(ctx context.Context, ids []string) ([]Session, error)
}

// BlackoutFilter narrows blackout queries to periods intersecting [From, To).
type BlackoutFilter struct {
	From *time.Time
	To   *time.Time
}

// BlackoutRepository stores blackout periods.
type BlackoutRepository interface {
	CreateBlackout(ctx context.Context, blackout Blackout) error
	ListBlackouts(ctx context.Context, filter BlackoutFilter) ([]Blackout, error)
	DeleteBlackout(ctx context.Context, id string) error
}

// ExpenseRepository stores session expenses.
type ExpenseRepository interface {
	// CreateExpense fails with ErrSessionLocked when the session is paid or cancelled.
	CreateExpense(ctx context.Context, expense Expense) error
	ListExpensesForSessions(ctx context.Context, sessionIDs []string) (map[string][]Expense, error)
}

// PaymentRepository is the payment ledger.
type PaymentRepository interface {
	// RecordPayment inserts the payment and stamps every listed session
	// atomically. A session that is already stamped, no longer COMPLETED
	// and confirmed, or past the version pinned in SessionVersions aborts
	// the whole write with a *StampError.
	RecordPayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	ListPayments(ctx context.Context, familyID string) ([]Payment, error)
	// CancelPayment marks the payment CANCELLED and releases its sessions.
	CancelPayment(ctx context.Context, id string, now time.Time) (Payment, error)
}
