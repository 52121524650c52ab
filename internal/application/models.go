package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/blackout"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/recurrence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// Principal represents the authenticated caller.
type Principal struct {
	Subject string
}

// Family is a billing household.
type Family struct {
	ID        string
	Name      string
	Children  []Child
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Child belongs to exactly one family.
type Child struct {
	ID        string
	FamilyID  string
	Name      string
	CreatedAt time.Time
}

// FamilyInput captures a new household.
type FamilyInput struct {
	Name string `validate:"required,max=200"`
}

// ChildInput captures a child added to a family.
type ChildInput struct {
	FamilyID string `validate:"required"`
	Name     string `validate:"required,max=200"`
}

// Service is a catalog entry describing how care is priced.
type Service struct {
	ID                string
	Name              string
	PricingMode       billing.PricingMode
	RequiresChildren  bool
	DefaultHourlyRate decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ServiceInput captures a catalog entry.
type ServiceInput struct {
	Name              string          `validate:"required,max=200"`
	PricingMode       string          `validate:"required,oneof=HOURLY PER_CHILD"`
	RequiresChildren  bool            `validate:"-"`
	DefaultHourlyRate decimal.Decimal `validate:"-"`
}

// Rule is a stored recurrence rule.
type Rule struct {
	ID         string
	FamilyID   string
	ServiceID  string
	Pattern    recurrence.Pattern
	Window     recurrence.TimeWindow
	Validity   recurrence.Validity
	Offset     wallclock.Offset
	ChildIDs   []string
	HourlyRate *decimal.Decimal
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Recurrence returns the engine view of the rule.
func (r Rule) Recurrence() recurrence.Rule {
	return recurrence.Rule{
		ID:       r.ID,
		Pattern:  r.Pattern,
		Window:   r.Window,
		Validity: r.Validity,
		Offset:   r.Offset,
	}
}

// RuleInput captures caller provided rule fields in the owner's wall clock.
type RuleInput struct {
	FamilyID   string           `validate:"required"`
	ServiceID  string           `validate:"required"`
	Kind       string           `validate:"required,oneof=ONCE WEEKLY BIWEEKLY MONTHLY"`
	Weekdays   []time.Weekday   `validate:"omitempty,dive,min=0,max=6"`
	StartTime  string           `validate:"required"`
	EndTime    string           `validate:"required"`
	StartDate  string           `validate:"required"`
	EndDate    string           `validate:"omitempty"`
	ChildIDs   []string         `validate:"omitempty,dive,required"`
	HourlyRate *decimal.Decimal `validate:"omitempty"`
	Notes      string           `validate:"max=2000"`
}

// SaveRuleParams wraps a create (empty RuleID) or update request.
type SaveRuleParams struct {
	RuleID string
	Input  RuleInput
	Offset wallclock.Offset
}

// Session is a materialized occurrence with its billing state.
type Session struct {
	ID           string
	FamilyID     string
	ServiceID    string
	SourceRuleID *string
	Start        time.Time
	End          time.Time
	Status       lifecycle.Status
	Confirmed    bool
	HourlyRate   decimal.Decimal
	ChildIDs     []string
	PaymentID    *string
	Notes        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Billable reports whether the session may be attached to a payment.
func (s Session) Billable() bool {
	return lifecycle.Billable(s.Status, s.Confirmed, s.PaymentID)
}

// SessionInput captures a manually entered session in the owner's wall clock.
type SessionInput struct {
	FamilyID   string           `validate:"required"`
	ServiceID  string           `validate:"required"`
	Date       string           `validate:"required"`
	StartTime  string           `validate:"required"`
	EndTime    string           `validate:"required"`
	ChildIDs   []string         `validate:"omitempty,dive,required"`
	HourlyRate *decimal.Decimal `validate:"omitempty"`
	Notes      string           `validate:"max=2000"`
}

// CreateSessionParams wraps a manual session creation.
type CreateSessionParams struct {
	Input  SessionInput
	Offset wallclock.Offset
}

// EditSessionParams replaces the editable fields of a session.
type EditSessionParams struct {
	SessionID string
	Date      string
	StartTime string
	EndTime   string
	ChildIDs  []string
	// HourlyRate keeps the current rate when nil.
	HourlyRate *decimal.Decimal
	Notes      string
	Offset     wallclock.Offset
}

// TransitionSessionParams changes status, confirmation, or both.
type TransitionSessionParams struct {
	SessionID string
	Status    *lifecycle.Status
	Confirmed *bool
}

// ExpandScheduleParams selects the civil date range to materialize.
type ExpandScheduleParams struct {
	RuleID     string
	RangeStart wallclock.Date
	RangeEnd   wallclock.Date
}

// SkipReason explains why an occurrence produced no new session.
type SkipReason string

const (
	SkipReasonBlackedOut    SkipReason = "BLACKED_OUT"
	SkipReasonAlreadyExists SkipReason = "ALREADY_EXISTS"
)

// SkippedOccurrence reports an occurrence that was not created.
type SkippedOccurrence struct {
	Date              wallclock.Date
	Start             time.Time
	End               time.Time
	Reason            SkipReason
	BlackoutID        string
	ExistingSessionID string
}

// ExpansionResult summarizes one expansion run.
type ExpansionResult struct {
	Created []Session
	Skipped []SkippedOccurrence
}

// Blackout is a stored unavailable window.
type Blackout struct {
	ID        string
	StartsAt  time.Time
	EndsAt    time.Time
	AllDay    bool
	Reason    string
	CreatedAt time.Time
}

func (b Blackout) period() blackout.Period {
	return blackout.Period{ID: b.ID, StartsAt: b.StartsAt, EndsAt: b.EndsAt, AllDay: b.AllDay, Reason: b.Reason}
}

// BlackoutInput describes a blackout in the owner's wall clock. Omitting
// both times makes it an all-day blackout.
type BlackoutInput struct {
	StartDate string `validate:"required"`
	EndDate   string `validate:"required"`
	StartTime string `validate:"required_with=EndTime"`
	EndTime   string `validate:"required_with=StartTime"`
	Reason    string `validate:"max=500"`
}

// Expense is an ad-hoc charge attached to a session.
type Expense struct {
	ID          string
	SessionID   string
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

// ExpenseInput captures a new expense.
type ExpenseInput struct {
	SessionID   string          `validate:"required"`
	Description string          `validate:"required,max=500"`
	Amount      decimal.Decimal `validate:"-"`
}

// SessionAmount is the priced view of one session.
type SessionAmount struct {
	SessionID string
	// Version is the session version the amount was priced from.
	Version   int64
	Breakdown billing.Breakdown
	Currency  string
	Display   string
}

// PaymentStatus tracks a payment through the ledger.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusOverdue   PaymentStatus = "OVERDUE"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Payment methods accepted by the ledger.
const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCheck    = "CHECK"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
	PaymentMethodOther    = "OTHER"
)

// Payment records money received for a set of sessions. Amount includes Tips.
type Payment struct {
	ID         string
	FamilyID   string
	Amount     decimal.Decimal
	Tips       decimal.Decimal
	Method     string
	Status     PaymentStatus
	Notes      string
	SessionIDs []string
	// SessionVersions pins SessionIDs, position by position, to the
	// versions that were priced. Only read when the payment is recorded.
	SessionVersions []int64
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecordPaymentParams carries the payment form.
type RecordPaymentParams struct {
	FamilyID   string          `validate:"required"`
	SessionIDs []string        `validate:"required,min=1,unique,dive,required"`
	Tips       decimal.Decimal `validate:"-"`
	Method     string          `validate:"required,oneof=CASH CHECK CARD TRANSFER OTHER"`
	Notes      string          `validate:"max=2000"`
}

// PaymentQuote is the priced selection shown before a payment is recorded.
type PaymentQuote struct {
	FamilyID string
	Sessions []SessionAmount
	Subtotal decimal.Decimal
	Tips     decimal.Decimal
	Total    decimal.Decimal
	Display  string
}
