package persistence

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

// Family is a billing household.
type Family struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Child belongs to exactly one family.
type Child struct {
	ID        string
	FamilyID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service is a catalog entry describing how care is priced.
type Service struct {
	ID                string
	Name              string
	PricingMode       string
	RequiresChildren  bool
	DefaultHourlyRate decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecurrenceRule is a stored schedule template. Dates and times are the
// owner's wall clock; OffsetMinutes is the offset captured at write time.
type RecurrenceRule struct {
	ID                 string
	FamilyID           string
	ServiceID          string
	Kind               string
	Weekdays           uint8
	StartTime          wallclock.Clock
	EndTime            wallclock.Clock
	StartsOn           wallclock.Date
	EndsOn             *wallclock.Date
	OffsetMinutes      int
	ChildIDs           []string
	HourlyRateOverride *decimal.Decimal
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Session is a materialized occurrence. Scheduled instants are UTC.
type Session struct {
	ID             string
	FamilyID       string
	ServiceID      string
	SourceRuleID   *string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	Status         string
	IsConfirmed    bool
	HourlyRate     decimal.Decimal
	ChildIDs       []string
	PaymentID      *string
	Notes          string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Blackout is an unavailable window, half-open [StartsAt, EndsAt) in UTC.
type Blackout struct {
	ID        string
	StartsAt  time.Time
	EndsAt    time.Time
	AllDay    bool
	Reason    string
	CreatedAt time.Time
}

// Expense is an ad-hoc charge attached to a session.
type Expense struct {
	ID          string
	SessionID   string
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

// Payment records money received for a set of sessions.
type Payment struct {
	ID         string
	FamilyID   string
	Amount     decimal.Decimal
	Tips       decimal.Decimal
	Method     string
	Status     string
	Notes      string
	SessionIDs []string
	// SessionVersions, when set, holds the version each session must still
	// carry for RecordPayment to stamp it.
	SessionVersions []int64
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
