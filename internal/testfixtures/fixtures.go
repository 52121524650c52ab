package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/lifecycle"
	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

var (
	familyCounter  uint64
	serviceCounter uint64
	ruleCounter    uint64
	sessionCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// CentralOffset is UTC-06:00, the owner offset most fixtures assume.
var CentralOffset = wallclock.MustOffset(-360)

// ----------------------------- Family fixtures -----------------------------

// FamilyFixture represents a household and its children.
type FamilyFixture struct {
	ID        string
	Name      string
	ChildIDs  []string
	CreatedAt time.Time
}

// FamilyOption configures the generated family fixture.
type FamilyOption func(*FamilyFixture)

// NewFamilyFixture returns a deterministic family with two children.
func NewFamilyFixture(opts ...FamilyOption) FamilyFixture {
	idx := atomic.AddUint64(&familyCounter, 1)
	id := fmt.Sprintf("family-%03d", idx)
	fixture := FamilyFixture{
		ID:        id,
		Name:      fmt.Sprintf("Family %03d", idx),
		ChildIDs:  []string{id + "-child-1", id + "-child-2"},
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithFamilyID overrides the generated family ID. Child IDs are not renamed.
func WithFamilyID(id string) FamilyOption {
	return func(f *FamilyFixture) {
		f.ID = id
	}
}

// WithChildren replaces the generated child IDs.
func WithChildren(ids ...string) FamilyOption {
	return func(f *FamilyFixture) {
		f.ChildIDs = append([]string(nil), ids...)
	}
}

// Persistence converts the fixture into storage models.
func (f FamilyFixture) Persistence() (persistence.Family, []persistence.Child) {
	family := persistence.Family{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt, UpdatedAt: f.CreatedAt}
	children := make([]persistence.Child, 0, len(f.ChildIDs))
	for _, id := range f.ChildIDs {
		children = append(children, persistence.Child{ID: id, FamilyID: f.ID, Name: id, CreatedAt: f.CreatedAt, UpdatedAt: f.CreatedAt})
	}
	return family, children
}

// ----------------------------- Service fixtures -----------------------------

// ServiceFixture represents a catalog entry.
type ServiceFixture struct {
	ID                string
	Name              string
	PricingMode       string
	RequiresChildren  bool
	DefaultHourlyRate decimal.Decimal
	CreatedAt         time.Time
}

// ServiceOption configures the generated service fixture.
type ServiceOption func(*ServiceFixture)

// NewServiceFixture returns an HOURLY service billed at 20 per hour.
func NewServiceFixture(opts ...ServiceOption) ServiceFixture {
	idx := atomic.AddUint64(&serviceCounter, 1)
	fixture := ServiceFixture{
		ID:                fmt.Sprintf("service-%03d", idx),
		Name:              fmt.Sprintf("Service %03d", idx),
		PricingMode:       "HOURLY",
		DefaultHourlyRate: decimal.NewFromInt(20),
		CreatedAt:         referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithServiceID overrides the generated service ID.
func WithServiceID(id string) ServiceOption {
	return func(f *ServiceFixture) {
		f.ID = id
	}
}

// WithPerChildPricing switches the service to PER_CHILD and requires children.
func WithPerChildPricing() ServiceOption {
	return func(f *ServiceFixture) {
		f.PricingMode = "PER_CHILD"
		f.RequiresChildren = true
	}
}

// WithHourlyRate overrides the default hourly rate.
func WithHourlyRate(rate decimal.Decimal) ServiceOption {
	return func(f *ServiceFixture) {
		f.DefaultHourlyRate = rate
	}
}

// Persistence converts the fixture into a storage model.
func (f ServiceFixture) Persistence() persistence.Service {
	return persistence.Service{
		ID:                f.ID,
		Name:              f.Name,
		PricingMode:       f.PricingMode,
		RequiresChildren:  f.RequiresChildren,
		DefaultHourlyRate: f.DefaultHourlyRate,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.CreatedAt,
	}
}

// ----------------------------- Rule fixtures -----------------------------

// RuleFixture represents a recurrence rule form as the owner submits it.
type RuleFixture struct {
	ID        string
	FamilyID  string
	ServiceID string
	Kind      string
	Weekdays  []time.Weekday
	StartTime string
	EndTime   string
	StartDate string
	EndDate   string
	ChildIDs  []string
	Offset    wallclock.Offset
}

// RuleOption configures the generated rule fixture.
type RuleOption func(*RuleFixture)

// NewRuleFixture returns a Monday/Wednesday/Friday 06:00-14:30 weekly rule
// starting 2024-01-01 in UTC-06:00.
func NewRuleFixture(familyID, serviceID string, opts ...RuleOption) RuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	fixture := RuleFixture{
		ID:        fmt.Sprintf("rule-%03d", idx),
		FamilyID:  familyID,
		ServiceID: serviceID,
		Kind:      "WEEKLY",
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		StartTime: "06:00",
		EndTime:   "14:30",
		StartDate: "2024-01-01",
		Offset:    CentralOffset,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRuleKind sets the pattern kind and its weekdays.
func WithRuleKind(kind string, days ...time.Weekday) RuleOption {
	return func(f *RuleFixture) {
		f.Kind = kind
		f.Weekdays = append([]time.Weekday(nil), days...)
	}
}

// WithRuleWindow overrides the local start and end times.
func WithRuleWindow(start, end string) RuleOption {
	return func(f *RuleFixture) {
		f.StartTime = start
		f.EndTime = end
	}
}

// WithRuleValidity overrides the validity dates. An empty end means open-ended.
func WithRuleValidity(start, end string) RuleOption {
	return func(f *RuleFixture) {
		f.StartDate = start
		f.EndDate = end
	}
}

// WithRuleChildren assigns children to the rule.
func WithRuleChildren(ids ...string) RuleOption {
	return func(f *RuleFixture) {
		f.ChildIDs = append([]string(nil), ids...)
	}
}

// WithRuleOffset overrides the owner offset used when saving the rule.
func WithRuleOffset(offset wallclock.Offset) RuleOption {
	return func(f *RuleFixture) {
		f.Offset = offset
	}
}

// SaveParams returns the create request for the fixture.
func (f RuleFixture) SaveParams() application.SaveRuleParams {
	return application.SaveRuleParams{
		Input: application.RuleInput{
			FamilyID:  f.FamilyID,
			ServiceID: f.ServiceID,
			Kind:      f.Kind,
			Weekdays:  append([]time.Weekday(nil), f.Weekdays...),
			StartTime: f.StartTime,
			EndTime:   f.EndTime,
			StartDate: f.StartDate,
			EndDate:   f.EndDate,
			ChildIDs:  append([]string(nil), f.ChildIDs...),
		},
		Offset: f.Offset,
	}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a materialized session.
type SessionFixture struct {
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
	CreatedAt    time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a SCHEDULED two-hour session starting at the
// reference time.
func NewSessionFixture(familyID, serviceID string, opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:         fmt.Sprintf("session-%03d", idx),
		FamilyID:   familyID,
		ServiceID:  serviceID,
		Start:      referenceTime,
		End:        referenceTime.Add(2 * time.Hour),
		Status:     lifecycle.StatusScheduled,
		HourlyRate: decimal.NewFromInt(20),
		CreatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionTimes overrides the scheduled instants.
func WithSessionTimes(start, end time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.Start = start
		f.End = end
	}
}

// WithSessionStatus overrides the lifecycle state and confirmation flag.
func WithSessionStatus(status lifecycle.Status, confirmed bool) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
		f.Confirmed = confirmed
	}
}

// WithSessionRule links the session to a recurrence rule.
func WithSessionRule(ruleID string) SessionOption {
	return func(f *SessionFixture) {
		f.SourceRuleID = &ruleID
	}
}

// WithSessionChildren assigns children to the session.
func WithSessionChildren(ids ...string) SessionOption {
	return func(f *SessionFixture) {
		f.ChildIDs = append([]string(nil), ids...)
	}
}

// Billable marks the session COMPLETED and confirmed.
func Billable() SessionOption {
	return WithSessionStatus(lifecycle.StatusCompleted, true)
}

// Application converts the fixture into the application model.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:           f.ID,
		FamilyID:     f.FamilyID,
		ServiceID:    f.ServiceID,
		SourceRuleID: copyStringPtr(f.SourceRuleID),
		Start:        f.Start,
		End:          f.End,
		Status:       f.Status,
		Confirmed:    f.Confirmed,
		HourlyRate:   f.HourlyRate,
		ChildIDs:     append([]string(nil), f.ChildIDs...),
		PaymentID:    copyStringPtr(f.PaymentID),
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Persistence converts the fixture into a storage model.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:             f.ID,
		FamilyID:       f.FamilyID,
		ServiceID:      f.ServiceID,
		SourceRuleID:   copyStringPtr(f.SourceRuleID),
		ScheduledStart: f.Start,
		ScheduledEnd:   f.End,
		Status:         string(f.Status),
		IsConfirmed:    f.Confirmed,
		HourlyRate:     f.HourlyRate,
		ChildIDs:       append([]string(nil), f.ChildIDs...),
		PaymentID:      copyStringPtr(f.PaymentID),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// ----------------------------- Blackout fixtures -----------------------------

// AllDayBlackout returns a blackout covering date in offset, midnight to midnight.
func AllDayBlackout(id string, date wallclock.Date, offset wallclock.Offset) persistence.Blackout {
	start, err := wallclock.StartOfDay(date, offset)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: blackout %s: %v", id, err))
	}
	end, err := wallclock.StartOfDay(date.AddDays(1), offset)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: blackout %s: %v", id, err))
	}
	return persistence.Blackout{
		ID:        id,
		StartsAt:  start,
		EndsAt:    end,
		AllDay:    true,
		CreatedAt: referenceTime,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
