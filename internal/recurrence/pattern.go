package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

// WeekdaySet is a bitmask of weekdays; bit n is time.Weekday(n).
type WeekdaySet uint8

// AllWeekdays contains every day of the week.
const AllWeekdays WeekdaySet = 1<<7 - 1

// WeekdaysOf builds a set from the given days.
func WeekdaysOf(days ...time.Weekday) WeekdaySet {
	var set WeekdaySet
	for _, day := range days {
		set = set.With(day)
	}
	return set
}

// With returns the set including day. Out-of-range values are ignored.
func (s WeekdaySet) With(day time.Weekday) WeekdaySet {
	if day < time.Sunday || day > time.Saturday {
		return s
	}
	return s | 1<<uint(day)
}

// Has reports whether day is in the set.
func (s WeekdaySet) Has(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return s&(1<<uint(day)) != 0
}

// Empty reports whether no day is selected.
func (s WeekdaySet) Empty() bool { return s&AllWeekdays == 0 }

// Days lists the selected days, Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	var days []time.Weekday
	for day := time.Sunday; day <= time.Saturday; day++ {
		if s.Has(day) {
			days = append(days, day)
		}
	}
	return days
}

func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, 0, len(days))
	for _, day := range days {
		names = append(names, day.String()[:3])
	}
	return strings.Join(names, ",")
}

// Kind names a recurrence variant as stored and exchanged with the UI.
type Kind string

const (
	KindOnce     Kind = "ONCE"
	KindWeekly   Kind = "WEEKLY"
	KindBiweekly Kind = "BIWEEKLY"
	KindMonthly  Kind = "MONTHLY"
)

// Pattern decides which calendar dates a rule occupies. The concrete types
// are Once, Weekly, Biweekly and Monthly.
type Pattern interface {
	Kind() Kind
	// Weekdays returns the selected weekdays; empty for patterns that ignore them.
	Weekdays() WeekdaySet
	matches(date, anchor wallclock.Date) bool
}

// Once occupies only the validity start date.
type Once struct{}

func (Once) Kind() Kind           { return KindOnce }
func (Once) Weekdays() WeekdaySet { return 0 }

func (Once) matches(date, anchor wallclock.Date) bool {
	return date == anchor
}

// Weekly occupies every selected weekday.
type Weekly struct {
	Days WeekdaySet
}

func (Weekly) Kind() Kind             { return KindWeekly }
func (p Weekly) Weekdays() WeekdaySet { return p.Days }

func (p Weekly) matches(date, _ wallclock.Date) bool {
	return p.Days.Has(date.Weekday())
}

// Biweekly occupies the selected weekdays of every other week. Weeks are
// counted in 7-day blocks from the anchor (the validity start date), and
// only even blocks qualify, so the anchor's own block is always "on" even
// when the anchor itself is not a selected weekday.
type Biweekly struct {
	Days WeekdaySet
}

func (Biweekly) Kind() Kind             { return KindBiweekly }
func (p Biweekly) Weekdays() WeekdaySet { return p.Days }

func (p Biweekly) matches(date, anchor wallclock.Date) bool {
	if !p.Days.Has(date.Weekday()) {
		return false
	}
	days := date.DaysSince(anchor)
	if days < 0 {
		return false
	}
	return (days/7)%2 == 0
}

// Monthly occupies the anchor's day of month, clamped to the last day of
// shorter months (an anchor on the 31st yields Feb 29 in a leap year).
type Monthly struct{}

func (Monthly) Kind() Kind           { return KindMonthly }
func (Monthly) Weekdays() WeekdaySet { return 0 }

func (Monthly) matches(date, anchor wallclock.Date) bool {
	want := anchor.Day
	if last := date.DaysInMonth(); want > last {
		want = last
	}
	return date.Day == want
}

// NewPattern rebuilds a pattern from its stored kind and weekday mask.
func NewPattern(kind Kind, days WeekdaySet) (Pattern, error) {
	switch Kind(strings.ToUpper(string(kind))) {
	case KindOnce:
		return Once{}, nil
	case KindWeekly:
		return Weekly{Days: days}, nil
	case KindBiweekly:
		return Biweekly{Days: days}, nil
	case KindMonthly:
		return Monthly{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}
