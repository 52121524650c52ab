package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

var (
	// ErrInvalidKind indicates the recurrence kind is not supported.
	ErrInvalidKind = errors.New("recurrence: invalid recurrence type")
	// ErrInvalidWindow indicates the time window does not start before it ends.
	ErrInvalidWindow = errors.New("recurrence: start time must be before end time")
	// ErrInvalidValidity indicates the validity end precedes its start.
	ErrInvalidValidity = errors.New("recurrence: validity end must not precede start")
	// ErrNoWeekdays indicates a weekly pattern without any selected weekday.
	ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")
)

// TimeWindow is the local time of day applied to every occurrence.
type TimeWindow struct {
	Start wallclock.Clock
	End   wallclock.Clock
}

// Validity bounds the dates a rule may occupy. A nil EndDate is open-ended.
type Validity struct {
	StartDate wallclock.Date
	EndDate   *wallclock.Date
}

// Rule is the engine's view of a recurrence rule.
type Rule struct {
	ID       string
	Pattern  Pattern
	Window   TimeWindow
	Validity Validity
	// Offset is the owner's UTC offset captured when the rule was written.
	Offset wallclock.Offset
}

// Occurrence is one concrete instance implied by a rule.
type Occurrence struct {
	RuleID string
	Date   wallclock.Date
	Start  time.Time
	End    time.Time
}

// Validate checks the shape invariants of a rule.
func Validate(rule Rule) error {
	if rule.Pattern == nil {
		return ErrInvalidKind
	}
	if !rule.Window.Start.Valid() || !rule.Window.End.Valid() || !rule.Window.Start.Before(rule.Window.End) {
		return ErrInvalidWindow
	}
	if rule.Validity.StartDate.IsZero() {
		return ErrInvalidValidity
	}
	if rule.Validity.EndDate != nil && rule.Validity.EndDate.Before(rule.Validity.StartDate) {
		return ErrInvalidValidity
	}
	switch rule.Pattern.Kind() {
	case KindWeekly, KindBiweekly:
		if rule.Pattern.Weekdays().Empty() {
			return ErrNoWeekdays
		}
	}
	if !rule.Offset.Valid() {
		return wallclock.ErrOffsetMissing
	}
	return nil
}

// Expand lists the occurrences of rule whose dates fall within
// [rangeStart, rangeEnd], both inclusive, in chronological order.
//
// The window is first clipped to the rule's validity. Dates are evaluated on
// the owner's calendar and converted to UTC once, with the rule's offset.
func Expand(rule Rule, rangeStart, rangeEnd wallclock.Date) ([]Occurrence, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}

	lower := rule.Validity.StartDate
	if rangeStart.After(lower) {
		lower = rangeStart
	}
	upper := rangeEnd
	if rule.Validity.EndDate != nil && rule.Validity.EndDate.Before(upper) {
		upper = *rule.Validity.EndDate
	}
	if lower.After(upper) {
		return nil, nil
	}

	anchor := rule.Validity.StartDate
	occurrences := make([]Occurrence, 0)

	if rule.Pattern.Kind() == KindOnce {
		if anchor.Before(lower) || anchor.After(upper) {
			return nil, nil
		}
		occurrence, err := materialize(rule, anchor)
		if err != nil {
			return nil, err
		}
		return append(occurrences, occurrence), nil
	}

	for current := lower; !current.After(upper); current = current.AddDays(1) {
		if !rule.Pattern.matches(current, anchor) {
			continue
		}
		occurrence, err := materialize(rule, current)
		if err != nil {
			return nil, err
		}
		occurrences = append(occurrences, occurrence)
	}

	return occurrences, nil
}

func materialize(rule Rule, date wallclock.Date) (Occurrence, error) {
	start, err := wallclock.ToAbsolute(date, rule.Window.Start, rule.Offset)
	if err != nil {
		return Occurrence{}, fmt.Errorf("recurrence: start of %s: %w", date, err)
	}
	end, err := wallclock.ToAbsolute(date, rule.Window.End, rule.Offset)
	if err != nil {
		return Occurrence{}, fmt.Errorf("recurrence: end of %s: %w", date, err)
	}
	return Occurrence{RuleID: rule.ID, Date: date, Start: start, End: end}, nil
}
