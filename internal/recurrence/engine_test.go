package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

func date(month time.Month, day int) wallclock.Date {
	return wallclock.NewDate(2024, month, day)
}

func weekdayRule(pattern Pattern, start wallclock.Date, end *wallclock.Date) Rule {
	return Rule{
		ID:       "rule-1",
		Pattern:  pattern,
		Window:   TimeWindow{Start: wallclock.Clock{Hour: 6}, End: wallclock.Clock{Hour: 14, Minute: 30}},
		Validity: Validity{StartDate: start, EndDate: end},
		Offset:   wallclock.MustOffset(-360),
	}
}

func occurrenceDays(occurrences []Occurrence) []int {
	days := make([]int, 0, len(occurrences))
	for _, o := range occurrences {
		days = append(days, o.Date.Day)
	}
	return days
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExpand_WeeklyMonWedFriJanuary(t *testing.T) {
	t.Parallel()

	end := date(time.January, 31)
	rule := weekdayRule(Weekly{Days: WeekdaysOf(time.Monday, time.Wednesday, time.Friday)}, date(time.January, 1), &end)

	occurrences, err := Expand(rule, date(time.January, 1), date(time.January, 31))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	want := []int{1, 3, 5, 8, 10, 12, 15, 17, 19, 22, 24, 26, 29, 31}
	if got := occurrenceDays(occurrences); !equalInts(got, want) {
		t.Fatalf("unexpected occurrence days: got %v want %v", got, want)
	}

	for _, o := range occurrences {
		wantStart := time.Date(2024, time.January, o.Date.Day, 12, 0, 0, 0, time.UTC)
		if !o.Start.Equal(wantStart) {
			t.Errorf("occurrence %s: start %s, want %s", o.Date, o.Start, wantStart)
		}
		if o.End.Sub(o.Start) != 8*time.Hour+30*time.Minute {
			t.Errorf("occurrence %s: unexpected duration %s", o.Date, o.End.Sub(o.Start))
		}
		if o.RuleID != "rule-1" {
			t.Errorf("occurrence %s: rule id %q", o.Date, o.RuleID)
		}
	}
}

func TestExpand_BiweeklyUsesAnchorParity(t *testing.T) {
	t.Parallel()

	rule := weekdayRule(Biweekly{Days: WeekdaysOf(time.Monday)}, date(time.January, 1), nil)

	occurrences, err := Expand(rule, date(time.January, 1), date(time.February, 28))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	want := []wallclock.Date{
		date(time.January, 1), date(time.January, 15), date(time.January, 29),
		date(time.February, 12), date(time.February, 26),
	}
	if len(occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(occurrences))
	}
	for i, o := range occurrences {
		if o.Date != want[i] {
			t.Errorf("occurrence %d: got %s want %s", i, o.Date, want[i])
		}
	}
}

func TestExpand_BiweeklyAnchorOffSelectedWeekday(t *testing.T) {
	t.Parallel()

	// Anchor is Wednesday Jan 3; Mondays in anchor weeks 0 and 2 qualify.
	rule := weekdayRule(Biweekly{Days: WeekdaysOf(time.Monday)}, date(time.January, 3), nil)

	occurrences, err := Expand(rule, date(time.January, 1), date(time.January, 31))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	want := []int{8, 22}
	if got := occurrenceDays(occurrences); !equalInts(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestExpand_MonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	rule := weekdayRule(Monthly{}, date(time.January, 31), nil)

	occurrences, err := Expand(rule, date(time.January, 1), wallclock.NewDate(2024, time.May, 31))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	want := []wallclock.Date{
		date(time.January, 31), date(time.February, 29), date(time.March, 31),
		date(time.April, 30), date(time.May, 31),
	}
	if len(occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(occurrences))
	}
	for i, o := range occurrences {
		if o.Date != want[i] {
			t.Errorf("occurrence %d: got %s want %s", i, o.Date, want[i])
		}
	}
}

func TestExpand_OnceOnlyInsideWindow(t *testing.T) {
	t.Parallel()

	rule := weekdayRule(Once{}, date(time.March, 4), nil)

	occurrences, err := Expand(rule, date(time.March, 1), date(time.March, 31))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 1 || occurrences[0].Date != date(time.March, 4) {
		t.Fatalf("expected single occurrence on 2024-03-04, got %v", occurrences)
	}

	occurrences, err = Expand(rule, date(time.April, 1), date(time.April, 30))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 0 {
		t.Fatalf("expected no occurrences outside window, got %d", len(occurrences))
	}
}

func TestExpand_ClipsToValidityAndRange(t *testing.T) {
	t.Parallel()

	end := date(time.January, 20)
	rule := weekdayRule(Weekly{Days: AllWeekdays}, date(time.January, 10), &end)

	occurrences, err := Expand(rule, date(time.January, 1), date(time.January, 31))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 11 {
		t.Fatalf("expected 11 occurrences, got %d", len(occurrences))
	}
	if occurrences[0].Date != date(time.January, 10) || occurrences[10].Date != end {
		t.Fatalf("unexpected bounds %s..%s", occurrences[0].Date, occurrences[10].Date)
	}

	occurrences, err = Expand(rule, date(time.February, 1), date(time.February, 28))
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(occurrences) != 0 {
		t.Fatalf("expected empty clipped window, got %d", len(occurrences))
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	before := date(time.January, 1)
	cases := []struct {
		name   string
		mutate func(*Rule)
		want   error
	}{
		{"inverted window", func(r *Rule) { r.Window.End = wallclock.Clock{Hour: 5} }, ErrInvalidWindow},
		{"equal window", func(r *Rule) { r.Window.End = r.Window.Start }, ErrInvalidWindow},
		{"validity end before start", func(r *Rule) { r.Validity.EndDate = &before }, ErrInvalidValidity},
		{"weekly without days", func(r *Rule) { r.Pattern = Weekly{} }, ErrNoWeekdays},
		{"biweekly without days", func(r *Rule) { r.Pattern = Biweekly{} }, ErrNoWeekdays},
		{"missing offset", func(r *Rule) { r.Offset = wallclock.Offset{} }, wallclock.ErrOffsetMissing},
		{"missing pattern", func(r *Rule) { r.Pattern = nil }, ErrInvalidKind},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rule := weekdayRule(Weekly{Days: WeekdaysOf(time.Monday)}, date(time.January, 2), nil)
			tc.mutate(&rule)
			if err := Validate(rule); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	once := weekdayRule(Once{}, date(time.January, 2), nil)
	if err := Validate(once); err != nil {
		t.Fatalf("once rule without weekdays should be valid: %v", err)
	}
}

func TestNewPatternAndWeekdaySet(t *testing.T) {
	t.Parallel()

	set := WeekdaysOf(time.Monday, time.Friday, time.Weekday(9))
	if set.String() != "Mon,Fri" {
		t.Fatalf("unexpected set %q", set.String())
	}
	if set.Has(time.Sunday) || !set.Has(time.Friday) {
		t.Fatalf("unexpected membership for %v", set)
	}

	p, err := NewPattern("biweekly", set)
	if err != nil {
		t.Fatalf("NewPattern returned error: %v", err)
	}
	if p.Kind() != KindBiweekly || p.Weekdays() != set {
		t.Fatalf("unexpected pattern %#v", p)
	}

	if _, err := NewPattern("DAILY", set); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
