// Package blackout answers whether a candidate session interval collides with
// an owner-declared unavailable period.
package blackout

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

// ErrInvalidPeriod indicates a blackout whose end does not follow its start.
var ErrInvalidPeriod = errors.New("blackout: period must end after it starts")

// Period is an unavailable window stored as absolute UTC instants, half-open [StartsAt, EndsAt).
type Period struct {
	ID       string
	StartsAt time.Time
	EndsAt   time.Time
	AllDay   bool
	Reason   string
}

// Overlaps reports whether the period intersects [start, end).
func (p Period) Overlaps(start, end time.Time) bool {
	return start.Before(p.EndsAt) && p.StartsAt.Before(end)
}

// LocalSpan is the form-level description of a blackout. Without times the
// span covers whole days from StartDate through EndDate; with times it runs
// continuously from StartDate@StartTime to EndDate@EndTime.
type LocalSpan struct {
	StartDate wallclock.Date
	EndDate   wallclock.Date
	StartTime *wallclock.Clock
	EndTime   *wallclock.Clock
}

// AllDay reports whether the span has no time of day.
func (s LocalSpan) AllDay() bool {
	return s.StartTime == nil && s.EndTime == nil
}

// Resolve converts a local span into absolute instants using the owner offset.
func Resolve(span LocalSpan, offset wallclock.Offset) (start, end time.Time, err error) {
	if !offset.Valid() {
		return time.Time{}, time.Time{}, wallclock.ErrOffsetMissing
	}
	if span.EndDate.Before(span.StartDate) {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}

	if span.AllDay() {
		start, err = wallclock.StartOfDay(span.StartDate, offset)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err = wallclock.StartOfDay(span.EndDate.AddDays(1), offset)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, end, nil
	}

	if span.StartTime == nil || span.EndTime == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: both start and end time are required", ErrInvalidPeriod)
	}
	start, err = wallclock.ToAbsolute(span.StartDate, *span.StartTime, offset)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = wallclock.ToAbsolute(span.EndDate, *span.EndTime, offset)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	return start, end, nil
}

// Index is an immutable, start-ordered set of periods. reach[i] is the
// latest EndsAt among periods[0..i], so both ends of a query window can be
// located by binary search even when periods nest.
type Index struct {
	periods []Period
	reach   []time.Time
}

// NewIndex builds an index; the input slice is not retained.
func NewIndex(periods []Period) *Index {
	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartsAt.Equal(sorted[j].StartsAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].StartsAt.Before(sorted[j].StartsAt)
	})

	reach := make([]time.Time, len(sorted))
	for i, p := range sorted {
		reach[i] = p.EndsAt
		if i > 0 && reach[i-1].After(p.EndsAt) {
			reach[i] = reach[i-1]
		}
	}
	return &Index{periods: sorted, reach: reach}
}

// Len returns the number of indexed periods.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.periods)
}

// candidates bounds the periods that may intersect [start, end): everything
// before lo ends at or before start, everything from hi on starts at or
// after end.
func (x *Index) candidates(start, end time.Time) (lo, hi int) {
	hi = sort.Search(len(x.periods), func(i int) bool {
		return !x.periods[i].StartsAt.Before(end)
	})
	lo = sort.Search(hi, func(i int) bool {
		return x.reach[i].After(start)
	})
	return lo, hi
}

// Find returns the earliest-starting period intersecting [start, end).
func (x *Index) Find(start, end time.Time) (Period, bool) {
	if x == nil {
		return Period{}, false
	}
	lo, hi := x.candidates(start, end)
	for _, p := range x.periods[lo:hi] {
		if p.Overlaps(start, end) {
			return p, true
		}
	}
	return Period{}, false
}

// Overlapping returns every period intersecting [start, end).
func (x *Index) Overlapping(start, end time.Time) []Period {
	if x == nil {
		return nil
	}
	lo, hi := x.candidates(start, end)
	var out []Period
	for _, p := range x.periods[lo:hi] {
		if p.Overlaps(start, end) {
			out = append(out, p)
		}
	}
	return out
}
