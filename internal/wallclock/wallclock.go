// Package wallclock converts between the business owner's wall-clock time and
// absolute UTC instants.
//
// Every persisted instant is UTC and every value entering or leaving the UI
// layer is local. Conversion happens exactly once per direction, using the
// offset supplied by the actor performing the write. There is no fallback to
// the server's local zone: a missing offset is an error.
package wallclock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// maxOffsetMinutes bounds offsets to the range used by real-world zones (UTC-12..UTC+14).
const maxOffsetMinutes = 14 * 60

var (
	// ErrOffsetMissing indicates a conversion was attempted without an explicit owner offset.
	ErrOffsetMissing = errors.New("wallclock: timezone offset is required")
	// ErrOffsetOutOfRange indicates the supplied offset is not a valid UTC offset.
	ErrOffsetOutOfRange = errors.New("wallclock: timezone offset out of range")
	// ErrInvalidDate indicates a calendar date could not be parsed or does not exist.
	ErrInvalidDate = errors.New("wallclock: invalid date")
	// ErrInvalidClock indicates a time of day could not be parsed.
	ErrInvalidClock = errors.New("wallclock: invalid time of day")
)

// Offset is the owner's distance from UTC in minutes east (-360 is UTC-06:00).
// The zero value is "missing" and is rejected by every conversion.
type Offset struct {
	minutes int
	valid   bool
}

// OffsetMinutes builds an explicit offset.
func OffsetMinutes(minutes int) (Offset, error) {
	if minutes < -maxOffsetMinutes || minutes > maxOffsetMinutes {
		return Offset{}, fmt.Errorf("%w: %d", ErrOffsetOutOfRange, minutes)
	}
	return Offset{minutes: minutes, valid: true}, nil
}

// MustOffset is OffsetMinutes for constants and tests.
func MustOffset(minutes int) Offset {
	o, err := OffsetMinutes(minutes)
	if err != nil {
		panic(err)
	}
	return o
}

// Valid reports whether the offset was explicitly supplied.
func (o Offset) Valid() bool { return o.valid }

// Minutes returns the offset in minutes east of UTC.
func (o Offset) Minutes() int { return o.minutes }

// Location returns a fixed zone for the offset. Callers must check Valid first.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), o.minutes*60)
}

// String renders the offset as "+hh:mm" / "-hh:mm".
func (o Offset) String() string {
	if !o.valid {
		return "missing"
	}
	sign := '+'
	m := o.minutes
	if m < 0 {
		sign = '-'
		m = -m
	}
	return fmt.Sprintf("%c%02d:%02d", sign, m/60, m%60)
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes the supplied fields the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "2006-01-02".
func ParseDate(value string) (Date, error) {
	ts, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(ts), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight().AddDate(0, 0, n))
}

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday { return d.midnight().Weekday() }

// DaysSince returns the number of days from other to d (negative when d is earlier).
func (d Date) DaysSince(other Date) int {
	return int(d.midnight().Sub(other.midnight()).Hours() / 24)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	return d.midnight().Compare(other.midnight())
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is later than other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// DaysInMonth returns the number of days of d's month.
func (d Date) DaysInMonth() int {
	return time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) String() string {
	return d.midnight().Format(time.DateOnly)
}

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "15:04".
func ParseClock(value string) (Clock, error) {
	ts, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return Clock{Hour: ts.Hour(), Minute: ts.Minute()}, nil
}

// Valid reports whether the clock lies within a day.
func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// Before reports whether c is earlier in the day than other.
func (c Clock) Before(other Clock) bool { return c.Minutes() < other.Minutes() }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ToAbsolute converts a local date and time of day into a UTC instant.
func ToAbsolute(date Date, clock Clock, offset Offset) (time.Time, error) {
	if !offset.Valid() {
		return time.Time{}, ErrOffsetMissing
	}
	if !clock.Valid() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidClock, clock)
	}
	local := time.Date(date.Year, date.Month, date.Day, clock.Hour, clock.Minute, 0, 0, offset.Location())
	return local.UTC(), nil
}

// ToLocal converts a UTC instant back into the owner's date and time of day.
func ToLocal(instant time.Time, offset Offset) (Date, Clock, error) {
	if !offset.Valid() {
		return Date{}, Clock{}, ErrOffsetMissing
	}
	local := instant.In(offset.Location())
	return DateOf(local), Clock{Hour: local.Hour(), Minute: local.Minute()}, nil
}

// StartOfDay returns the UTC instant of local midnight on date.
func StartOfDay(date Date, offset Offset) (time.Time, error) {
	return ToAbsolute(date, Clock{}, offset)
}

// Format renders an instant in the owner's offset as RFC 3339. Without an
// offset the instant is rendered in UTC, which is still explicit.
func Format(instant time.Time, offset Offset) string {
	if !offset.Valid() {
		return instant.UTC().Format(time.RFC3339)
	}
	return instant.In(offset.Location()).Format(time.RFC3339)
}
