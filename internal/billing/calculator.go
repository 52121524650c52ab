// Package billing computes what a session costs and what a payment totals.
package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PricingMode selects how a service charges for a session.
type PricingMode string

const (
	// PricingHourly charges duration times rate regardless of headcount.
	PricingHourly PricingMode = "HOURLY"
	// PricingPerChild multiplies the hourly charge by the number of children.
	PricingPerChild PricingMode = "PER_CHILD"
)

var (
	// ErrInvalidDuration indicates the session does not end after it starts.
	ErrInvalidDuration = errors.New("billing: session must end after it starts")
	// ErrNegativeAmount indicates a negative rate, expense or tip.
	ErrNegativeAmount = errors.New("billing: amounts must not be negative")
	// ErrInvalidPricingMode indicates an unknown pricing mode.
	ErrInvalidPricingMode = errors.New("billing: unknown pricing mode")
)

var secondsPerHour = decimal.NewFromInt(3600)

// ParsePricingMode accepts any letter case.
func ParsePricingMode(value string) (PricingMode, error) {
	mode := PricingMode(strings.ToUpper(strings.TrimSpace(value)))
	switch mode {
	case PricingHourly, PricingPerChild:
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPricingMode, value)
}

// SessionCharge carries everything needed to price one session.
type SessionCharge struct {
	Start      time.Time
	End        time.Time
	HourlyRate decimal.Decimal
	Mode       PricingMode
	ChildCount int
	Expenses   []decimal.Decimal
}

// Breakdown explains a session amount.
type Breakdown struct {
	Hours      decimal.Decimal
	HourlyRate decimal.Decimal
	Multiplier int
	Base       decimal.Decimal
	Expenses   decimal.Decimal
	Total      decimal.Decimal
}

// Multiplier returns the headcount factor for mode. PER_CHILD never drops
// below one so a session with no attached children is not free.
func Multiplier(mode PricingMode, childCount int) int {
	if mode != PricingPerChild {
		return 1
	}
	if childCount < 1 {
		return 1
	}
	return childCount
}

// Calculate prices a session: duration hours * rate * multiplier, plus expenses.
// Base and total are rounded to cents.
func Calculate(charge SessionCharge) (Breakdown, error) {
	if !charge.End.After(charge.Start) {
		return Breakdown{}, ErrInvalidDuration
	}
	if charge.HourlyRate.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: hourly rate %s", ErrNegativeAmount, charge.HourlyRate)
	}
	mode := charge.Mode
	if mode == "" {
		mode = PricingHourly
	}
	if _, err := ParsePricingMode(string(mode)); err != nil {
		return Breakdown{}, err
	}

	seconds := decimal.NewFromInt(int64(charge.End.Sub(charge.Start) / time.Second))
	multiplier := Multiplier(mode, charge.ChildCount)

	base := charge.HourlyRate.
		Mul(seconds).
		Mul(decimal.NewFromInt(int64(multiplier))).
		Div(secondsPerHour).
		Round(2)

	expenses := decimal.Zero
	for _, expense := range charge.Expenses {
		if expense.IsNegative() {
			return Breakdown{}, fmt.Errorf("%w: expense %s", ErrNegativeAmount, expense)
		}
		expenses = expenses.Add(expense)
	}
	expenses = expenses.Round(2)

	return Breakdown{
		Hours:      seconds.Div(secondsPerHour).Round(4),
		HourlyRate: charge.HourlyRate,
		Multiplier: multiplier,
		Base:       base,
		Expenses:   expenses,
		Total:      base.Add(expenses),
	}, nil
}

// PaymentTotal sums session amounts and tips.
func PaymentTotal(sessionAmounts []decimal.Decimal, tips decimal.Decimal) (decimal.Decimal, error) {
	if tips.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: tips %s", ErrNegativeAmount, tips)
	}
	total := decimal.Zero
	for _, amount := range sessionAmounts {
		total = total.Add(amount)
	}
	return total.Add(tips).Round(2), nil
}
