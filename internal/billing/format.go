package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders money for the payment-preview UI.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a formatter for a BCP 47 locale and ISO 4217 currency code.
func NewFormatter(locale, currencyCode string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("billing: locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("billing: currency %q: %w", currencyCode, err)
	}
	return &Formatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Currency returns the ISO code.
func (f *Formatter) Currency() string {
	if f == nil {
		return ""
	}
	return f.unit.String()
}

// Format renders amount with grouping and two decimals, prefixed by the currency code.
func (f *Formatter) Format(amount decimal.Decimal) string {
	if f == nil {
		return amount.StringFixed(2)
	}
	return f.printer.Sprintf("%s %v", f.unit, number.Decimal(amount.InexactFloat64(), number.Scale(2)))
}
