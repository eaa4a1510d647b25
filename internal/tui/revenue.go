package tui

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RevenueFormatter renders one annual recurring revenue amount.
type RevenueFormatter func(amount float64) string

// NewRevenueFormatter builds a locale-aware formatter such as "USD 250,000.00".
// Unknown locales fall back to en-US and unknown currency codes to USD.
func NewRevenueFormatter(locale, code string) RevenueFormatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.USD
	}
	p := message.NewPrinter(tag)
	return func(amount float64) string {
		return p.Sprintf("%s %.2f", unit.String(), amount)
	}
}
