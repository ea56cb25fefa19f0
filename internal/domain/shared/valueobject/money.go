package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

// DefaultCurrency is the default currency for issued documents
const DefaultCurrency = EUR

// MoneyScale is the number of fractional digits every stored amount carries
const MoneyScale int32 = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// IsValid checks if the currency is supported
func (c Currency) IsValid() bool {
	switch c {
	case EUR, USD, GBP, CHF, JPY:
		return true
	}
	return false
}

// String returns the string representation of Currency
func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalizes and validates a currency code. Empty input yields the default.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	c := Currency(code)
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency: %s", code)
	}
	return c, nil
}

// Round2 rounds to two fractional digits, half away from zero.
// All stored amounts go through this function exactly once after being computed.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ApplyPercent returns amount*rate/100 without rounding
func ApplyPercent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// PercentOf returns Round2(amount*rate/100)
func PercentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return Round2(ApplyPercent(amount, rate))
}

// DiscountFactor returns 1 - percent/100
func DiscountFactor(percent decimal.Decimal) decimal.Decimal {
	return one.Sub(percent.Div(hundred))
}

// IsPercent reports whether d lies in the closed interval [0, 100]
func IsPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

// Sum adds the given amounts
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ParseAmount parses a decimal string. Amounts with more than two fractional
// digits are rejected because they cannot be represented on a document.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !FitsMoneyScale(d) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d fractional digits", s, MoneyScale)
	}
	return d, nil
}

// FitsMoneyScale reports whether d is exact at two fractional digits.
// Trailing zeros are fine: 12.5000 fits, 12.505 does not.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(Round2(d))
}

// FormatAmount renders an amount with exactly two fractional digits
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
