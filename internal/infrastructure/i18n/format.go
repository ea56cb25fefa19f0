package i18n

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var dateLayouts = map[language.Tag]string{
	language.English: "02 Jan 2006",
	language.Italian: "02/01/2006",
	language.German:  "02.01.2006",
	language.French:  "02/01/2006",
	language.Spanish: "02/01/2006",
}

// FormatNumber formats v with the grouping and decimal separators of lang
func FormatNumber(lang string, v decimal.Decimal, scale int) string {
	p := message.NewPrinter(Match(lang))
	f, _ := v.Round(int32(scale)).Float64()
	return p.Sprint(number.Decimal(f, number.Scale(scale)))
}

// symbolSpace keeps a trailing currency symbol on the same line as the amount
const symbolSpace = "\u00a0"

// FormatMoney formats an amount with its currency symbol. English puts the
// symbol first ("€1,515.00"), the other languages after it, joined by a
// no-break space ("1.515,00\u00a0€").
func FormatMoney(lang string, amount decimal.Decimal, code string) string {
	tag := Match(lang)
	digits := 2
	symbol := code
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ := currency.Standard.Rounding(unit)
		digits = scale
		symbol = message.NewPrinter(tag).Sprint(currency.NarrowSymbol(unit))
	}
	n := FormatNumber(tag.String(), amount, digits)
	if tag != language.English {
		return n + symbolSpace + symbol
	}
	if amount.IsNegative() {
		return "-" + symbol + strings.TrimPrefix(n, "-")
	}
	return symbol + n
}

// FormatPercent formats a rate given in percent, e.g. 22 -> "22%"
func FormatPercent(lang string, rate decimal.Decimal) string {
	scale := 0
	if !rate.Equal(rate.Truncate(0)) {
		scale = 2
	}
	return FormatNumber(lang, rate, scale) + "%"
}

// FormatDate formats t in the conventional short form of lang
func FormatDate(lang string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayouts[Match(lang)])
}

// Label turns a snake_case code into a title-cased label, e.g.
// "partially_paid" -> "Partially Paid".
func Label(lang, code string) string {
	return cases.Title(Match(lang)).String(strings.ReplaceAll(code, "_", " "))
}
