package invoicing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CountryVATRates lists the standard and reduced VAT rates of a country
type CountryVATRates struct {
	Standard decimal.Decimal
	Reduced  []decimal.Decimal
}

// RateTable is the immutable tax configuration a TaxCalculator is built with.
// Separate tables may coexist in one process, one per jurisdiction or tenant.
type RateTable struct {
	vatRates            map[string]CountryVATRates
	retentionRates      map[string]decimal.Decimal
	socialSecurityRates map[string]decimal.Decimal
	stampDutyThreshold  decimal.Decimal
	stampDutyAmount     decimal.Decimal
}

// RateTableOption configures a RateTable
type RateTableOption func(*RateTable)

// WithStampDuty overrides the stamp duty threshold and amount
func WithStampDuty(threshold, amount decimal.Decimal) RateTableOption {
	return func(t *RateTable) {
		t.stampDutyThreshold = threshold
		t.stampDutyAmount = amount
	}
}

// WithCountryVATRates adds or replaces the VAT rates of a country
func WithCountryVATRates(country string, rates CountryVATRates) RateTableOption {
	return func(t *RateTable) {
		t.vatRates[strings.ToUpper(country)] = rates
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewRateTable builds a rate table preloaded with the default Italian and
// common EU rates. Options are applied on top of the defaults.
func NewRateTable(opts ...RateTableOption) *RateTable {
	t := &RateTable{
		vatRates: map[string]CountryVATRates{
			"IT": {Standard: mustDecimal("22"), Reduced: []decimal.Decimal{mustDecimal("10"), mustDecimal("5"), mustDecimal("4")}},
			"DE": {Standard: mustDecimal("19"), Reduced: []decimal.Decimal{mustDecimal("7")}},
			"FR": {Standard: mustDecimal("20"), Reduced: []decimal.Decimal{mustDecimal("10"), mustDecimal("5.5"), mustDecimal("2.1")}},
			"ES": {Standard: mustDecimal("21"), Reduced: []decimal.Decimal{mustDecimal("10"), mustDecimal("4")}},
			"GB": {Standard: mustDecimal("20"), Reduced: []decimal.Decimal{mustDecimal("5"), mustDecimal("0")}},
			"AT": {Standard: mustDecimal("20"), Reduced: []decimal.Decimal{mustDecimal("13"), mustDecimal("10")}},
			"BE": {Standard: mustDecimal("21"), Reduced: []decimal.Decimal{mustDecimal("12"), mustDecimal("6")}},
			"NL": {Standard: mustDecimal("21"), Reduced: []decimal.Decimal{mustDecimal("9")}},
			"PT": {Standard: mustDecimal("23"), Reduced: []decimal.Decimal{mustDecimal("13"), mustDecimal("6")}},
		},
		retentionRates: map[string]decimal.Decimal{
			"professional": mustDecimal("20"),
			"agent":        mustDecimal("23"),
			"company":      mustDecimal("4"),
		},
		socialSecurityRates: map[string]decimal.Decimal{
			"cassa_geometri":  mustDecimal("4"),
			"cassa_ingegneri": mustDecimal("4"),
			"inps":            mustDecimal("4"),
		},
		stampDutyThreshold: mustDecimal("77.47"),
		stampDutyAmount:    mustDecimal("2.00"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// VATRates returns the standard rate followed by the reduced rates of a
// country, highest first. ok is false for an unknown country.
func (t *RateTable) VATRates(country string) ([]decimal.Decimal, bool) {
	rates, ok := t.vatRates[strings.ToUpper(country)]
	if !ok {
		return nil, false
	}
	out := make([]decimal.Decimal, 0, len(rates.Reduced)+1)
	out = append(out, rates.Standard)
	out = append(out, rates.Reduced...)
	sort.Slice(out, func(i, j int) bool { return out[i].GreaterThan(out[j]) })
	return out, true
}

// StandardVATRate returns the standard rate of a country
func (t *RateTable) StandardVATRate(country string) (decimal.Decimal, bool) {
	rates, ok := t.vatRates[strings.ToUpper(country)]
	return rates.Standard, ok
}

// RetentionRate returns the withholding rate for a category such as "professional"
func (t *RateTable) RetentionRate(category string) (decimal.Decimal, bool) {
	r, ok := t.retentionRates[category]
	return r, ok
}

// SocialSecurityRate returns the contribution rate of a fund such as "inps"
func (t *RateTable) SocialSecurityRate(fund string) (decimal.Decimal, bool) {
	r, ok := t.socialSecurityRates[fund]
	return r, ok
}

// StampDutyThreshold returns the total below which stamp duty applies
func (t *RateTable) StampDutyThreshold() decimal.Decimal {
	return t.stampDutyThreshold
}

// StampDutyAmount returns the fixed stamp amount
func (t *RateTable) StampDutyAmount() decimal.Decimal {
	return t.stampDutyAmount
}
