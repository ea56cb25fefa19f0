package invoicing

import (
	"fmt"
	"sort"

	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// RetentionInfo is a withholding deducted from the amount the customer pays.
// Amount is computed by the caller (see CalculateRetention); the calculator
// only subtracts it.
type RetentionInfo struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

// TaxOptions are the document-level modifiers applied on top of the lines
type TaxOptions struct {
	Retention          *RetentionInfo
	SocialSecurityRate *decimal.Decimal
	StampDuty          bool
	SplitPayment       bool
	ReverseCharge      bool
}

// VATGroup is the taxable base and tax of one VAT rate
type VATGroup struct {
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable_amount"`
	Tax     decimal.Decimal `json:"tax_amount"`
}

// TaxBreakdown is the computed tax summary frozen into an issued invoice
type TaxBreakdown struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	VATGroups            []VATGroup      `json:"vat_groups"`
	TotalVAT             decimal.Decimal `json:"total_vat"`
	RetentionAmount      decimal.Decimal `json:"retention_amount"`
	SocialSecurityAmount decimal.Decimal `json:"social_security_amount"`
	StampDutyAmount      decimal.Decimal `json:"stamp_duty_amount"`
	Total                decimal.Decimal `json:"total"`
	NetToPay             decimal.Decimal `json:"net_to_pay"`
}

// CheckInvariants verifies total = subtotal + vat + stamp and
// netToPay = total - retention, and that the groups add up.
func (b TaxBreakdown) CheckInvariants() error {
	if !b.Total.Equal(b.Subtotal.Add(b.TotalVAT).Add(b.StampDutyAmount)) {
		return NewTaxCalculationError(fmt.Sprintf("total %s != subtotal %s + vat %s + stamp %s",
			b.Total, b.Subtotal, b.TotalVAT, b.StampDutyAmount))
	}
	if !b.NetToPay.Equal(b.Total.Sub(b.RetentionAmount)) {
		return NewTaxCalculationError(fmt.Sprintf("net to pay %s != total %s - retention %s",
			b.NetToPay, b.Total, b.RetentionAmount))
	}
	taxable, tax := decimal.Zero, decimal.Zero
	for _, g := range b.VATGroups {
		taxable = taxable.Add(g.Taxable)
		tax = tax.Add(g.Tax)
	}
	if !taxable.Equal(b.Subtotal) || !tax.Equal(b.TotalVAT) {
		return NewTaxCalculationError("VAT groups do not add up to subtotal and total VAT")
	}
	return nil
}

// TaxCalculator computes a TaxBreakdown from invoice lines. It holds only
// immutable configuration and is safe for concurrent use.
type TaxCalculator struct {
	rates *RateTable
}

// NewTaxCalculator creates a calculator; a nil table falls back to the defaults
func NewTaxCalculator(rates *RateTable) *TaxCalculator {
	if rates == nil {
		rates = NewRateTable()
	}
	return &TaxCalculator{rates: rates}
}

// Rates returns the rate table the calculator was built with
func (c *TaxCalculator) Rates() *RateTable {
	return c.rates
}

// Calculate computes the tax breakdown. Every line net and every group tax is
// rounded individually before being summed.
func (c *TaxCalculator) Calculate(lines []InvoiceLine, opts TaxOptions) (TaxBreakdown, error) {
	if len(lines) == 0 {
		return TaxBreakdown{}, ErrNoLines
	}
	for i, line := range lines {
		if err := line.Validate(i); err != nil {
			return TaxBreakdown{}, err
		}
	}
	if opts.SocialSecurityRate != nil && !valueobject.IsPercent(*opts.SocialSecurityRate) {
		return TaxBreakdown{}, NewTaxCalculationError("social security rate must be between 0 and 100")
	}
	if opts.Retention != nil {
		if opts.Retention.Amount.IsNegative() {
			return TaxBreakdown{}, NewInvalidInvoiceDataError("retention.amount", "must not be negative")
		}
		if !valueobject.IsPercent(opts.Retention.Rate) {
			return TaxBreakdown{}, NewInvalidInvoiceDataError("retention.rate", "must be between 0 and 100")
		}
	}

	subtotal := decimal.Zero
	groups := make([]*VATGroup, 0, 4)
	for _, line := range lines {
		net := line.NetAmount()
		subtotal = subtotal.Add(net)
		g := groupFor(&groups, line.VATRate)
		g.Taxable = g.Taxable.Add(net)
	}

	var breakdown TaxBreakdown
	if opts.SocialSecurityRate != nil && opts.SocialSecurityRate.IsPositive() {
		ss := valueobject.PercentOf(subtotal, *opts.SocialSecurityRate)
		allocateSurcharge(groups, ss, *opts.SocialSecurityRate)
		subtotal = subtotal.Add(ss)
		breakdown.SocialSecurityAmount = ss
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Rate.GreaterThan(groups[j].Rate) })

	totalVAT := decimal.Zero
	breakdown.VATGroups = make([]VATGroup, 0, len(groups))
	for _, g := range groups {
		switch {
		case opts.ReverseCharge:
			g.Tax = decimal.Zero
		case opts.SplitPayment && g.Rate.IsPositive():
			g.Tax = decimal.Zero
		default:
			g.Tax = valueobject.PercentOf(g.Taxable, g.Rate)
		}
		totalVAT = totalVAT.Add(g.Tax)
		breakdown.VATGroups = append(breakdown.VATGroups, *g)
	}

	total := subtotal.Add(totalVAT)
	if opts.StampDuty && total.LessThan(c.rates.StampDutyThreshold()) {
		breakdown.StampDutyAmount = c.rates.StampDutyAmount()
		total = total.Add(breakdown.StampDutyAmount)
	}

	if opts.Retention != nil {
		breakdown.RetentionAmount = opts.Retention.Amount
	}

	breakdown.Subtotal = subtotal
	breakdown.TotalVAT = totalVAT
	breakdown.Total = total
	breakdown.NetToPay = total.Sub(breakdown.RetentionAmount)
	return breakdown, nil
}

// CalculateRetention returns round2(taxable * rate / 100)
func (c *TaxCalculator) CalculateRetention(taxable, rate decimal.Decimal) (decimal.Decimal, error) {
	if !valueobject.IsPercent(rate) {
		return decimal.Zero, NewInvalidInvoiceDataError("retention.rate", "must be between 0 and 100")
	}
	return valueobject.PercentOf(taxable, rate), nil
}

func groupFor(groups *[]*VATGroup, rate decimal.Decimal) *VATGroup {
	for _, g := range *groups {
		if g.Rate.Equal(rate) {
			return g
		}
	}
	g := &VATGroup{Rate: rate, Taxable: decimal.Zero}
	*groups = append(*groups, g)
	return g
}

// allocateSurcharge spreads a social security amount over the VAT groups in
// proportion to their taxable base. The largest group absorbs the rounding
// remainder so that the group bases still add up to the new subtotal.
func allocateSurcharge(groups []*VATGroup, amount, rate decimal.Decimal) {
	if len(groups) == 0 {
		return
	}
	largest := groups[0]
	allocated := decimal.Zero
	shares := make([]decimal.Decimal, len(groups))
	for i, g := range groups {
		shares[i] = valueobject.PercentOf(g.Taxable, rate)
		allocated = allocated.Add(shares[i])
		if g.Taxable.GreaterThan(largest.Taxable) {
			largest = g
		}
	}
	for i, g := range groups {
		g.Taxable = g.Taxable.Add(shares[i])
	}
	largest.Taxable = largest.Taxable.Add(amount.Sub(allocated))
}
