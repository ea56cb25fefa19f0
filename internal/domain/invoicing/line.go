package invoicing

import (
	"fmt"

	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceLine is a single row of a document. Amounts are derived on demand
// and never stored alongside the inputs.
type InvoiceLine struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Unit            string          `json:"unit,omitempty"`
	ProductCode     string          `json:"product_code,omitempty"`
}

// NetAmount returns round2(quantity * unitPrice * (1 - discount/100))
func (l InvoiceLine) NetAmount() decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitPrice)
	if l.DiscountPercent.IsPositive() {
		gross = gross.Mul(valueobject.DiscountFactor(l.DiscountPercent))
	}
	return valueobject.Round2(gross)
}

// VATAmount returns round2(net * rate / 100) computed on the rounded net
func (l InvoiceLine) VATAmount() decimal.Decimal {
	return valueobject.PercentOf(l.NetAmount(), l.VATRate)
}

// GrossAmount returns net + vat, both already rounded
func (l InvoiceLine) GrossAmount() decimal.Decimal {
	return l.NetAmount().Add(l.VATAmount())
}

// Validate checks quantity, price and percentage bounds. index is used in the
// field name of the returned error.
func (l InvoiceLine) Validate(index int) error {
	field := func(name string) string { return fmt.Sprintf("rows[%d].%s", index, name) }

	if l.Quantity.IsNegative() {
		return NewInvalidInvoiceDataError(field("quantity"), "must not be negative")
	}
	if l.UnitPrice.IsNegative() {
		return NewInvalidInvoiceDataError(field("unit_price"), "must not be negative")
	}
	if !valueobject.IsPercent(l.VATRate) {
		return NewInvalidInvoiceDataError(field("vat_rate"), "must be between 0 and 100")
	}
	if !valueobject.IsPercent(l.DiscountPercent) {
		return NewInvalidInvoiceDataError(field("discount_percent"), "must be between 0 and 100")
	}
	return nil
}
