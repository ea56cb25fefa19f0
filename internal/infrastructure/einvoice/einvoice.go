// Package einvoice generates structured electronic invoices from issued
// invoices. Two formats are supported:
//
//   - FatturaPA 1.2 (FPR12), the format accepted by the Italian SDI exchange
//   - PEPPOL BIS Billing 3.0, a UBL 2.1 profile for cross-border e-invoicing
//
// Every generated document carries the hex SHA-256 digest of its bytes.
// Validate performs structural checks only; XSD and schematron validation
// belong to the receiving network.
package einvoice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/shopspring/decimal"
)

// Hash returns the hex SHA-256 digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Providers returns every supported provider
func Providers() []invoicing.EInvoiceProvider {
	return []invoicing.EInvoiceProvider{NewFatturaPAProvider(), NewPEPPOLProvider()}
}

func marshalDocument(format invoicing.EInvoiceFormat, root any) (*invoicing.EInvoiceDocument, error) {
	body, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", format, err)
	}
	data := make([]byte, 0, len(xml.Header)+len(body))
	data = append(data, xml.Header...)
	data = append(data, body...)
	return &invoicing.EInvoiceDocument{
		Format: format,
		XML:    data,
		Hash:   Hash(data),
	}, nil
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// splitVAT separates a VAT number into country prefix and code. Numbers
// without an alphabetic prefix take fallbackCountry.
func splitVAT(vat, fallbackCountry string) (country, code string) {
	vat = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vat), " ", ""))
	if len(vat) > 2 && isLetter(vat[0]) && isLetter(vat[1]) {
		return vat[:2], vat[2:]
	}
	return strings.ToUpper(fallbackCountry), vat
}

func isLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// validation collects structural problems
type validation struct {
	errors []string
}

func (v *validation) require(ok bool, format string, args ...any) {
	if !ok {
		v.errors = append(v.errors, fmt.Sprintf(format, args...))
	}
}

func (v *validation) result() invoicing.EInvoiceValidation {
	return invoicing.EInvoiceValidation{Valid: len(v.errors) == 0, Errors: v.errors}
}

func parseAmount(v *validation, field, s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		v.errors = append(v.errors, fmt.Sprintf("%s: %q is not a decimal amount", field, s))
		return decimal.Zero
	}
	return d
}
