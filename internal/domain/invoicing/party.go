package invoicing

import (
	"strings"
	"time"
)

// Address is a postal address; Country is ISO 3166-1 alpha-2
type Address struct {
	Street        string `json:"street"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	StateProvince string `json:"state_province,omitempty"`
	Country       string `json:"country"`
}

// TaxInfo holds the fiscal identifiers of a party
type TaxInfo struct {
	VATNumber string `json:"vat_number,omitempty"`
	TaxCode   string `json:"tax_code,omitempty"`
	SDICode   string `json:"sdi_code,omitempty"`
	PECEmail  string `json:"pec_email,omitempty"`
}

// Company is the issuer of a document
type Company struct {
	Name      string  `json:"name"`
	LegalName string  `json:"legal_name,omitempty"`
	Address   Address `json:"address"`
	TaxInfo   TaxInfo `json:"tax_info"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone,omitempty"`
	Website   string  `json:"website,omitempty"`
	LogoURL   string  `json:"logo_url,omitempty"`
}

// Customer is the buyer of a document. The invoice keeps its own copy so
// later edits to the customer master record do not reach issued documents.
type Customer struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	LegalName    string   `json:"legal_name,omitempty"`
	Address      Address  `json:"address"`
	TaxInfo      *TaxInfo `json:"tax_info,omitempty"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone,omitempty"`
	IsCompany    bool     `json:"is_company"`
	PaymentTerms string   `json:"payment_terms,omitempty"`
}

// DisplayName returns the legal name when present, otherwise the name
func (c Customer) DisplayName() string {
	if c.LegalName != "" {
		return c.LegalName
	}
	return c.Name
}

// PaymentInfo describes how and when the invoice is to be paid
type PaymentInfo struct {
	Method   PaymentMethod `json:"method"`
	Terms    PaymentTerms  `json:"terms"`
	DueDate  *time.Time    `json:"due_date,omitempty"`
	BankName string        `json:"bank_name,omitempty"`
	IBAN     string        `json:"iban,omitempty"`
	SwiftBIC string        `json:"swift_bic,omitempty"`
}

// ResolveDueDate returns the explicit due date, or one derived from the terms
// and the issue date when none was given.
func (p PaymentInfo) ResolveDueDate(issueDate time.Time) time.Time {
	if p.DueDate != nil {
		return *p.DueDate
	}
	switch p.Terms {
	case PaymentTermsEndOfMonth:
		firstOfNext := time.Date(issueDate.Year(), issueDate.Month()+1, 1, 0, 0, 0, 0, issueDate.Location())
		return firstOfNext.AddDate(0, 0, -1)
	default:
		return issueDate.AddDate(0, 0, p.Terms.NetDays())
	}
}

func validateParties(company Company, customer Customer) error {
	if strings.TrimSpace(company.Name) == "" {
		return NewInvalidInvoiceDataError("company.name", "is required")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return NewInvalidInvoiceDataError("customer.id", "is required")
	}
	if strings.TrimSpace(customer.Name) == "" {
		return NewInvalidInvoiceDataError("customer.name", "is required")
	}
	return nil
}
