package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Snapshots and the tax breakdown are jsonb; the totals and the resolved
// due date are duplicated into columns for filtering and reporting.
// The (tenant_id, invoice_number) unique index comes from the migrations.
type InvoiceModel struct {
	TenantAggregateModel
	InvoiceNumber      string                        `gorm:"type:varchar(64);not null"`
	Type               invoicing.InvoiceType         `gorm:"type:varchar(32);not null;index"`
	Status             invoicing.InvoiceStatus       `gorm:"type:varchar(32);not null;index"`
	Company            JSON[invoicing.Company]       `gorm:"not null"`
	Customer           JSON[invoicing.Customer]      `gorm:"not null"`
	CustomerID         string                        `gorm:"type:varchar(64);index"`
	CustomerName       string                        `gorm:"type:varchar(255)"`
	Lines              JSON[[]invoicing.InvoiceLine] `gorm:"not null"`
	IssueDate          time.Time                     `gorm:"not null;index"`
	DueDate            time.Time                     `gorm:"not null;index"`
	PaymentInfo        JSON[invoicing.PaymentInfo]   `gorm:"not null"`
	Currency           string                        `gorm:"type:varchar(3);not null"`
	Language           string                        `gorm:"type:varchar(8)"`
	Series             string                        `gorm:"type:varchar(32)"`
	Retention          JSON[*invoicing.RetentionInfo]
	SocialSecurityRate *decimal.Decimal `gorm:"type:decimal(5,2)"`
	StampDuty          bool             `gorm:"not null;default:false"`
	SplitPayment       bool             `gorm:"not null;default:false"`
	ReverseCharge      bool             `gorm:"not null;default:false"`
	Notes              string           `gorm:"type:text"`
	Metadata           JSON[map[string]any]
	Totals             JSON[invoicing.TaxBreakdown] `gorm:"not null"`
	Subtotal           decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	TotalVAT           decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	Total              decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	NetToPay           decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	SentAt             *time.Time
	ViewedAt           *time.Time
	PaidAt             *time.Time
	CanceledAt         *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	return &invoicing.Invoice{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		InvoiceNumber:       m.InvoiceNumber,
		Type:                m.Type,
		Status:              m.Status,
		Company:             m.Company.Data,
		Customer:            m.Customer.Data,
		Lines:               m.Lines.Data,
		IssueDate:           m.IssueDate.UTC(),
		PaymentInfo:         m.PaymentInfo.Data,
		Currency:            valueobject.Currency(m.Currency),
		Language:            m.Language,
		Series:              m.Series,
		Retention:           m.Retention.Data,
		SocialSecurityRate:  m.SocialSecurityRate,
		StampDuty:           m.StampDuty,
		SplitPayment:        m.SplitPayment,
		ReverseCharge:       m.ReverseCharge,
		Notes:               m.Notes,
		Metadata:            m.Metadata.Data,
		Totals:              m.Totals.Data,
		SentAt:              utcPtr(m.SentAt),
		ViewedAt:            utcPtr(m.ViewedAt),
		PaidAt:              utcPtr(m.PaidAt),
		CanceledAt:          utcPtr(m.CanceledAt),
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.Type = inv.Type
	m.Status = inv.Status
	m.Company = NewJSON(inv.Company)
	m.Customer = NewJSON(inv.Customer)
	m.CustomerID = inv.Customer.ID
	m.CustomerName = inv.Customer.DisplayName()
	m.Lines = NewJSON(inv.Lines)
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate()
	m.PaymentInfo = NewJSON(inv.PaymentInfo)
	m.Currency = inv.Currency.String()
	m.Language = inv.Language
	m.Series = inv.Series
	m.Retention = NewJSON(inv.Retention)
	m.SocialSecurityRate = inv.SocialSecurityRate
	m.StampDuty = inv.StampDuty
	m.SplitPayment = inv.SplitPayment
	m.ReverseCharge = inv.ReverseCharge
	m.Notes = inv.Notes
	m.Metadata = NewJSON(inv.Metadata)
	m.Totals = NewJSON(inv.Totals)
	m.Subtotal = inv.Totals.Subtotal
	m.TotalVAT = inv.Totals.TotalVAT
	m.Total = inv.Totals.Total
	m.NetToPay = inv.Totals.NetToPay
	m.SentAt = inv.SentAt
	m.ViewedAt = inv.ViewedAt
	m.PaidAt = inv.PaidAt
	m.CanceledAt = inv.CanceledAt
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

