package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecordModel is the persistence model for a payment applied to an invoice
type PaymentRecordModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID               `gorm:"type:uuid;not null;index:idx_payments_tenant_invoice,priority:1"`
	InvoiceID     uuid.UUID               `gorm:"type:uuid;not null;index:idx_payments_tenant_invoice,priority:2"`
	Amount        decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	PaymentDate   time.Time               `gorm:"not null"`
	Method        invoicing.PaymentMethod `gorm:"type:varchar(32);not null"`
	TransactionID string                  `gorm:"type:varchar(128)"`
	Notes         string                  `gorm:"type:text"`
	CreatedAt     time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentRecordModel) TableName() string {
	return "invoice_payments"
}

// ToDomain converts the persistence model to a domain PaymentRecord
func (m *PaymentRecordModel) ToDomain() *invoicing.PaymentRecord {
	return &invoicing.PaymentRecord{
		ID:            m.ID,
		TenantID:      m.TenantID,
		InvoiceID:     m.InvoiceID,
		Amount:        m.Amount,
		PaymentDate:   m.PaymentDate.UTC(),
		Method:        m.Method,
		TransactionID: m.TransactionID,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

// PaymentRecordModelFromDomain creates a persistence model from a domain PaymentRecord
func PaymentRecordModelFromDomain(p *invoicing.PaymentRecord) *PaymentRecordModel {
	return &PaymentRecordModel{
		ID:            p.ID,
		TenantID:      p.TenantID,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		PaymentDate:   p.PaymentDate,
		Method:        p.Method,
		TransactionID: p.TransactionID,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}
