package models

import (
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceModel_TableName(t *testing.T) {
	assert.Equal(t, "invoices", InvoiceModel{}.TableName())
	assert.Equal(t, "invoice_payments", PaymentRecordModel{}.TableName())
	assert.Equal(t, "invoice_serial_counters", SerialCounterModel{}.TableName())
}

func TestInvoiceModel_FromDomain(t *testing.T) {
	issue := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ss := decimal.NewFromInt(4)
	inv := &invoicing.Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
		InvoiceNumber:       "ACME-2025-000007",
		Type:                invoicing.InvoiceTypeInvoice,
		Status:              invoicing.InvoiceStatusIssued,
		Customer:            invoicing.Customer{ID: "C-1", Name: "Rossi", LegalName: "Rossi S.r.l."},
		IssueDate:           issue,
		PaymentInfo:         invoicing.PaymentInfo{Method: invoicing.PaymentMethodBankTransfer, Terms: invoicing.PaymentTermsNet30},
		Currency:            valueobject.Currency("EUR"),
		SocialSecurityRate:  &ss,
		Totals: invoicing.TaxBreakdown{
			Subtotal: decimal.NewFromInt(100),
			TotalVAT: decimal.NewFromInt(22),
			Total:    decimal.NewFromInt(122),
			NetToPay: decimal.NewFromInt(122),
		},
	}

	m := InvoiceModelFromDomain(inv)

	assert.Equal(t, inv.ID, m.ID)
	assert.Equal(t, inv.TenantID, m.TenantID)
	assert.Equal(t, "C-1", m.CustomerID)
	assert.Equal(t, "Rossi S.r.l.", m.CustomerName)
	assert.Equal(t, issue.AddDate(0, 0, 30), m.DueDate)
	assert.True(t, m.NetToPay.Equal(decimal.NewFromInt(122)))
	assert.Equal(t, "EUR", m.Currency)

	back := m.ToDomain()
	assert.Equal(t, inv.InvoiceNumber, back.InvoiceNumber)
	assert.Equal(t, inv.Customer, back.Customer)
	assert.Equal(t, inv.Version, back.Version)
	require.NotNil(t, back.SocialSecurityRate)
	assert.True(t, back.SocialSecurityRate.Equal(ss))
}

func TestJSON_Scan(t *testing.T) {
	t.Run("string and bytes", func(t *testing.T) {
		var j JSON[invoicing.PaymentInfo]
		require.NoError(t, j.Scan(`{"method":"cash","terms":"immediate"}`))
		assert.Equal(t, invoicing.PaymentMethodCash, j.Data.Method)

		require.NoError(t, j.Scan([]byte(`{"method":"riba"}`)))
		assert.Equal(t, invoicing.PaymentMethod("riba"), j.Data.Method)
	})

	t.Run("null resets to zero value", func(t *testing.T) {
		j := NewJSON(&invoicing.RetentionInfo{Reason: "x"})
		require.NoError(t, j.Scan(nil))
		assert.Nil(t, j.Data)
	})

	t.Run("unsupported type", func(t *testing.T) {
		var j JSON[map[string]any]
		assert.Error(t, j.Scan(42))
	})

	t.Run("value is a json string", func(t *testing.T) {
		v, err := NewJSON(map[string]any{"k": "v"}).Value()
		require.NoError(t, err)
		assert.Equal(t, `{"k":"v"}`, v)
	})
}
