package persistence

import (
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens a fresh sqlite :memory: database. One connection keeps
// every query on the same in-memory database.
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), nil, func(db *gorm.DB) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testInvoice(tenantID uuid.UUID, number string, issue time.Time) *invoicing.Invoice {
	return &invoicing.Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InvoiceNumber:       number,
		Type:                invoicing.InvoiceTypeInvoice,
		Status:              invoicing.InvoiceStatusIssued,
		Company:             invoicing.Company{Name: "ACME Agency", Address: invoicing.Address{Country: "IT"}},
		Customer:            invoicing.Customer{ID: "cust_1", Name: "Cliente SPA", Email: "billing@cliente.it"},
		Lines: []invoicing.InvoiceLine{
			{Description: "Consulting", Quantity: d("10"), UnitPrice: d("100.00"), VATRate: d("22")},
		},
		IssueDate: issue,
		PaymentInfo: invoicing.PaymentInfo{
			Method: invoicing.PaymentMethodBankTransfer,
			Terms:  invoicing.PaymentTermsNet30,
		},
		Currency: valueobject.Currency("EUR"),
		Metadata: map[string]any{"source": "test"},
		Totals: invoicing.TaxBreakdown{
			Subtotal:  d("1000.00"),
			VATGroups: []invoicing.VATGroup{{Rate: d("22"), Taxable: d("1000.00"), Tax: d("220.00")}},
			TotalVAT:  d("220.00"),
			Total:     d("1220.00"),
			NetToPay:  d("1220.00"),
		},
	}
}
