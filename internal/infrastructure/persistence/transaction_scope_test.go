package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appinv "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_RollbackDiscardsEverything(t *testing.T) {
	db := setupTestDB(t)
	scope := NewGormTransactionScope(db.DB, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	boom := errors.New("boom")

	err := scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		seq, err := repos.SerialCounter().AllocateNextSerial(ctx, tenantID, 2025, "")
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)
		require.NoError(t, repos.Invoices().Create(ctx, testInvoice(tenantID, "INV-1", jan10)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := NewGormInvoiceRepository(db.DB).ExistsByNumber(ctx, tenantID, "INV-1")
	require.NoError(t, err)
	assert.False(t, exists)

	// the rolled back increment leaves no gap
	current, err := NewGormSerialCounterRepository(db.DB).Current(ctx, tenantID, 2025, "")
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestGormTransactionScope_Commit(t *testing.T) {
	db := setupTestDB(t)
	scope := NewGormTransactionScope(db.DB, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	inv := testInvoice(tenantID, "INV-1", jan10)

	err := scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		if err := repos.Invoices().Create(ctx, inv); err != nil {
			return err
		}
		payment, err := invoicing.NewPaymentRecord(tenantID, inv.ID, d("100"), jan10,
			invoicing.PaymentMethodBankTransfer, "TX-1", "")
		if err != nil {
			return err
		}
		return repos.Payments().Create(ctx, payment)
	})
	require.NoError(t, err)

	payments, err := NewGormPaymentRepository(db.DB).ListByInvoice(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "TX-1", payments[0].TransactionID)
}

type fixedCounter struct{ next int64 }

func (c *fixedCounter) AllocateNextSerial(context.Context, uuid.UUID, int, string) (int64, error) {
	c.next++
	return c.next, nil
}

func TestGormTransactionScope_ExternalCounter(t *testing.T) {
	db := setupTestDB(t)
	counter := &fixedCounter{next: 99}
	scope := NewGormTransactionScope(db.DB, counter)

	err := scope.Execute(context.Background(), func(repos appinv.TransactionalRepositories) error {
		seq, err := repos.SerialCounter().AllocateNextSerial(context.Background(), uuid.New(), 2025, "")
		assert.Equal(t, int64(100), seq)
		return err
	})
	require.NoError(t, err)
}

func TestInvoiceService_OnGorm(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()

	invoices := NewGormInvoiceRepository(db.DB)
	payments := NewGormPaymentRepository(db.DB)
	allocator, err := invoicing.NewAllocator(
		NewGormSerialCounterRepository(db.DB),
		invoices,
		invoicing.StaticAbbreviations{tenantID: "ACME"},
		invoicing.AllocatorConfig{},
	)
	require.NoError(t, err)
	svc := appinv.NewInvoiceService(NewGormTransactionScope(db.DB, nil), invoices, payments,
		invoicing.NewTaxCalculator(nil), allocator, nil)

	issue := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	req := appinv.CreateInvoiceRequest{
		Company:   invoicing.Company{Name: "ACME Agency", Address: invoicing.Address{Country: "IT"}},
		Customer:  invoicing.Customer{ID: "cust_1", Name: "Cliente SPA", Email: "billing@cliente.it"},
		IssueDate: &issue,
		Rows: []appinv.LineRequest{
			{Description: "Consulting", Quantity: d("10"), UnitPrice: d("100.00"), VATRate: d("22")},
			{Description: "Books", Quantity: d("5"), UnitPrice: d("50.00"), VATRate: d("10")},
			{Description: "Stamp", Quantity: d("1"), UnitPrice: d("20.00"), VATRate: d("0")},
		},
		PaymentInfo: invoicing.PaymentInfo{
			Method: invoicing.PaymentMethodBankTransfer,
			Terms:  invoicing.PaymentTermsNet30,
		},
	}

	first, err := svc.CreateInvoice(ctx, tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, "ACME-2025-000001", first.InvoiceNumber)
	assert.True(t, first.Totals.NetToPay.Equal(d("1515")))

	second, err := svc.CreateInvoice(ctx, tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, "ACME-2025-000002", second.InvoiceNumber)

	paidOn := issue.AddDate(0, 0, 3)
	partial, err := svc.RecordPayment(ctx, tenantID, first.ID, appinv.RecordPaymentRequest{
		Amount: d("515.00"), PaymentDate: &paidOn, Method: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "partially_paid", partial.InvoiceStatus)
	assert.True(t, partial.Outstanding.Equal(d("1000")))

	paid, err := svc.RecordPayment(ctx, tenantID, first.ID, appinv.RecordPaymentRequest{
		Amount: d("1000.00"), PaymentDate: &paidOn, Method: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "paid", paid.InvoiceStatus)

	_, err = svc.RecordPayment(ctx, tenantID, first.ID, appinv.RecordPaymentRequest{
		Amount: d("1.00"), PaymentDate: &paidOn, Method: "bank_transfer",
	})
	assert.Error(t, err)

	stored, err := invoices.FindByID(ctx, tenantID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, 3, stored.Version)
	require.NotNil(t, stored.PaidAt)
}
