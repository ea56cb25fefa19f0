package invoicing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

type serviceFixture struct {
	svc       *InvoiceService
	invoices  *memInvoiceRepo
	payments  *memPaymentRepo
	counter   *memCounter
	publisher *MockEventPublisher
	tenantID  uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	tenantID := uuid.New()
	invoices := newMemInvoiceRepo()
	payments := &memPaymentRepo{}
	counter := newMemCounter()

	allocator, err := invoicing.NewAllocator(counter, invoices,
		invoicing.StaticAbbreviations{tenantID: "ACME"}, invoicing.AllocatorConfig{})
	require.NoError(t, err)

	svc := NewInvoiceService(
		NewNoOpTransactionScope(invoices, payments, counter),
		invoices, payments,
		invoicing.NewTaxCalculator(nil),
		allocator,
		nil,
	)
	svc.now = func() time.Time { return fixedNow }

	publisher := &MockEventPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
	svc.SetEventPublisher(publisher)
	svc.SetIdempotencyStore(newMemIdempotency(), time.Hour)

	return &serviceFixture{
		svc:       svc,
		invoices:  invoices,
		payments:  payments,
		counter:   counter,
		publisher: publisher,
		tenantID:  tenantID,
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s got %s", want, got.String())
}

func threeRateRows() []LineRequest {
	return []LineRequest{
		{Description: "Consulting", Quantity: d("10"), UnitPrice: d("100.00"), VATRate: d("22")},
		{Description: "Books", Quantity: d("5"), UnitPrice: d("50.00"), VATRate: d("10")},
		{Description: "Stamp", Quantity: d("1"), UnitPrice: d("20.00"), VATRate: d("0")},
	}
}

func createRequest() CreateInvoiceRequest {
	return CreateInvoiceRequest{
		Company:  invoicing.Company{Name: "ACME Agency", Address: invoicing.Address{Country: "IT"}},
		Customer: invoicing.Customer{ID: "cust_1", Name: "Cliente SPA", Email: "billing@cliente.it"},
		Rows:     threeRateRows(),
		PaymentInfo: invoicing.PaymentInfo{
			Method: invoicing.PaymentMethodBankTransfer,
			Terms:  invoicing.PaymentTermsNet30,
		},
	}
}

func (f *serviceFixture) create(t *testing.T) *InvoiceResponse {
	t.Helper()
	resp, err := f.svc.CreateInvoice(context.Background(), f.tenantID, createRequest())
	require.NoError(t, err)
	return resp
}

func TestCreateInvoice_IssuesNumberedInvoice(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.create(t)

	assert.Equal(t, "ACME-2025-000001", resp.InvoiceNumber)
	assert.Equal(t, "issued", resp.Status)
	assert.Equal(t, "invoice", resp.InvoiceType)
	assert.Equal(t, "EUR", resp.Currency)
	assert.True(t, resp.IssueDate.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, resp.DueDate.Equal(time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)))
	assertAmount(t, "1270.00", resp.Totals.Subtotal)
	assertAmount(t, "245.00", resp.Totals.TotalVAT)
	assertAmount(t, "1515.00", resp.Totals.Total)
	assertAmount(t, "1515.00", resp.Totals.NetToPay)

	assert.Equal(t, []string{invoicing.EventTypeInvoiceIssued}, f.publisher.eventTypes())

	second := f.create(t)
	assert.Equal(t, "ACME-2025-000002", second.InvoiceNumber)
}

func TestCreateInvoice_ReadBackMatches(t *testing.T) {
	f := newServiceFixture(t)
	created := f.create(t)

	got, err := f.svc.GetInvoice(context.Background(), f.tenantID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Totals, got.Totals)

	byNumber, err := f.svc.GetInvoiceByNumber(context.Background(), f.tenantID, created.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byNumber.ID)
}

func TestCreateInvoice_ValidationFailureConsumesNoNumber(t *testing.T) {
	f := newServiceFixture(t)

	req := createRequest()
	req.Rows = nil
	_, err := f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	req = createRequest()
	req.Customer.ID = ""
	_, err = f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	req = createRequest()
	req.Rows[0].Quantity = d("-1")
	_, err = f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	assert.Error(t, err)

	req = createRequest()
	req.Currency = "XYZ"
	_, err = f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	assert.Zero(t, f.counter.calls)
	assert.Empty(t, f.publisher.eventTypes())
}

func TestCreateInvoice_RetriesAllocationConflict(t *testing.T) {
	f := newServiceFixture(t)
	f.counter.failures = 2

	resp := f.create(t)
	assert.Equal(t, "ACME-2025-000001", resp.InvoiceNumber)
	assert.Equal(t, 3, f.counter.calls)
}

func TestCreateInvoice_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newServiceFixture(t)
	f.counter.failures = maxAllocationAttempts

	_, err := f.svc.CreateInvoice(context.Background(), f.tenantID, createRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrAllocationConflict))
	assert.Equal(t, maxAllocationAttempts, f.counter.calls)
}

func TestCreateInvoice_RetentionAmountFromRate(t *testing.T) {
	f := newServiceFixture(t)
	req := createRequest()
	req.Retention = &RetentionRequest{Rate: d("20"), Reason: "withholding"}

	resp, err := f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	require.NoError(t, err)
	require.NotNil(t, resp.Retention)
	assertAmount(t, "254.00", resp.Retention.Amount)
	assertAmount(t, "1515.00", resp.Totals.Total)
	assertAmount(t, "1261.00", resp.Totals.NetToPay)
}

func TestCreateInvoice_SplitPayment(t *testing.T) {
	f := newServiceFixture(t)
	req := createRequest()
	req.SplitPayment = true

	resp, err := f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	require.NoError(t, err)
	assertAmount(t, "1270.00", resp.Totals.NetToPay)
}

func TestGetInvoice_NotFound(t *testing.T) {
	repo := new(MockInvoiceRepository)
	tenantID, id := uuid.New(), uuid.New()
	repo.On("FindByID", mock.Anything, tenantID, id).Return(nil, invoicing.NewInvoiceNotFoundError(id.String()))

	svc := NewInvoiceService(NewNoOpTransactionScope(repo, &memPaymentRepo{}, newMemCounter()),
		repo, &memPaymentRepo{}, nil, nil, nil)

	_, err := svc.GetInvoice(context.Background(), tenantID, id)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	repo.AssertExpectations(t)
}

func TestListInvoices(t *testing.T) {
	f := newServiceFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t)
	}

	page, err := f.svc.ListInvoices(context.Background(), f.tenantID, InvoiceListFilter{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)

	_, err = f.svc.ListInvoices(context.Background(), f.tenantID, InvoiceListFilter{Statuses: []string{"bogus"}})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	other, err := f.svc.ListInvoices(context.Background(), uuid.New(), InvoiceListFilter{})
	require.NoError(t, err)
	assert.Zero(t, other.Total)
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)
	ctx := context.Background()

	first, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("500"), Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, "partially_paid", first.InvoiceStatus)
	assertAmount(t, "500", first.TotalPaid)
	assertAmount(t, "1015.00", first.Outstanding)

	second, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1015.00"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, "paid", second.InvoiceStatus)
	assertAmount(t, "0", second.Outstanding)

	got, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.PaidAt)

	payments, err := f.svc.ListPayments(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.Contains(t, f.publisher.eventTypes(), invoicing.EventTypeInvoicePaid)
	assert.Contains(t, f.publisher.eventTypes(), invoicing.EventTypePaymentRecorded)
}

func TestRecordPayment_OverpaymentLeavesInvoiceUnchanged(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1515.01"), Method: "cash"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrPaymentAmount))

	got, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "issued", got.Status)
	assert.Empty(t, f.payments.payments)
}

func TestRecordPayment_Rejections(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("0"), Method: "cash"})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	_, err = f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("10"), Method: "barter"})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	_, err = f.svc.CancelInvoice(ctx, f.tenantID, inv.ID, CancelInvoiceRequest{Reason: "duplicate"})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("10"), Method: "cash"})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestRecordPayment_IdempotencyKeyReplays(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)
	ctx := context.Background()
	req := RecordPaymentRequest{Amount: d("100"), Method: "stripe", IdempotencyKey: "pay-1"}

	first, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	replay, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, req)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Payment.ID, replay.Payment.ID)
	assertAmount(t, "100", replay.TotalPaid)
	assert.Len(t, f.payments.payments, 1)
}

func TestRecordPayment_FailedAttemptReleasesKey(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID,
		RecordPaymentRequest{Amount: d("9999"), Method: "cash", IdempotencyKey: "k"})
	require.Error(t, err)

	res, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID,
		RecordPaymentRequest{Amount: d("15"), Method: "cash", IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestCancelInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued := f.create(t)
	canceled, err := f.svc.CancelInvoice(ctx, f.tenantID, issued.ID, CancelInvoiceRequest{Reason: "wrong customer"})
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status)
	assert.Equal(t, "wrong customer", canceled.Metadata[invoicing.MetaCancellationReason])

	_, err = f.svc.CancelInvoice(ctx, f.tenantID, issued.ID, CancelInvoiceRequest{})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	sent := f.create(t)
	_, err = f.svc.MarkAsSent(ctx, f.tenantID, sent.ID)
	require.NoError(t, err)
	canceled, err = f.svc.CancelInvoice(ctx, f.tenantID, sent.ID, CancelInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status)

	paid := f.create(t)
	_, err = f.svc.RecordPayment(ctx, f.tenantID, paid.ID, RecordPaymentRequest{Amount: d("1515"), Method: "cash"})
	require.NoError(t, err)
	_, err = f.svc.CancelInvoice(ctx, f.tenantID, paid.ID, CancelInvoiceRequest{})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	got, err := f.svc.GetInvoice(ctx, f.tenantID, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
}

func TestMarkAsSentAndViewed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)

	_, err := f.svc.MarkAsViewed(ctx, f.tenantID, inv.ID)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	sent, err := f.svc.MarkAsSent(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "sent", sent.Status)
	require.NotNil(t, sent.SentAt)

	viewed, err := f.svc.MarkAsViewed(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "viewed", viewed.Status)
}

func TestUpdateInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)

	notes := "Thanks for your business"
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	status := "sent"
	resp, err := f.svc.UpdateInvoice(ctx, f.tenantID, inv.ID, UpdateInvoiceRequest{
		Notes:       &notes,
		PaymentInfo: &invoicing.PaymentInfo{Method: invoicing.PaymentMethodCash, DueDate: &due},
		Metadata:    map[string]any{"po": "PO-7"},
		Status:      &status,
	})
	require.NoError(t, err)
	assert.Equal(t, notes, resp.Notes)
	assert.Equal(t, due, resp.DueDate)
	assert.Equal(t, "PO-7", resp.Metadata["po"])
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, inv.Totals, resp.Totals)

	paid := "paid"
	_, err = f.svc.UpdateInvoice(ctx, f.tenantID, inv.ID, UpdateInvoiceRequest{Status: &paid})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	bogus := "archived"
	_, err = f.svc.UpdateInvoice(ctx, f.tenantID, inv.ID, UpdateInvoiceRequest{Status: &bogus})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))
}

func TestCreateCreditNote_FullCreditRefundsPaidOriginal(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)
	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1515"), Method: "cash"})
	require.NoError(t, err)

	note, err := f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{
		OriginalInvoiceID: inv.ID,
		Reason:            "goods returned",
	})
	require.NoError(t, err)
	assert.Equal(t, "credit_note", note.InvoiceType)
	assert.Equal(t, "ACME-2025-000002", note.InvoiceNumber)
	assertAmount(t, "1515.00", note.Totals.Total)
	assert.Equal(t, inv.ID.String(), note.Metadata[invoicing.MetaOriginalInvoiceID])
	assert.Equal(t, inv.InvoiceNumber, note.Metadata[invoicing.MetaOriginalInvoiceNumber])
	assert.Equal(t, "goods returned", note.Metadata[invoicing.MetaCreditReason])

	original, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "refunded", original.Status)
	assert.Equal(t, []any{note.ID.String()}, original.Metadata[invoicing.MetaCreditNoteIDs])

	_, err = f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{OriginalInvoiceID: inv.ID, Reason: "again"})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestCreateCreditNote_PartialCreditOnlyLinks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)

	note, err := f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{
		OriginalInvoiceID: inv.ID,
		Reason:            "discount",
		Rows: []LineRequest{
			{Description: "Consulting adjustment", Quantity: d("1"), UnitPrice: d("100.00"), VATRate: d("22")},
		},
	})
	require.NoError(t, err)
	assertAmount(t, "122.00", note.Totals.Total)

	original, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "issued", original.Status)
	assert.Equal(t, []any{note.ID.String()}, original.Metadata[invoicing.MetaCreditNoteIDs])
}

func TestCreateCreditNote_Rejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{OriginalInvoiceID: uuid.New(), Reason: "x"})
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	inv := f.create(t)
	_, err = f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{OriginalInvoiceID: inv.ID})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	_, err = f.svc.CancelInvoice(ctx, f.tenantID, inv.ID, CancelInvoiceRequest{})
	require.NoError(t, err)
	_, err = f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{OriginalInvoiceID: inv.ID, Reason: "x"})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestMarkOverdue(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	open := f.create(t)
	partial := f.create(t)
	paid := f.create(t)
	_, err := f.svc.RecordPayment(ctx, f.tenantID, partial.ID, RecordPaymentRequest{Amount: d("10"), Method: "cash"})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, f.tenantID, paid.ID, RecordPaymentRequest{Amount: d("1515"), Method: "cash"})
	require.NoError(t, err)

	n, err := f.svc.MarkOverdue(ctx, f.tenantID, open.DueDate)
	require.NoError(t, err)
	assert.Zero(t, n, "due date itself is not overdue")

	asOf := open.DueDate.AddDate(0, 0, 1)
	n, err = f.svc.MarkOverdue(ctx, f.tenantID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[uuid.UUID]string{open.ID: "overdue", partial.ID: "overdue", paid.ID: "paid"} {
		got, err := f.svc.GetInvoice(ctx, f.tenantID, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	n, err = f.svc.MarkOverdue(ctx, f.tenantID, asOf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestValidateNumber(t *testing.T) {
	f := newServiceFixture(t)
	inv := f.create(t)

	free, err := f.svc.ValidateNumber(context.Background(), f.tenantID, inv.InvoiceNumber)
	require.NoError(t, err)
	assert.False(t, free)

	free, err = f.svc.ValidateNumber(context.Background(), f.tenantID, "ACME-2025-999999")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestCalculateTaxes(t *testing.T) {
	f := newServiceFixture(t)

	breakdown, err := f.svc.CalculateTaxes(context.Background(), TaxPreviewRequest{
		Rows: []LineRequest{{Description: "Service", Quantity: d("1"), UnitPrice: d("50.00"), VATRate: d("0")}},
		TaxOptionsRequest: TaxOptionsRequest{StampDuty: true},
	})
	require.NoError(t, err)
	assertAmount(t, "2.00", breakdown.StampDutyAmount)
	assertAmount(t, "52.00", breakdown.Total)

	_, err = f.svc.CalculateTaxes(context.Background(), TaxPreviewRequest{})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))
	assert.Zero(t, f.counter.calls)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newServiceFixture(t)
	failing := &MockEventPublisher{}
	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.svc.SetEventPublisher(failing)

	resp := f.create(t)
	assert.Equal(t, "issued", resp.Status)
	failing.AssertCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestUpdateInvoice_StatusCannotBypassLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)
	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1515"), Method: "cash"})
	require.NoError(t, err)

	for _, status := range []string{"refunded", "draft", "issued"} {
		next := status
		_, err := f.svc.UpdateInvoice(ctx, f.tenantID, inv.ID, UpdateInvoiceRequest{Status: &next})
		assert.True(t, errors.Is(err, shared.ErrInvalidState), status)
	}

	got, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
	assert.Nil(t, got.Metadata[invoicing.MetaCreditNoteIDs])
}

func TestRecordPayment_RejectsSubCentAmounts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)

	for _, amount := range []string{"1514.999", "0.001"} {
		_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d(amount), Method: "cash"})
		assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData), amount)
	}

	got, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "issued", got.Status)
	assert.Empty(t, f.payments.payments)

	res, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1514.9900"), Method: "cash"})
	require.NoError(t, err)
	assertAmount(t, "0.01", res.Outstanding)
}

func TestCreateInvoice_RetentionAmountMustFitCents(t *testing.T) {
	f := newServiceFixture(t)
	req := createRequest()
	amount := d("12.345")
	req.Retention = &RetentionRequest{Amount: &amount, Reason: "withholding"}

	_, err := f.svc.CreateInvoice(context.Background(), f.tenantID, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))
	assert.Zero(t, f.counter.calls)
}

func TestMarkAsSent_KeepsPartiallyPaidStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	inv := f.create(t)
	_, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("100"), Method: "cash"})
	require.NoError(t, err)

	resp, err := f.svc.MarkAsSent(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "partially_paid", resp.Status)
	require.NotNil(t, resp.SentAt)

	payment, err := f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("1415"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, "paid", payment.InvoiceStatus)
}

func TestCreateCreditNote_FullCreditOfStampedInvoice(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	req := createRequest()
	req.Rows = []LineRequest{{Description: "Service", Quantity: d("1"), UnitPrice: d("50.00"), VATRate: d("0")}}
	req.StampDuty = true

	inv, err := f.svc.CreateInvoice(ctx, f.tenantID, req)
	require.NoError(t, err)
	assertAmount(t, "52.00", inv.Totals.NetToPay)
	_, err = f.svc.RecordPayment(ctx, f.tenantID, inv.ID, RecordPaymentRequest{Amount: d("52"), Method: "cash"})
	require.NoError(t, err)

	note, err := f.svc.CreateCreditNote(ctx, f.tenantID, CreditNoteRequest{OriginalInvoiceID: inv.ID, Reason: "returned"})
	require.NoError(t, err)
	assert.True(t, note.StampDuty)
	assertAmount(t, "52.00", note.Totals.Total)

	original, err := f.svc.GetInvoice(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "refunded", original.Status)
}
