package invoicing

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() IssueParams {
	return IssueParams{
		Type:      InvoiceTypeInvoice,
		Company:   Company{Name: "ACME Agency", Address: Address{Country: "IT"}},
		Customer:  Customer{ID: "cust_123", Name: "Cliente SPA"},
		Lines:     threeRateLines(),
		IssueDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		PaymentInfo: PaymentInfo{
			Method: PaymentMethodBankTransfer,
			Terms:  PaymentTermsNet30,
		},
		Currency: valueobject.EUR,
	}
}

func issuedInvoice(t *testing.T) *Invoice {
	t.Helper()
	params := testParams()
	totals, err := NewTaxCalculator(nil).Calculate(params.Lines, params.TaxOptions())
	require.NoError(t, err)
	inv, err := IssueInvoice(uuid.New(), "TENANT-2025-000001", params, totals)
	require.NoError(t, err)
	return inv
}

func TestInvoiceStatus_Transitions(t *testing.T) {
	tests := []struct {
		from InvoiceStatus
		to   InvoiceStatus
		ok   bool
	}{
		{InvoiceStatusDraft, InvoiceStatusIssued, true},
		{InvoiceStatusIssued, InvoiceStatusSent, true},
		{InvoiceStatusIssued, InvoiceStatusCanceled, true},
		{InvoiceStatusSent, InvoiceStatusSent, true},
		{InvoiceStatusPartiallyPaid, InvoiceStatusPaid, true},
		{InvoiceStatusPartiallyPaid, InvoiceStatusSent, false},
		{InvoiceStatusOverdue, InvoiceStatusPaid, true},
		{InvoiceStatusPaid, InvoiceStatusCanceled, false},
		{InvoiceStatusPaid, InvoiceStatusRefunded, true},
		{InvoiceStatusCanceled, InvoiceStatusRefunded, true},
		{InvoiceStatusCanceled, InvoiceStatusIssued, false},
		{InvoiceStatusRefunded, InvoiceStatusRefunded, false},
		{InvoiceStatusDraft, InvoiceStatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInvoiceStatus_Predicates(t *testing.T) {
	assert.True(t, InvoiceStatusCanceled.IsTerminal())
	assert.True(t, InvoiceStatusRefunded.IsTerminal())
	assert.False(t, InvoiceStatusPaid.IsTerminal())
	assert.False(t, InvoiceStatusPaid.CanApplyPayment())
	assert.True(t, InvoiceStatusOverdue.CanApplyPayment())
	assert.False(t, InvoiceStatus("bogus").IsValid())
}

func TestInvoiceType_Abbreviation(t *testing.T) {
	assert.Equal(t, "INV", InvoiceTypeInvoice.Abbreviation())
	assert.Equal(t, "CN", InvoiceTypeCreditNote.Abbreviation())
	assert.Equal(t, "ADV", InvoiceTypeAdvanceInvoice.Abbreviation())
	assert.Equal(t, "DOC", InvoiceType("other").Abbreviation())
}

func TestIssueInvoice(t *testing.T) {
	inv := issuedInvoice(t)

	assert.Equal(t, InvoiceStatusIssued, inv.Status)
	assert.Equal(t, "TENANT-2025-000001", inv.InvoiceNumber)
	assert.Equal(t, "en", inv.Language)
	require.NotNil(t, inv.PaymentInfo.DueDate)
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), *inv.PaymentInfo.DueDate)
	assertDec(t, "1515.00", inv.Totals.NetToPay)

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoiceIssued, events[0].EventType())
}

func TestIssueInvoice_CopiesLines(t *testing.T) {
	params := testParams()
	totals, err := NewTaxCalculator(nil).Calculate(params.Lines, params.TaxOptions())
	require.NoError(t, err)
	inv, err := IssueInvoice(uuid.New(), "N-1", params, totals)
	require.NoError(t, err)

	params.Lines[0].Description = "changed"
	assert.Equal(t, "item", inv.Lines[0].Description)
}

func TestIssueParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IssueParams)
		field  string
	}{
		{"bad type", func(p *IssueParams) { p.Type = "bill" }, "invoice_type"},
		{"no lines", func(p *IssueParams) { p.Lines = nil }, "rows"},
		{"no issue date", func(p *IssueParams) { p.IssueDate = time.Time{} }, "issue_date"},
		{"bad currency", func(p *IssueParams) { p.Currency = "CNY" }, "currency"},
		{"bad method", func(p *IssueParams) { p.PaymentInfo.Method = "barter" }, "payment_info.method"},
		{"split and reverse", func(p *IssueParams) { p.SplitPayment, p.ReverseCharge = true, true }, "split_payment"},
		{"no company", func(p *IssueParams) { p.Company.Name = "" }, "company.name"},
		{"no customer id", func(p *IssueParams) { p.Customer.ID = " " }, "customer.id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			var de *shared.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, CodeInvalidInvoiceData, de.Code)
			assert.Equal(t, tt.field, de.Details["field"])
		})
	}
}

func TestPaymentInfo_ResolveDueDate(t *testing.T) {
	issue := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, issue, PaymentInfo{Terms: PaymentTermsImmediate}.ResolveDueDate(issue))
	assert.Equal(t, issue.AddDate(0, 0, 60), PaymentInfo{Terms: PaymentTermsNet60}.ResolveDueDate(issue))
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), PaymentInfo{Terms: PaymentTermsEndOfMonth}.ResolveDueDate(issue))

	explicit := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, explicit, PaymentInfo{Terms: PaymentTermsNet30, DueDate: &explicit}.ResolveDueDate(issue))
}

func TestInvoice_Cancel(t *testing.T) {
	at := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("issued invoice is canceled", func(t *testing.T) {
		inv := issuedInvoice(t)
		require.NoError(t, inv.Cancel("customer request", at))
		assert.Equal(t, InvoiceStatusCanceled, inv.Status)
		assert.Equal(t, "customer request", inv.Metadata[MetaCancellationReason])
		assert.Equal(t, "2025-02-01T12:00:00Z", inv.Metadata[MetaCanceledAt])
		require.NotNil(t, inv.CanceledAt)
	})

	t.Run("sent invoice is canceled", func(t *testing.T) {
		inv := issuedInvoice(t)
		require.NoError(t, inv.MarkSent(at))
		require.NoError(t, inv.Cancel("", at))
		assert.Equal(t, InvoiceStatusCanceled, inv.Status)
	})

	t.Run("paid invoice is rejected", func(t *testing.T) {
		inv := issuedInvoice(t)
		require.NoError(t, inv.ApplyPaymentTotal(inv.Totals.NetToPay, at))
		err := inv.Cancel("late", at)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvoiceCanceled))
		assert.Contains(t, err.Error(), "cannot cancel a paid invoice")
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
	})

	t.Run("re-cancel is rejected", func(t *testing.T) {
		inv := issuedInvoice(t)
		require.NoError(t, inv.Cancel("first", at))
		err := inv.Cancel("second", at)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Equal(t, "first", inv.Metadata[MetaCancellationReason])
	})
}

func TestInvoice_MarkSent(t *testing.T) {
	inv := issuedInvoice(t)
	first := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, inv.MarkSent(first))
	require.NoError(t, inv.MarkSent(second))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
	assert.Equal(t, second, *inv.SentAt)

	require.NoError(t, inv.MarkViewed(second))
	assert.Equal(t, InvoiceStatusViewed, inv.Status)

	require.NoError(t, inv.Cancel("", second))
	assert.Error(t, inv.MarkSent(second))
}

func TestInvoice_MarkSent_RestampsWithoutLosingStatus(t *testing.T) {
	first := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	reminder := first.AddDate(0, 0, 40)

	partial := issuedInvoice(t)
	require.NoError(t, partial.ApplyPaymentTotal(dec("100"), first))
	require.NoError(t, partial.MarkSent(reminder))
	assert.Equal(t, InvoiceStatusPartiallyPaid, partial.Status)
	require.NotNil(t, partial.SentAt)
	assert.Equal(t, reminder, *partial.SentAt)

	overdue := issuedInvoice(t)
	require.True(t, overdue.MarkOverdue(overdue.DueDate().Add(time.Hour)))
	require.NoError(t, overdue.MarkSent(reminder))
	assert.Equal(t, InvoiceStatusOverdue, overdue.Status)
	assert.Equal(t, reminder, *overdue.SentAt)

	paid := issuedInvoice(t)
	require.NoError(t, paid.ApplyPaymentTotal(paid.Totals.NetToPay, first))
	err := paid.MarkSent(reminder)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
	assert.Nil(t, paid.SentAt)
}

func TestInvoice_PaymentFlow(t *testing.T) {
	inv := issuedInvoice(t)
	at := time.Now().UTC()

	require.NoError(t, inv.CheckPayment(dec("0"), dec("500")))
	require.NoError(t, inv.ApplyPaymentTotal(dec("500"), at))
	assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
	assert.Nil(t, inv.PaidAt)

	err := inv.CheckPayment(dec("500"), dec("1015.01"))
	assert.True(t, errors.Is(err, ErrPaymentAmount))

	require.NoError(t, inv.CheckPayment(dec("500"), dec("1015.00")))
	require.NoError(t, inv.ApplyPaymentTotal(dec("1515.00"), at))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)

	err = inv.CheckPayment(dec("1515.00"), dec("1"))
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestInvoice_CheckPayment_Rejections(t *testing.T) {
	inv := issuedInvoice(t)

	assert.True(t, errors.Is(inv.CheckPayment(dec("0"), dec("0")), ErrInvalidInvoiceData))
	assert.True(t, errors.Is(inv.CheckPayment(dec("0"), dec("-5")), ErrInvalidInvoiceData))

	for _, amount := range []string{"1514.999", "0.001"} {
		err := inv.CheckPayment(dec("0"), dec(amount))
		assert.True(t, errors.Is(err, ErrInvalidInvoiceData), amount)
	}
	assert.NoError(t, inv.CheckPayment(dec("0"), dec("12.5000")))

	require.NoError(t, inv.Cancel("", time.Now()))
	err := inv.CheckPayment(dec("0"), dec("10"))
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestInvoice_ApplyPaymentTotal_ZeroLeavesStatus(t *testing.T) {
	inv := issuedInvoice(t)
	require.NoError(t, inv.ApplyPaymentTotal(dec("0"), time.Now()))
	assert.Equal(t, InvoiceStatusIssued, inv.Status)
}

func TestInvoice_MarkOverdue(t *testing.T) {
	inv := issuedInvoice(t)
	due := inv.DueDate()

	assert.False(t, inv.MarkOverdue(due.Add(-time.Hour)))
	assert.True(t, inv.MarkOverdue(due.Add(time.Hour)))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
	assert.False(t, inv.MarkOverdue(due.Add(2*time.Hour)))

	paid := issuedInvoice(t)
	require.NoError(t, paid.ApplyPaymentTotal(paid.Totals.NetToPay, time.Now()))
	assert.False(t, paid.MarkOverdue(due.AddDate(1, 0, 0)))
}

func TestInvoice_Refund(t *testing.T) {
	inv := issuedInvoice(t)
	require.NoError(t, inv.ApplyPaymentTotal(inv.Totals.NetToPay, time.Now()))

	cn := uuid.New()
	require.NoError(t, inv.MarkRefunded(cn))
	assert.Equal(t, InvoiceStatusRefunded, inv.Status)
	assert.Equal(t, []any{cn.String()}, inv.Metadata[MetaCreditNoteIDs])

	err := inv.MarkRefunded(uuid.New())
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestInvoice_UpdateDetails(t *testing.T) {
	inv := issuedInvoice(t)
	notes := "thanks"
	require.NoError(t, inv.UpdateDetails(&notes, &PaymentInfo{Method: PaymentMethodCash, Terms: PaymentTermsImmediate}, map[string]any{"po": "123"}))
	assert.Equal(t, "thanks", inv.Notes)
	assert.Equal(t, PaymentMethodCash, inv.PaymentInfo.Method)
	assert.Equal(t, inv.IssueDate, *inv.PaymentInfo.DueDate)
	assert.Equal(t, "123", inv.Metadata["po"])

	require.NoError(t, inv.Cancel("", time.Now()))
	err := inv.UpdateDetails(&notes, nil, nil)
	assert.True(t, errors.Is(err, ErrInvoiceCanceled))
}

func TestInvoice_ChangeStatus(t *testing.T) {
	inv := issuedInvoice(t)
	now := time.Now()

	require.NoError(t, inv.ChangeStatus(InvoiceStatusSent, now))
	assert.NotNil(t, inv.SentAt)

	err := inv.ChangeStatus(InvoiceStatusPaid, now)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	err = inv.ChangeStatus("bogus", now)
	assert.True(t, errors.Is(err, ErrInvalidInvoiceData))

	require.NoError(t, inv.ChangeStatus(InvoiceStatusOverdue, now))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
}

func TestInvoice_ChangeStatus_RejectsLifecycleShortcuts(t *testing.T) {
	inv := issuedInvoice(t)
	now := time.Now()
	require.NoError(t, inv.ApplyPaymentTotal(inv.Totals.NetToPay, now))
	updatedAt := inv.UpdatedAt

	for _, next := range []InvoiceStatus{InvoiceStatusRefunded, InvoiceStatusDraft, InvoiceStatusIssued} {
		err := inv.ChangeStatus(next, now.Add(time.Hour))
		assert.True(t, errors.Is(err, shared.ErrInvalidState), next.String())
	}

	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, updatedAt, inv.UpdatedAt)
	assert.Nil(t, inv.Metadata[MetaCreditNoteIDs])

	sent := issuedInvoice(t)
	require.NoError(t, sent.MarkSent(now))
	err := sent.ChangeStatus(InvoiceStatusIssued, now)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
	assert.Equal(t, InvoiceStatusSent, sent.Status)
}

func TestTotalPaid(t *testing.T) {
	payments := []PaymentRecord{{Amount: dec("10.50")}, {Amount: dec("4.50")}}
	assertDec(t, "15", TotalPaid(payments))
}

func TestNewPaymentRecord(t *testing.T) {
	p, err := NewPaymentRecord(uuid.New(), uuid.New(), dec("10"), time.Time{}, PaymentMethodStripe, "tx_1", "")
	require.NoError(t, err)
	assert.False(t, p.PaymentDate.IsZero())

	_, err = NewPaymentRecord(uuid.New(), uuid.New(), dec("0"), time.Now(), PaymentMethodStripe, "", "")
	assert.Error(t, err)

	_, err = NewPaymentRecord(uuid.New(), uuid.New(), dec("1"), time.Now(), "barter", "", "")
	assert.Error(t, err)

	_, err = NewPaymentRecord(uuid.New(), uuid.New(), dec("1514.999"), time.Now(), PaymentMethodCash, "", "")
	assert.True(t, errors.Is(err, ErrInvalidInvoiceData))
}
