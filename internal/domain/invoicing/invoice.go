package invoicing

import (
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata keys written by lifecycle operations
const (
	MetaCancellationReason    = "cancellation_reason"
	MetaCanceledAt            = "canceled_at"
	MetaOriginalInvoiceID     = "original_invoice_id"
	MetaOriginalInvoiceNumber = "original_invoice_number"
	MetaCreditReason          = "credit_reason"
	MetaCreditNoteIDs         = "credit_note_ids"
)

// Invoice is the aggregate root of the invoicing context. Parties, lines
// and the tax breakdown are frozen at issuance; afterwards only status,
// notes, payment info, metadata and timestamps change.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber      string
	Type               InvoiceType
	Status             InvoiceStatus
	Company            Company
	Customer           Customer
	Lines              []InvoiceLine
	IssueDate          time.Time
	PaymentInfo        PaymentInfo
	Currency           valueobject.Currency
	Language           string
	Series             string
	Retention          *RetentionInfo
	SocialSecurityRate *decimal.Decimal
	StampDuty          bool
	SplitPayment       bool
	ReverseCharge      bool
	Notes              string
	Metadata           map[string]any
	Totals             TaxBreakdown
	SentAt             *time.Time
	ViewedAt           *time.Time
	PaidAt             *time.Time
	CanceledAt         *time.Time
}

// IssueParams carries everything needed to issue an invoice
type IssueParams struct {
	Type               InvoiceType
	Company            Company
	Customer           Customer
	Lines              []InvoiceLine
	IssueDate          time.Time
	PaymentInfo        PaymentInfo
	Currency           valueobject.Currency
	Language           string
	Series             string
	Retention          *RetentionInfo
	SocialSecurityRate *decimal.Decimal
	StampDuty          bool
	SplitPayment       bool
	ReverseCharge      bool
	Notes              string
	Metadata           map[string]any
}

// TaxOptions returns the calculator options implied by the params
func (p IssueParams) TaxOptions() TaxOptions {
	return TaxOptions{
		Retention:          p.Retention,
		SocialSecurityRate: p.SocialSecurityRate,
		StampDuty:          p.StampDuty,
		SplitPayment:       p.SplitPayment,
		ReverseCharge:      p.ReverseCharge,
	}
}

// Validate checks the fields that do not depend on tax computation
func (p IssueParams) Validate() error {
	if !p.Type.IsValid() {
		return NewInvalidInvoiceDataError("invoice_type", "unsupported type "+string(p.Type))
	}
	if len(p.Lines) == 0 {
		return ErrNoLines
	}
	if p.IssueDate.IsZero() {
		return NewInvalidInvoiceDataError("issue_date", "is required")
	}
	if !p.Currency.IsValid() {
		return NewInvalidInvoiceDataError("currency", "unsupported currency "+string(p.Currency))
	}
	if p.PaymentInfo.Method != "" && !p.PaymentInfo.Method.IsValid() {
		return NewInvalidInvoiceDataError("payment_info.method", "unsupported method "+string(p.PaymentInfo.Method))
	}
	if p.PaymentInfo.Terms != "" && !p.PaymentInfo.Terms.IsValid() {
		return NewInvalidInvoiceDataError("payment_info.terms", "unsupported terms "+string(p.PaymentInfo.Terms))
	}
	if p.SplitPayment && p.ReverseCharge {
		return NewInvalidInvoiceDataError("split_payment", "cannot be combined with reverse charge")
	}
	return validateParties(p.Company, p.Customer)
}

// IssueInvoice creates an ISSUED invoice from validated params, a computed
// breakdown and an allocated number.
func IssueInvoice(tenantID uuid.UUID, number string, params IssueParams, totals TaxBreakdown) (*Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, NewInvalidInvoiceDataError("tenant_id", "is required")
	}
	if strings.TrimSpace(number) == "" {
		return nil, NewInvalidInvoiceDataError("invoice_number", "is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	lines := make([]InvoiceLine, len(params.Lines))
	copy(lines, params.Lines)

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InvoiceNumber:       number,
		Type:                params.Type,
		Status:              InvoiceStatusIssued,
		Company:             params.Company,
		Customer:            params.Customer,
		Lines:               lines,
		IssueDate:           params.IssueDate,
		PaymentInfo:         params.PaymentInfo,
		Currency:            params.Currency,
		Language:            params.Language,
		Series:              params.Series,
		Retention:           params.Retention,
		SocialSecurityRate:  params.SocialSecurityRate,
		StampDuty:           params.StampDuty,
		SplitPayment:        params.SplitPayment,
		ReverseCharge:       params.ReverseCharge,
		Notes:               params.Notes,
		Metadata:            copyMetadata(params.Metadata),
		Totals:              totals,
	}
	if inv.Language == "" {
		inv.Language = "en"
	}
	due := inv.PaymentInfo.ResolveDueDate(inv.IssueDate)
	inv.PaymentInfo.DueDate = &due

	inv.AddDomainEvent(NewInvoiceIssuedEvent(inv))
	return inv, nil
}

func copyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// DueDate returns the resolved due date
func (i *Invoice) DueDate() time.Time {
	return i.PaymentInfo.ResolveDueDate(i.IssueDate)
}

// IsOverdueAt reports whether the invoice is still open past its due date
func (i *Invoice) IsOverdueAt(asOf time.Time) bool {
	return i.Status.IsOutstanding() && i.DueDate().Before(asOf)
}

// OutstandingAmount returns netToPay minus what has been paid
func (i *Invoice) OutstandingAmount(paid decimal.Decimal) decimal.Decimal {
	return i.Totals.NetToPay.Sub(paid)
}

func (i *Invoice) transition(next InvoiceStatus) error {
	if !i.Status.CanTransitionTo(next) {
		return NewInvoiceStateError(i.ID, i.Status,
			"cannot change invoice status from "+i.Status.String()+" to "+next.String())
	}
	i.Status = next
	i.Touch()
	return nil
}

// Cancel moves the invoice to CANCELED, recording reason and time in metadata.
// A paid invoice must be refunded with a credit note instead.
func (i *Invoice) Cancel(reason string, at time.Time) error {
	switch i.Status {
	case InvoiceStatusPaid:
		return NewInvoiceStateError(i.ID, i.Status, "cannot cancel a paid invoice")
	case InvoiceStatusCanceled:
		return NewInvoiceStateError(i.ID, i.Status, "invoice is already canceled")
	case InvoiceStatusRefunded:
		return NewInvoiceStateError(i.ID, i.Status, "cannot cancel a refunded invoice")
	}
	if err := i.transition(InvoiceStatusCanceled); err != nil {
		return err
	}
	if i.Metadata == nil {
		i.Metadata = map[string]any{}
	}
	i.Metadata[MetaCancellationReason] = reason
	i.Metadata[MetaCanceledAt] = at.UTC().Format(time.RFC3339)
	i.CanceledAt = &at
	i.AddDomainEvent(NewInvoiceCanceledEvent(i, reason))
	return nil
}

// MarkSent moves the invoice to SENT and restamps SentAt. Repeated calls
// simply refresh the timestamp. A partially paid or overdue invoice keeps
// its status; sending it again is a reminder.
func (i *Invoice) MarkSent(at time.Time) error {
	switch i.Status {
	case InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		i.SentAt = &at
		i.Touch()
		return nil
	case InvoiceStatusPaid, InvoiceStatusDraft:
		return NewInvoiceStateError(i.ID, i.Status, "cannot send an invoice in status "+i.Status.String())
	}
	if i.Status.IsTerminal() {
		return NewInvoiceStateError(i.ID, i.Status, "cannot send an invoice in status "+i.Status.String())
	}
	if err := i.transition(InvoiceStatusSent); err != nil {
		return err
	}
	i.SentAt = &at
	return nil
}

// MarkViewed records that the customer opened the document
func (i *Invoice) MarkViewed(at time.Time) error {
	if i.Status != InvoiceStatusSent {
		return NewInvoiceStateError(i.ID, i.Status, "only a sent invoice can be marked as viewed")
	}
	if err := i.transition(InvoiceStatusViewed); err != nil {
		return err
	}
	i.ViewedAt = &at
	return nil
}

// MarkOverdue moves an open invoice past its due date to OVERDUE.
// It returns false when the invoice was not eligible.
func (i *Invoice) MarkOverdue(asOf time.Time) bool {
	if i.Status == InvoiceStatusOverdue || !i.IsOverdueAt(asOf) {
		return false
	}
	return i.transition(InvoiceStatusOverdue) == nil
}

// CheckPayment verifies that a new payment may be applied given what has
// already been paid. It does not modify the invoice.
func (i *Invoice) CheckPayment(alreadyPaid, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewInvalidInvoiceDataError("amount", "must be greater than zero")
	}
	if !valueobject.FitsMoneyScale(amount) {
		return NewInvalidInvoiceDataError("amount", "must not have more than two decimal places")
	}
	if !i.Status.CanApplyPayment() {
		if i.Status == InvoiceStatusCanceled {
			return NewInvoiceStateError(i.ID, i.Status, "cannot record a payment on a canceled invoice")
		}
		return NewInvoiceStateError(i.ID, i.Status, "cannot record a payment in status "+i.Status.String())
	}
	if !i.Totals.NetToPay.IsPositive() {
		return NewPaymentAmountError(i.ID, valueobject.FormatAmount(amount), valueobject.FormatAmount(i.Totals.NetToPay))
	}
	if alreadyPaid.Add(amount).GreaterThan(i.Totals.NetToPay) {
		due := i.Totals.NetToPay.Sub(alreadyPaid)
		return NewPaymentAmountError(i.ID, valueobject.FormatAmount(amount), valueobject.FormatAmount(due))
	}
	return nil
}

// ApplyPaymentTotal re-derives the status from the total paid so far.
// PAID stamps PaidAt; a positive partial total gives PARTIALLY_PAID;
// zero leaves the status unchanged.
func (i *Invoice) ApplyPaymentTotal(totalPaid decimal.Decimal, at time.Time) error {
	switch {
	case totalPaid.GreaterThanOrEqual(i.Totals.NetToPay) && totalPaid.IsPositive():
		if err := i.transition(InvoiceStatusPaid); err != nil {
			return err
		}
		i.PaidAt = &at
		i.AddDomainEvent(NewInvoicePaidEvent(i, totalPaid))
	case totalPaid.IsPositive():
		return i.transition(InvoiceStatusPartiallyPaid)
	}
	return nil
}

// MarkRefunded closes a paid or canceled invoice after a full credit note
func (i *Invoice) MarkRefunded(creditNoteID uuid.UUID) error {
	if i.Status == InvoiceStatusRefunded {
		return NewInvoiceStateError(i.ID, i.Status, "invoice is already refunded")
	}
	if err := i.transition(InvoiceStatusRefunded); err != nil {
		return err
	}
	i.appendCreditNote(creditNoteID)
	return nil
}

// LinkCreditNote records a (partial) credit note without changing status
func (i *Invoice) LinkCreditNote(creditNoteID uuid.UUID) {
	i.appendCreditNote(creditNoteID)
	i.Touch()
}

func (i *Invoice) appendCreditNote(id uuid.UUID) {
	if i.Metadata == nil {
		i.Metadata = map[string]any{}
	}
	var ids []any
	switch existing := i.Metadata[MetaCreditNoteIDs].(type) {
	case []any:
		ids = existing
	case []string:
		for _, s := range existing {
			ids = append(ids, s)
		}
	}
	i.Metadata[MetaCreditNoteIDs] = append(ids, id.String())
}

// UpdateDetails applies the mutable fields of an issued invoice
func (i *Invoice) UpdateDetails(notes *string, payment *PaymentInfo, metadata map[string]any) error {
	if i.Status == InvoiceStatusCanceled {
		return NewInvoiceStateError(i.ID, i.Status, "cannot update a canceled invoice")
	}
	if payment != nil {
		if payment.Method != "" && !payment.Method.IsValid() {
			return NewInvalidInvoiceDataError("payment_info.method", "unsupported method "+string(payment.Method))
		}
		if payment.Terms != "" && !payment.Terms.IsValid() {
			return NewInvalidInvoiceDataError("payment_info.terms", "unsupported terms "+string(payment.Terms))
		}
		i.PaymentInfo = *payment
		due := i.PaymentInfo.ResolveDueDate(i.IssueDate)
		i.PaymentInfo.DueDate = &due
	}
	if notes != nil {
		i.Notes = *notes
	}
	if len(metadata) > 0 {
		if i.Metadata == nil {
			i.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			i.Metadata[k] = v
		}
	}
	i.Touch()
	return nil
}

// ChangeStatus applies a caller-requested status change, enforcing the
// transition table. Transitions with dedicated operations (cancel, pay,
// send) should use those instead so timestamps are stamped.
func (i *Invoice) ChangeStatus(next InvoiceStatus, at time.Time) error {
	if !next.IsValid() {
		return NewInvalidInvoiceDataError("status", "unknown status "+string(next))
	}
	if i.Status == InvoiceStatusCanceled {
		return NewInvoiceStateError(i.ID, i.Status, "cannot update a canceled invoice")
	}
	if next == i.Status {
		return nil
	}
	switch next {
	case InvoiceStatusSent:
		return i.MarkSent(at)
	case InvoiceStatusViewed:
		return i.MarkViewed(at)
	case InvoiceStatusCanceled:
		return i.Cancel("", at)
	case InvoiceStatusPaid, InvoiceStatusPartiallyPaid:
		return NewInvoiceStateError(i.ID, i.Status, "payment statuses are derived from recorded payments")
	case InvoiceStatusRefunded:
		return NewInvoiceStateError(i.ID, i.Status, "refunds are issued as credit notes")
	case InvoiceStatusDraft, InvoiceStatusIssued:
		return NewInvoiceStateError(i.ID, i.Status, "cannot move an invoice back to "+next.String())
	}
	return i.transition(next)
}
