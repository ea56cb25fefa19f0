package invoicing

import (
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeInvoice = "Invoice"

	EventTypeInvoiceIssued   = "InvoiceIssued"
	EventTypeInvoiceCanceled = "InvoiceCanceled"
	EventTypeInvoicePaid     = "InvoicePaid"
	EventTypePaymentRecorded = "PaymentRecorded"
)

// InvoiceIssuedEvent is raised when a number and totals are frozen
type InvoiceIssuedEvent struct {
	shared.EventHeader
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceType   InvoiceType     `json:"invoice_type"`
	CustomerID    string          `json:"customer_id"`
	Total         decimal.Decimal `json:"total"`
	NetToPay      decimal.Decimal `json:"net_to_pay"`
}

// NewInvoiceIssuedEvent creates an InvoiceIssuedEvent
func NewInvoiceIssuedEvent(inv *Invoice) *InvoiceIssuedEvent {
	return &InvoiceIssuedEvent{
		EventHeader:   shared.NewEventHeader(EventTypeInvoiceIssued, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceType:   inv.Type,
		CustomerID:    inv.Customer.ID,
		Total:         inv.Totals.Total,
		NetToPay:      inv.Totals.NetToPay,
	}
}

// InvoiceCanceledEvent is raised on cancellation
type InvoiceCanceledEvent struct {
	shared.EventHeader
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason,omitempty"`
}

// NewInvoiceCanceledEvent creates an InvoiceCanceledEvent
func NewInvoiceCanceledEvent(inv *Invoice, reason string) *InvoiceCanceledEvent {
	return &InvoiceCanceledEvent{
		EventHeader:   shared.NewEventHeader(EventTypeInvoiceCanceled, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber: inv.InvoiceNumber,
		Reason:        reason,
	}
}

// InvoicePaidEvent is raised when payments reach the amount due
type InvoicePaidEvent struct {
	shared.EventHeader
	InvoiceNumber string          `json:"invoice_number"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
}

// NewInvoicePaidEvent creates an InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, totalPaid decimal.Decimal) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		EventHeader:   shared.NewEventHeader(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceNumber: inv.InvoiceNumber,
		TotalPaid:     totalPaid,
	}
}

// PaymentRecordedEvent is raised for every accepted payment
type PaymentRecordedEvent struct {
	shared.EventHeader
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
}

// NewPaymentRecordedEvent creates a PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, p *PaymentRecord) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		EventHeader: shared.NewEventHeader(EventTypePaymentRecorded, AggregateTypeInvoice, inv.ID, inv.TenantID),
		PaymentID:   p.ID.String(),
		Amount:      p.Amount,
		Method:      p.Method,
	}
}
