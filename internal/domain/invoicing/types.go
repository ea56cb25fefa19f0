package invoicing

// InvoiceType represents the kind of fiscal document
type InvoiceType string

const (
	InvoiceTypeInvoice        InvoiceType = "invoice"
	InvoiceTypeCreditNote     InvoiceType = "credit_note"
	InvoiceTypeDebitNote      InvoiceType = "debit_note"
	InvoiceTypeProforma       InvoiceType = "proforma"
	InvoiceTypeReceipt        InvoiceType = "receipt"
	InvoiceTypeAdvanceInvoice InvoiceType = "advance_invoice"
)

// IsValid checks if the invoice type is valid
func (t InvoiceType) IsValid() bool {
	switch t {
	case InvoiceTypeInvoice, InvoiceTypeCreditNote, InvoiceTypeDebitNote,
		InvoiceTypeProforma, InvoiceTypeReceipt, InvoiceTypeAdvanceInvoice:
		return true
	}
	return false
}

// String returns the string representation of InvoiceType
func (t InvoiceType) String() string {
	return string(t)
}

// Abbreviation returns the short code used in document numbers
func (t InvoiceType) Abbreviation() string {
	switch t {
	case InvoiceTypeInvoice:
		return "INV"
	case InvoiceTypeCreditNote:
		return "CN"
	case InvoiceTypeDebitNote:
		return "DN"
	case InvoiceTypeProforma:
		return "PRO"
	case InvoiceTypeReceipt:
		return "RCP"
	case InvoiceTypeAdvanceInvoice:
		return "ADV"
	}
	return "DOC"
}

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusIssued        InvoiceStatus = "issued"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusViewed        InvoiceStatus = "viewed"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCanceled      InvoiceStatus = "canceled"
	InvoiceStatusRefunded      InvoiceStatus = "refunded"
)

// allowedTransitions lists, for every status, the statuses it may move to
var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft: {InvoiceStatusIssued},
	InvoiceStatusIssued: {
		InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCanceled,
	},
	InvoiceStatusSent: {
		InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCanceled,
	},
	InvoiceStatusViewed: {
		InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCanceled,
	},
	InvoiceStatusPartiallyPaid: {
		InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCanceled,
	},
	InvoiceStatusOverdue: {
		InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusCanceled,
	},
	InvoiceStatusPaid:     {InvoiceStatusRefunded},
	InvoiceStatusCanceled: {InvoiceStatusRefunded},
	InvoiceStatusRefunded: nil,
}

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses no operation can leave except a refund
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCanceled || s == InvoiceStatusRefunded
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CanApplyPayment returns true if payments can be recorded in this status
func (s InvoiceStatus) CanApplyPayment() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// IsOutstanding returns true if the invoice still expects payment
func (s InvoiceStatus) IsOutstanding() bool {
	return s.CanApplyPayment()
}

// OutstandingStatuses returns the statuses counted as open receivables
func OutstandingStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		InvoiceStatusIssued, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartiallyPaid, InvoiceStatusOverdue,
	}
}

// PaymentMethod represents how a payment is made
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodSEPADirect   PaymentMethod = "sepa_dd"
	PaymentMethodRiBa         PaymentMethod = "riba"
	PaymentMethodRID          PaymentMethod = "rid"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCreditCard, PaymentMethodPayPal,
		PaymentMethodStripe, PaymentMethodCash, PaymentMethodCheck,
		PaymentMethodSEPADirect, PaymentMethodRiBa, PaymentMethodRID:
		return true
	}
	return false
}

// PaymentTerms represents when payment falls due relative to the issue date
type PaymentTerms string

const (
	PaymentTermsImmediate  PaymentTerms = "immediate"
	PaymentTermsNet7       PaymentTerms = "net_7"
	PaymentTermsNet15      PaymentTerms = "net_15"
	PaymentTermsNet30      PaymentTerms = "net_30"
	PaymentTermsNet60      PaymentTerms = "net_60"
	PaymentTermsNet90      PaymentTerms = "net_90"
	PaymentTermsEndOfMonth PaymentTerms = "eom"
	PaymentTermsAdvance    PaymentTerms = "advance"
)

// IsValid checks if the payment terms are valid
func (t PaymentTerms) IsValid() bool {
	switch t {
	case PaymentTermsImmediate, PaymentTermsNet7, PaymentTermsNet15, PaymentTermsNet30,
		PaymentTermsNet60, PaymentTermsNet90, PaymentTermsEndOfMonth, PaymentTermsAdvance:
		return true
	}
	return false
}

// NetDays returns the number of days granted by a net_N term, or 0
func (t PaymentTerms) NetDays() int {
	switch t {
	case PaymentTermsNet7:
		return 7
	case PaymentTermsNet15:
		return 15
	case PaymentTermsNet30:
		return 30
	case PaymentTermsNet60:
		return 60
	case PaymentTermsNet90:
		return 90
	}
	return 0
}
