package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecord is a payment applied to exactly one invoice
type PaymentRecord struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewPaymentRecord validates and creates a payment record
func NewPaymentRecord(
	tenantID, invoiceID uuid.UUID,
	amount decimal.Decimal,
	paymentDate time.Time,
	method PaymentMethod,
	transactionID, notes string,
) (*PaymentRecord, error) {
	if !amount.IsPositive() {
		return nil, NewInvalidInvoiceDataError("amount", "must be greater than zero")
	}
	if !valueobject.FitsMoneyScale(amount) {
		return nil, NewInvalidInvoiceDataError("amount", "must not have more than two decimal places")
	}
	if !method.IsValid() {
		return nil, NewInvalidInvoiceDataError("payment_method", "unsupported method "+string(method))
	}
	if paymentDate.IsZero() {
		paymentDate = time.Now().UTC()
	}
	return &PaymentRecord{
		ID:            uuid.New(),
		TenantID:      tenantID,
		InvoiceID:     invoiceID,
		Amount:        amount,
		PaymentDate:   paymentDate,
		Method:        method,
		TransactionID: transactionID,
		Notes:         notes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// TotalPaid sums payment amounts
func TotalPaid(payments []PaymentRecord) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
