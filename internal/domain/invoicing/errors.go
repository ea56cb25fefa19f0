package invoicing

import (
	"fmt"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes specific to the invoicing context
const (
	CodeInvalidInvoiceData   = "INVALID_INVOICE_DATA"
	CodeInvalidVATNumber     = "INVALID_VAT_NUMBER"
	CodeTaxCalculation       = "TAX_CALCULATION_FAILED"
	CodeSerialNumber         = "SERIAL_NUMBER_ERROR"
	CodeAllocationConflict   = "ALLOCATION_CONFLICT"
	CodePaymentAmount        = "PAYMENT_AMOUNT_EXCEEDED"
	CodePDFGeneration        = "PDF_GENERATION_FAILED"
	CodeEInvoiceGeneration   = "EINVOICE_GENERATION_FAILED"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeVATRegistry          = "VAT_REGISTRY_UNAVAILABLE"
	CodeDuplicateInvoiceNum  = "ALREADY_EXISTS"
	CodeInvoiceStateConflict = "INVALID_STATE"
)

// Sentinels for errors.Is matching. Constructors below return errors with the
// same code and a more specific message.
var (
	ErrInvoiceNotFound        = shared.NewDomainError("NOT_FOUND", "Invoice not found")
	ErrInvalidInvoiceData     = shared.NewDomainError(CodeInvalidInvoiceData, "Invalid invoice data")
	ErrNoLines                = NewInvalidInvoiceDataError("rows", "at least one line is required")
	ErrInvalidVATNumber       = shared.NewDomainError(CodeInvalidVATNumber, "Invalid VAT number")
	ErrTaxCalculation         = shared.NewDomainError(CodeTaxCalculation, "Tax calculation failed")
	ErrSerialNumber           = shared.NewDomainError(CodeSerialNumber, "Serial number generation failed")
	ErrAllocationConflict     = shared.NewDomainError(CodeAllocationConflict, "Serial number allocation conflict")
	ErrDuplicateInvoiceNumber = shared.NewDomainError(CodeDuplicateInvoiceNum, "Invoice number already exists")
	ErrInvoiceCanceled        = shared.NewDomainError(CodeInvoiceStateConflict, "Invoice is canceled")
	ErrPaymentAmount          = shared.NewDomainError(CodePaymentAmount, "Payment amount exceeds amount due")
	ErrPDFGeneration          = shared.NewDomainError(CodePDFGeneration, "PDF generation failed")
	ErrEInvoiceGeneration     = shared.NewDomainError(CodeEInvoiceGeneration, "E-invoice generation failed")
	ErrDelivery               = shared.NewDomainError(CodeDeliveryFailed, "Invoice delivery failed")
	ErrVATRegistryUnavailable = shared.NewDomainError(CodeVATRegistry, "VAT registry unavailable")
)

// NewInvoiceNotFoundError reports a missing invoice by id or number
func NewInvoiceNotFoundError(ref string) *shared.DomainError {
	return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Invoice %s not found", ref)).
		WithDetail("invoice", ref)
}

// NewInvalidInvoiceDataError reports a validation failure on a named field
func NewInvalidInvoiceDataError(field, message string) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidInvoiceData, fmt.Sprintf("invalid %s: %s", field, message)).
		WithDetail("field", field)
}

// NewInvalidVATNumberError reports a VAT number that failed validation
func NewInvalidVATNumberError(vatNumber, reason string) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidVATNumber, fmt.Sprintf("invalid VAT number %s: %s", vatNumber, reason)).
		WithDetail("vat_number", vatNumber)
}

// NewTaxCalculationError reports a failure inside the tax engine
func NewTaxCalculationError(message string) *shared.DomainError {
	return shared.NewDomainError(CodeTaxCalculation, "tax calculation failed: "+message)
}

// NewSerialNumberError reports a numbering failure for a tenant
func NewSerialNumberError(tenantID uuid.UUID, message string) *shared.DomainError {
	return shared.NewDomainError(CodeSerialNumber, fmt.Sprintf("serial number error for tenant %s: %s", tenantID, message)).
		WithDetail("tenant_id", tenantID.String())
}

// NewAllocationConflictError reports that the atomic counter increment did not
// complete. Nothing was committed, so the caller may retry.
func NewAllocationConflictError(tenantID uuid.UUID, year int, series string, cause error) *shared.DomainError {
	msg := fmt.Sprintf("could not allocate serial for tenant %s year %d series %q", tenantID, year, series)
	return shared.WrapDomainError(CodeAllocationConflict, msg, cause).
		WithDetail("tenant_id", tenantID.String()).
		WithDetail("retryable", true)
}

// NewDuplicateInvoiceNumberError reports a unique key violation on (tenant, number)
func NewDuplicateInvoiceNumberError(number string) *shared.DomainError {
	return shared.NewDomainError(CodeDuplicateInvoiceNum, fmt.Sprintf("invoice number %s already exists", number)).
		WithDetail("invoice_number", number)
}

// NewInvoiceStateError reports an operation rejected by the current status
func NewInvoiceStateError(id uuid.UUID, status InvoiceStatus, message string) *shared.DomainError {
	return shared.NewDomainError(CodeInvoiceStateConflict, message).
		WithDetail("invoice_id", id.String()).
		WithDetail("status", status.String())
}

// NewPaymentAmountError reports a payment that would overpay the invoice
func NewPaymentAmountError(id uuid.UUID, amount, due string) *shared.DomainError {
	return shared.NewDomainError(CodePaymentAmount,
		fmt.Sprintf("payment of %s exceeds amount due %s", amount, due)).
		WithDetail("invoice_id", id.String())
}

// NewPDFGenerationError wraps a renderer failure
func NewPDFGenerationError(id uuid.UUID, cause error) *shared.DomainError {
	return shared.WrapDomainError(CodePDFGeneration, fmt.Sprintf("PDF generation failed for invoice %s", id), cause).
		WithDetail("invoice_id", id.String())
}

// NewEInvoiceGenerationError wraps an e-invoice provider failure
func NewEInvoiceGenerationError(id uuid.UUID, format string, cause error) *shared.DomainError {
	return shared.WrapDomainError(CodeEInvoiceGeneration,
		fmt.Sprintf("%s generation failed for invoice %s", format, id), cause).
		WithDetail("invoice_id", id.String()).
		WithDetail("format", format)
}

// NewDeliveryError wraps a delivery channel failure
func NewDeliveryError(id uuid.UUID, channel string, cause error) *shared.DomainError {
	return shared.WrapDomainError(CodeDeliveryFailed,
		fmt.Sprintf("delivery of invoice %s via %s failed", id, channel), cause).
		WithDetail("invoice_id", id.String()).
		WithDetail("channel", channel)
}
