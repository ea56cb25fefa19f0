package dto

import "net/http"

// Error codes returned in the response envelope. Domain errors keep the code
// they were raised with; the rest are produced by the HTTP layer itself.

// General error codes
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMITED"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "INVALID_TOKEN"
)

// Shared domain error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// Invoicing error codes
const (
	ErrCodeInvalidInvoiceData = "INVALID_INVOICE_DATA"
	ErrCodeInvalidVATNumber   = "INVALID_VAT_NUMBER"
	ErrCodeTaxCalculation     = "TAX_CALCULATION_FAILED"
	ErrCodeSerialNumber       = "SERIAL_NUMBER_ERROR"
	ErrCodeAllocationConflict = "ALLOCATION_CONFLICT"
	ErrCodePaymentAmount      = "PAYMENT_AMOUNT_EXCEEDED"
	ErrCodePDFGeneration      = "PDF_GENERATION_FAILED"
	ErrCodeEInvoiceGeneration = "EINVOICE_GENERATION_FAILED"
	ErrCodeDeliveryFailed     = "DELIVERY_FAILED"
	ErrCodeVATRegistry        = "VAT_REGISTRY_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidState:        http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidInvoiceData: http.StatusBadRequest,
	ErrCodeInvalidVATNumber:   http.StatusBadRequest,
	ErrCodeTaxCalculation:     http.StatusUnprocessableEntity,
	ErrCodeSerialNumber:       http.StatusInternalServerError,
	ErrCodeAllocationConflict: http.StatusConflict,
	ErrCodePaymentAmount:      http.StatusUnprocessableEntity,
	ErrCodePDFGeneration:      http.StatusBadGateway,
	ErrCodeEInvoiceGeneration: http.StatusBadGateway,
	ErrCodeDeliveryFailed:     http.StatusBadGateway,
	ErrCodeVATRegistry:        http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether a client may repeat the request unchanged
func IsRetryable(code string) bool {
	switch code {
	case ErrCodeAllocationConflict, ErrCodeConcurrencyConflict, ErrCodeRateLimited, ErrCodeVATRegistry:
		return true
	}
	return false
}
