package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineRequest is one row of a create or preview request
type LineRequest struct {
	Description     string          `json:"description" binding:"required,max=1000"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Unit            string          `json:"unit" binding:"omitempty,max=20"`
	ProductCode     string          `json:"product_code" binding:"omitempty,max=64"`
}

func (r LineRequest) toDomain() invoicing.InvoiceLine {
	return invoicing.InvoiceLine{
		Description:     r.Description,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
		VATRate:         r.VATRate,
		DiscountPercent: r.DiscountPercent,
		Unit:            r.Unit,
		ProductCode:     r.ProductCode,
	}
}

func toDomainLines(rows []LineRequest) []invoicing.InvoiceLine {
	lines := make([]invoicing.InvoiceLine, len(rows))
	for i, r := range rows {
		lines[i] = r.toDomain()
	}
	return lines
}

// RetentionRequest asks for a withholding. When Amount is omitted it is
// computed from the line subtotal and Rate.
type RetentionRequest struct {
	Rate   decimal.Decimal  `json:"rate"`
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" binding:"omitempty,max=200"`
}

// TaxOptionsRequest carries the document-level tax modifiers
type TaxOptionsRequest struct {
	Retention          *RetentionRequest `json:"retention"`
	SocialSecurityRate *decimal.Decimal  `json:"social_security_rate"`
	StampDuty          bool              `json:"stamp_duty"`
	SplitPayment       bool              `json:"split_payment"`
	ReverseCharge      bool              `json:"reverse_charge"`
}

// CreateInvoiceRequest issues a new document
type CreateInvoiceRequest struct {
	InvoiceType string                `json:"invoice_type" binding:"omitempty,oneof=invoice credit_note debit_note proforma receipt advance_invoice"`
	Company     invoicing.Company     `json:"company"`
	Customer    invoicing.Customer    `json:"customer"`
	Rows        []LineRequest         `json:"rows" binding:"required,min=1,dive"`
	IssueDate   *time.Time            `json:"issue_date"`
	PaymentInfo invoicing.PaymentInfo `json:"payment_info"`
	Currency    string                `json:"currency" binding:"omitempty,len=3"`
	Language    string                `json:"language" binding:"omitempty,max=8"`
	Series      string                `json:"series" binding:"omitempty,max=20,alphanum"`
	Notes       string                `json:"notes" binding:"omitempty,max=4000"`
	Metadata    map[string]any        `json:"metadata"`
	TaxOptionsRequest
}

// UpdateInvoiceRequest changes the mutable fields of an issued invoice
type UpdateInvoiceRequest struct {
	Notes       *string                `json:"notes" binding:"omitempty,max=4000"`
	PaymentInfo *invoicing.PaymentInfo `json:"payment_info"`
	Metadata    map[string]any         `json:"metadata"`
	Status      *string                `json:"status" binding:"omitempty,oneof=draft issued sent viewed partially_paid paid overdue canceled refunded"`
}

// CancelInvoiceRequest cancels an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// CreditNoteRequest issues a credit note against an existing invoice. Rows
// default to the original lines, which credits the full amount.
type CreditNoteRequest struct {
	OriginalInvoiceID uuid.UUID     `json:"original_invoice_id" binding:"required"`
	Reason            string        `json:"reason" binding:"required,max=500"`
	Rows              []LineRequest `json:"rows" binding:"omitempty,dive"`
	IssueDate         *time.Time    `json:"issue_date"`
	Notes             string        `json:"notes" binding:"omitempty,max=4000"`
}

// RecordPaymentRequest applies a payment to an invoice
type RecordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PaymentDate    *time.Time      `json:"payment_date"`
	Method         string          `json:"payment_method" binding:"required"`
	TransactionID  string          `json:"transaction_id" binding:"omitempty,max=128"`
	Notes          string          `json:"notes" binding:"omitempty,max=1000"`
	IdempotencyKey string          `json:"-"`
}

// TaxPreviewRequest computes a breakdown without issuing anything
type TaxPreviewRequest struct {
	Rows []LineRequest `json:"rows" binding:"required,min=1,dive"`
	TaxOptionsRequest
}

// InvoiceListFilter is the query of ListInvoices
type InvoiceListFilter struct {
	Statuses   []string   `form:"status"`
	Type       string     `form:"invoice_type" binding:"omitempty,oneof=invoice credit_note debit_note proforma receipt advance_invoice"`
	CustomerID string     `form:"customer_id"`
	IssuedFrom *time.Time `form:"issued_from" time_format:"2006-01-02"`
	IssuedTo   *time.Time `form:"issued_to" time_format:"2006-01-02"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderBy    string     `form:"order_by" binding:"omitempty,oneof=issue_date invoice_number created_at"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// InvoiceResponse is the API view of an invoice
type InvoiceResponse struct {
	ID                 uuid.UUID                `json:"id"`
	TenantID           uuid.UUID                `json:"tenant_id"`
	InvoiceNumber      string                   `json:"invoice_number"`
	InvoiceType        string                   `json:"invoice_type"`
	Status             string                   `json:"status"`
	Company            invoicing.Company        `json:"company"`
	Customer           invoicing.Customer       `json:"customer"`
	Rows               []invoicing.InvoiceLine  `json:"rows"`
	IssueDate          time.Time                `json:"issue_date"`
	DueDate            time.Time                `json:"due_date"`
	PaymentInfo        invoicing.PaymentInfo    `json:"payment_info"`
	Currency           string                   `json:"currency"`
	Language           string                   `json:"language"`
	Series             string                   `json:"series,omitempty"`
	Retention          *invoicing.RetentionInfo `json:"retention,omitempty"`
	SocialSecurityRate *decimal.Decimal         `json:"social_security_rate,omitempty"`
	StampDuty          bool                     `json:"stamp_duty"`
	SplitPayment       bool                     `json:"split_payment"`
	ReverseCharge      bool                     `json:"reverse_charge"`
	Totals             invoicing.TaxBreakdown   `json:"totals"`
	Notes              string                   `json:"notes,omitempty"`
	Metadata           map[string]any           `json:"metadata,omitempty"`
	SentAt             *time.Time               `json:"sent_at,omitempty"`
	ViewedAt           *time.Time               `json:"viewed_at,omitempty"`
	PaidAt             *time.Time               `json:"paid_at,omitempty"`
	CanceledAt         *time.Time               `json:"canceled_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	Version            int                      `json:"version"`
}

// ToInvoiceResponse converts the aggregate to its API view
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:                 inv.ID,
		TenantID:           inv.TenantID,
		InvoiceNumber:      inv.InvoiceNumber,
		InvoiceType:        inv.Type.String(),
		Status:             inv.Status.String(),
		Company:            inv.Company,
		Customer:           inv.Customer,
		Rows:               inv.Lines,
		IssueDate:          inv.IssueDate,
		DueDate:            inv.DueDate(),
		PaymentInfo:        inv.PaymentInfo,
		Currency:           inv.Currency.String(),
		Language:           inv.Language,
		Series:             inv.Series,
		Retention:          inv.Retention,
		SocialSecurityRate: inv.SocialSecurityRate,
		StampDuty:          inv.StampDuty,
		SplitPayment:       inv.SplitPayment,
		ReverseCharge:      inv.ReverseCharge,
		Totals:             inv.Totals,
		Notes:              inv.Notes,
		Metadata:           inv.Metadata,
		SentAt:             inv.SentAt,
		ViewedAt:           inv.ViewedAt,
		PaidAt:             inv.PaidAt,
		CanceledAt:         inv.CanceledAt,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
		Version:            inv.Version,
	}
}

// InvoiceListItemResponse is the compact list view
type InvoiceListItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceType   string          `json:"invoice_type"`
	Status        string          `json:"status"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	NetToPay      decimal.Decimal `json:"net_to_pay"`
}

// ToInvoiceListItemResponse converts the aggregate to its list view
func ToInvoiceListItemResponse(inv *invoicing.Invoice) InvoiceListItemResponse {
	return InvoiceListItemResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceType:   inv.Type.String(),
		Status:        inv.Status.String(),
		CustomerID:    inv.Customer.ID,
		CustomerName:  inv.Customer.DisplayName(),
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate(),
		Currency:      inv.Currency.String(),
		Total:         inv.Totals.Total,
		NetToPay:      inv.Totals.NetToPay,
	}
}

// PaymentResponse is the API view of a payment record
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ToPaymentResponse converts a payment record to its API view
func ToPaymentResponse(p *invoicing.PaymentRecord) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		PaymentDate:   p.PaymentDate,
		Method:        string(p.Method),
		TransactionID: p.TransactionID,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}

// PaymentResultResponse is returned by RecordPayment
type PaymentResultResponse struct {
	Payment       PaymentResponse `json:"payment"`
	InvoiceStatus string          `json:"invoice_status"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	Replayed      bool            `json:"replayed,omitempty"`
}

func (f InvoiceListFilter) toDomain() invoicing.InvoiceFilter {
	filter := invoicing.InvoiceFilter{
		Filter: shared.Filter{
			Page:     f.Page,
			PageSize: f.PageSize,
			OrderBy:  f.OrderBy,
			OrderDir: f.OrderDir,
		},
		CustomerID: f.CustomerID,
		IssuedFrom: f.IssuedFrom,
		IssuedTo:   f.IssuedTo,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	for _, s := range f.Statuses {
		filter.Statuses = append(filter.Statuses, invoicing.InvoiceStatus(s))
	}
	if f.Type != "" {
		t := invoicing.InvoiceType(f.Type)
		filter.Type = &t
	}
	return filter
}

func parseCurrency(code string) (valueobject.Currency, error) {
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		return "", invoicing.NewInvalidInvoiceDataError("currency", err.Error())
	}
	return c, nil
}
