package handler

import (
	"context"
	"strings"
	"time"

	invoicingapp "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyHeader lets clients retry a payment safely
const IdempotencyHeader = "Idempotency-Key"

// InvoiceService is the part of the invoice lifecycle the API exposes
type InvoiceService interface {
	CreateInvoice(ctx context.Context, tenantID uuid.UUID, req invoicingapp.CreateInvoiceRequest) (*invoicingapp.InvoiceResponse, error)
	GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*invoicingapp.InvoiceResponse, error)
	GetInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*invoicingapp.InvoiceResponse, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, filter invoicingapp.InvoiceListFilter) (*shared.Paginated[invoicingapp.InvoiceListItemResponse], error)
	UpdateInvoice(ctx context.Context, tenantID, id uuid.UUID, req invoicingapp.UpdateInvoiceRequest) (*invoicingapp.InvoiceResponse, error)
	CancelInvoice(ctx context.Context, tenantID, id uuid.UUID, req invoicingapp.CancelInvoiceRequest) (*invoicingapp.InvoiceResponse, error)
	CreateCreditNote(ctx context.Context, tenantID uuid.UUID, req invoicingapp.CreditNoteRequest) (*invoicingapp.InvoiceResponse, error)
	RecordPayment(ctx context.Context, tenantID, invoiceID uuid.UUID, req invoicingapp.RecordPaymentRequest) (*invoicingapp.PaymentResultResponse, error)
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicingapp.PaymentResponse, error)
	MarkAsSent(ctx context.Context, tenantID, id uuid.UUID) (*invoicingapp.InvoiceResponse, error)
	MarkAsViewed(ctx context.Context, tenantID, id uuid.UUID) (*invoicingapp.InvoiceResponse, error)
	ValidateNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
	CalculateTaxes(ctx context.Context, req invoicingapp.TaxPreviewRequest) (*invoicing.TaxBreakdown, error)
}

// InvoiceHandler serves invoices, payments, credit notes and tax previews
type InvoiceHandler struct {
	BaseHandler
	service InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// RegisterRoutes mounts the handler on a tenant-scoped group
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	invoices.POST("", h.Create)
	invoices.GET("", h.List)
	invoices.GET("/number-check", h.CheckNumber)
	invoices.GET("/by-number/:number", h.GetByNumber)
	invoices.GET("/:id", h.Get)
	invoices.PATCH("/:id", h.Update)
	invoices.POST("/:id/cancel", h.Cancel)
	invoices.POST("/:id/send", h.MarkSent)
	invoices.POST("/:id/viewed", h.MarkViewed)
	invoices.POST("/:id/payments", h.RecordPayment)
	invoices.GET("/:id/payments", h.ListPayments)

	rg.POST("/credit-notes", h.CreateCreditNote)
	rg.POST("/tax/calculate", h.CalculateTaxes)
}

// Create handles POST /invoices
// @Summary      Issue an invoice
// @Description  Validates the rows, computes the taxes and allocates the next number
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        request body invoicingapp.CreateInvoiceRequest true "Invoice to issue"
// @Success      201 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req invoicingapp.CreateInvoiceRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inv, err := h.service.CreateInvoice(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inv)
}

// List handles GET /invoices
// @Summary      List invoices
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        status query []string false "Filter by status" collectionFormat(multi)
// @Param        invoice_type query string false "Filter by document type"
// @Param        customer_id query string false "Filter by customer"
// @Param        issued_from query string false "Issued on or after (YYYY-MM-DD)"
// @Param        issued_to query string false "Issued on or before (YYYY-MM-DD)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "Sort field" Enums(issue_date, invoice_number, created_at)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Success      200 {object} dto.Response{data=[]invoicingapp.InvoiceListItemResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var filter invoicingapp.InvoiceListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	page, err := h.service.ListInvoices(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get handles GET /invoices/:id
// @Summary      Get invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// GetByNumber handles GET /invoices/by-number/:number
// @Summary      Get invoice by number
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        number path string true "Invoice number"
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/by-number/{number} [get]
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	number := strings.TrimSpace(c.Param("number"))
	if number == "" {
		h.BadRequest(c, "Invoice number is required")
		return
	}
	inv, err := h.service.GetInvoiceByNumber(c.Request.Context(), tenantID, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// CheckNumber handles GET /invoices/number-check?number=...
// @Summary      Check whether an invoice number is free
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        number query string true "Invoice number"
// @Success      200 {object} dto.Response{data=map[string]any}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/number-check [get]
func (h *InvoiceHandler) CheckNumber(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		h.BadRequest(c, "number query parameter is required")
		return
	}
	available, err := h.service.ValidateNumber(c.Request.Context(), tenantID, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"number": number, "available": available})
}

// Update handles PATCH /invoices/:id
// @Summary      Update invoice details
// @Description  Notes, payment info and metadata. A status change must be a legal lifecycle transition
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body invoicingapp.UpdateInvoiceRequest true "Fields to change"
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id} [patch]
func (h *InvoiceHandler) Update(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req invoicingapp.UpdateInvoiceRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	inv, err := h.service.UpdateInvoice(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// Cancel handles POST /invoices/:id/cancel
// @Summary      Cancel an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body invoicingapp.CancelInvoiceRequest false "Cancellation reason"
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/cancel [post]
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req invoicingapp.CancelInvoiceRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	inv, err := h.service.CancelInvoice(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// MarkSent handles POST /invoices/:id/send
// @Summary      Mark an invoice as sent
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/send [post]
func (h *InvoiceHandler) MarkSent(c *gin.Context) {
	h.transition(c, h.service.MarkAsSent)
}

// MarkViewed handles POST /invoices/:id/viewed
// @Summary      Mark an invoice as viewed
// @Tags         invoices
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/viewed [post]
func (h *InvoiceHandler) MarkViewed(c *gin.Context) {
	h.transition(c, h.service.MarkAsViewed)
}

func (h *InvoiceHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID, uuid.UUID) (*invoicingapp.InvoiceResponse, error)) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inv, err := fn(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// RecordPayment handles POST /invoices/:id/payments
// @Summary      Record a payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        Idempotency-Key header string false "Replays the first result for a repeated key"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body invoicingapp.RecordPaymentRequest true "Payment"
// @Success      201 {object} dto.Response{data=invoicingapp.PaymentResultResponse}
// @Success      200 {object} dto.Response{data=invoicingapp.PaymentResultResponse} "Replayed idempotent request"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req invoicingapp.RecordPaymentRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if len(req.IdempotencyKey) > 128 {
		h.BadRequest(c, IdempotencyHeader+" must be at most 128 characters")
		return
	}
	result, err := h.service.RecordPayment(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// ListPayments handles GET /invoices/:id/payments
// @Summary      List payments of an invoice
// @Tags         payments
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]invoicingapp.PaymentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/payments [get]
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}

// CreateCreditNote handles POST /credit-notes
// @Summary      Issue a credit note
// @Description  Omitting rows credits the whole original. A full credit of a paid invoice marks it refunded
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        request body invoicingapp.CreditNoteRequest true "Original invoice and credited rows"
// @Success      201 {object} dto.Response{data=invoicingapp.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /credit-notes [post]
func (h *InvoiceHandler) CreateCreditNote(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req invoicingapp.CreditNoteRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	note, err := h.service.CreateCreditNote(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, note)
}

// TaxPreviewResponse wraps a computed breakdown
type TaxPreviewResponse struct {
	Breakdown    *invoicing.TaxBreakdown `json:"breakdown"`
	CalculatedAt time.Time               `json:"calculated_at"`
}

// CalculateTaxes handles POST /tax/calculate. Nothing is persisted.
// @Summary      Preview taxes
// @Tags         tax
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        request body invoicingapp.TaxPreviewRequest true "Rows and tax options"
// @Success      200 {object} dto.Response{data=TaxPreviewResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /tax/calculate [post]
func (h *InvoiceHandler) CalculateTaxes(c *gin.Context) {
	if _, ok := h.tenant(c); !ok {
		return
	}
	var req invoicingapp.TaxPreviewRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	breakdown, err := h.service.CalculateTaxes(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TaxPreviewResponse{Breakdown: breakdown, CalculatedAt: time.Now().UTC()})
}
