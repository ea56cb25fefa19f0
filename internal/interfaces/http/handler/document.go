package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	invoicingapp "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentLocationHeader carries the archive location of a generated document
const DocumentLocationHeader = "X-Document-Location"

// DocumentService renders, exports and delivers invoice documents
type DocumentService interface {
	RenderPDF(ctx context.Context, tenantID, id uuid.UUID, template string) (*invoicingapp.RenderedDocument, error)
	ExportEInvoice(ctx context.Context, tenantID, id uuid.UUID, format string, validate bool) (*invoicingapp.EInvoiceResponse, error)
	SendByEmail(ctx context.Context, tenantID, id uuid.UUID, req invoicingapp.EmailRequest) (*invoicingapp.DeliveryResult, error)
	ValidateVATNumber(ctx context.Context, vatNumber string) (*invoicing.VATValidation, error)
	PDFTemplates() []string
}

// DocumentHandler serves PDFs, e-invoices, email delivery and VAT checks
type DocumentHandler struct {
	BaseHandler
	service DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// RegisterRoutes mounts the handler on a tenant-scoped group
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/invoices/:id/pdf", h.RenderPDF)
	rg.POST("/invoices/:id/einvoice", h.ExportEInvoice)
	rg.POST("/invoices/:id/email", h.SendByEmail)
	rg.GET("/pdf-templates", h.Templates)
	rg.POST("/vat-numbers/validate", h.ValidateVATNumber)
}

// RenderPDF handles GET /invoices/:id/pdf?template=...
// @Summary      Render invoice PDF
// @Tags         documents
// @Produce      application/pdf
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        template query string false "PDF template name"
// @Param        download query bool false "Send as attachment"
// @Success      200 {file} file
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/pdf [get]
func (h *DocumentHandler) RenderPDF(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	doc, err := h.service.RenderPDF(c.Request.Context(), tenantID, id, c.Query("template"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if doc.Location != "" {
		c.Header(DocumentLocationHeader, doc.Location)
	}
	c.Header("Content-Disposition", disposition(c, doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}

// EInvoiceRequest selects the e-invoice format
type EInvoiceRequest struct {
	Format   string `json:"format" binding:"required,oneof=fatturapa peppol"`
	Validate bool   `json:"validate"`
}

// ExportEInvoice handles POST /invoices/:id/einvoice. Clients accepting
// application/xml receive the document itself; everyone else gets JSON.
// @Summary      Export an e-invoice
// @Tags         documents
// @Accept       json
// @Produce      json,xml
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body EInvoiceRequest true "Format and validation flag"
// @Success      200 {object} dto.Response{data=invoicingapp.EInvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/einvoice [post]
func (h *DocumentHandler) ExportEInvoice(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req EInvoiceRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	doc, err := h.service.ExportEInvoice(c.Request.Context(), tenantID, id, req.Format, req.Validate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if doc.Location != "" {
		c.Header(DocumentLocationHeader, doc.Location)
	}
	if wantsXML(c) {
		c.Header("Content-Disposition", disposition(c, doc.Filename))
		c.Header("X-Document-Hash", doc.Hash)
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(doc.XML))
		return
	}
	h.Success(c, doc)
}

// SendByEmail handles POST /invoices/:id/email. Queued deliveries answer 202.
// @Summary      Email an invoice
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body invoicingapp.EmailRequest false "Recipients and message"
// @Success      200 {object} dto.Response{data=invoicingapp.DeliveryResult}
// @Success      202 {object} dto.Response{data=invoicingapp.DeliveryResult} "Queued for delivery"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /invoices/{id}/email [post]
func (h *DocumentHandler) SendByEmail(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req invoicingapp.EmailRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	result, err := h.service.SendByEmail(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Queued {
		h.Accepted(c, result)
		return
	}
	h.Success(c, result)
}

// Templates handles GET /pdf-templates
// @Summary      List PDF templates
// @Tags         documents
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Success      200 {object} dto.Response{data=[]string}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /pdf-templates [get]
func (h *DocumentHandler) Templates(c *gin.Context) {
	templates := h.service.PDFTemplates()
	if templates == nil {
		templates = []string{}
	}
	h.Success(c, templates)
}

// VATNumberRequest is the body of the VAT check
type VATNumberRequest struct {
	VATNumber string `json:"vat_number" binding:"required,max=32"`
}

// ValidateVATNumber handles POST /vat-numbers/validate. An invalid number is
// a successful check with valid=false.
// @Summary      Validate a VAT number
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        request body VATNumberRequest true "VAT number with country prefix"
// @Success      200 {object} dto.Response{data=invoicing.VATValidation}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /vat-numbers/validate [post]
func (h *DocumentHandler) ValidateVATNumber(c *gin.Context) {
	var req VATNumberRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	result, err := h.service.ValidateVATNumber(c.Request.Context(), req.VATNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func wantsXML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/xml") || strings.Contains(accept, "text/xml")
}

// disposition picks inline or attachment from ?download=true
func disposition(c *gin.Context, filename string) string {
	kind := "inline"
	if c.Query("download") == "true" {
		kind = "attachment"
	}
	return fmt.Sprintf("%s; filename=%q", kind, filename)
}
