package handler

import (
	"context"
	"time"

	"github.com/erp/invoicing/internal/application/report"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxReportSpan bounds the VAT report period
const maxReportSpan = 366 * 24 * time.Hour

// ReportService computes the read-only views
type ReportService interface {
	VATReport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*report.VATReport, error)
	OutstandingReport(ctx context.Context, tenantID uuid.UUID) (*report.OutstandingReport, error)
}

// ReportHandler serves VAT and receivables reports
type ReportHandler struct {
	BaseHandler
	service ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// RegisterRoutes mounts the handler on a tenant-scoped group
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	reports.GET("/vat", h.VAT)
	reports.GET("/outstanding", h.Outstanding)
}

// VAT handles GET /reports/vat?from=YYYY-MM-DD&to=YYYY-MM-DD
// @Summary      VAT report
// @Tags         reports
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Param        from query string true "Period start (YYYY-MM-DD)"
// @Param        to query string true "Period end (YYYY-MM-DD)"
// @Success      200 {object} dto.Response{data=report.VATReport}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /reports/vat [get]
func (h *ReportHandler) VAT(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var filter report.VATReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	if filter.To.Before(filter.From) {
		h.BadRequest(c, "to must not be before from")
		return
	}
	if filter.To.Sub(filter.From) > maxReportSpan {
		h.BadRequest(c, "report period must not exceed one year")
		return
	}
	result, err := h.service.VATReport(c.Request.Context(), tenantID, filter.From, filter.To)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Outstanding handles GET /reports/outstanding
// @Summary      Outstanding receivables
// @Tags         reports
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant ID when no bearer token carries one"
// @Success      200 {object} dto.Response{data=report.OutstandingReport}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /reports/outstanding [get]
func (h *ReportHandler) Outstanding(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	result, err := h.service.OutstandingReport(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
