// Package report computes read-only views over persisted invoices: VAT
// totals per rate for a period and outstanding balances per customer.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const pageSize = 500

// ReportService provides application-level report operations
type ReportService struct {
	invoices invoicing.InvoiceRepository
	payments invoicing.PaymentRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(
	invoices invoicing.InvoiceRepository,
	payments invoicing.PaymentRepository,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		invoices: invoices,
		payments: payments,
		logger:   logger.Named("report_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ===================== VAT Report =====================

// VATSummary is the taxable base and tax of one rate
type VATSummary struct {
	VATRate       decimal.Decimal `json:"vat_rate"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
}

// VATReport summarizes the VAT of every non-canceled document issued in a period
type VATReport struct {
	TenantID      uuid.UUID       `json:"tenant_id"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	TotalInvoices int             `json:"total_invoices"`
	TotalTaxable  decimal.Decimal `json:"total_taxable"`
	TotalVAT      decimal.Decimal `json:"total_vat"`
	TotalGross    decimal.Decimal `json:"total_gross"`
	VATByRate     []VATSummary    `json:"vat_by_rate"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// VATReportFilter is the query of the VAT report endpoint
type VATReportFilter struct {
	From time.Time `form:"from" binding:"required" time_format:"2006-01-02" time_utc:"1"`
	To   time.Time `form:"to" binding:"required" time_format:"2006-01-02" time_utc:"1"`
}

// VATReport folds the VAT groups of all non-canceled invoices issued in
// [from, to]. Both bounds are inclusive days.
func (s *ReportService) VATReport(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*VATReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "vat")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID)

	from = startOfDay(from)
	to = startOfDay(to)
	if to.Before(from) {
		err := invoicing.NewInvalidInvoiceDataError("to", "must not be before from")
		telemetry.RecordError(span, err)
		return nil, err
	}
	issuedTo := to.AddDate(0, 0, 1).Add(-time.Nanosecond)

	invoices, err := s.listAll(ctx, tenantID, invoicing.InvoiceFilter{
		Statuses:   nonCanceledStatuses(),
		IssuedFrom: &from,
		IssuedTo:   &issuedTo,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := foldVAT(invoices)
	report.TenantID = tenantID
	report.PeriodStart = from
	report.PeriodEnd = to
	report.GeneratedAt = s.now()

	telemetry.SetAttribute(span, "invoice_count", report.TotalInvoices)
	return report, nil
}

// foldVAT sums totals and VAT groups. Rates are compared by value so 22 and
// 22.00 land in one group.
func foldVAT(invoices []invoicing.Invoice) *VATReport {
	report := &VATReport{
		TotalTaxable: decimal.Zero,
		TotalVAT:     decimal.Zero,
		TotalGross:   decimal.Zero,
		VATByRate:    []VATSummary{},
	}
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == invoicing.InvoiceStatusCanceled {
			continue
		}
		report.TotalInvoices++
		report.TotalTaxable = report.TotalTaxable.Add(inv.Totals.Subtotal)
		report.TotalVAT = report.TotalVAT.Add(inv.Totals.TotalVAT)
		report.TotalGross = report.TotalGross.Add(inv.Totals.Total)

		for _, g := range inv.Totals.VATGroups {
			summary := summaryFor(&report.VATByRate, g.Rate)
			summary.TaxableAmount = summary.TaxableAmount.Add(g.Taxable)
			summary.VATAmount = summary.VATAmount.Add(g.Tax)
		}
	}
	sort.Slice(report.VATByRate, func(i, j int) bool {
		return report.VATByRate[i].VATRate.GreaterThan(report.VATByRate[j].VATRate)
	})
	return report
}

func summaryFor(list *[]VATSummary, rate decimal.Decimal) *VATSummary {
	for i := range *list {
		if (*list)[i].VATRate.Equal(rate) {
			return &(*list)[i]
		}
	}
	*list = append(*list, VATSummary{VATRate: rate, TaxableAmount: decimal.Zero, VATAmount: decimal.Zero})
	return &(*list)[len(*list)-1]
}

// ===================== Outstanding Report =====================

// CustomerBalance is the open balance of one customer
type CustomerBalance struct {
	CustomerID       string          `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	InvoiceCount     int             `json:"invoice_count"`
}

// OutstandingReport lists open receivables grouped by customer
type OutstandingReport struct {
	TenantID         uuid.UUID         `json:"tenant_id"`
	TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	TotalOverdue     decimal.Decimal   `json:"total_overdue"`
	ByCustomer       []CustomerBalance `json:"by_customer"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// OutstandingReport groups open invoices by customer. The overdue subset is
// decided by status alone, so it reflects the last overdue sweep.
func (s *ReportService) OutstandingReport(ctx context.Context, tenantID uuid.UUID) (*OutstandingReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "outstanding")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID)

	invoices, err := s.listAll(ctx, tenantID, invoicing.InvoiceFilter{Statuses: invoicing.OutstandingStatuses()})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	ids := make([]uuid.UUID, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}
	paid := make(map[uuid.UUID]decimal.Decimal, len(invoices))
	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		payments, err := s.payments.ListByInvoices(ctx, tenantID, ids[start:end])
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		for _, p := range payments {
			paid[p.InvoiceID] = paid[p.InvoiceID].Add(p.Amount)
		}
	}

	report := foldOutstanding(invoices, paid)
	report.TenantID = tenantID
	report.GeneratedAt = s.now()
	return report, nil
}

func foldOutstanding(invoices []invoicing.Invoice, paid map[uuid.UUID]decimal.Decimal) *OutstandingReport {
	report := &OutstandingReport{
		TotalOutstanding: decimal.Zero,
		TotalOverdue:     decimal.Zero,
		ByCustomer:       []CustomerBalance{},
	}
	index := map[string]int{}
	for i := range invoices {
		inv := &invoices[i]
		if !inv.Status.IsOutstanding() {
			continue
		}
		totalPaid := paid[inv.ID]
		outstanding := inv.OutstandingAmount(totalPaid)

		pos, ok := index[inv.Customer.ID]
		if !ok {
			pos = len(report.ByCustomer)
			index[inv.Customer.ID] = pos
			report.ByCustomer = append(report.ByCustomer, CustomerBalance{
				CustomerID:       inv.Customer.ID,
				CustomerName:     inv.Customer.DisplayName(),
				TotalInvoiced:    decimal.Zero,
				TotalPaid:        decimal.Zero,
				TotalOutstanding: decimal.Zero,
				OverdueAmount:    decimal.Zero,
			})
		}
		b := &report.ByCustomer[pos]
		b.TotalInvoiced = b.TotalInvoiced.Add(inv.Totals.NetToPay)
		b.TotalPaid = b.TotalPaid.Add(totalPaid)
		b.TotalOutstanding = b.TotalOutstanding.Add(outstanding)
		b.InvoiceCount++
		report.TotalOutstanding = report.TotalOutstanding.Add(outstanding)

		if inv.Status == invoicing.InvoiceStatusOverdue {
			b.OverdueAmount = b.OverdueAmount.Add(outstanding)
			report.TotalOverdue = report.TotalOverdue.Add(outstanding)
		}
	}
	sort.SliceStable(report.ByCustomer, func(i, j int) bool {
		a, b := report.ByCustomer[i], report.ByCustomer[j]
		if !a.TotalOutstanding.Equal(b.TotalOutstanding) {
			return a.TotalOutstanding.GreaterThan(b.TotalOutstanding)
		}
		return a.CustomerID < b.CustomerID
	})
	return report
}

// ===================== Helpers =====================

func (s *ReportService) listAll(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, error) {
	filter.Filter = shared.Filter{Page: 1, PageSize: pageSize, OrderBy: "issue_date", OrderDir: "asc"}
	var all []invoicing.Invoice
	for {
		page, total, err := s.invoices.List(ctx, tenantID, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			return all, nil
		}
		filter.Page++
	}
}

func nonCanceledStatuses() []invoicing.InvoiceStatus {
	return []invoicing.InvoiceStatus{
		invoicing.InvoiceStatusIssued,
		invoicing.InvoiceStatusSent,
		invoicing.InvoiceStatusViewed,
		invoicing.InvoiceStatusPartiallyPaid,
		invoicing.InvoiceStatusPaid,
		invoicing.InvoiceStatusOverdue,
		invoicing.InvoiceStatusRefunded,
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
