package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// InvoiceStatsProvider supplies point-in-time invoice counts for the
// periodic gauge collection
type InvoiceStatsProvider interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)
}

// InvoiceMetrics records business metrics for invoicing. All methods are
// safe to call on a nil receiver so services can run without metrics.
type InvoiceMetrics struct {
	logger *zap.Logger

	issuedTotal         *Counter
	issuedAmount        *Histogram
	paymentsTotal       *Counter
	allocationsTotal    *Counter
	allocationFailures  *Counter
	overdueMarkedTotal  *Counter
	documentsRendered   *Counter
	renderDuration      *Histogram
	invoicesByStatus    *Gauge
	stopCh              chan struct{}
	stopOnce, startOnce sync.Once
}

// NewInvoiceMetrics creates the invoicing instruments on meter
func NewInvoiceMetrics(meter metric.Meter, logger *zap.Logger) (*InvoiceMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &InvoiceMetrics{logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.issuedTotal, err = NewCounter(meter, "invoicing_invoices_issued_total", "Documents issued", "{invoices}"); err != nil {
		return nil, err
	}
	if m.issuedAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "invoicing_invoice_amount",
		Description: "Gross total of issued documents",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if m.paymentsTotal, err = NewCounter(meter, "invoicing_payments_recorded_total", "Payments recorded", "{payments}"); err != nil {
		return nil, err
	}
	if m.allocationsTotal, err = NewCounter(meter, "invoicing_serial_allocations_total", "Serial numbers allocated", "{numbers}"); err != nil {
		return nil, err
	}
	if m.allocationFailures, err = NewCounter(meter, "invoicing_serial_allocation_failures_total", "Failed serial allocations", "{failures}"); err != nil {
		return nil, err
	}
	if m.overdueMarkedTotal, err = NewCounter(meter, "invoicing_invoices_overdue_total", "Invoices moved to overdue", "{invoices}"); err != nil {
		return nil, err
	}
	if m.documentsRendered, err = NewCounter(meter, "invoicing_documents_rendered_total", "PDF and XML documents produced", "{documents}"); err != nil {
		return nil, err
	}
	if m.renderDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "invoicing_document_render_duration",
		Description: "Time spent producing a PDF or XML document",
		Unit:        "s",
		Boundaries:  RenderDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.invoicesByStatus, err = NewGauge(meter, "invoicing_invoices_by_status", "Invoices per status", "{invoices}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordInvoiceIssued counts an issued document and its gross total
func (m *InvoiceMetrics) RecordInvoiceIssued(ctx context.Context, tenantID uuid.UUID, invoiceType, currency string, total decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID.String()), AttrInvoiceType.String(invoiceType)}
	m.issuedTotal.Inc(ctx, attrs...)
	m.issuedAmount.Record(ctx, total.InexactFloat64(), append(attrs, AttrCurrency.String(currency))...)
}

// RecordPayment counts a recorded payment
func (m *InvoiceMetrics) RecordPayment(ctx context.Context, tenantID uuid.UUID, method string) {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrPaymentMethod.String(method))
}

// RecordAllocation counts a serial allocation attempt by outcome
func (m *InvoiceMetrics) RecordAllocation(ctx context.Context, tenantID uuid.UUID, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.allocationFailures.Inc(ctx, AttrTenantID.String(tenantID.String()))
		return
	}
	m.allocationsTotal.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordOverdue counts invoices moved to OVERDUE in one sweep
func (m *InvoiceMetrics) RecordOverdue(ctx context.Context, tenantID uuid.UUID, n int) {
	if m == nil || n == 0 {
		return
	}
	m.overdueMarkedTotal.Add(ctx, int64(n), AttrTenantID.String(tenantID.String()))
}

// RecordDocument counts a rendered document and its duration
func (m *InvoiceMetrics) RecordDocument(ctx context.Context, format string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.documentsRendered.Inc(ctx, AttrFormat.String(format), AttrOutcome.String(outcome))
	m.renderDuration.RecordDuration(ctx, d, AttrFormat.String(format))
}

// StartPeriodicCollection samples invoice counts per status for every tenant
// at the given interval until Stop or ctx cancellation. Only the first call
// starts a collector.
func (m *InvoiceMetrics) StartPeriodicCollection(ctx context.Context, provider InvoiceStatsProvider, interval time.Duration) {
	if m == nil || provider == nil {
		return
	}
	m.startOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go m.collectLoop(ctx, provider, interval)
	})
}

func (m *InvoiceMetrics) collectLoop(ctx context.Context, provider InvoiceStatsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.collect(ctx, provider)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx, provider)
		}
	}
}

func (m *InvoiceMetrics) collect(ctx context.Context, provider InvoiceStatsProvider) {
	tenants, err := provider.ListTenantIDs(ctx)
	if err != nil {
		m.logger.Error("Failed to list tenants for invoice metrics", zap.Error(err))
		return
	}
	for _, tenantID := range tenants {
		counts, err := provider.CountByStatus(ctx, tenantID)
		if err != nil {
			m.logger.Warn("Failed to count invoices by status",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		for status, n := range counts {
			m.invoicesByStatus.Record(ctx, n,
				AttrTenantID.String(tenantID.String()),
				AttrStatus.String(status),
			)
		}
	}
}

// Stop ends periodic collection
func (m *InvoiceMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
}
