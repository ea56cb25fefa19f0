package event

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditHandler writes one structured log record per invoice event, which
// gives operators an issuance and payment trail without a separate store.
type AuditHandler struct {
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler
func NewAuditHandler(log *zap.Logger) *AuditHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditHandler{logger: log.Named("audit")}
}

// EventTypes implements shared.EventHandler
func (h *AuditHandler) EventTypes() []string {
	return []string{
		invoicing.EventTypeInvoiceIssued,
		invoicing.EventTypeInvoiceCanceled,
		invoicing.EventTypeInvoicePaid,
		invoicing.EventTypePaymentRecorded,
	}
}

// Handle implements shared.EventHandler
func (h *AuditHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", ev.EventID().String()),
		zap.String("event_type", ev.EventType()),
		zap.String("tenant_id", ev.TenantID().String()),
		zap.String("invoice_id", ev.AggregateID().String()),
		zap.Time("occurred_at", ev.OccurredAt()),
	}
	if id := logger.GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	switch e := ev.(type) {
	case *invoicing.InvoiceIssuedEvent:
		fields = append(fields,
			zap.String("invoice_number", e.InvoiceNumber),
			zap.String("invoice_type", string(e.InvoiceType)),
			zap.String("customer_id", e.CustomerID),
			zap.String("total", e.Total.StringFixed(2)),
			zap.String("net_to_pay", e.NetToPay.StringFixed(2)),
		)
	case *invoicing.InvoiceCanceledEvent:
		fields = append(fields, zap.String("invoice_number", e.InvoiceNumber), zap.String("reason", e.Reason))
	case *invoicing.InvoicePaidEvent:
		fields = append(fields, zap.String("invoice_number", e.InvoiceNumber), zap.String("total_paid", e.TotalPaid.StringFixed(2)))
	case *invoicing.PaymentRecordedEvent:
		fields = append(fields,
			zap.String("payment_id", e.PaymentID),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("method", string(e.Method)),
		)
	}

	h.logger.Info("Invoice event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditHandler)(nil)
