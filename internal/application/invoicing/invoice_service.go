// Package invoicing holds the application services of the invoicing context:
// issuing, updating, paying and crediting invoices, and producing their
// documents.
package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxAllocationAttempts bounds retries of a create whose number allocation
// hit a counter conflict
const maxAllocationAttempts = 3

// overdueBatchSize is the page size used when sweeping for overdue invoices
const overdueBatchSize = 500

// InvoiceService implements the invoice lifecycle
type InvoiceService struct {
	txScope    TransactionScope
	invoices   invoicing.InvoiceRepository
	payments   invoicing.PaymentRepository
	calculator *invoicing.TaxCalculator
	allocator  *invoicing.Allocator
	validate   *validator.Validate
	logger     *zap.Logger

	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	publisher      shared.EventPublisher
	metrics        *telemetry.InvoiceMetrics
	now            func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	txScope TransactionScope,
	invoices invoicing.InvoiceRepository,
	payments invoicing.PaymentRepository,
	calculator *invoicing.TaxCalculator,
	allocator *invoicing.Allocator,
	logger *zap.Logger,
) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calculator == nil {
		calculator = invoicing.NewTaxCalculator(nil)
	}
	v := validator.New()
	v.SetTagName("binding")
	return &InvoiceService{
		txScope:        txScope,
		invoices:       invoices,
		payments:       payments,
		calculator:     calculator,
		allocator:      allocator,
		validate:       v,
		logger:         logger.Named("invoice_service"),
		idempotencyTTL: shared.DefaultIdempotencyConfig().TTL,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetIdempotencyStore enables idempotency keys on RecordPayment
func (s *InvoiceService) SetIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) {
	s.idempotency = store
	if ttl > 0 {
		s.idempotencyTTL = ttl
	}
}

// SetEventPublisher sets the publisher for domain events raised after commit
func (s *InvoiceService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetMetrics sets the business metrics collector
func (s *InvoiceService) SetMetrics(m *telemetry.InvoiceMetrics) {
	s.metrics = m
}

func (s *InvoiceService) validateRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invoicing.NewInvalidInvoiceDataError(fe.Namespace(), "failed on '"+fe.Tag()+"' rule")
		}
		return invoicing.NewInvalidInvoiceDataError("request", err.Error())
	}
	return nil
}

// CreateInvoice validates the request, computes the tax breakdown, allocates
// the next number and persists an ISSUED invoice in one transaction.
func (s *InvoiceService) CreateInvoice(ctx context.Context, tenantID uuid.UUID, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrInvoiceType, req.InvoiceType,
		telemetry.SpanAttrLineCount, len(req.Rows),
	)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	params, err := s.issueParams(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, err := s.issue(ctx, tenantID, params, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, inv.ID,
		telemetry.SpanAttrInvoiceNumber, inv.InvoiceNumber,
		telemetry.SpanAttrAmount, inv.Totals.Total,
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

func (s *InvoiceService) issueParams(req CreateInvoiceRequest) (invoicing.IssueParams, error) {
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		return invoicing.IssueParams{}, err
	}
	invoiceType := invoicing.InvoiceTypeInvoice
	if req.InvoiceType != "" {
		invoiceType = invoicing.InvoiceType(req.InvoiceType)
	}
	issueDate := s.today()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}

	lines := toDomainLines(req.Rows)
	retention, err := s.resolveRetention(lines, req.Retention)
	if err != nil {
		return invoicing.IssueParams{}, err
	}

	return invoicing.IssueParams{
		Type:               invoiceType,
		Company:            req.Company,
		Customer:           req.Customer,
		Lines:              lines,
		IssueDate:          issueDate,
		PaymentInfo:        req.PaymentInfo,
		Currency:           currency,
		Language:           req.Language,
		Series:             req.Series,
		Retention:          retention,
		SocialSecurityRate: req.SocialSecurityRate,
		StampDuty:          req.StampDuty,
		SplitPayment:       req.SplitPayment,
		ReverseCharge:      req.ReverseCharge,
		Notes:              req.Notes,
		Metadata:           req.Metadata,
	}, nil
}

// resolveRetention fills in the withholding amount from the line subtotal
// when the caller gave only a rate
func (s *InvoiceService) resolveRetention(lines []invoicing.InvoiceLine, req *RetentionRequest) (*invoicing.RetentionInfo, error) {
	if req == nil {
		return nil, nil
	}
	info := &invoicing.RetentionInfo{Rate: req.Rate, Reason: req.Reason}
	if req.Amount != nil {
		if !valueobject.FitsMoneyScale(*req.Amount) {
			return nil, invoicing.NewInvalidInvoiceDataError("retention.amount", "must not have more than two decimal places")
		}
		info.Amount = *req.Amount
		return info, nil
	}
	taxable := decimal.Zero
	for _, l := range lines {
		taxable = taxable.Add(l.NetAmount())
	}
	amount, err := s.calculator.CalculateRetention(taxable, req.Rate)
	if err != nil {
		return nil, err
	}
	info.Amount = amount
	return info, nil
}

// issue computes, numbers and stores a document. afterCreate, when given,
// runs inside the same transaction once the new invoice is stored.
func (s *InvoiceService) issue(
	ctx context.Context,
	tenantID uuid.UUID,
	params invoicing.IssueParams,
	afterCreate func(repos TransactionalRepositories, inv *invoicing.Invoice) error,
) (*invoicing.Invoice, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	totals, err := s.calculator.Calculate(params.Lines, params.TaxOptions())
	if err != nil {
		return nil, err
	}

	var inv *invoicing.Invoice
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			number, err := s.allocator.WithStore(repos.SerialCounter()).
				AllocateNumber(ctx, tenantID, params.Type, params.IssueDate, params.Series)
			s.metrics.RecordAllocation(ctx, tenantID, err)
			if err != nil {
				return err
			}
			created, err := invoicing.IssueInvoice(tenantID, number, params, totals)
			if err != nil {
				return err
			}
			if err := repos.Invoices().Create(ctx, created); err != nil {
				return err
			}
			inv = created
			if afterCreate != nil {
				return afterCreate(repos, created)
			}
			return nil
		})
		if err == nil || !errors.Is(err, invoicing.ErrAllocationConflict) {
			break
		}
		s.logger.Warn("Serial allocation conflict, retrying",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, inv)
	s.metrics.RecordInvoiceIssued(ctx, tenantID, inv.Type.String(), inv.Currency.String(), inv.Totals.Total)
	s.logger.Info("Invoice issued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("invoice_type", inv.Type.String()),
		zap.String("total", inv.Totals.Total.StringFixed(2)),
	)
	return inv, nil
}

// GetInvoice returns an invoice by id
func (s *InvoiceService) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetInvoiceByNumber returns an invoice by its document number
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByNumber(ctx, tenantID, number)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// ListInvoices returns a page of invoices
func (s *InvoiceService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter InvoiceListFilter) (*shared.Paginated[InvoiceListItemResponse], error) {
	domainFilter := filter.toDomain()
	for _, st := range domainFilter.Statuses {
		if !st.IsValid() {
			return nil, invoicing.NewInvalidInvoiceDataError("status", "unknown status "+string(st))
		}
	}
	items, total, err := s.invoices.List(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, err
	}
	out := make([]InvoiceListItemResponse, len(items))
	for i := range items {
		out[i] = ToInvoiceListItemResponse(&items[i])
	}
	page := shared.NewPaginated(out, total, domainFilter.Page, domainFilter.Limit())
	return &page, nil
}

// mutate loads an invoice under a row lock, applies fn and saves it
func (s *InvoiceService) mutate(
	ctx context.Context,
	tenantID, id uuid.UUID,
	fn func(inv *invoicing.Invoice) error,
) (*invoicing.Invoice, error) {
	var inv *invoicing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		loaded, err := repos.Invoices().FindByIDForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(loaded); err != nil {
			return err
		}
		if err := repos.Invoices().Update(ctx, loaded); err != nil {
			return err
		}
		inv = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvents(ctx, inv)
	return inv, nil
}

// UpdateInvoice changes notes, payment info, metadata and status
func (s *InvoiceService) UpdateInvoice(ctx context.Context, tenantID, id uuid.UUID, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "update")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrInvoiceID, id)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	inv, err := s.mutate(ctx, tenantID, id, func(inv *invoicing.Invoice) error {
		if err := inv.UpdateDetails(req.Notes, req.PaymentInfo, req.Metadata); err != nil {
			return err
		}
		if req.Status != nil {
			return inv.ChangeStatus(invoicing.InvoiceStatus(*req.Status), s.now())
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// CancelInvoice moves an unpaid invoice to CANCELED
func (s *InvoiceService) CancelInvoice(ctx context.Context, tenantID, id uuid.UUID, req CancelInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrInvoiceID, id)

	inv, err := s.mutate(ctx, tenantID, id, func(inv *invoicing.Invoice) error {
		return inv.Cancel(req.Reason, s.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.logger.Info("Invoice canceled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("reason", req.Reason),
	)
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// CreateCreditNote issues a credit note copying the parties and terms of the
// original. A credit note whose taxable subtotal covers a paid original marks
// it REFUNDED; any other credit note is only linked from the original.
func (s *InvoiceService) CreateCreditNote(ctx context.Context, tenantID uuid.UUID, req CreditNoteRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create_credit_note")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrInvoiceID, req.OriginalInvoiceID)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	original, err := s.invoices.FindByID(ctx, tenantID, req.OriginalInvoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := checkCreditable(original); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lines := original.Lines
	if len(req.Rows) > 0 {
		lines = toDomainLines(req.Rows)
	}
	issueDate := s.today()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	paymentInfo := original.PaymentInfo
	paymentInfo.DueDate = nil

	params := invoicing.IssueParams{
		Type:               invoicing.InvoiceTypeCreditNote,
		Company:            original.Company,
		Customer:           original.Customer,
		Lines:              lines,
		IssueDate:          issueDate,
		PaymentInfo:        paymentInfo,
		Currency:           original.Currency,
		Language:           original.Language,
		Series:             original.Series,
		Retention:          scaleRetention(original, lines),
		SocialSecurityRate: original.SocialSecurityRate,
		StampDuty:          original.StampDuty,
		SplitPayment:       original.SplitPayment,
		ReverseCharge:      original.ReverseCharge,
		Notes:              req.Notes,
		Metadata: map[string]any{
			invoicing.MetaOriginalInvoiceID:     original.ID.String(),
			invoicing.MetaOriginalInvoiceNumber: original.InvoiceNumber,
			invoicing.MetaCreditReason:          req.Reason,
		},
	}

	var updatedOriginal *invoicing.Invoice
	note, err := s.issue(ctx, tenantID, params, func(repos TransactionalRepositories, note *invoicing.Invoice) error {
		locked, err := repos.Invoices().FindByIDForUpdate(ctx, tenantID, original.ID)
		if err != nil {
			return err
		}
		if err := checkCreditable(locked); err != nil {
			return err
		}
		if locked.Status == invoicing.InvoiceStatusPaid &&
			note.Totals.Subtotal.GreaterThanOrEqual(locked.Totals.Subtotal) {
			if err := locked.MarkRefunded(note.ID); err != nil {
				return err
			}
		} else {
			locked.LinkCreditNote(note.ID)
		}
		if err := repos.Invoices().Update(ctx, locked); err != nil {
			return err
		}
		updatedOriginal = locked
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Credit note issued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("credit_note_number", note.InvoiceNumber),
		zap.String("original_number", original.InvoiceNumber),
		zap.String("original_status", updatedOriginal.Status.String()),
	)
	resp := ToInvoiceResponse(note)
	return &resp, nil
}

func checkCreditable(inv *invoicing.Invoice) error {
	switch {
	case inv.Type == invoicing.InvoiceTypeCreditNote:
		return invoicing.NewInvoiceStateError(inv.ID, inv.Status, "cannot credit a credit note")
	case inv.Status == invoicing.InvoiceStatusCanceled:
		return invoicing.NewInvoiceStateError(inv.ID, inv.Status, "cannot credit a canceled invoice")
	case inv.Status == invoicing.InvoiceStatusRefunded:
		return invoicing.NewInvoiceStateError(inv.ID, inv.Status, "invoice is already refunded")
	case inv.Status == invoicing.InvoiceStatusDraft:
		return invoicing.NewInvoiceStateError(inv.ID, inv.Status, "cannot credit a draft")
	}
	return nil
}

// scaleRetention carries the original withholding rate over to the credited
// lines, recomputing the amount on their subtotal
func scaleRetention(original *invoicing.Invoice, lines []invoicing.InvoiceLine) *invoicing.RetentionInfo {
	if original.Retention == nil {
		return nil
	}
	taxable := decimal.Zero
	for _, l := range lines {
		taxable = taxable.Add(l.NetAmount())
	}
	r := *original.Retention
	r.Amount = valueobject.PercentOf(taxable, r.Rate)
	return &r
}

// RecordPayment applies a payment under a row lock on the invoice. With an
// idempotency key a retried request returns the payment recorded first.
func (s *InvoiceService) RecordPayment(ctx context.Context, tenantID, invoiceID uuid.UUID, req RecordPaymentRequest) (*PaymentResultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "record_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrInvoiceID, invoiceID,
		telemetry.SpanAttrAmount, req.Amount,
		telemetry.SpanAttrPaymentMethod, req.Method,
	)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	paymentDate := s.now()
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}
	payment, err := invoicing.NewPaymentRecord(tenantID, invoiceID, req.Amount, paymentDate,
		invoicing.PaymentMethod(req.Method), req.TransactionID, req.Notes)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	idemKey := ""
	if req.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = fmt.Sprintf("payment:%s:%s:%s", tenantID, invoiceID, req.IdempotencyKey)
		existing, reserved, err := s.idempotency.Reserve(ctx, idemKey, payment.ID.String(), s.idempotencyTTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if !reserved {
			telemetry.AddEvent(span, "idempotent_replay")
			return s.replayPayment(ctx, tenantID, invoiceID, existing)
		}
	}

	var inv *invoicing.Invoice
	var totalPaid decimal.Decimal
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		loaded, err := repos.Invoices().FindByIDForUpdate(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		existing, err := repos.Payments().ListByInvoice(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		paid := invoicing.TotalPaid(existing)
		if err := loaded.CheckPayment(paid, payment.Amount); err != nil {
			return err
		}
		if err := repos.Payments().Create(ctx, payment); err != nil {
			return err
		}
		totalPaid = paid.Add(payment.Amount)
		if err := loaded.ApplyPaymentTotal(totalPaid, paymentDate); err != nil {
			return err
		}
		loaded.AddDomainEvent(invoicing.NewPaymentRecordedEvent(loaded, payment))
		if err := repos.Invoices().Update(ctx, loaded); err != nil {
			return err
		}
		inv = loaded
		return nil
	})
	if err != nil {
		if idemKey != "" {
			if rerr := s.idempotency.Release(ctx, idemKey); rerr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", idemKey), zap.Error(rerr))
			}
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, inv)
	s.metrics.RecordPayment(ctx, tenantID, req.Method)
	s.logger.Info("Payment recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("status", inv.Status.String()),
	)

	return &PaymentResultResponse{
		Payment:       ToPaymentResponse(payment),
		InvoiceStatus: inv.Status.String(),
		TotalPaid:     totalPaid,
		Outstanding:   inv.OutstandingAmount(totalPaid),
	}, nil
}

func (s *InvoiceService) replayPayment(ctx context.Context, tenantID, invoiceID uuid.UUID, paymentID string) (*PaymentResultResponse, error) {
	id, err := uuid.Parse(paymentID)
	if err != nil {
		return nil, fmt.Errorf("corrupt idempotency record %q: %w", paymentID, err)
	}
	payment, err := s.payments.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.ErrConcurrencyConflict.Code,
				"a payment with this idempotency key is still being processed")
		}
		return nil, err
	}
	inv, err := s.invoices.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	all, err := s.payments.ListByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	paid := invoicing.TotalPaid(all)
	return &PaymentResultResponse{
		Payment:       ToPaymentResponse(payment),
		InvoiceStatus: inv.Status.String(),
		TotalPaid:     paid,
		Outstanding:   inv.OutstandingAmount(paid),
		Replayed:      true,
	}, nil
}

// ListPayments returns the payments of an invoice in payment date order
func (s *InvoiceService) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.invoices.FindByID(ctx, tenantID, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out, nil
}

// MarkAsSent records delivery of the invoice to the customer
func (s *InvoiceService) MarkAsSent(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "mark_sent")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrInvoiceID, id)

	inv, err := s.mutate(ctx, tenantID, id, func(inv *invoicing.Invoice) error {
		return inv.MarkSent(s.now())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// MarkAsViewed records that the customer opened the invoice
func (s *InvoiceService) MarkAsViewed(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.mutate(ctx, tenantID, id, func(inv *invoicing.Invoice) error {
		return inv.MarkViewed(s.now())
	})
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// MarkOverdue moves every open invoice of the tenant whose due date is
// before asOf to OVERDUE and returns how many changed
func (s *InvoiceService) MarkOverdue(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "mark_overdue")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID)

	filter := invoicing.InvoiceFilter{
		Filter: shared.Filter{Page: 1, PageSize: overdueBatchSize, OrderBy: "issue_date", OrderDir: "asc"},
		Statuses: []invoicing.InvoiceStatus{
			invoicing.InvoiceStatusIssued,
			invoicing.InvoiceStatusSent,
			invoicing.InvoiceStatusViewed,
			invoicing.InvoiceStatusPartiallyPaid,
		},
		DueBefore: &asOf,
	}

	// collect first: updating while paging would shift later pages
	var candidates []uuid.UUID
	for {
		page, total, err := s.invoices.List(ctx, tenantID, filter)
		if err != nil {
			telemetry.RecordError(span, err)
			return 0, err
		}
		for i := range page {
			if page[i].IsOverdueAt(asOf) {
				candidates = append(candidates, page[i].ID)
			}
		}
		if len(page) == 0 || int64(filter.Page*filter.PageSize) >= total {
			break
		}
		filter.Page++
	}

	marked := 0
	for _, id := range candidates {
		changed := false
		_, err := s.mutate(ctx, tenantID, id, func(inv *invoicing.Invoice) error {
			changed = inv.MarkOverdue(asOf)
			if !changed {
				return errNothingToDo
			}
			return nil
		})
		switch {
		case errors.Is(err, errNothingToDo):
			continue
		case err != nil:
			s.logger.Warn("Failed to mark invoice overdue",
				zap.String("tenant_id", tenantID.String()),
				zap.String("invoice_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		if changed {
			marked++
		}
	}

	s.metrics.RecordOverdue(ctx, tenantID, marked)
	telemetry.SetAttribute(span, "marked", marked)
	if marked > 0 {
		s.logger.Info("Invoices marked overdue",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", marked),
		)
	}
	return marked, nil
}

// errNothingToDo aborts a mutate without saving
var errNothingToDo = errors.New("nothing to do")

// ValidateNumber reports whether a document number is still free
func (s *InvoiceService) ValidateNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	return s.allocator.ValidateNumber(ctx, tenantID, number)
}

// CalculateTaxes previews the breakdown for a set of lines
func (s *InvoiceService) CalculateTaxes(ctx context.Context, req TaxPreviewRequest) (*invoicing.TaxBreakdown, error) {
	_, span := telemetry.StartServiceSpan(ctx, "tax", "calculate")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	lines := toDomainLines(req.Rows)
	retention, err := s.resolveRetention(lines, req.Retention)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	breakdown, err := s.calculator.Calculate(lines, invoicing.TaxOptions{
		Retention:          retention,
		SocialSecurityRate: req.SocialSecurityRate,
		StampDuty:          req.StampDuty,
		SplitPayment:       req.SplitPayment,
		ReverseCharge:      req.ReverseCharge,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &breakdown, nil
}

func (s *InvoiceService) publishEvents(ctx context.Context, inv *invoicing.Invoice) {
	if inv == nil {
		return
	}
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish invoice events",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *InvoiceService) today() time.Time {
	n := s.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}
