package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Delivery channels reported in errors and spans
const (
	ChannelEmail = "email"
	ChannelQueue = "queue"
)

// EmailRequest asks for an invoice to be emailed
type EmailRequest struct {
	To        []string `json:"to" binding:"omitempty,max=20,dive,email"`
	Cc        []string `json:"cc" binding:"omitempty,max=20,dive,email"`
	Subject   string   `json:"subject" binding:"omitempty,max=300"`
	Message   string   `json:"message" binding:"omitempty,max=10000"`
	Template  string   `json:"template" binding:"omitempty,max=64"`
	AttachXML bool     `json:"attach_xml"`
	XMLFormat string   `json:"xml_format" binding:"omitempty,oneof=fatturapa peppol"`
	// Async queues the delivery instead of sending it in the request
	Async bool `json:"async"`
}

func (r EmailRequest) toDomain() invoicing.DeliveryRequest {
	return invoicing.DeliveryRequest{
		To:        r.To,
		Cc:        r.Cc,
		Subject:   r.Subject,
		Message:   r.Message,
		Template:  r.Template,
		AttachXML: r.AttachXML,
		XMLFormat: invoicing.EInvoiceFormat(r.XMLFormat),
	}
}

// DeliveryResult reports the outcome of SendByEmail
type DeliveryResult struct {
	Sent      bool      `json:"sent"`
	Queued    bool      `json:"queued,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RenderedDocument is a generated PDF
type RenderedDocument struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Location    string `json:"location,omitempty"`
}

// EInvoiceResponse is a generated e-invoice with its optional validation verdict
type EInvoiceResponse struct {
	Format     string                        `json:"format"`
	Filename   string                        `json:"filename"`
	Hash       string                        `json:"hash"`
	XML        string                        `json:"xml"`
	Validation *invoicing.EInvoiceValidation `json:"validation,omitempty"`
	Location   string                        `json:"location,omitempty"`
}

// DocumentService produces and delivers invoice documents
type DocumentService struct {
	invoices   invoicing.InvoiceRepository
	lifecycle  *InvoiceService
	renderer   invoicing.PDFRenderer
	providers  map[invoicing.EInvoiceFormat]invoicing.EInvoiceProvider
	sender     invoicing.EmailSender
	vat        invoicing.VATValidator
	archive    invoicing.DocumentArchive
	queue      invoicing.DeliveryQueue
	translator invoicing.Translator
	metrics    *telemetry.InvoiceMetrics
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// DocumentServiceOption configures optional collaborators
type DocumentServiceOption func(*DocumentService)

// WithDocumentArchive stores every rendered PDF in archive
func WithDocumentArchive(archive invoicing.DocumentArchive) DocumentServiceOption {
	return func(s *DocumentService) { s.archive = archive }
}

// WithDeliveryQueue enables asynchronous email delivery
func WithDeliveryQueue(queue invoicing.DeliveryQueue) DocumentServiceOption {
	return func(s *DocumentService) { s.queue = queue }
}

// WithTranslator localizes default email subjects and bodies
func WithTranslator(t invoicing.Translator) DocumentServiceOption {
	return func(s *DocumentService) { s.translator = t }
}

// WithDocumentMetrics records render durations and outcomes
func WithDocumentMetrics(m *telemetry.InvoiceMetrics) DocumentServiceOption {
	return func(s *DocumentService) { s.metrics = m }
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(
	invoices invoicing.InvoiceRepository,
	lifecycle *InvoiceService,
	renderer invoicing.PDFRenderer,
	providers []invoicing.EInvoiceProvider,
	sender invoicing.EmailSender,
	vat invoicing.VATValidator,
	logger *zap.Logger,
	opts ...DocumentServiceOption,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.SetTagName("binding")
	s := &DocumentService{
		invoices:  invoices,
		lifecycle: lifecycle,
		renderer:  renderer,
		providers: make(map[invoicing.EInvoiceFormat]invoicing.EInvoiceProvider, len(providers)),
		sender:    sender,
		vat:       vat,
		validate:  v,
		logger:    logger.Named("document_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, p := range providers {
		s.providers[p.Format()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ArchiveKey returns the object key of an invoice document
func ArchiveKey(inv *invoicing.Invoice, ext string) string {
	return fmt.Sprintf("invoices/%s/%s.%s", inv.TenantID, safeFilename(inv.InvoiceNumber), ext)
}

func safeFilename(number string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, number)
}

// RenderPDF renders the invoice with the named template and archives the result
func (s *DocumentService) RenderPDF(ctx context.Context, tenantID, id uuid.UUID, template string) (*RenderedDocument, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "render_pdf")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID, telemetry.SpanAttrInvoiceID, id)

	inv, err := s.invoices.FindByID(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	doc, err := s.renderPDF(ctx, inv, template)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) renderPDF(ctx context.Context, inv *invoicing.Invoice, template string) (*RenderedDocument, error) {
	if s.renderer == nil {
		return nil, invoicing.NewPDFGenerationError(inv.ID, fmt.Errorf("no PDF renderer configured"))
	}
	start := time.Now()
	data, err := s.renderer.RenderInvoice(ctx, inv, template)
	s.metrics.RecordDocument(ctx, "pdf", time.Since(start), err)
	if err != nil {
		s.logger.Error("PDF rendering failed",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("template", template),
			zap.Error(err),
		)
		return nil, invoicing.NewPDFGenerationError(inv.ID, err)
	}

	doc := &RenderedDocument{
		Filename:    safeFilename(inv.InvoiceNumber) + ".pdf",
		ContentType: "application/pdf",
		Data:        data,
	}
	doc.Location = s.store(ctx, inv, ArchiveKey(inv, "pdf"), doc.ContentType, data)
	return doc, nil
}

// ExportEInvoice generates the e-invoice XML. With validate set, a document
// failing the structural check is reported as a generation error.
func (s *DocumentService) ExportEInvoice(ctx context.Context, tenantID, id uuid.UUID, format string, validate bool) (*EInvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "export_einvoice")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrInvoiceID, id,
		telemetry.SpanAttrFormat, format,
	)

	inv, err := s.invoices.FindByID(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	doc, validation, err := s.generateEInvoice(ctx, inv, invoicing.EInvoiceFormat(format), validate)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := &EInvoiceResponse{
		Format:     string(doc.Format),
		Filename:   safeFilename(inv.InvoiceNumber) + ".xml",
		Hash:       doc.Hash,
		XML:        string(doc.XML),
		Validation: validation,
	}
	resp.Location = s.store(ctx, inv, ArchiveKey(inv, string(doc.Format)+".xml"), "application/xml", doc.XML)
	return resp, nil
}

// store archives a document and returns its location. Archive failures
// are logged and yield an empty location.
func (s *DocumentService) store(ctx context.Context, inv *invoicing.Invoice, key, contentType string, data []byte) string {
	if s.archive == nil {
		return ""
	}
	location, err := s.archive.Put(ctx, key, contentType, data)
	if err != nil {
		s.logger.Warn("Failed to archive document",
			zap.String("tenant_id", inv.TenantID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("key", key),
			zap.Error(err),
		)
		return ""
	}
	return location
}

func (s *DocumentService) generateEInvoice(
	ctx context.Context,
	inv *invoicing.Invoice,
	format invoicing.EInvoiceFormat,
	validate bool,
) (*invoicing.EInvoiceDocument, *invoicing.EInvoiceValidation, error) {
	if !format.IsValid() {
		return nil, nil, invoicing.NewInvalidInvoiceDataError("format", "unsupported e-invoice format "+string(format))
	}
	provider, ok := s.providers[format]
	if !ok {
		return nil, nil, invoicing.NewEInvoiceGenerationError(inv.ID, string(format), fmt.Errorf("no provider configured"))
	}

	start := time.Now()
	doc, err := provider.Generate(ctx, inv)
	s.metrics.RecordDocument(ctx, string(format), time.Since(start), err)
	if err != nil {
		return nil, nil, invoicing.NewEInvoiceGenerationError(inv.ID, string(format), err)
	}
	if !validate {
		return doc, nil, nil
	}

	result, err := provider.Validate(ctx, doc.XML)
	if err != nil {
		return nil, nil, invoicing.NewEInvoiceGenerationError(inv.ID, string(format), err)
	}
	if !result.Valid {
		genErr := invoicing.NewEInvoiceGenerationError(inv.ID, string(format),
			fmt.Errorf("validation failed: %s", strings.Join(result.Errors, "; "))).
			WithDetail("errors", result.Errors)
		return nil, nil, genErr
	}
	return doc, &result, nil
}

// SendByEmail delivers the invoice PDF, and optionally its XML, by email.
// With Async set and a queue configured the delivery is queued instead.
// A successful synchronous send marks the invoice as sent.
func (s *DocumentService) SendByEmail(ctx context.Context, tenantID, id uuid.UUID, req EmailRequest) (*DeliveryResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "send_email")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrInvoiceID, id,
		telemetry.SpanAttrChannel, ChannelEmail,
	)

	if err := s.validate.Struct(req); err != nil {
		verr := invoicing.NewInvalidInvoiceDataError("email", err.Error())
		telemetry.RecordError(span, verr)
		return nil, verr
	}

	inv, err := s.invoices.FindByID(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := checkDeliverable(inv, req.toDomain()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if req.Async && s.queue != nil {
		taskID, err := s.queue.EnqueueEmail(ctx, tenantID, id, req.toDomain())
		if err != nil {
			derr := invoicing.NewDeliveryError(id, ChannelQueue, err)
			telemetry.RecordError(span, derr)
			return nil, derr
		}
		telemetry.AddEvent(span, "delivery_queued", "task_id", taskID)
		s.logger.Info("Invoice email queued",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("task_id", taskID),
		)
		return &DeliveryResult{Queued: true, TaskID: taskID, Timestamp: s.now()}, nil
	}

	result, err := s.deliver(ctx, inv, req.toDomain())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// DeliverEmail performs a delivery synchronously. It is the entry point of
// the background worker.
func (s *DocumentService) DeliverEmail(ctx context.Context, tenantID, id uuid.UUID, req invoicing.DeliveryRequest) error {
	inv, err := s.invoices.FindByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := checkDeliverable(inv, req); err != nil {
		return err
	}
	_, err = s.deliver(ctx, inv, req)
	return err
}

func checkDeliverable(inv *invoicing.Invoice, req invoicing.DeliveryRequest) error {
	switch inv.Status {
	case invoicing.InvoiceStatusDraft, invoicing.InvoiceStatusCanceled:
		return invoicing.NewInvoiceStateError(inv.ID, inv.Status, "cannot send an invoice in status "+inv.Status.String())
	}
	if len(req.To) == 0 && strings.TrimSpace(inv.Customer.Email) == "" {
		return invoicing.NewInvalidInvoiceDataError("to", "no recipient and the customer has no email")
	}
	return nil
}

func (s *DocumentService) deliver(ctx context.Context, inv *invoicing.Invoice, req invoicing.DeliveryRequest) (*DeliveryResult, error) {
	if s.sender == nil {
		return nil, invoicing.NewDeliveryError(inv.ID, ChannelEmail, fmt.Errorf("no email sender configured"))
	}

	pdf, err := s.renderPDF(ctx, inv, req.Template)
	if err != nil {
		return nil, err
	}
	attachments := []invoicing.Attachment{{Filename: pdf.Filename, ContentType: pdf.ContentType, Data: pdf.Data}}

	if req.AttachXML {
		format := req.XMLFormat
		if format == "" {
			format = defaultEInvoiceFormat(inv)
		}
		doc, _, err := s.generateEInvoice(ctx, inv, format, false)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, invoicing.Attachment{
			Filename:    safeFilename(inv.InvoiceNumber) + ".xml",
			ContentType: "application/xml",
			Data:        doc.XML,
		})
	}

	to := req.To
	if len(to) == 0 {
		to = []string{inv.Customer.Email}
	}
	msg := invoicing.EmailMessage{
		To:          to,
		Cc:          req.Cc,
		Subject:     req.Subject,
		Body:        req.Message,
		Attachments: attachments,
	}
	if msg.Subject == "" {
		msg.Subject = s.translate(inv.Language, "email.subject", inv.Type.String(), inv.InvoiceNumber, inv.Company.Name)
	}
	if msg.Body == "" {
		msg.Body = s.translate(inv.Language, "email.body", inv.Customer.DisplayName(), inv.InvoiceNumber,
			inv.Totals.NetToPay.StringFixed(2)+" "+inv.Currency.String(), inv.DueDate().Format("2006-01-02"))
	}

	messageID, err := s.sender.Send(ctx, msg)
	if err != nil {
		s.logger.Error("Invoice email failed",
			zap.String("tenant_id", inv.TenantID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Error(err),
		)
		return nil, invoicing.NewDeliveryError(inv.ID, ChannelEmail, err)
	}

	sentAt := s.now()
	if inv.Status.IsOutstanding() && s.lifecycle != nil {
		if _, err := s.lifecycle.MarkAsSent(ctx, inv.TenantID, inv.ID); err != nil {
			// the email is already out
			s.logger.Warn("Email sent but marking invoice as sent failed",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Invoice emailed",
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Strings("to", to),
		zap.String("message_id", messageID),
	)
	return &DeliveryResult{Sent: true, MessageID: messageID, Timestamp: sentAt}, nil
}

// defaultEInvoiceFormat picks FatturaPA for Italian issuers and PEPPOL otherwise
func defaultEInvoiceFormat(inv *invoicing.Invoice) invoicing.EInvoiceFormat {
	if strings.EqualFold(inv.Company.Address.Country, "IT") {
		return invoicing.EInvoiceFormatFatturaPA
	}
	return invoicing.EInvoiceFormatPEPPOL
}

func (s *DocumentService) translate(lang, key string, args ...any) string {
	if s.translator != nil {
		return s.translator.Translate(lang, key, args...)
	}
	switch key {
	case "email.subject":
		return fmt.Sprintf("%s %s from %s", args...)
	case "email.body":
		return fmt.Sprintf("Dear %s,\n\nplease find attached invoice %s for %s, due on %s.\n", args...)
	}
	return key
}

// ValidateVATNumber checks a VAT number's format and, when configured, the registry
func (s *DocumentService) ValidateVATNumber(ctx context.Context, vatNumber string) (*invoicing.VATValidation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "vat", "validate")
	defer span.End()

	if strings.TrimSpace(vatNumber) == "" {
		return nil, invoicing.NewInvalidVATNumberError(vatNumber, "is required")
	}
	if s.vat == nil {
		return nil, fmt.Errorf("no VAT validator configured")
	}
	result, err := s.vat.Validate(ctx, vatNumber)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, "valid", result.Valid)
	return &result, nil
}

// PDFTemplates lists the templates the renderer knows
func (s *DocumentService) PDFTemplates() []string {
	if s.renderer == nil {
		return nil
	}
	return s.renderer.Templates()
}
