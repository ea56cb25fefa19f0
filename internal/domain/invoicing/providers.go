package invoicing

import (
	"context"

	"github.com/google/uuid"
)

// PDFRenderer turns an invoice snapshot into a PDF document
type PDFRenderer interface {
	RenderInvoice(ctx context.Context, inv *Invoice, template string) ([]byte, error)
	Templates() []string
}

// EInvoiceFormat identifies an electronic invoice standard
type EInvoiceFormat string

const (
	EInvoiceFormatFatturaPA EInvoiceFormat = "fatturapa"
	EInvoiceFormatPEPPOL    EInvoiceFormat = "peppol"
)

// IsValid checks if the format is supported
func (f EInvoiceFormat) IsValid() bool {
	return f == EInvoiceFormatFatturaPA || f == EInvoiceFormatPEPPOL
}

// EInvoiceDocument is a generated electronic invoice
type EInvoiceDocument struct {
	Format EInvoiceFormat `json:"format"`
	XML    []byte         `json:"-"`
	Hash   string         `json:"hash"`
}

// EInvoiceValidation is the verdict of a structural check
type EInvoiceValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// EInvoiceProvider generates and validates one e-invoice format
type EInvoiceProvider interface {
	Format() EInvoiceFormat
	Generate(ctx context.Context, inv *Invoice) (*EInvoiceDocument, error)
	Validate(ctx context.Context, xml []byte) (EInvoiceValidation, error)
}

// Attachment is a file sent along with an email
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailMessage is a fully rendered outgoing email
type EmailMessage struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// EmailSender delivers an email and returns the provider message id
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// DeliveryRequest describes an email delivery of an invoice
type DeliveryRequest struct {
	To        []string       `json:"to"`
	Cc        []string       `json:"cc,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Message   string         `json:"message,omitempty"`
	Template  string         `json:"template,omitempty"`
	AttachXML bool           `json:"attach_xml"`
	XMLFormat EInvoiceFormat `json:"xml_format,omitempty"`
}

// DeliveryQueue hands an email delivery to a background worker
type DeliveryQueue interface {
	EnqueueEmail(ctx context.Context, tenantID, invoiceID uuid.UUID, req DeliveryRequest) (taskID string, err error)
}

// DocumentArchive keeps rendered documents in object storage
type DocumentArchive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (location string, err error)
}

// VATValidation is the verdict on a VAT number
type VATValidation struct {
	Valid       bool   `json:"valid"`
	CountryCode string `json:"country_code"`
	Number      string `json:"vat_number"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// VATValidator checks VAT numbers, locally or against a registry
type VATValidator interface {
	Validate(ctx context.Context, vatNumber string) (VATValidation, error)
}

// Translator looks up localized document strings
type Translator interface {
	Translate(lang, key string, args ...any) string
}
