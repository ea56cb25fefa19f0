package invoicing

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPDFRenderer is a testify mock of invoicing.PDFRenderer
type MockPDFRenderer struct {
	mock.Mock
}

func (m *MockPDFRenderer) RenderInvoice(ctx context.Context, inv *invoicing.Invoice, template string) ([]byte, error) {
	args := m.Called(ctx, inv, template)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPDFRenderer) Templates() []string {
	return []string{"classic"}
}

// MockEInvoiceProvider is a testify mock of invoicing.EInvoiceProvider
type MockEInvoiceProvider struct {
	mock.Mock
	format invoicing.EInvoiceFormat
}

func (m *MockEInvoiceProvider) Format() invoicing.EInvoiceFormat { return m.format }

func (m *MockEInvoiceProvider) Generate(ctx context.Context, inv *invoicing.Invoice) (*invoicing.EInvoiceDocument, error) {
	args := m.Called(ctx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.EInvoiceDocument), args.Error(1)
}

func (m *MockEInvoiceProvider) Validate(ctx context.Context, xml []byte) (invoicing.EInvoiceValidation, error) {
	args := m.Called(ctx, xml)
	return args.Get(0).(invoicing.EInvoiceValidation), args.Error(1)
}

// MockEmailSender is a testify mock of invoicing.EmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg invoicing.EmailMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// MockVATValidator is a testify mock of invoicing.VATValidator
type MockVATValidator struct {
	mock.Mock
}

func (m *MockVATValidator) Validate(ctx context.Context, vatNumber string) (invoicing.VATValidation, error) {
	args := m.Called(ctx, vatNumber)
	return args.Get(0).(invoicing.VATValidation), args.Error(1)
}

// MockDocumentArchive is a testify mock of invoicing.DocumentArchive
type MockDocumentArchive struct {
	mock.Mock
}

func (m *MockDocumentArchive) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.String(0), args.Error(1)
}

// MockDeliveryQueue is a testify mock of invoicing.DeliveryQueue
type MockDeliveryQueue struct {
	mock.Mock
}

func (m *MockDeliveryQueue) EnqueueEmail(ctx context.Context, tenantID, invoiceID uuid.UUID, req invoicing.DeliveryRequest) (string, error) {
	args := m.Called(ctx, tenantID, invoiceID, req)
	return args.String(0), args.Error(1)
}

type documentFixture struct {
	*serviceFixture
	docs     *DocumentService
	renderer *MockPDFRenderer
	peppol   *MockEInvoiceProvider
	fattura  *MockEInvoiceProvider
	sender   *MockEmailSender
	vat      *MockVATValidator
	archive  *MockDocumentArchive
	queue    *MockDeliveryQueue
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	f := &documentFixture{
		serviceFixture: newServiceFixture(t),
		renderer:       new(MockPDFRenderer),
		peppol:         &MockEInvoiceProvider{format: invoicing.EInvoiceFormatPEPPOL},
		fattura:        &MockEInvoiceProvider{format: invoicing.EInvoiceFormatFatturaPA},
		sender:         new(MockEmailSender),
		vat:            new(MockVATValidator),
		archive:        new(MockDocumentArchive),
		queue:          new(MockDeliveryQueue),
	}
	f.docs = NewDocumentService(
		f.invoices, f.svc, f.renderer,
		[]invoicing.EInvoiceProvider{f.peppol, f.fattura},
		f.sender, f.vat, nil,
		WithDocumentArchive(f.archive),
		WithDeliveryQueue(f.queue),
	)
	return f
}

func TestRenderPDF_ArchivesDocument(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)
	pdf := []byte("%PDF-1.7")

	f.renderer.On("RenderInvoice", mock.Anything, mock.Anything, "classic").Return(pdf, nil)
	key := "invoices/" + f.tenantID.String() + "/ACME-2025-000001.pdf"
	f.archive.On("Put", mock.Anything, key, "application/pdf", pdf).Return("s3://docs/"+key, nil)

	doc, err := f.docs.RenderPDF(context.Background(), f.tenantID, inv.ID, "classic")
	require.NoError(t, err)
	assert.Equal(t, pdf, doc.Data)
	assert.Equal(t, "ACME-2025-000001.pdf", doc.Filename)
	assert.Equal(t, "s3://docs/"+key, doc.Location)
	f.archive.AssertExpectations(t)
}

func TestRenderPDF_Failures(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)

	f.renderer.On("RenderInvoice", mock.Anything, mock.Anything, "broken").Return(nil, errors.New("chrome crashed"))
	_, err := f.docs.RenderPDF(context.Background(), f.tenantID, inv.ID, "broken")
	assert.True(t, errors.Is(err, invoicing.ErrPDFGeneration))

	_, err = f.docs.RenderPDF(context.Background(), f.tenantID, uuid.New(), "classic")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestRenderPDF_ArchiveFailureStillReturnsDocument(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)

	f.renderer.On("RenderInvoice", mock.Anything, mock.Anything, "").Return([]byte("pdf"), nil)
	f.archive.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket missing"))

	doc, err := f.docs.RenderPDF(context.Background(), f.tenantID, inv.ID, "")
	require.NoError(t, err)
	assert.Empty(t, doc.Location)
}

func TestExportEInvoice(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)
	xml := []byte("<Invoice/>")

	f.peppol.On("Generate", mock.Anything, mock.Anything).
		Return(&invoicing.EInvoiceDocument{Format: invoicing.EInvoiceFormatPEPPOL, XML: xml, Hash: "abc"}, nil)
	f.peppol.On("Validate", mock.Anything, xml).Return(invoicing.EInvoiceValidation{Valid: true}, nil)
	stored, err := f.invoices.FindByID(context.Background(), f.tenantID, inv.ID)
	require.NoError(t, err)
	key := ArchiveKey(stored, "peppol.xml")
	f.archive.On("Put", mock.Anything, key, "application/xml", xml).Return("s3://docs/"+key, nil)

	resp, err := f.docs.ExportEInvoice(context.Background(), f.tenantID, inv.ID, "peppol", true)
	require.NoError(t, err)
	assert.Equal(t, "peppol", resp.Format)
	assert.Equal(t, "s3://docs/"+key, resp.Location)
	f.archive.AssertExpectations(t)
	assert.Equal(t, "<Invoice/>", resp.XML)
	assert.Equal(t, "abc", resp.Hash)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.Valid)

	_, err = f.docs.ExportEInvoice(context.Background(), f.tenantID, inv.ID, "ubl", false)
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))
}

func TestExportEInvoice_ValidationFailure(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)
	xml := []byte("<FatturaElettronica/>")

	f.fattura.On("Generate", mock.Anything, mock.Anything).
		Return(&invoicing.EInvoiceDocument{Format: invoicing.EInvoiceFormatFatturaPA, XML: xml}, nil)
	f.fattura.On("Validate", mock.Anything, xml).
		Return(invoicing.EInvoiceValidation{Valid: false, Errors: []string{"missing CodiceDestinatario"}}, nil)

	_, err := f.docs.ExportEInvoice(context.Background(), f.tenantID, inv.ID, "fatturapa", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrEInvoiceGeneration))
	assert.Contains(t, err.Error(), "missing CodiceDestinatario")
}

func TestSendByEmail_SendsAndMarksSent(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)
	xml := []byte("<FatturaElettronica/>")

	f.renderer.On("RenderInvoice", mock.Anything, mock.Anything, "").Return([]byte("pdf"), nil)
	f.archive.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("loc", nil)
	f.fattura.On("Generate", mock.Anything, mock.Anything).
		Return(&invoicing.EInvoiceDocument{Format: invoicing.EInvoiceFormatFatturaPA, XML: xml}, nil)
	f.sender.On("Send", mock.Anything, mock.MatchedBy(func(msg invoicing.EmailMessage) bool {
		return len(msg.To) == 1 && msg.To[0] == "billing@cliente.it" &&
			len(msg.Attachments) == 2 &&
			msg.Attachments[1].Filename == "ACME-2025-000001.xml" &&
			msg.Subject != ""
	})).Return("msg-42", nil)

	result, err := f.docs.SendByEmail(context.Background(), f.tenantID, inv.ID, EmailRequest{AttachXML: true})
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Equal(t, "msg-42", result.MessageID)

	got, err := f.svc.GetInvoice(context.Background(), f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "sent", got.Status)
	f.sender.AssertExpectations(t)
}

func TestSendByEmail_SenderFailureLeavesStatus(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)

	f.renderer.On("RenderInvoice", mock.Anything, mock.Anything, "").Return([]byte("pdf"), nil)
	f.archive.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("loc", nil)
	f.sender.On("Send", mock.Anything, mock.Anything).Return("", errors.New("550 mailbox unavailable"))

	_, err := f.docs.SendByEmail(context.Background(), f.tenantID, inv.ID, EmailRequest{To: []string{"a@b.it"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, invoicing.ErrDelivery))

	got, err := f.svc.GetInvoice(context.Background(), f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "issued", got.Status)
}

func TestSendByEmail_Async(t *testing.T) {
	f := newDocumentFixture(t)
	inv := f.create(t)

	f.queue.On("EnqueueEmail", mock.Anything, f.tenantID, inv.ID, mock.Anything).Return("task-1", nil)

	result, err := f.docs.SendByEmail(context.Background(), f.tenantID, inv.ID, EmailRequest{Async: true})
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.False(t, result.Sent)
	assert.Equal(t, "task-1", result.TaskID)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendByEmail_Rejections(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	_, err := f.docs.SendByEmail(ctx, f.tenantID, uuid.New(), EmailRequest{To: []string{"not-an-email"}})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	req := createRequest()
	req.Customer.Email = ""
	noEmail, err := f.svc.CreateInvoice(ctx, f.tenantID, req)
	require.NoError(t, err)
	_, err = f.docs.SendByEmail(ctx, f.tenantID, noEmail.ID, EmailRequest{})
	assert.True(t, errors.Is(err, invoicing.ErrInvalidInvoiceData))

	canceled := f.create(t)
	_, err = f.svc.CancelInvoice(ctx, f.tenantID, canceled.ID, CancelInvoiceRequest{})
	require.NoError(t, err)
	_, err = f.docs.SendByEmail(ctx, f.tenantID, canceled.ID, EmailRequest{})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestValidateVATNumber(t *testing.T) {
	f := newDocumentFixture(t)

	f.vat.On("Validate", mock.Anything, "IT12345678901").
		Return(invoicing.VATValidation{Valid: true, CountryCode: "IT", Number: "12345678901"}, nil)

	res, err := f.docs.ValidateVATNumber(context.Background(), "IT12345678901")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, err = f.docs.ValidateVATNumber(context.Background(), " ")
	assert.True(t, errors.Is(err, invoicing.ErrInvalidVATNumber))
}

func TestArchiveKey(t *testing.T) {
	inv := &invoicing.Invoice{InvoiceNumber: "ACME/2025 01"}
	inv.TenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	assert.Equal(t, "invoices/00000000-0000-0000-0000-000000000001/ACME_2025_01.pdf", ArchiveKey(inv, "pdf"))
}
