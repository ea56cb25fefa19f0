package printing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InvoiceView is the data handed to invoice templates
type InvoiceView struct {
	Invoice  *invoicing.Invoice
	Title    string
	DueDate  time.Time
	Language string
	Notes    []string
}

// NewInvoiceView builds the template data of an invoice. Legal notes for
// split payment and reverse charge are added in the document language.
func NewInvoiceView(inv *invoicing.Invoice, translate func(key string) string) InvoiceView {
	v := InvoiceView{
		Invoice:  inv,
		Title:    translate("doc." + inv.Type.String()),
		DueDate:  inv.DueDate(),
		Language: inv.Language,
	}
	if inv.SplitPayment {
		v.Notes = append(v.Notes, translate("note.split_payment"))
	}
	if inv.ReverseCharge {
		v.Notes = append(v.Notes, translate("note.reverse_charge"))
	}
	return v
}

// InvoiceRenderer implements invoicing.PDFRenderer: it executes a stored
// template and prints the HTML through a PDFRenderer.
type InvoiceRenderer struct {
	pdf       PDFRenderer
	templates *TemplateStore
	engine    *TemplateEngine
	paperSize PaperSize
	logger    *zap.Logger
}

// NewInvoiceRenderer creates a new InvoiceRenderer
func NewInvoiceRenderer(pdf PDFRenderer, templates *TemplateStore, engine *TemplateEngine, logger *zap.Logger) *InvoiceRenderer {
	if engine == nil {
		engine = NewTemplateEngine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceRenderer{
		pdf:       pdf,
		templates: templates,
		engine:    engine,
		paperSize: PaperSizeA4,
		logger:    logger.Named("invoice_renderer"),
	}
}

// RenderHTML executes the named template for inv
func (r *InvoiceRenderer) RenderHTML(ctx context.Context, inv *invoicing.Invoice, name string) (string, error) {
	if name == "" {
		name = DefaultTemplate
	}
	content, ok := r.templates.Get(name)
	if !ok {
		return "", NewRenderError(ErrCodeTemplateNotFound, fmt.Sprintf("template %q not found", name), nil)
	}
	loc := Locale{Language: inv.Language, Currency: inv.Currency.String()}
	view := NewInvoiceView(inv, func(key string) string {
		return r.engine.translator.Translate(inv.Language, key)
	})
	return r.engine.Render(ctx, name, content, loc, view)
}

// RenderInvoice renders inv to PDF with the named template
func (r *InvoiceRenderer) RenderInvoice(ctx context.Context, inv *invoicing.Invoice, name string) ([]byte, error) {
	html, err := r.RenderHTML(ctx, inv, name)
	if err != nil {
		return nil, err
	}
	var result *RenderResult
	telemetry.Labeled(ctx, func(ctx context.Context) {
		result, err = r.pdf.Render(ctx, &RenderRequest{
			HTML:       html,
			PaperSize:  r.paperSize,
			Margins:    DefaultMargins(),
			Title:      inv.InvoiceNumber,
			FooterHTML: `<div style="font-size:8px;width:100%;text-align:center"><span class="pageNumber"></span>/<span class="totalPages"></span></div>`,
		})
	}, telemetry.ProfileLabelOperation, "render_pdf", "template", name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Invoice rendered",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("template", name),
		zap.Int("pages", result.PageCount),
	)
	return result.PDFData, nil
}

// Templates lists the available template names
func (r *InvoiceRenderer) Templates() []string {
	return r.templates.Names()
}

var _ invoicing.PDFRenderer = (*InvoiceRenderer)(nil)
