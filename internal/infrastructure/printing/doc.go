// Package printing renders invoices to PDF. HTML templates are executed
// with localized formatting helpers and the resulting page is printed by
// a headless Chrome driven through chromedp.
//
// Example usage:
//
//	chrome, err := NewChromedpRenderer(&ChromedpConfig{NoSandbox: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer chrome.Close()
//
//	store, _ := NewTemplateStore(&TemplateStoreConfig{ExternalDir: cfg.PDF.TemplateDir})
//	renderer := NewInvoiceRenderer(chrome, store, nil, logger)
//	pdf, err := renderer.RenderInvoice(ctx, inv, "default")
package printing
