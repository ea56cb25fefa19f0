package einvoice

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/shopspring/decimal"
)

const (
	fatturaPANamespace   = "http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2"
	fatturaPAVersion     = "FPR12"
	fatturaPADateLayout  = "2006-01-02"
	codiceDestinatarioPA = "0000000"
	codiceDestinatarioEU = "XXXXXXX"
	regimeOrdinario      = "RF01"
)

type fatturaElettronica struct {
	XMLName  xml.Name `xml:"p:FatturaElettronica"`
	Versione string   `xml:"versione,attr"`
	XMLNSP   string   `xml:"xmlns:p,attr"`
	Header   fpHeader `xml:"FatturaElettronicaHeader"`
	Body     fpBody   `xml:"FatturaElettronicaBody"`
}

// fpDecoded mirrors fatturaElettronica for reading. The root name is
// checked by hand because encoding/xml does not resolve the p: prefix.
type fpDecoded struct {
	XMLName xml.Name
	Header  fpHeader `xml:"FatturaElettronicaHeader"`
	Body    fpBody   `xml:"FatturaElettronicaBody"`
}

type fpHeader struct {
	DatiTrasmissione       fpDatiTrasmissione `xml:"DatiTrasmissione"`
	CedentePrestatore      fpParty            `xml:"CedentePrestatore"`
	CessionarioCommittente fpParty            `xml:"CessionarioCommittente"`
}

type fpDatiTrasmissione struct {
	IdTrasmittente      fpIDFiscale `xml:"IdTrasmittente"`
	ProgressivoInvio    string      `xml:"ProgressivoInvio"`
	FormatoTrasmissione string      `xml:"FormatoTrasmissione"`
	CodiceDestinatario  string      `xml:"CodiceDestinatario"`
	PECDestinatario     string      `xml:"PECDestinatario,omitempty"`
}

type fpIDFiscale struct {
	IdPaese  string `xml:"IdPaese"`
	IdCodice string `xml:"IdCodice"`
}

type fpParty struct {
	DatiAnagrafici fpDatiAnagrafici `xml:"DatiAnagrafici"`
	Sede           fpSede           `xml:"Sede"`
}

type fpDatiAnagrafici struct {
	IdFiscaleIVA  *fpIDFiscale `xml:"IdFiscaleIVA,omitempty"`
	CodiceFiscale string       `xml:"CodiceFiscale,omitempty"`
	Anagrafica    fpAnagrafica `xml:"Anagrafica"`
	RegimeFiscale string       `xml:"RegimeFiscale,omitempty"`
}

type fpAnagrafica struct {
	Denominazione string `xml:"Denominazione"`
}

type fpSede struct {
	Indirizzo string `xml:"Indirizzo"`
	CAP       string `xml:"CAP"`
	Comune    string `xml:"Comune"`
	Provincia string `xml:"Provincia,omitempty"`
	Nazione   string `xml:"Nazione"`
}

type fpBody struct {
	DatiGenerali    fpDatiGenerali    `xml:"DatiGenerali"`
	DatiBeniServizi fpDatiBeniServizi `xml:"DatiBeniServizi"`
	DatiPagamento   *fpDatiPagamento  `xml:"DatiPagamento,omitempty"`
}

type fpDatiGenerali struct {
	DatiGeneraliDocumento fpDocumento     `xml:"DatiGeneraliDocumento"`
	DatiFattureCollegate  *fpDocCollegato `xml:"DatiFattureCollegate,omitempty"`
}

type fpDocumento struct {
	TipoDocumento          string      `xml:"TipoDocumento"`
	Divisa                 string      `xml:"Divisa"`
	Data                   string      `xml:"Data"`
	Numero                 string      `xml:"Numero"`
	DatiRitenuta           *fpRitenuta `xml:"DatiRitenuta,omitempty"`
	DatiBollo              *fpBollo    `xml:"DatiBollo,omitempty"`
	DatiCassaPrevidenziale *fpCassa    `xml:"DatiCassaPrevidenziale,omitempty"`
	ImportoTotaleDocumento string      `xml:"ImportoTotaleDocumento"`
	Causale                []string    `xml:"Causale,omitempty"`
}

type fpDocCollegato struct {
	IdDocumento string `xml:"IdDocumento"`
}

type fpRitenuta struct {
	TipoRitenuta     string `xml:"TipoRitenuta"`
	ImportoRitenuta  string `xml:"ImportoRitenuta"`
	AliquotaRitenuta string `xml:"AliquotaRitenuta"`
	CausalePagamento string `xml:"CausalePagamento"`
}

type fpBollo struct {
	BolloVirtuale string `xml:"BolloVirtuale"`
	ImportoBollo  string `xml:"ImportoBollo"`
}

type fpCassa struct {
	TipoCassa              string `xml:"TipoCassa"`
	AlCassa                string `xml:"AlCassa"`
	ImportoContributoCassa string `xml:"ImportoContributoCassa"`
	AliquotaIVA            string `xml:"AliquotaIVA"`
	Natura                 string `xml:"Natura,omitempty"`
}

type fpDatiBeniServizi struct {
	DettaglioLinee []fpLinea     `xml:"DettaglioLinee"`
	DatiRiepilogo  []fpRiepilogo `xml:"DatiRiepilogo"`
}

type fpLinea struct {
	NumeroLinea         int       `xml:"NumeroLinea"`
	CodiceArticolo      *fpCodice `xml:"CodiceArticolo,omitempty"`
	Descrizione         string    `xml:"Descrizione"`
	Quantita            string    `xml:"Quantita"`
	UnitaMisura         string    `xml:"UnitaMisura,omitempty"`
	PrezzoUnitario      string    `xml:"PrezzoUnitario"`
	ScontoMaggiorazione *fpSconto `xml:"ScontoMaggiorazione,omitempty"`
	PrezzoTotale        string    `xml:"PrezzoTotale"`
	AliquotaIVA         string    `xml:"AliquotaIVA"`
	Ritenuta            string    `xml:"Ritenuta,omitempty"`
	Natura              string    `xml:"Natura,omitempty"`
}

type fpCodice struct {
	CodiceTipo   string `xml:"CodiceTipo"`
	CodiceValore string `xml:"CodiceValore"`
}

type fpSconto struct {
	Tipo        string `xml:"Tipo"`
	Percentuale string `xml:"Percentuale"`
}

type fpRiepilogo struct {
	AliquotaIVA          string `xml:"AliquotaIVA"`
	Natura               string `xml:"Natura,omitempty"`
	ImponibileImporto    string `xml:"ImponibileImporto"`
	Imposta              string `xml:"Imposta"`
	EsigibilitaIVA       string `xml:"EsigibilitaIVA,omitempty"`
	RiferimentoNormativo string `xml:"RiferimentoNormativo,omitempty"`
}

type fpDatiPagamento struct {
	CondizioniPagamento string               `xml:"CondizioniPagamento"`
	DettaglioPagamento  fpDettaglioPagamento `xml:"DettaglioPagamento"`
}

type fpDettaglioPagamento struct {
	ModalitaPagamento     string `xml:"ModalitaPagamento"`
	DataScadenzaPagamento string `xml:"DataScadenzaPagamento,omitempty"`
	ImportoPagamento      string `xml:"ImportoPagamento"`
	IstitutoFinanziario   string `xml:"IstitutoFinanziario,omitempty"`
	IBAN                  string `xml:"IBAN,omitempty"`
	BIC                   string `xml:"BIC,omitempty"`
}

var tipoDocumento = map[invoicing.InvoiceType]string{
	invoicing.InvoiceTypeInvoice:        "TD01",
	invoicing.InvoiceTypeAdvanceInvoice: "TD02",
	invoicing.InvoiceTypeCreditNote:     "TD04",
	invoicing.InvoiceTypeDebitNote:      "TD05",
}

var modalitaPagamento = map[invoicing.PaymentMethod]string{
	invoicing.PaymentMethodCash:         "MP01",
	invoicing.PaymentMethodCheck:        "MP02",
	invoicing.PaymentMethodBankTransfer: "MP05",
	invoicing.PaymentMethodCreditCard:   "MP08",
	invoicing.PaymentMethodPayPal:       "MP08",
	invoicing.PaymentMethodStripe:       "MP08",
	invoicing.PaymentMethodRID:          "MP09",
	invoicing.PaymentMethodRiBa:         "MP12",
	invoicing.PaymentMethodSEPADirect:   "MP19",
}

// FatturaPAProvider generates FatturaPA 1.2 documents for B2B and B2C
// transmission through SDI
type FatturaPAProvider struct{}

// NewFatturaPAProvider creates a new FatturaPAProvider
func NewFatturaPAProvider() *FatturaPAProvider {
	return &FatturaPAProvider{}
}

// Format implements invoicing.EInvoiceProvider
func (p *FatturaPAProvider) Format() invoicing.EInvoiceFormat {
	return invoicing.EInvoiceFormatFatturaPA
}

// Generate implements invoicing.EInvoiceProvider
func (p *FatturaPAProvider) Generate(_ context.Context, inv *invoicing.Invoice) (*invoicing.EInvoiceDocument, error) {
	tipo, ok := tipoDocumento[inv.Type]
	if !ok {
		return nil, fmt.Errorf("%s documents are not transmitted through SDI", inv.Type)
	}
	if inv.Company.TaxInfo.VATNumber == "" {
		return nil, fmt.Errorf("company VAT number is required")
	}

	cedenteCountry, cedenteCode := splitVAT(inv.Company.TaxInfo.VATNumber, inv.Company.Address.Country)
	cessionario, err := fpCustomer(inv.Customer)
	if err != nil {
		return nil, err
	}

	doc := fatturaElettronica{
		Versione: fatturaPAVersion,
		XMLNSP:   fatturaPANamespace,
		Header: fpHeader{
			DatiTrasmissione: fpDatiTrasmissione{
				IdTrasmittente:      fpIDFiscale{IdPaese: cedenteCountry, IdCodice: cedenteCode},
				ProgressivoInvio:    progressivoInvio(inv.InvoiceNumber),
				FormatoTrasmissione: fatturaPAVersion,
			},
			CedentePrestatore: fpParty{
				DatiAnagrafici: fpDatiAnagrafici{
					IdFiscaleIVA:  &fpIDFiscale{IdPaese: cedenteCountry, IdCodice: cedenteCode},
					CodiceFiscale: inv.Company.TaxInfo.TaxCode,
					Anagrafica:    fpAnagrafica{Denominazione: firstNonEmpty(inv.Company.LegalName, inv.Company.Name)},
					RegimeFiscale: regimeOrdinario,
				},
				Sede: fpAddress(inv.Company.Address),
			},
			CessionarioCommittente: cessionario,
		},
		Body: fpBody{
			DatiGenerali: fpDatiGenerali{
				DatiGeneraliDocumento: fpDocumento{
					TipoDocumento:          tipo,
					Divisa:                 inv.Currency.String(),
					Data:                   inv.IssueDate.Format(fatturaPADateLayout),
					Numero:                 inv.InvoiceNumber,
					ImportoTotaleDocumento: amount(inv.Totals.Total),
				},
			},
		},
	}
	fpRecipient(&doc.Header.DatiTrasmissione, inv.Customer)

	gen := &doc.Body.DatiGenerali.DatiGeneraliDocumento
	if inv.Retention != nil && inv.Totals.RetentionAmount.IsPositive() {
		gen.DatiRitenuta = &fpRitenuta{
			TipoRitenuta:     "RT01",
			ImportoRitenuta:  amount(inv.Totals.RetentionAmount),
			AliquotaRitenuta: amount(inv.Retention.Rate),
			CausalePagamento: "A",
		}
	}
	if inv.Totals.StampDutyAmount.IsPositive() {
		gen.DatiBollo = &fpBollo{BolloVirtuale: "SI", ImportoBollo: amount(inv.Totals.StampDutyAmount)}
	}
	if inv.SocialSecurityRate != nil && inv.Totals.SocialSecurityAmount.IsPositive() {
		rate := decimal.Zero
		if len(inv.Totals.VATGroups) > 0 {
			rate = inv.Totals.VATGroups[0].Rate
		}
		gen.DatiCassaPrevidenziale = &fpCassa{
			TipoCassa:              "TC22",
			AlCassa:                amount(*inv.SocialSecurityRate),
			ImportoContributoCassa: amount(inv.Totals.SocialSecurityAmount),
			AliquotaIVA:            amount(rate),
			Natura:                 natura(rate, inv.ReverseCharge),
		}
	}
	if inv.Notes != "" {
		gen.Causale = chunk(inv.Notes, 200)
	}
	if ref, ok := inv.Metadata[invoicing.MetaOriginalInvoiceNumber].(string); ok && ref != "" {
		doc.Body.DatiGenerali.DatiFattureCollegate = &fpDocCollegato{IdDocumento: ref}
	}

	withholding := gen.DatiRitenuta != nil
	for i, line := range inv.Lines {
		l := fpLinea{
			NumeroLinea:    i + 1,
			Descrizione:    line.Description,
			Quantita:       amount(line.Quantity),
			UnitaMisura:    line.Unit,
			PrezzoUnitario: amount(line.UnitPrice),
			PrezzoTotale:   amount(line.NetAmount()),
			AliquotaIVA:    amount(line.VATRate),
			Natura:         natura(line.VATRate, inv.ReverseCharge),
		}
		if line.ProductCode != "" {
			l.CodiceArticolo = &fpCodice{CodiceTipo: "INTERNO", CodiceValore: line.ProductCode}
		}
		if line.DiscountPercent.IsPositive() {
			l.ScontoMaggiorazione = &fpSconto{Tipo: "SC", Percentuale: amount(line.DiscountPercent)}
		}
		if withholding {
			l.Ritenuta = "SI"
		}
		doc.Body.DatiBeniServizi.DettaglioLinee = append(doc.Body.DatiBeniServizi.DettaglioLinee, l)
	}

	for _, g := range inv.Totals.VATGroups {
		r := fpRiepilogo{
			AliquotaIVA:       amount(g.Rate),
			Natura:            natura(g.Rate, inv.ReverseCharge),
			ImponibileImporto: amount(g.Taxable),
			Imposta:           amount(g.Tax),
		}
		switch {
		case inv.ReverseCharge:
			r.RiferimentoNormativo = "Inversione contabile art. 17 DPR 633/72"
		case inv.SplitPayment && g.Rate.IsPositive():
			r.EsigibilitaIVA = "S"
		case g.Rate.IsPositive():
			r.EsigibilitaIVA = "I"
		}
		doc.Body.DatiBeniServizi.DatiRiepilogo = append(doc.Body.DatiBeniServizi.DatiRiepilogo, r)
	}

	if mp, ok := modalitaPagamento[inv.PaymentInfo.Method]; ok {
		doc.Body.DatiPagamento = &fpDatiPagamento{
			CondizioniPagamento: "TP02",
			DettaglioPagamento: fpDettaglioPagamento{
				ModalitaPagamento:     mp,
				DataScadenzaPagamento: inv.DueDate().Format(fatturaPADateLayout),
				ImportoPagamento:      amount(inv.Totals.NetToPay),
				IstitutoFinanziario:   inv.PaymentInfo.BankName,
				IBAN:                  strings.ReplaceAll(inv.PaymentInfo.IBAN, " ", ""),
				BIC:                   inv.PaymentInfo.SwiftBIC,
			},
		}
	}

	return marshalDocument(invoicing.EInvoiceFormatFatturaPA, doc)
}

func fpCustomer(c invoicing.Customer) (fpParty, error) {
	party := fpParty{
		DatiAnagrafici: fpDatiAnagrafici{
			Anagrafica: fpAnagrafica{Denominazione: c.DisplayName()},
		},
		Sede: fpAddress(c.Address),
	}
	if c.TaxInfo != nil {
		if c.TaxInfo.VATNumber != "" {
			country, code := splitVAT(c.TaxInfo.VATNumber, c.Address.Country)
			party.DatiAnagrafici.IdFiscaleIVA = &fpIDFiscale{IdPaese: country, IdCodice: code}
		}
		party.DatiAnagrafici.CodiceFiscale = strings.ToUpper(c.TaxInfo.TaxCode)
	}
	if party.DatiAnagrafici.IdFiscaleIVA == nil && party.DatiAnagrafici.CodiceFiscale == "" {
		return fpParty{}, fmt.Errorf("customer %s has neither VAT number nor tax code", c.ID)
	}
	return party, nil
}

// fpRecipient routes the document: an SDI code when known, a PEC address
// otherwise, and the fixed foreign code for customers outside Italy.
func fpRecipient(dt *fpDatiTrasmissione, c invoicing.Customer) {
	dt.CodiceDestinatario = codiceDestinatarioPA
	if !strings.EqualFold(c.Address.Country, "IT") && c.Address.Country != "" {
		dt.CodiceDestinatario = codiceDestinatarioEU
		return
	}
	if c.TaxInfo == nil {
		return
	}
	if c.TaxInfo.SDICode != "" {
		dt.CodiceDestinatario = strings.ToUpper(c.TaxInfo.SDICode)
		return
	}
	dt.PECDestinatario = c.TaxInfo.PECEmail
}

func fpAddress(a invoicing.Address) fpSede {
	postal := a.PostalCode
	if !strings.EqualFold(a.Country, "IT") || postal == "" {
		postal = "00000"
	}
	return fpSede{
		Indirizzo: a.Street,
		CAP:       postal,
		Comune:    a.City,
		Provincia: strings.ToUpper(a.StateProvince),
		Nazione:   strings.ToUpper(a.Country),
	}
}

// natura classifies zero-rated amounts: N6.9 for reverse charge, N2.2 for
// other non-taxable operations
func natura(rate decimal.Decimal, reverseCharge bool) string {
	switch {
	case reverseCharge:
		return "N6.9"
	case rate.IsZero():
		return "N2.2"
	}
	return ""
}

// progressivoInvio derives the 5-character transmission id from the
// alphanumeric tail of the invoice number
func progressivoInvio(number string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(number) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 5 {
		s = s[len(s)-5:]
	}
	return s
}

func chunk(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return append(out, string(runes))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate implements invoicing.EInvoiceProvider
func (p *FatturaPAProvider) Validate(_ context.Context, data []byte) (invoicing.EInvoiceValidation, error) {
	var doc fpDecoded
	if err := xml.Unmarshal(data, &doc); err != nil {
		return invoicing.EInvoiceValidation{Errors: []string{"malformed XML: " + err.Error()}}, nil
	}

	v := &validation{}
	v.require(doc.XMLName.Local == "FatturaElettronica", "root element must be FatturaElettronica, got %s", doc.XMLName.Local)

	dt := doc.Header.DatiTrasmissione
	v.require(dt.FormatoTrasmissione == "FPR12" || dt.FormatoTrasmissione == "FPA12", "FormatoTrasmissione %q is not supported", dt.FormatoTrasmissione)
	v.require(len(dt.IdTrasmittente.IdPaese) == 2, "IdTrasmittente.IdPaese must be a 2-letter country code")
	v.require(dt.IdTrasmittente.IdCodice != "", "IdTrasmittente.IdCodice is required")
	v.require(dt.ProgressivoInvio != "" && len(dt.ProgressivoInvio) <= 10, "ProgressivoInvio must have 1 to 10 characters")
	codeLen := 7
	if dt.FormatoTrasmissione == "FPA12" {
		codeLen = 6
	}
	v.require(len(dt.CodiceDestinatario) == codeLen, "CodiceDestinatario must have %d characters", codeLen)

	v.require(doc.Header.CedentePrestatore.DatiAnagrafici.IdFiscaleIVA != nil, "CedentePrestatore.IdFiscaleIVA is required")
	v.require(doc.Header.CedentePrestatore.DatiAnagrafici.RegimeFiscale != "", "CedentePrestatore.RegimeFiscale is required")
	cc := doc.Header.CessionarioCommittente.DatiAnagrafici
	v.require(cc.IdFiscaleIVA != nil || cc.CodiceFiscale != "", "CessionarioCommittente needs IdFiscaleIVA or CodiceFiscale")
	v.require(cc.Anagrafica.Denominazione != "", "CessionarioCommittente.Denominazione is required")

	gen := doc.Body.DatiGenerali.DatiGeneraliDocumento
	v.require(len(gen.TipoDocumento) == 4 && strings.HasPrefix(gen.TipoDocumento, "TD"), "TipoDocumento %q is invalid", gen.TipoDocumento)
	v.require(len(gen.Divisa) == 3, "Divisa must be an ISO 4217 code")
	_, dateErr := time.Parse(fatturaPADateLayout, gen.Data)
	v.require(dateErr == nil, "Data %q is not a YYYY-MM-DD date", gen.Data)
	v.require(gen.Numero != "", "Numero is required")

	lines := doc.Body.DatiBeniServizi.DettaglioLinee
	v.require(len(lines) > 0, "at least one DettaglioLinee is required")
	for i, l := range lines {
		v.require(l.Descrizione != "", "DettaglioLinee[%d].Descrizione is required", i+1)
		parseAmount(v, fmt.Sprintf("DettaglioLinee[%d].PrezzoTotale", i+1), l.PrezzoTotale)
		rate := parseAmount(v, fmt.Sprintf("DettaglioLinee[%d].AliquotaIVA", i+1), l.AliquotaIVA)
		v.require(!rate.IsZero() || l.Natura != "", "DettaglioLinee[%d] with zero rate needs Natura", i+1)
	}

	summary := doc.Body.DatiBeniServizi.DatiRiepilogo
	v.require(len(summary) > 0, "at least one DatiRiepilogo is required")
	sum := decimal.Zero
	for i, r := range summary {
		sum = sum.Add(parseAmount(v, fmt.Sprintf("DatiRiepilogo[%d].ImponibileImporto", i+1), r.ImponibileImporto))
		sum = sum.Add(parseAmount(v, fmt.Sprintf("DatiRiepilogo[%d].Imposta", i+1), r.Imposta))
	}
	if gen.DatiBollo != nil {
		sum = sum.Add(parseAmount(v, "DatiBollo.ImportoBollo", gen.DatiBollo.ImportoBollo))
	}
	if gen.ImportoTotaleDocumento != "" {
		total := parseAmount(v, "ImportoTotaleDocumento", gen.ImportoTotaleDocumento)
		v.require(total.Equal(sum), "ImportoTotaleDocumento %s does not match the summary total %s", total.StringFixed(2), sum.StringFixed(2))
	}

	return v.result(), nil
}

var _ invoicing.EInvoiceProvider = (*FatturaPAProvider)(nil)
