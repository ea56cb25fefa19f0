// Package i18n localizes invoice documents: a message catalog for email
// and template labels, and locale-aware money, number and date formatting
// built on golang.org/x/text.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Supported languages. The first entry is the fallback.
var supported = []language.Tag{
	language.English,
	language.Italian,
	language.German,
	language.French,
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

// messages maps a key to its translation per language. Arguments follow
// fmt verbs and are positional.
var messages = map[string]map[language.Tag]string{
	"email.subject": {
		language.English: "%[1]s %[2]s from %[3]s",
		language.Italian: "%[1]s %[2]s da %[3]s",
		language.German:  "%[1]s %[2]s von %[3]s",
		language.French:  "%[1]s %[2]s de %[3]s",
		language.Spanish: "%[1]s %[2]s de %[3]s",
	},
	"email.body": {
		language.English: "Dear %[1]s,\n\nplease find attached invoice %[2]s for %[3]s, due on %[4]s.\n\nKind regards",
		language.Italian: "Gentile %[1]s,\n\nin allegato la fattura %[2]s di %[3]s, con scadenza il %[4]s.\n\nCordiali saluti",
		language.German:  "Sehr geehrte Damen und Herren (%[1]s),\n\nanbei erhalten Sie die Rechnung %[2]s über %[3]s, fällig am %[4]s.\n\nMit freundlichen Grüßen",
		language.French:  "Bonjour %[1]s,\n\nveuillez trouver ci-joint la facture %[2]s d'un montant de %[3]s, échéance le %[4]s.\n\nCordialement",
		language.Spanish: "Estimado/a %[1]s,\n\nadjuntamos la factura %[2]s por %[3]s, con vencimiento el %[4]s.\n\nSaludos cordiales",
	},

	"doc.invoice":         {language.English: "Invoice", language.Italian: "Fattura", language.German: "Rechnung", language.French: "Facture", language.Spanish: "Factura"},
	"doc.credit_note":     {language.English: "Credit note", language.Italian: "Nota di credito", language.German: "Gutschrift", language.French: "Avoir", language.Spanish: "Nota de crédito"},
	"doc.debit_note":      {language.English: "Debit note", language.Italian: "Nota di debito", language.German: "Lastschrift", language.French: "Note de débit", language.Spanish: "Nota de débito"},
	"doc.proforma":        {language.English: "Proforma invoice", language.Italian: "Fattura proforma", language.German: "Proformarechnung", language.French: "Facture pro forma", language.Spanish: "Factura proforma"},
	"doc.receipt":         {language.English: "Receipt", language.Italian: "Ricevuta", language.German: "Quittung", language.French: "Reçu", language.Spanish: "Recibo"},
	"doc.advance_invoice": {language.English: "Advance invoice", language.Italian: "Fattura di acconto", language.German: "Anzahlungsrechnung", language.French: "Facture d'acompte", language.Spanish: "Factura de anticipo"},

	"label.number":          {language.English: "Number", language.Italian: "Numero", language.German: "Nummer", language.French: "Numéro", language.Spanish: "Número"},
	"label.issue_date":      {language.English: "Issue date", language.Italian: "Data", language.German: "Rechnungsdatum", language.French: "Date", language.Spanish: "Fecha"},
	"label.due_date":        {language.English: "Due date", language.Italian: "Scadenza", language.German: "Fällig am", language.French: "Échéance", language.Spanish: "Vencimiento"},
	"label.bill_to":         {language.English: "Bill to", language.Italian: "Cliente", language.German: "Rechnungsempfänger", language.French: "Facturé à", language.Spanish: "Cliente"},
	"label.description":     {language.English: "Description", language.Italian: "Descrizione", language.German: "Beschreibung", language.French: "Désignation", language.Spanish: "Descripción"},
	"label.quantity":        {language.English: "Qty", language.Italian: "Q.tà", language.German: "Menge", language.French: "Qté", language.Spanish: "Cant."},
	"label.unit_price":      {language.English: "Unit price", language.Italian: "Prezzo", language.German: "Einzelpreis", language.French: "Prix unitaire", language.Spanish: "Precio"},
	"label.discount":        {language.English: "Disc.", language.Italian: "Sconto", language.German: "Rabatt", language.French: "Remise", language.Spanish: "Dto."},
	"label.vat":             {language.English: "VAT", language.Italian: "IVA", language.German: "USt.", language.French: "TVA", language.Spanish: "IVA"},
	"label.amount":          {language.English: "Amount", language.Italian: "Importo", language.German: "Betrag", language.French: "Montant", language.Spanish: "Importe"},
	"label.subtotal":        {language.English: "Subtotal", language.Italian: "Imponibile", language.German: "Zwischensumme", language.French: "Total HT", language.Spanish: "Base imponible"},
	"label.total":           {language.English: "Total", language.Italian: "Totale", language.German: "Gesamtbetrag", language.French: "Total TTC", language.Spanish: "Total"},
	"label.retention":       {language.English: "Withholding tax", language.Italian: "Ritenuta d'acconto", language.German: "Quellensteuer", language.French: "Retenue à la source", language.Spanish: "Retención"},
	"label.social_security": {language.English: "Social security", language.Italian: "Cassa previdenza", language.German: "Sozialversicherung", language.French: "Sécurité sociale", language.Spanish: "Seguridad social"},
	"label.stamp_duty":      {language.English: "Stamp duty", language.Italian: "Bollo", language.German: "Stempelsteuer", language.French: "Droit de timbre", language.Spanish: "Timbre"},
	"label.net_to_pay":      {language.English: "Amount due", language.Italian: "Netto a pagare", language.German: "Zahlbetrag", language.French: "Net à payer", language.Spanish: "Total a pagar"},
	"label.payment":         {language.English: "Payment", language.Italian: "Pagamento", language.German: "Zahlung", language.French: "Paiement", language.Spanish: "Pago"},
	"label.vat_number":      {language.English: "VAT no.", language.Italian: "P.IVA", language.German: "USt-IdNr.", language.French: "N° TVA", language.Spanish: "NIF-IVA"},
	"note.split_payment":    {language.English: "Split payment: VAT paid by the customer to the tax authority.", language.Italian: "Scissione dei pagamenti ai sensi dell'art. 17-ter DPR 633/72.", language.German: "Split-Payment: Die Umsatzsteuer wird vom Kunden abgeführt.", language.French: "Autoliquidation partielle : TVA versée par le client.", language.Spanish: "Pago dividido: el IVA lo ingresa el cliente."},
	"note.reverse_charge":   {language.English: "Reverse charge: VAT to be accounted for by the recipient.", language.Italian: "Inversione contabile (reverse charge).", language.German: "Steuerschuldnerschaft des Leistungsempfängers.", language.French: "Autoliquidation : TVA due par le preneur.", language.Spanish: "Inversión del sujeto pasivo."},
}

// Catalog is the compiled message catalog
var Catalog catalog.Catalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(supported[0]))
	for key, byLang := range messages {
		for tag, msg := range byLang {
			if err := b.SetString(tag, key, msg); err != nil {
				panic("i18n: " + key + ": " + err.Error())
			}
		}
	}
	return b
}

// Match returns the best supported language for lang. Unknown or empty
// input yields English.
func Match(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// SupportedLanguages lists the language codes with translations
func SupportedLanguages() []string {
	out := make([]string, len(supported))
	for i, t := range supported {
		out[i] = t.String()
	}
	return out
}

// Translator implements invoicing.Translator on the catalog
type Translator struct{}

// NewTranslator creates a Translator
func NewTranslator() *Translator {
	return &Translator{}
}

// Printer returns a message printer for lang
func (t *Translator) Printer(lang string) *message.Printer {
	return message.NewPrinter(Match(lang), message.Catalog(Catalog))
}

// Translate formats the message registered under key. Unknown keys are
// returned as-is.
func (t *Translator) Translate(lang, key string, args ...any) string {
	if _, ok := messages[key]; !ok {
		return key
	}
	return t.Printer(lang).Sprintf(key, args...)
}
