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
	ublInvoiceNamespace = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	ublCACNamespace     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	ublCBCNamespace     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	peppolCustomization = "urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0"
	peppolProfile       = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"
	ublDateLayout       = "2006-01-02"
)

type ublInvoice struct {
	XMLName              xml.Name             `xml:"Invoice"`
	Xmlns                string               `xml:"xmlns,attr"`
	XmlnsCAC             string               `xml:"xmlns:cac,attr"`
	XmlnsCBC             string               `xml:"xmlns:cbc,attr"`
	CustomizationID      string               `xml:"cbc:CustomizationID"`
	ProfileID            string               `xml:"cbc:ProfileID"`
	ID                   string               `xml:"cbc:ID"`
	IssueDate            string               `xml:"cbc:IssueDate"`
	DueDate              string               `xml:"cbc:DueDate,omitempty"`
	InvoiceTypeCode      string               `xml:"cbc:InvoiceTypeCode"`
	Note                 []string             `xml:"cbc:Note,omitempty"`
	DocumentCurrencyCode string               `xml:"cbc:DocumentCurrencyCode"`
	BuyerReference       string               `xml:"cbc:BuyerReference"`
	BillingReference     *ublBillingReference `xml:"cac:BillingReference,omitempty"`
	Supplier             ublPartyWrapper      `xml:"cac:AccountingSupplierParty"`
	Customer             ublPartyWrapper      `xml:"cac:AccountingCustomerParty"`
	PaymentMeans         *ublPaymentMeans     `xml:"cac:PaymentMeans,omitempty"`
	AllowanceCharges     []ublAllowanceCharge `xml:"cac:AllowanceCharge,omitempty"`
	TaxTotal             ublTaxTotal          `xml:"cac:TaxTotal"`
	LegalMonetaryTotal   ublMonetaryTotal     `xml:"cac:LegalMonetaryTotal"`
	Lines                []ublLine            `xml:"cac:InvoiceLine"`
}

type ublAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type ublBillingReference struct {
	InvoiceDocumentReference ublID `xml:"cac:InvoiceDocumentReference"`
}

type ublPartyWrapper struct {
	Party ublParty `xml:"cac:Party"`
}

type ublParty struct {
	EndpointID       *ublEndpoint        `xml:"cbc:EndpointID,omitempty"`
	PartyName        ublPartyName        `xml:"cac:PartyName"`
	PostalAddress    ublAddress          `xml:"cac:PostalAddress"`
	PartyTaxScheme   *ublPartyTaxScheme  `xml:"cac:PartyTaxScheme,omitempty"`
	PartyLegalEntity ublPartyLegalEntity `xml:"cac:PartyLegalEntity"`
	Contact          *ublContact         `xml:"cac:Contact,omitempty"`
}

type ublEndpoint struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type ublPartyName struct {
	Name string `xml:"cbc:Name"`
}

type ublAddress struct {
	StreetName       string     `xml:"cbc:StreetName,omitempty"`
	CityName         string     `xml:"cbc:CityName,omitempty"`
	PostalZone       string     `xml:"cbc:PostalZone,omitempty"`
	CountrySubentity string     `xml:"cbc:CountrySubentity,omitempty"`
	Country          ublCountry `xml:"cac:Country"`
}

type ublCountry struct {
	IdentificationCode string `xml:"cbc:IdentificationCode"`
}

type ublPartyTaxScheme struct {
	CompanyID string       `xml:"cbc:CompanyID"`
	TaxScheme ublTaxScheme `xml:"cac:TaxScheme"`
}

type ublTaxScheme struct {
	ID string `xml:"cbc:ID"`
}

type ublPartyLegalEntity struct {
	RegistrationName string `xml:"cbc:RegistrationName"`
	CompanyID        string `xml:"cbc:CompanyID,omitempty"`
}

type ublContact struct {
	Telephone      string `xml:"cbc:Telephone,omitempty"`
	ElectronicMail string `xml:"cbc:ElectronicMail,omitempty"`
}

type ublPaymentMeans struct {
	PaymentMeansCode      string               `xml:"cbc:PaymentMeansCode"`
	PaymentID             string               `xml:"cbc:PaymentID,omitempty"`
	PayeeFinancialAccount *ublFinancialAccount `xml:"cac:PayeeFinancialAccount,omitempty"`
}

type ublFinancialAccount struct {
	ID                         string `xml:"cbc:ID"`
	Name                       string `xml:"cbc:Name,omitempty"`
	FinancialInstitutionBranch *ublID `xml:"cac:FinancialInstitutionBranch,omitempty"`
}

type ublID struct {
	ID string `xml:"cbc:ID"`
}

type ublAllowanceCharge struct {
	ChargeIndicator       bool           `xml:"cbc:ChargeIndicator"`
	AllowanceChargeReason string         `xml:"cbc:AllowanceChargeReason"`
	Amount                ublAmount      `xml:"cbc:Amount"`
	TaxCategory           ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublTaxCategory struct {
	ID                     string       `xml:"cbc:ID"`
	Percent                string       `xml:"cbc:Percent"`
	TaxExemptionReasonCode string       `xml:"cbc:TaxExemptionReasonCode,omitempty"`
	TaxScheme              ublTaxScheme `xml:"cac:TaxScheme"`
}

type ublTaxTotal struct {
	TaxAmount    ublAmount        `xml:"cbc:TaxAmount"`
	TaxSubtotals []ublTaxSubtotal `xml:"cac:TaxSubtotal"`
}

type ublTaxSubtotal struct {
	TaxableAmount ublAmount      `xml:"cbc:TaxableAmount"`
	TaxAmount     ublAmount      `xml:"cbc:TaxAmount"`
	TaxCategory   ublTaxCategory `xml:"cac:TaxCategory"`
}

type ublMonetaryTotal struct {
	LineExtensionAmount ublAmount  `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount  ublAmount  `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount  ublAmount  `xml:"cbc:TaxInclusiveAmount"`
	ChargeTotalAmount   *ublAmount `xml:"cbc:ChargeTotalAmount,omitempty"`
	PrepaidAmount       *ublAmount `xml:"cbc:PrepaidAmount,omitempty"`
	PayableAmount       ublAmount  `xml:"cbc:PayableAmount"`
}

type ublLine struct {
	ID                  string    `xml:"cbc:ID"`
	InvoicedQuantity    ublQty    `xml:"cbc:InvoicedQuantity"`
	LineExtensionAmount ublAmount `xml:"cbc:LineExtensionAmount"`
	Item                ublItem   `xml:"cac:Item"`
	Price               ublPrice  `xml:"cac:Price"`
}

type ublQty struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type ublItem struct {
	Name                      string         `xml:"cbc:Name"`
	SellersItemIdentification *ublID         `xml:"cac:SellersItemIdentification,omitempty"`
	ClassifiedTaxCategory     ublTaxCategory `xml:"cac:ClassifiedTaxCategory"`
}

type ublPrice struct {
	PriceAmount ublAmount `xml:"cbc:PriceAmount"`
}

// ublDecoded reads a UBL invoice by local names only
type ublDecoded struct {
	XMLName              xml.Name
	CustomizationID      string           `xml:"CustomizationID"`
	ID                   string           `xml:"ID"`
	IssueDate            string           `xml:"IssueDate"`
	InvoiceTypeCode      string           `xml:"InvoiceTypeCode"`
	DocumentCurrencyCode string           `xml:"DocumentCurrencyCode"`
	Supplier             ublDecodedParty  `xml:"AccountingSupplierParty"`
	Customer             ublDecodedParty  `xml:"AccountingCustomerParty"`
	TaxAmount            string           `xml:"TaxTotal>TaxAmount"`
	Totals               ublDecodedTotals `xml:"LegalMonetaryTotal"`
	Lines                []ublDecodedLine `xml:"InvoiceLine"`
}

type ublDecodedParty struct {
	Name    string `xml:"Party>PartyLegalEntity>RegistrationName"`
	Country string `xml:"Party>PostalAddress>Country>IdentificationCode"`
}

type ublDecodedTotals struct {
	LineExtensionAmount string `xml:"LineExtensionAmount"`
	TaxExclusiveAmount  string `xml:"TaxExclusiveAmount"`
	TaxInclusiveAmount  string `xml:"TaxInclusiveAmount"`
	ChargeTotalAmount   string `xml:"ChargeTotalAmount"`
	PrepaidAmount       string `xml:"PrepaidAmount"`
	PayableAmount       string `xml:"PayableAmount"`
}

type ublDecodedLine struct {
	ID                  string `xml:"ID"`
	LineExtensionAmount string `xml:"LineExtensionAmount"`
	Name                string `xml:"Item>Name"`
}

var ublTypeCode = map[invoicing.InvoiceType]string{
	invoicing.InvoiceTypeInvoice:        "380",
	invoicing.InvoiceTypeCreditNote:     "381",
	invoicing.InvoiceTypeDebitNote:      "383",
	invoicing.InvoiceTypeAdvanceInvoice: "386",
}

// UNCL 4461 payment means codes
var ublPaymentMeansCode = map[invoicing.PaymentMethod]string{
	invoicing.PaymentMethodCash:         "10",
	invoicing.PaymentMethodCheck:        "20",
	invoicing.PaymentMethodBankTransfer: "30",
	invoicing.PaymentMethodRiBa:         "30",
	invoicing.PaymentMethodCreditCard:   "54",
	invoicing.PaymentMethodPayPal:       "68",
	invoicing.PaymentMethodStripe:       "68",
	invoicing.PaymentMethodSEPADirect:   "59",
	invoicing.PaymentMethodRID:          "49",
}

// Electronic address schemes for VAT-number endpoints
var endpointScheme = map[string]string{
	"IT": "0211",
	"DE": "9930",
	"FR": "9957",
	"ES": "9920",
	"BE": "9925",
	"NL": "9944",
	"AT": "9915",
	"GB": "9932",
}

var validTypeCodes = map[string]bool{"380": true, "381": true, "383": true, "386": true}

// PEPPOLProvider generates PEPPOL BIS Billing 3.0 invoices
type PEPPOLProvider struct{}

// NewPEPPOLProvider creates a new PEPPOLProvider
func NewPEPPOLProvider() *PEPPOLProvider {
	return &PEPPOLProvider{}
}

// Format implements invoicing.EInvoiceProvider
func (p *PEPPOLProvider) Format() invoicing.EInvoiceFormat {
	return invoicing.EInvoiceFormatPEPPOL
}

// Generate implements invoicing.EInvoiceProvider. Withholding tax is
// carried as a prepaid amount so PayableAmount equals the net to pay.
func (p *PEPPOLProvider) Generate(_ context.Context, inv *invoicing.Invoice) (*invoicing.EInvoiceDocument, error) {
	typeCode, ok := ublTypeCode[inv.Type]
	if !ok {
		return nil, fmt.Errorf("%s documents have no PEPPOL invoice type", inv.Type)
	}
	if inv.Company.Address.Country == "" || inv.Customer.Address.Country == "" {
		return nil, fmt.Errorf("seller and buyer country are required")
	}

	cur := inv.Currency.String()
	money := func(d decimal.Decimal) ublAmount { return ublAmount{CurrencyID: cur, Value: amount(d)} }

	doc := ublInvoice{
		Xmlns:                ublInvoiceNamespace,
		XmlnsCAC:             ublCACNamespace,
		XmlnsCBC:             ublCBCNamespace,
		CustomizationID:      peppolCustomization,
		ProfileID:            peppolProfile,
		ID:                   inv.InvoiceNumber,
		IssueDate:            inv.IssueDate.Format(ublDateLayout),
		DueDate:              inv.DueDate().Format(ublDateLayout),
		InvoiceTypeCode:      typeCode,
		DocumentCurrencyCode: cur,
		BuyerReference:       firstNonEmpty(inv.Customer.ID, inv.InvoiceNumber),
		Supplier:             ublPartyWrapper{Party: ublSupplier(inv.Company)},
		Customer:             ublPartyWrapper{Party: ublCustomer(inv.Customer)},
	}
	if inv.Notes != "" {
		doc.Note = []string{inv.Notes}
	}
	if ref, ok := inv.Metadata[invoicing.MetaOriginalInvoiceNumber].(string); ok && ref != "" {
		doc.BillingReference = &ublBillingReference{InvoiceDocumentReference: ublID{ID: ref}}
	}
	if code, ok := ublPaymentMeansCode[inv.PaymentInfo.Method]; ok {
		doc.PaymentMeans = &ublPaymentMeans{PaymentMeansCode: code, PaymentID: inv.InvoiceNumber}
		if iban := strings.ReplaceAll(inv.PaymentInfo.IBAN, " ", ""); iban != "" {
			account := &ublFinancialAccount{ID: iban, Name: inv.PaymentInfo.BankName}
			if inv.PaymentInfo.SwiftBIC != "" {
				account.FinancialInstitutionBranch = &ublID{ID: inv.PaymentInfo.SwiftBIC}
			}
			doc.PaymentMeans.PayeeFinancialAccount = account
		}
	}

	lineTotal := decimal.Zero
	for i, line := range inv.Lines {
		net := line.NetAmount()
		lineTotal = lineTotal.Add(net)
		// PEPPOL prices are net of line discounts
		price := line.UnitPrice
		if line.DiscountPercent.IsPositive() && line.Quantity.IsPositive() {
			price = net.Div(line.Quantity).Round(4)
		}
		item := ublItem{
			Name:                  line.Description,
			ClassifiedTaxCategory: taxCategory(line.VATRate, inv.SplitPayment, inv.ReverseCharge),
		}
		if line.ProductCode != "" {
			item.SellersItemIdentification = &ublID{ID: line.ProductCode}
		}
		doc.Lines = append(doc.Lines, ublLine{
			ID:                  fmt.Sprint(i + 1),
			InvoicedQuantity:    ublQty{UnitCode: unitCode(line.Unit), Value: line.Quantity.String()},
			LineExtensionAmount: money(net),
			Item:                item,
			Price:               ublPrice{PriceAmount: ublAmount{CurrencyID: cur, Value: price.String()}},
		})
	}

	charges := decimal.Zero
	if ss := inv.Totals.SocialSecurityAmount; ss.IsPositive() {
		rate := decimal.Zero
		if len(inv.Totals.VATGroups) > 0 {
			rate = inv.Totals.VATGroups[0].Rate
		}
		doc.AllowanceCharges = append(doc.AllowanceCharges, ublAllowanceCharge{
			ChargeIndicator:       true,
			AllowanceChargeReason: "Social security contribution",
			Amount:                money(ss),
			TaxCategory:           taxCategory(rate, inv.SplitPayment, inv.ReverseCharge),
		})
		charges = charges.Add(ss)
	}

	tax := ublTaxTotal{TaxAmount: money(inv.Totals.TotalVAT)}
	for _, g := range inv.Totals.VATGroups {
		tax.TaxSubtotals = append(tax.TaxSubtotals, ublTaxSubtotal{
			TaxableAmount: money(g.Taxable),
			TaxAmount:     money(g.Tax),
			TaxCategory:   taxCategory(g.Rate, inv.SplitPayment, inv.ReverseCharge),
		})
	}
	if stamp := inv.Totals.StampDutyAmount; stamp.IsPositive() {
		exempt := ublTaxCategory{ID: "E", Percent: "0.00", TaxExemptionReasonCode: "VATEX-EU-79-C", TaxScheme: ublTaxScheme{ID: "VAT"}}
		doc.AllowanceCharges = append(doc.AllowanceCharges, ublAllowanceCharge{
			ChargeIndicator:       true,
			AllowanceChargeReason: "Stamp duty",
			Amount:                money(stamp),
			TaxCategory:           exempt,
		})
		tax.TaxSubtotals = append(tax.TaxSubtotals, ublTaxSubtotal{
			TaxableAmount: money(stamp),
			TaxAmount:     money(decimal.Zero),
			TaxCategory:   exempt,
		})
		charges = charges.Add(stamp)
	}
	doc.TaxTotal = tax

	exclusive := lineTotal.Add(charges)
	totals := ublMonetaryTotal{
		LineExtensionAmount: money(lineTotal),
		TaxExclusiveAmount:  money(exclusive),
		TaxInclusiveAmount:  money(exclusive.Add(inv.Totals.TotalVAT)),
		PayableAmount:       money(inv.Totals.NetToPay),
	}
	if charges.IsPositive() {
		c := money(charges)
		totals.ChargeTotalAmount = &c
	}
	if r := inv.Totals.RetentionAmount; r.IsPositive() {
		prepaid := money(r)
		totals.PrepaidAmount = &prepaid
	}
	doc.LegalMonetaryTotal = totals

	return marshalDocument(invoicing.EInvoiceFormatPEPPOL, doc)
}

func ublSupplier(c invoicing.Company) ublParty {
	party := ublParty{
		PartyName:        ublPartyName{Name: c.Name},
		PostalAddress:    ublPostalAddress(c.Address),
		PartyLegalEntity: ublPartyLegalEntity{RegistrationName: firstNonEmpty(c.LegalName, c.Name), CompanyID: c.TaxInfo.TaxCode},
	}
	if c.TaxInfo.VATNumber != "" {
		country, code := splitVAT(c.TaxInfo.VATNumber, c.Address.Country)
		party.PartyTaxScheme = &ublPartyTaxScheme{CompanyID: country + code, TaxScheme: ublTaxScheme{ID: "VAT"}}
	}
	party.EndpointID = endpoint(c.TaxInfo.VATNumber, c.Address.Country, c.Email)
	if c.Email != "" || c.Phone != "" {
		party.Contact = &ublContact{Telephone: c.Phone, ElectronicMail: c.Email}
	}
	return party
}

func ublCustomer(c invoicing.Customer) ublParty {
	party := ublParty{
		PartyName:        ublPartyName{Name: c.Name},
		PostalAddress:    ublPostalAddress(c.Address),
		PartyLegalEntity: ublPartyLegalEntity{RegistrationName: c.DisplayName()},
	}
	vat := ""
	if c.TaxInfo != nil {
		vat = c.TaxInfo.VATNumber
		party.PartyLegalEntity.CompanyID = c.TaxInfo.TaxCode
	}
	if vat != "" {
		country, code := splitVAT(vat, c.Address.Country)
		party.PartyTaxScheme = &ublPartyTaxScheme{CompanyID: country + code, TaxScheme: ublTaxScheme{ID: "VAT"}}
	}
	party.EndpointID = endpoint(vat, c.Address.Country, c.Email)
	if c.Email != "" || c.Phone != "" {
		party.Contact = &ublContact{Telephone: c.Phone, ElectronicMail: c.Email}
	}
	return party
}

// endpoint prefers a VAT-based electronic address and falls back to email
func endpoint(vat, country, email string) *ublEndpoint {
	if vat != "" {
		c, code := splitVAT(vat, country)
		if scheme, ok := endpointScheme[c]; ok {
			return &ublEndpoint{SchemeID: scheme, Value: c + code}
		}
	}
	if email != "" {
		return &ublEndpoint{SchemeID: "EM", Value: email}
	}
	return nil
}

func ublPostalAddress(a invoicing.Address) ublAddress {
	return ublAddress{
		StreetName:       a.Street,
		CityName:         a.City,
		PostalZone:       a.PostalCode,
		CountrySubentity: a.StateProvince,
		Country:          ublCountry{IdentificationCode: strings.ToUpper(a.Country)},
	}
}

// taxCategory maps a rate to a UNCL 5305 category: AE reverse charge,
// B Italian split payment, Z zero rated, S standard
func taxCategory(rate decimal.Decimal, splitPayment, reverseCharge bool) ublTaxCategory {
	cat := ublTaxCategory{Percent: amount(rate), TaxScheme: ublTaxScheme{ID: "VAT"}}
	switch {
	case reverseCharge:
		cat.ID = "AE"
		cat.Percent = "0.00"
		cat.TaxExemptionReasonCode = "VATEX-EU-AE"
	case rate.IsZero():
		cat.ID = "Z"
	case splitPayment:
		cat.ID = "B"
	default:
		cat.ID = "S"
	}
	return cat
}

// unitCode maps free-text units to UN/ECE Recommendation 20 codes
func unitCode(unit string) string {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "h", "hr", "hour", "hours", "ora", "ore":
		return "HUR"
	case "d", "day", "days", "giorno", "giorni":
		return "DAY"
	case "month", "months", "mese", "mesi":
		return "MON"
	case "kg":
		return "KGM"
	}
	return "C62"
}

// Validate implements invoicing.EInvoiceProvider. It checks a subset of the
// EN 16931 business rules: mandatory fields and the monetary identities.
func (p *PEPPOLProvider) Validate(_ context.Context, data []byte) (invoicing.EInvoiceValidation, error) {
	var doc ublDecoded
	if err := xml.Unmarshal(data, &doc); err != nil {
		return invoicing.EInvoiceValidation{Errors: []string{"malformed XML: " + err.Error()}}, nil
	}

	v := &validation{}
	v.require(doc.XMLName.Local == "Invoice", "root element must be Invoice, got %s", doc.XMLName.Local)
	v.require(doc.CustomizationID != "", "BR-01: CustomizationID is required")
	v.require(doc.ID != "", "BR-02: invoice number is required")
	_, dateErr := time.Parse(ublDateLayout, doc.IssueDate)
	v.require(dateErr == nil, "BR-03: IssueDate %q is not a YYYY-MM-DD date", doc.IssueDate)
	v.require(validTypeCodes[doc.InvoiceTypeCode], "BR-04: InvoiceTypeCode %q is not supported", doc.InvoiceTypeCode)
	v.require(len(doc.DocumentCurrencyCode) == 3, "BR-05: DocumentCurrencyCode must be an ISO 4217 code")
	v.require(doc.Supplier.Name != "", "BR-06: seller name is required")
	v.require(doc.Customer.Name != "", "BR-07: buyer name is required")
	v.require(doc.Supplier.Country != "", "BR-09: seller country is required")
	v.require(doc.Customer.Country != "", "BR-11: buyer country is required")
	v.require(len(doc.Lines) > 0, "BR-16: at least one invoice line is required")

	lineSum := decimal.Zero
	for i, l := range doc.Lines {
		v.require(l.ID != "", "BR-21: line %d has no identifier", i+1)
		v.require(l.Name != "", "BR-25: line %d has no item name", i+1)
		lineSum = lineSum.Add(parseAmount(v, fmt.Sprintf("line %d LineExtensionAmount", i+1), l.LineExtensionAmount))
	}

	t := doc.Totals
	lineExt := parseAmount(v, "LineExtensionAmount", t.LineExtensionAmount)
	exclusive := parseAmount(v, "TaxExclusiveAmount", t.TaxExclusiveAmount)
	inclusive := parseAmount(v, "TaxInclusiveAmount", t.TaxInclusiveAmount)
	payable := parseAmount(v, "PayableAmount", t.PayableAmount)
	taxTotal := parseAmount(v, "TaxAmount", doc.TaxAmount)
	charges, prepaid := decimal.Zero, decimal.Zero
	if t.ChargeTotalAmount != "" {
		charges = parseAmount(v, "ChargeTotalAmount", t.ChargeTotalAmount)
	}
	if t.PrepaidAmount != "" {
		prepaid = parseAmount(v, "PrepaidAmount", t.PrepaidAmount)
	}

	v.require(lineExt.Equal(lineSum), "BR-CO-10: LineExtensionAmount %s differs from the line sum %s", amount(lineExt), amount(lineSum))
	v.require(exclusive.Equal(lineExt.Add(charges)), "BR-CO-13: TaxExclusiveAmount %s differs from lines plus charges", amount(exclusive))
	v.require(inclusive.Equal(exclusive.Add(taxTotal)), "BR-CO-15: TaxInclusiveAmount %s differs from TaxExclusiveAmount plus VAT", amount(inclusive))
	v.require(payable.Equal(inclusive.Sub(prepaid)), "BR-CO-16: PayableAmount %s differs from TaxInclusiveAmount minus PrepaidAmount", amount(payable))

	return v.result(), nil
}

var _ invoicing.EInvoiceProvider = (*PEPPOLProvider)(nil)
