package i18n

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, language.Italian, Match("it"))
	assert.Equal(t, language.Italian, Match("it-CH"))
	assert.Equal(t, language.German, Match("de-AT"))
	assert.Equal(t, language.English, Match(""))
	assert.Equal(t, language.English, Match("not a tag"))
	assert.Equal(t, language.English, Match("ja"))
}

func TestTranslator_Translate(t *testing.T) {
	tr := NewTranslator()

	assert.Equal(t, "invoice ACME-2025-000001 from ACME",
		tr.Translate("en", "email.subject", "invoice", "ACME-2025-000001", "ACME"))
	assert.Equal(t, "Fattura ACME-2025-000001 da ACME",
		tr.Translate("it", "email.subject", "Fattura", "ACME-2025-000001", "ACME"))
	assert.Contains(t,
		tr.Translate("it", "email.body", "Cliente SPA", "ACME-2025-000001", "1.515,00 €", "09/02/2025"),
		"in allegato la fattura ACME-2025-000001 di 1.515,00 €, con scadenza il 09/02/2025")
	assert.Equal(t, "IVA", tr.Translate("es", "label.vat"))
	assert.Equal(t, "Invoice", tr.Translate("ja", "doc.invoice"))
	assert.Equal(t, "unknown.key", tr.Translate("it", "unknown.key"))
}

func TestCatalogIsComplete(t *testing.T) {
	for key, byLang := range messages {
		for _, tag := range supported {
			assert.NotEmpty(t, byLang[tag], "%s missing %s", key, tag)
		}
	}
	assert.Equal(t, []string{"en", "it", "de", "fr", "es"}, SupportedLanguages())
}

func TestFormatMoney(t *testing.T) {
	amount := decimal.RequireFromString("1515")

	en := FormatMoney("en", amount, "EUR")
	assert.True(t, strings.HasSuffix(en, "1,515.00"), en)
	assert.Contains(t, en, "€")

	it := FormatMoney("it", amount, "EUR")
	assert.True(t, strings.HasPrefix(it, "1.515,00\u00a0"), it)
	assert.Contains(t, it, "€")

	neg := FormatMoney("en", decimal.RequireFromString("-10.5"), "EUR")
	assert.True(t, strings.HasPrefix(neg, "-"), neg)
	assert.True(t, strings.HasSuffix(neg, "10.50"), neg)

	assert.True(t, strings.HasSuffix(FormatMoney("en", amount, "JPY"), "1,515"))
	assert.Equal(t, "1.515,00\u00a0XYZ", FormatMoney("it", amount, "XYZ"))
	assert.Equal(t, "-10,50\u00a0XYZ", FormatMoney("it", decimal.RequireFromString("-10.5"), "XYZ"))
}

func TestFormatNumberAndPercent(t *testing.T) {
	assert.Equal(t, "1,234.57", FormatNumber("en", decimal.RequireFromString("1234.567"), 2))
	assert.Equal(t, "1.234,57", FormatNumber("it", decimal.RequireFromString("1234.567"), 2))
	assert.Equal(t, "22%", FormatPercent("en", decimal.NewFromInt(22)))
	assert.Equal(t, "5,50%", FormatPercent("it", decimal.RequireFromString("5.5")))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "09/02/2025", FormatDate("it", d))
	assert.Equal(t, "09.02.2025", FormatDate("de", d))
	assert.Equal(t, "09 Feb 2025", FormatDate("en", d))
	assert.Empty(t, FormatDate("it", time.Time{}))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Partially Paid", Label("en", "partially_paid"))
	assert.Equal(t, "Bank Transfer", Label("it", "bank_transfer"))
}
