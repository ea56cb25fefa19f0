package invoicing

import (
	"errors"
	"testing"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func line(qty, price, rate string) InvoiceLine {
	return InvoiceLine{
		Description: "item",
		Quantity:    dec(qty),
		UnitPrice:   dec(price),
		VATRate:     dec(rate),
	}
}

func threeRateLines() []InvoiceLine {
	return []InvoiceLine{
		line("10", "100.00", "22"),
		line("5", "50.00", "10"),
		line("1", "20.00", "0"),
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s", want, got.String())
}

func TestInvoiceLine_Amounts(t *testing.T) {
	l := InvoiceLine{
		Quantity:        dec("3"),
		UnitPrice:       dec("19.99"),
		DiscountPercent: dec("10"),
		VATRate:         dec("22"),
	}
	assertDec(t, "53.97", l.NetAmount())
	assertDec(t, "11.87", l.VATAmount())
	assertDec(t, "65.84", l.GrossAmount())
}

func TestTaxCalculator_ThreeRates(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate(threeRateLines(), TaxOptions{})
	require.NoError(t, err)

	assertDec(t, "1270.00", b.Subtotal)
	assertDec(t, "245.00", b.TotalVAT)
	assertDec(t, "1515.00", b.Total)
	assertDec(t, "1515.00", b.NetToPay)
	assert.True(t, b.StampDutyAmount.IsZero())
	require.NoError(t, b.CheckInvariants())

	require.Len(t, b.VATGroups, 3)
	assertDec(t, "22", b.VATGroups[0].Rate)
	assertDec(t, "1000.00", b.VATGroups[0].Taxable)
	assertDec(t, "220.00", b.VATGroups[0].Tax)
	assertDec(t, "10", b.VATGroups[1].Rate)
	assertDec(t, "25.00", b.VATGroups[1].Tax)
	assertDec(t, "0", b.VATGroups[2].Rate)
	assertDec(t, "0", b.VATGroups[2].Tax)
}

func TestTaxCalculator_SplitPayment(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate(threeRateLines(), TaxOptions{SplitPayment: true})
	require.NoError(t, err)

	assertDec(t, "1270.00", b.Subtotal)
	assertDec(t, "0", b.TotalVAT)
	assertDec(t, "1270.00", b.Total)
	for _, g := range b.VATGroups {
		assert.True(t, g.Tax.IsZero(), "rate %s should carry no tax", g.Rate)
	}
	require.NoError(t, b.CheckInvariants())
}

func TestTaxCalculator_ReverseCharge(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate(threeRateLines(), TaxOptions{ReverseCharge: true})
	require.NoError(t, err)

	assertDec(t, "0", b.TotalVAT)
	assertDec(t, "1270.00", b.Total)
	assert.Len(t, b.VATGroups, 3)
}

func TestTaxCalculator_StampDuty(t *testing.T) {
	calc := NewTaxCalculator(nil)

	tests := []struct {
		name      string
		price     string
		stamp     bool
		wantStamp string
		wantTotal string
	}{
		{"below threshold", "50.00", true, "2.00", "52.00"},
		{"flag off", "50.00", false, "0", "50.00"},
		{"at threshold", "77.47", true, "0", "77.47"},
		{"above threshold", "100.00", true, "0", "100.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := calc.Calculate([]InvoiceLine{line("1", tt.price, "0")}, TaxOptions{StampDuty: tt.stamp})
			require.NoError(t, err)
			assertDec(t, tt.wantStamp, b.StampDutyAmount)
			assertDec(t, tt.wantTotal, b.Total)
			require.NoError(t, b.CheckInvariants())
		})
	}
}

func TestTaxCalculator_CustomStampDuty(t *testing.T) {
	calc := NewTaxCalculator(NewRateTable(WithStampDuty(dec("100"), dec("16"))))

	b, err := calc.Calculate([]InvoiceLine{line("1", "90", "0")}, TaxOptions{StampDuty: true})
	require.NoError(t, err)
	assertDec(t, "16", b.StampDutyAmount)
	assertDec(t, "106", b.Total)
}

func TestTaxCalculator_Retention(t *testing.T) {
	calc := NewTaxCalculator(nil)

	retention, err := calc.CalculateRetention(dec("1000"), dec("20"))
	require.NoError(t, err)
	assertDec(t, "200.00", retention)

	b, err := calc.Calculate([]InvoiceLine{line("10", "100", "22")}, TaxOptions{
		Retention: &RetentionInfo{Rate: dec("20"), Amount: retention, Reason: "professional"},
	})
	require.NoError(t, err)
	assertDec(t, "1220.00", b.Total)
	assertDec(t, "200.00", b.RetentionAmount)
	assertDec(t, "1020.00", b.NetToPay)
	require.NoError(t, b.CheckInvariants())
}

func TestTaxCalculator_RetentionLargerThanTotal(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate([]InvoiceLine{line("1", "10", "0")}, TaxOptions{
		Retention: &RetentionInfo{Rate: dec("20"), Amount: dec("15")},
	})
	require.NoError(t, err)
	assertDec(t, "-5", b.NetToPay)
}

func TestTaxCalculator_SocialSecurity(t *testing.T) {
	calc := NewTaxCalculator(nil)
	rate := dec("4")

	b, err := calc.Calculate(threeRateLines(), TaxOptions{SocialSecurityRate: &rate})
	require.NoError(t, err)

	assertDec(t, "50.80", b.SocialSecurityAmount)
	assertDec(t, "1320.80", b.Subtotal)
	assertDec(t, "1040.00", b.VATGroups[0].Taxable)
	assertDec(t, "260.00", b.VATGroups[1].Taxable)
	assertDec(t, "20.80", b.VATGroups[2].Taxable)
	assertDec(t, "254.80", b.TotalVAT)
	assertDec(t, "1575.60", b.Total)
	require.NoError(t, b.CheckInvariants())
}

func TestTaxCalculator_SocialSecurityRemainderGoesToLargestGroup(t *testing.T) {
	calc := NewTaxCalculator(nil)
	rate := dec("4")

	// 0.13*4% = 0.0052 per group rounds to 0.01 each, total 0.26*4% = 0.0104 -> 0.01
	lines := []InvoiceLine{line("1", "0.13", "22"), line("1", "0.13", "10")}
	b, err := calc.Calculate(lines, TaxOptions{SocialSecurityRate: &rate})
	require.NoError(t, err)

	assertDec(t, "0.01", b.SocialSecurityAmount)
	assertDec(t, "0.27", b.Subtotal)
	require.NoError(t, b.CheckInvariants())
}

func TestTaxCalculator_RoundsPerLineBeforeSumming(t *testing.T) {
	calc := NewTaxCalculator(nil)

	lines := []InvoiceLine{
		line("1", "0.333", "22"),
		line("1", "0.333", "22"),
		line("1", "0.333", "22"),
	}
	b, err := calc.Calculate(lines, TaxOptions{})
	require.NoError(t, err)

	// summing first would give 1.00
	assertDec(t, "0.99", b.Subtotal)
	assertDec(t, "0.22", b.TotalVAT)
	assertDec(t, "1.21", b.Total)
}

func TestTaxCalculator_GroupsEqualRatesWithDifferentScale(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate([]InvoiceLine{line("1", "10", "22"), line("1", "10", "22.00")}, TaxOptions{})
	require.NoError(t, err)
	require.Len(t, b.VATGroups, 1)
	assertDec(t, "20", b.VATGroups[0].Taxable)
}

func TestTaxCalculator_AllZeroRate(t *testing.T) {
	calc := NewTaxCalculator(nil)

	b, err := calc.Calculate([]InvoiceLine{line("2", "10", "0"), line("1", "5", "0")}, TaxOptions{})
	require.NoError(t, err)
	assert.True(t, b.TotalVAT.IsZero())
	assert.True(t, b.Total.Equal(b.Subtotal))
}

func TestTaxCalculator_Validation(t *testing.T) {
	calc := NewTaxCalculator(nil)
	badSS := dec("120")

	tests := []struct {
		name  string
		lines []InvoiceLine
		opts  TaxOptions
		code  string
	}{
		{"no lines", nil, TaxOptions{}, CodeInvalidInvoiceData},
		{"negative quantity", []InvoiceLine{line("-1", "10", "22")}, TaxOptions{}, CodeInvalidInvoiceData},
		{"negative price", []InvoiceLine{line("1", "-10", "22")}, TaxOptions{}, CodeInvalidInvoiceData},
		{"rate above 100", []InvoiceLine{line("1", "10", "101")}, TaxOptions{}, CodeInvalidInvoiceData},
		{"negative rate", []InvoiceLine{line("1", "10", "-1")}, TaxOptions{}, CodeInvalidInvoiceData},
		{"discount above 100", []InvoiceLine{{Quantity: dec("1"), UnitPrice: dec("1"), DiscountPercent: dec("150")}}, TaxOptions{}, CodeInvalidInvoiceData},
		{"social security out of range", []InvoiceLine{line("1", "10", "22")}, TaxOptions{SocialSecurityRate: &badSS}, CodeTaxCalculation},
		{"negative retention", []InvoiceLine{line("1", "10", "22")}, TaxOptions{Retention: &RetentionInfo{Amount: dec("-1")}}, CodeInvalidInvoiceData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Calculate(tt.lines, tt.opts)
			require.Error(t, err)
			var domainErr *shared.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tt.code, domainErr.Code)
		})
	}
}

func TestTaxCalculator_ErrNoLinesIsMatchable(t *testing.T) {
	_, err := NewTaxCalculator(nil).Calculate(nil, TaxOptions{})
	assert.True(t, errors.Is(err, ErrInvalidInvoiceData))
}

func TestTaxCalculator_Invariants(t *testing.T) {
	calc := NewTaxCalculator(nil)
	ss := dec("4")
	cases := [][]InvoiceLine{
		{line("7", "13.37", "22"), line("3", "0.99", "10"), line("11", "1.01", "4")},
		{line("1", "76.00", "0")},
		{line("0.5", "33.33", "22"), line("2.25", "8.88", "5")},
	}
	for i, lines := range cases {
		for _, opts := range []TaxOptions{
			{},
			{StampDuty: true},
			{SplitPayment: true},
			{SocialSecurityRate: &ss, Retention: &RetentionInfo{Rate: dec("20"), Amount: dec("10.00")}},
		} {
			b, err := calc.Calculate(lines, opts)
			require.NoError(t, err, "case %d", i)
			assert.NoError(t, b.CheckInvariants(), "case %d", i)
		}
	}
}

func TestRateTable(t *testing.T) {
	rates := NewRateTable()

	it, ok := rates.VATRates("it")
	require.True(t, ok)
	require.Len(t, it, 4)
	assertDec(t, "22", it[0])
	assertDec(t, "4", it[3])

	std, ok := rates.StandardVATRate("DE")
	require.True(t, ok)
	assertDec(t, "19", std)

	r, ok := rates.RetentionRate("agent")
	require.True(t, ok)
	assertDec(t, "23", r)

	s, ok := rates.SocialSecurityRate("inps")
	require.True(t, ok)
	assertDec(t, "4", s)

	_, ok = rates.VATRates("ZZ")
	assert.False(t, ok)
}
