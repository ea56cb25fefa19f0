package vies

import (
	"regexp"
	"strings"
)

// national VAT number layouts, without the country prefix
var formats = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U\d{8}$`),
	"BE": regexp.MustCompile(`^[01]\d{9}$`),
	"BG": regexp.MustCompile(`^\d{9,10}$`),
	"CY": regexp.MustCompile(`^\d{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^\d{8,10}$`),
	"DE": regexp.MustCompile(`^\d{9}$`),
	"DK": regexp.MustCompile(`^\d{8}$`),
	"EE": regexp.MustCompile(`^\d{9}$`),
	"EL": regexp.MustCompile(`^\d{9}$`),
	"ES": regexp.MustCompile(`^[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^\d{8}$`),
	"FR": regexp.MustCompile(`^[A-HJ-NP-Z0-9]{2}\d{9}$`),
	"HR": regexp.MustCompile(`^\d{11}$`),
	"HU": regexp.MustCompile(`^\d{8}$`),
	"IE": regexp.MustCompile(`^(\d{7}[A-W][A-I]?|\d[A-Z+*]\d{5}[A-W])$`),
	"IT": regexp.MustCompile(`^\d{11}$`),
	"LT": regexp.MustCompile(`^(\d{9}|\d{12})$`),
	"LU": regexp.MustCompile(`^\d{8}$`),
	"LV": regexp.MustCompile(`^\d{11}$`),
	"MT": regexp.MustCompile(`^\d{8}$`),
	"NL": regexp.MustCompile(`^\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^\d{10}$`),
	"PT": regexp.MustCompile(`^\d{9}$`),
	"RO": regexp.MustCompile(`^\d{2,10}$`),
	"SE": regexp.MustCompile(`^\d{10}01$`),
	"SI": regexp.MustCompile(`^\d{8}$`),
	"SK": regexp.MustCompile(`^\d{10}$`),
	"XI": regexp.MustCompile(`^(\d{9}|\d{12}|GD\d{3}|HA\d{3})$`),
	"GB": regexp.MustCompile(`^(\d{9}|\d{12}|GD\d{3}|HA\d{3})$`),
	"CH": regexp.MustCompile(`^E\d{9}(MWST|TVA|IVA)?$`),
	"NO": regexp.MustCompile(`^\d{9}(MVA)?$`),
}

// checksums run after the layout matched
var checksums = map[string]func(string) bool{
	"IT": italianChecksum,
	"DE": germanChecksum,
}

// registry lists the countries VIES answers for; GB and the EFTA states
// are format-checked only
var registry = map[string]bool{
	"AT": true, "BE": true, "BG": true, "CY": true, "CZ": true, "DE": true,
	"DK": true, "EE": true, "EL": true, "ES": true, "FI": true, "FR": true,
	"HR": true, "HU": true, "IE": true, "IT": true, "LT": true, "LU": true,
	"LV": true, "MT": true, "NL": true, "PL": true, "PT": true, "RO": true,
	"SE": true, "SI": true, "SK": true, "XI": true,
}

// Normalize uppercases a VAT number and drops separators. Greece's ISO
// prefix GR is rewritten to the EL used by VIES.
func Normalize(vat string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(vat) {
		switch r {
		case ' ', '.', '-', '/', '\t':
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if strings.HasPrefix(out, "GR") {
		out = "EL" + out[2:]
	}
	return out
}

// Split separates the country prefix from the national number
func Split(vat string) (country, number string, ok bool) {
	if len(vat) < 4 {
		return "", "", false
	}
	country, number = vat[:2], vat[2:]
	if country[0] < 'A' || country[0] > 'Z' || country[1] < 'A' || country[1] > 'Z' {
		return "", "", false
	}
	return country, number, true
}

// checkFormat returns an empty reason when number fits the country's layout
func checkFormat(country, number string) string {
	re, ok := formats[country]
	if !ok {
		return "unsupported country " + country
	}
	if !re.MatchString(number) {
		return "malformed number for " + country
	}
	if sum, ok := checksums[country]; ok && !sum(number) {
		return "check digit mismatch"
	}
	return ""
}

// italianChecksum validates a partita IVA: Luhn over eleven digits and a
// non-zero registration number.
func italianChecksum(n string) bool {
	if n[:7] == "0000000" {
		return false
	}
	sum := 0
	for i := 0; i < 10; i++ {
		d := int(n[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10-sum%10)%10 == int(n[10]-'0')
}

// germanChecksum is ISO 7064 MOD 11,10 over the first eight digits
func germanChecksum(n string) bool {
	if n[0] == '0' {
		return false
	}
	product := 10
	for i := 0; i < 8; i++ {
		sum := (int(n[i]-'0') + product) % 10
		if sum == 0 {
			sum = 10
		}
		product = (2 * sum) % 11
	}
	check := 11 - product
	if check == 10 {
		check = 0
	}
	return check == int(n[8]-'0')
}
