// Package phone normalizes destination addresses to the digit-only E.164
// form the messaging provider uses for wa_id.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize returns raw as E.164 digits without the leading plus. Numbers
// without a country prefix are read in defaultRegion. When the number cannot
// be parsed the non-digit characters are stripped instead.
func Normalize(raw, defaultRegion string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "00") {
		raw = "+" + raw[2:]
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err == nil && phonenumbers.IsPossibleNumber(num) {
		return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
	}
	return Digits(raw)
}

func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
