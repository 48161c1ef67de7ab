// Package normalize canonicalizes raw lead fields into comparable forms.
package normalize

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnparseablePhone is returned by ParsePhone for input that cannot be
// mapped onto a mobile number.
var ErrUnparseablePhone = eris.New("normalize: unparseable phone")

// Chilean mobile numbering: country code 56, mobile prefix 9, 8-digit body.
const (
	CountryCode  = "56"
	MobilePrefix = "9"
	BodyLength   = 8

	// FullPrefix is the country code followed by the mobile prefix.
	FullPrefix = CountryCode + MobilePrefix
	// PhoneLength is the total digit count of a normalized phone.
	PhoneLength = len(FullPrefix) + BodyLength
)

// Phone canonicalizes a raw phone string into country-prefixed digits
// ("569XXXXXXXX"). It returns "" when the input cannot be mapped onto a
// mobile number. Phone is idempotent.
func Phone(raw string) string {
	digits := Digits(raw)

	switch {
	case len(digits) == BodyLength+1 && strings.HasPrefix(digits, MobilePrefix):
		digits = CountryCode + digits
	case len(digits) == BodyLength:
		digits = FullPrefix + digits
	}

	if len(digits) != PhoneLength || !strings.HasPrefix(digits, FullPrefix) {
		return ""
	}
	return digits
}

// ParsePhone is Phone with an error for unrecoverable input.
func ParsePhone(raw string) (string, error) {
	if p := Phone(raw); p != "" {
		return p, nil
	}
	return "", eris.Wrapf(ErrUnparseablePhone, "%q", raw)
}

// Body returns the subscriber digits of a normalized phone, or "" when the
// phone is not normalized.
func Body(normalized string) string {
	if len(normalized) != PhoneLength || !strings.HasPrefix(normalized, FullPrefix) {
		return ""
	}
	return normalized[len(FullPrefix):]
}

// Display formats a normalized phone as "+56 9 XXXX XXXX".
func Display(normalized string) string {
	body := Body(normalized)
	if body == "" {
		return normalized
	}
	return "+" + CountryCode + " " + MobilePrefix + " " + body[:4] + " " + body[4:]
}

// Digits strips every non-digit character.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
