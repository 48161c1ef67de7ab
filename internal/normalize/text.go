package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Email trims and lower-cases an email address.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Name collapses inner whitespace and trims a business or contact name.
func Name(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Fold lower-cases s and strips diacritics so "Prueba", "PRUÉBA" and
// "prueba" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Words splits a folded string into alphanumeric words.
func Words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
