// Package textfold normalises text for accent- and case-insensitive matching.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips combining marks (á -> a, ñ -> n) and collapses
// runs of whitespace into a single space.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Key folds s and replaces spaces with underscores, producing identifiers
// such as "razon_social" from "Razón Social".
func Key(s string) string {
	return strings.ReplaceAll(Fold(s), " ", "_")
}
