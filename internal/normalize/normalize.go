// Package normalize implements the text normalization pipeline shared by
// trigram extraction, segment writing, and verify-time candidate matching.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lowerCaser = cases.Lower(language.Und)

// Normalize lowercases s, applies NFKC composition, then strips combining
// marks in the U+0300-U+036F block. The result is in NFD form (the mark
// stripping pass decomposes before filtering and does not recompose
// afterward), matching the original normalizer's behavior exactly.
func Normalize(s string) string {
	lower := lowerCaser.String(s)
	nfkc := norm.NFKC.String(lower)
	return stripAccents(nfkc)
}

func stripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if isCombiningMark(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isCombiningMark reports whether r falls in the combining diacritical
// marks block U+0300-U+036F. This mirrors the original's simplified
// detector rather than the full Unicode Mn category.
func isCombiningMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
}
