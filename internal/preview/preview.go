// Package preview builds UTF-8-safe, centered-highlight snippets from a
// stored document's field text.
package preview

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cascad/grepzilla/internal/segment"
)

// Options configures Build.
type Options struct {
	// PreferredFields lists field names in priority order; the first one
	// present (and, when a needle is given, containing it) wins.
	PreferredFields []string
	// MaxLen is the target output window, in codepoints, not bytes.
	MaxLen int
	// HighlightNeedle, if non-empty, is searched for case-insensitively
	// and bracketed with '[' ']' in the output. Empty means plain
	// truncation.
	HighlightNeedle string
}

// Build selects a field from doc per Options, then either brackets the
// first case-insensitive occurrence of HighlightNeedle (with a centered
// context window) or truncates the field to MaxLen codepoints.
func Build(doc *segment.StoredDoc, opts Options) string {
	text, start, end, matched := pickField(doc, opts.PreferredFields, opts.HighlightNeedle)
	if text == "" {
		return ""
	}
	if matched {
		return snippetWithHighlight(text, start, end, opts.MaxLen)
	}
	return truncateCharsWithEllipsis(text, opts.MaxLen)
}

// pickField implements the field-selection order from the component
// design: first preferred field containing the needle; else first
// preferred field with any content; else any field. When a needle match
// is found, its byte offsets within the returned text are also returned
// so callers do not need to re-search.
func pickField(doc *segment.StoredDoc, preferred []string, needle string) (text string, start, end int, matched bool) {
	if needle != "" {
		for _, name := range preferred {
			if t, ok := doc.Get(name); ok && t != "" {
				if s, e, found := findNeedleWithFallback(t, needle); found {
					return t, s, e, true
				}
			}
		}
	}
	for _, name := range preferred {
		if t, ok := doc.Get(name); ok && t != "" {
			return t, 0, 0, false
		}
	}
	for _, fv := range doc.Fields {
		if fv.Text != "" {
			return fv.Text, 0, 0, false
		}
	}
	return "", 0, 0, false
}

// findNeedleWithFallback locates needle in text case-insensitively. If
// not found verbatim, it progressively drops trailing codepoints from
// needle (one at a time) until either a match is found or the remaining
// needle has fewer than 3 codepoints, at which point it gives up.
func findNeedleWithFallback(text, needle string) (start, end int, ok bool) {
	runes := []rune(needle)
	for len(runes) >= 3 {
		candidate := string(runes)
		if s, e, found := findSubstrCI(text, candidate); found {
			return s, e, true
		}
		runes = runes[:len(runes)-1]
	}
	return 0, 0, false
}

// findSubstrCI performs a case-insensitive, UTF-8-safe substring search,
// returning byte offsets into the original (not lowercased) haystack.
func findSubstrCI(haystack, needle string) (start, end int, ok bool) {
	if needle == "" {
		return 0, 0, false
	}
	hLow := strings.ToLower(haystack)
	nLow := strings.ToLower(needle)

	startLowByte := strings.Index(hLow, nLow)
	if startLowByte < 0 {
		return 0, 0, false
	}

	lowByteOfChar, _ := indexChars(hLow)
	origByteOfChar, origTotalChars := indexChars(haystack)
	needleLenChars := utf8.RuneCountInString(nLow)

	startChar := byteToCharIdx(lowByteOfChar, startLowByte)
	endChar := startChar + needleLenChars
	if endChar > origTotalChars {
		return 0, 0, false
	}

	return origByteOfChar[startChar], origByteOfChar[endChar], true
}

// snippetWithHighlight builds a centered window around [mStartB, mEndB),
// bracketing the match and emitting an ellipsis on either truncated side.
func snippetWithHighlight(s string, mStartB, mEndB, maxChars int) string {
	if maxChars <= 0 || s == "" {
		return ""
	}
	byteOfChar, totalChars := indexChars(s)

	mStartC := byteToCharIdx(byteOfChar, mStartB)
	mEndC := byteToCharIdx(byteOfChar, mEndB)
	matchLenC := mEndC - mStartC
	if matchLenC < 0 {
		matchLenC = 0
	}

	budget := maxChars - (matchLenC + 2)
	if budget < 0 {
		budget = 0
	}
	ctx := budget / 2

	fromC := mStartC - ctx
	if fromC < 0 {
		fromC = 0
	}
	toC := mEndC + ctx
	if toC > totalChars {
		toC = totalChars
	}

	fromB, toB := byteOfChar[fromC], byteOfChar[toC]

	var b strings.Builder
	if fromC > 0 {
		b.WriteRune('…')
	}
	b.WriteString(s[fromB:mStartB])
	b.WriteByte('[')
	b.WriteString(s[mStartB:mEndB])
	b.WriteByte(']')
	b.WriteString(s[mEndB:toB])
	if toC < totalChars {
		b.WriteRune('…')
	}

	return ensureMaxChars(b.String(), maxChars+4)
}

func truncateCharsWithEllipsis(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	byteOfChar, totalChars := indexChars(s)
	if totalChars <= maxChars {
		return s
	}
	endB := byteOfChar[maxChars]
	return s[:endB] + "…"
}

// indexChars returns, for each codepoint index 0..N, the byte offset at
// which that codepoint begins, plus a trailing sentinel entry equal to
// len(s); and the total codepoint count N.
func indexChars(s string) (byteOfChar []int, totalChars int) {
	byteOfChar = make([]int, 0, len(s)+1)
	for i := range s {
		byteOfChar = append(byteOfChar, i)
	}
	byteOfChar = append(byteOfChar, len(s))
	return byteOfChar, len(byteOfChar) - 1
}

// byteToCharIdx maps a byte offset back to the nearest codepoint index at
// or before it.
func byteToCharIdx(byteOfChar []int, byteIdx int) int {
	i := sort.SearchInts(byteOfChar, byteIdx)
	if i < len(byteOfChar) && byteOfChar[i] == byteIdx {
		return i
	}
	if i == 0 {
		return 0
	}
	return i - 1
}

// ensureMaxChars caps s at maxChars codepoints, appending an ellipsis if
// anything was cut.
func ensureMaxChars(s string, maxChars int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxChars {
			b.WriteRune('…')
			return b.String()
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
