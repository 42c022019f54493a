// Package gram implements trigram extraction and wildcard-to-required-
// grams reduction over normalized text.
package gram

import (
	"errors"

	"github.com/cascad/grepzilla/internal/normalize"
)

// ErrPatternTooWeak is returned when a wildcard pattern has no maximal
// run of three or more consecutive literal (non-wildcard) characters
// to derive a required trigram from.
var ErrPatternTooWeak = errors.New("pattern too weak; need >=3 consecutive literal chars")

// Key is the on-disk, on-index trigram key: the first three bytes of a
// 3-codepoint window's UTF-8 encoding. For single-byte (ASCII) scripts
// this is exact; for multi-byte scripts distinct 3-codepoint windows can
// share a Key (see the O3 decision in DESIGN.md) — prefilter false
// positives from this collision are
// caught by the verify stage.
type Key [3]byte

// KeyOf derives the index key for a trigram string. ok is false when the
// trigram's UTF-8 encoding is shorter than three bytes, in which case the
// caller must ignore this trigram rather than index or query it.
func KeyOf(trigram string) (key Key, ok bool) {
	if len(trigram) < 3 {
		return Key{}, false
	}
	copy(key[:], trigram[:3])
	return key, true
}

// Trigrams returns every 3-codepoint window of s, in order. Duplicates
// are preserved; callers that build posting lists are responsible for
// deduplication.
func Trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// RequiredGrams normalizes pattern, then scans it for maximal runs of
// literal (non-'*', non-'?') characters of length >= 3 codepoints,
// emitting the trigrams of each such run. Returns ErrPatternTooWeak if no
// such run exists anywhere in the pattern.
func RequiredGrams(pattern string) ([]string, error) {
	normalized := normalize.Normalize(pattern)

	var out []string
	var buf []rune
	flush := func() {
		if len(buf) >= 3 {
			out = append(out, Trigrams(string(buf))...)
		}
		buf = buf[:0]
	}
	for _, ch := range normalized {
		if ch == '*' || ch == '?' {
			flush()
			continue
		}
		buf = append(buf, ch)
	}
	flush()

	if len(out) == 0 {
		return nil, ErrPatternTooWeak
	}
	return out, nil
}

// LongestLiteralRun returns the longest maximal run of literal
// (non-'*', non-'?') characters in pattern, after normalization. Used
// to pick a highlight needle for preview building when the caller has
// no more specific candidate.
func LongestLiteralRun(pattern string) string {
	normalized := normalize.Normalize(pattern)

	var best, buf []rune
	flush := func() {
		if len(buf) > len(best) {
			best = append(best[:0:0], buf...)
		}
		buf = buf[:0]
	}
	for _, ch := range normalized {
		if ch == '*' || ch == '?' {
			flush()
			continue
		}
		buf = append(buf, ch)
	}
	flush()
	return string(best)
}
