// Package verify implements the wildcard-to-regex verify engine: a
// compiled matcher shared immutably across all per-segment tasks for one
// request.
package verify

import (
	"regexp"
	"strings"
)

// Engine is the unified match interface. Implementations must be safe for
// concurrent use by multiple goroutines without further synchronization.
type Engine interface {
	IsMatch(text string) bool
	// Find returns the byte offsets of the first match, or ok=false if
	// there is none.
	Find(text string) (start, end int, ok bool)
}

// RegexVerify is the default, and currently only, Engine implementation:
// a compiled case-insensitive, dotall regular expression translated from
// a wildcard pattern.
type RegexVerify struct {
	rx *regexp.Regexp
}

// CompileRegex compiles pat directly (already regex syntax) into a
// RegexVerify.
func CompileRegex(pat string) (*RegexVerify, error) {
	rx, err := regexp.Compile(pat)
	if err != nil {
		return nil, err
	}
	return &RegexVerify{rx: rx}, nil
}

// CompileWildcard translates wildcard into a case-insensitive, dotall
// regex and compiles it.
func CompileWildcard(wildcard string) (*RegexVerify, error) {
	return CompileRegex(WildcardToRegexCaseInsensitive(wildcard))
}

func (v *RegexVerify) IsMatch(text string) bool {
	return v.rx.MatchString(text)
}

func (v *RegexVerify) Find(text string) (start, end int, ok bool) {
	loc := v.rx.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

// WildcardToRegexCaseInsensitive translates a wildcard pattern ('*' any
// run, '?' any single codepoint) into a case-insensitive, dotall regex
// string, escaping every other regex metacharacter literally.
func WildcardToRegexCaseInsensitive(pattern string) string {
	var b strings.Builder
	b.WriteString("(?si)")
	for _, ch := range pattern {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			if strings.ContainsRune(`\.^$|()[]{}+*?`, ch) {
				b.WriteByte('\\')
			}
			b.WriteRune(ch)
		}
	}
	return b.String()
}
