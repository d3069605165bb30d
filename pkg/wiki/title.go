package wiki

import (
	"strings"
	"unicode"
)

// NormalizeTitle turns free text into a page title: surrounding whitespace is
// trimmed, the first letter of every word is upper-cased and runs of
// whitespace become a single underscore.
//
//	NormalizeTitle("  kevin   bacon ") == "Kevin_Bacon"
func NormalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevWord := false
	for _, r := range strings.TrimSpace(s) {
		word := isWordRune(r)
		if word && !prevWord {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevWord = word
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// isWordRune matches the ASCII word class [A-Za-z0-9_].
func isWordRune(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
