// Package anchor locates keywords in a page's character stream and turns
// their boxes into write positions.
package anchor

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// normalizer folds the characters that commonly differ between a keyword
// as typed and as extracted.
var normalizer = runes.Map(func(r rune) rune {
	switch r {
	case '：': // fullwidth colon
		return ':'
	case '　': // ideographic space
		return ' '
	case '\r', '\n':
		return ' '
	}
	return r
})

// Normalize folds fullwidth colons and ideographic spaces, turns line
// breaks into spaces and trims surrounding whitespace.
func Normalize(s string) string {
	out, _, err := transform.String(normalizer, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}
