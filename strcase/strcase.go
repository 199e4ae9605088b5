// Package strcase converts identifiers between common casing conventions.
package strcase

import (
	"strings"
	"unicode"
)

// Snake converts s to snake_case, splitting on case transitions and turning every
// non-alphanumeric rune (leading ones included) into an underscore. Digits are not
// split from adjacent letters.
func Snake(s string) string {
	return strings.ToLower(words(s))
}

// ScreamingSnake converts s to SCREAMING_SNAKE_CASE.
func ScreamingSnake(s string) string {
	return strings.ToUpper(words(s))
}

// words rewrites s into underscore-separated words without changing letter case,
// e.g. "FooBar-bazID" -> "Foo_Bar_baz_ID".
func words(s string) string {
	var b strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			b.WriteByte('_')
			continue
		}

		if i > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				// fooBar -> foo_Bar
				b.WriteByte('_')
			case unicode.IsUpper(prev) && unicode.IsUpper(r) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				// HTTPServer -> HTTP_Server
				b.WriteByte('_')
			}
		}

		b.WriteRune(r)
	}

	return b.String()
}
