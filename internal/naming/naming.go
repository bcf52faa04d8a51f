// Package naming derives display names and URL slugs from Go-style
// identifiers such as "RecentOrders" or "recent_orders".
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words splits an identifier into its words. Case changes, digits boundaries,
// underscores, dashes and spaces all separate words; acronyms stay together
// ("HTTPRequests" → ["HTTP", "Requests"]).
func Words(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && len(cur) > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsUpper(r) && unicode.IsLower(prev):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// Humanize turns an identifier into a title-cased, space-separated label.
func Humanize(s string) string {
	words := Words(s)
	title := cases.Title(language.English, cases.NoLower)
	for i, w := range words {
		words[i] = title.String(w)
	}
	return strings.Join(words, " ")
}

// Slug turns a name or identifier into a lower-case, dash-separated,
// URL-safe key.
func Slug(s string) string {
	words := Words(s)
	lower := cases.Lower(language.English)
	for i, w := range words {
		words[i] = lower.String(w)
	}
	return strings.Join(words, "-")
}
