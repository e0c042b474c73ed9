package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeTitle folds a title for case- and diacritic-insensitive
// comparison: combining marks stripped, uppercased, whitespace collapsed.
func normalizeTitle(value string) string {
	stripped, _, err := transform.String(diacriticStripper, value)
	if err != nil {
		stripped = value
	}
	return strings.Join(strings.Fields(strings.ToUpper(stripped)), " ")
}

// titlesEqual compares two titles under normalizeTitle.
func titlesEqual(a, b string) bool {
	return normalizeTitle(a) == normalizeTitle(b)
}
