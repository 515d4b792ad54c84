package conflict

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

const strippedPunctuation = `,.;:!?，。；：！？"'“”‘’`

// Normalize prepares text for comparison: it lowercases, folds full-width forms, and removes whitespace and common
// Latin and CJK punctuation.
func Normalize(text string) string {
	folded := fold(text)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, folded)
}

// fold lowercases text and maps full-width letters, digits and punctuation to their ASCII forms.
func fold(text string) string {
	return strings.ToLower(width.Fold.String(strings.TrimSpace(text)))
}
