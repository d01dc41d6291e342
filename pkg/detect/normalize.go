package detect

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Zero-width and joiner runes commonly used to split keywords past
// regex detectors.
var zeroWidth = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // byte order mark
}

// Normalize applies NFKC normalization and strips zero-width runes.
// Fullwidth and other compatibility forms collapse to ASCII, which defeats
// the cheapest homoglyph evasions. All detection and redaction operates on
// the normalized text.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	if !strings.ContainsFunc(text, func(r rune) bool { return zeroWidth[r] }) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if zeroWidth[r] {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
