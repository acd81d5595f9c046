// Package organizer assigns output names to scanned images and copies
// them into the output tree.
package organizer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const noDate = "NODATE"

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold strips diacritics and keeps only letters and digits, so a name
// component is safe inside the underscore-separated output filename.
func Fold(s string) string {
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// nameParts splits a photographer name on spaces and hyphens, so
// hyphenated given names contribute their own initials.
func nameParts(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
}

// Initials reduces a multi-part photographer name to its initials.
// Single-part names are folded and used whole.
func Initials(name string) string {
	parts := nameParts(name)
	if len(parts) < 2 {
		return Fold(name)
	}
	var b strings.Builder
	for _, p := range parts {
		folded := []rune(Fold(p))
		if len(folded) == 0 {
			continue
		}
		b.WriteString(strings.ToUpper(string(folded[0])))
	}
	return b.String()
}

// padWidth returns the zero-pad width for n items, never below min.
func padWidth(n, min int) int {
	w := len(fmt.Sprintf("%d", n))
	if w < min {
		w = min
	}
	return w
}
