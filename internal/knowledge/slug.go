package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugMinWords = 3
	slugMaxWords = 8

	// Padding token when the input yields fewer than slugMinWords words.
	slugFiller = "note"

	// FallbackSlug is returned for empty or all-punctuation input.
	FallbackSlug = "untitled-note"
)

var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	norm.NFC,
)

// Slug derives a stable, filename-safe slug from free text. Purely numeric
// tokens are dropped so dates and years never end up embedded in filenames,
// which already carry a date prefix. Pure and deterministic.
func Slug(text string) string {
	folded, _, err := transform.String(asciiFold, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	words := make([]string, 0, slugMaxWords)
	for _, field := range fields {
		if isNumeric(field) {
			continue
		}
		words = append(words, field)
		if len(words) == slugMaxWords {
			break
		}
	}

	if len(words) == 0 {
		return FallbackSlug
	}
	for len(words) < slugMinWords {
		words = append(words, slugFiller)
	}
	return strings.Join(words, "-")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
