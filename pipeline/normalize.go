package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps text to its canonical matching form. The same function is
// applied to document text, model-emitted quotes, and retrieval queries, so
// substring checks and token streams agree regardless of PDF formatting
// artifacts. Idempotent: Normalize(Normalize(s)) == Normalize(s).
//
// Steps, in order: NFC composition, typographic quote/dash folding, Unicode
// space folding, zero-width removal, lowercasing, whitespace collapse, trim.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '“' || r == '”':
			b.WriteByte('"')
		case r == '‘' || r == '’':
			b.WriteByte('\'')
		case r == '–' || r == '—':
			b.WriteByte('-')
		case r == '​' || r == '‌' || r == '‍' || r == '\uFEFF':
			// zero-width code points carry no visible text
		case unicode.Is(unicode.Zs, r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	s = strings.ToLower(b.String())

	// Fields splits on any whitespace run and drops empties, which collapses
	// and trims in one pass.
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize produces the retrieval token stream for a text: normalize, then
// split on runs of non-alphanumeric characters. Both the index and the
// queries go through this function so "TLS 1.2" and "tls 1 2" score the same.
func Tokenize(s string) []string {
	s = Normalize(s)
	if s == "" {
		return nil
	}
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// WordCount counts whitespace-separated words in raw text.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
