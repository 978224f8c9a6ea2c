package ranking

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a display string for substring comparison:
// lower-case, NFD with combining marks removed, anything that is neither a
// word character nor whitespace dropped, outer whitespace trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lowered := strings.ToLower(s)

	// transform.Chain carries state, so it is built per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		decomposed = lowered
	}

	cleaned := strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, decomposed)

	return strings.TrimSpace(cleaned)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
