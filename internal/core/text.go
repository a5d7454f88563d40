package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace (including no-break spaces), the ="..." wrapper
// Excel uses to keep leading zeros, and stray surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimFunc(s, unicode.IsSpace)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = s[1 : len(s)-1]
	}

	return strings.TrimSpace(s)
}

// FoldValue prepares a value for case, accent and whitespace insensitive
// comparison: "  Agro  Industría " and "agro industria" fold equal.
func FoldValue(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// NormalizeKey folds a column header. On top of FoldValue it treats
// underscores, hyphens, dots and slashes as spaces, so "sitio_web" and
// "Sitio Web" are the same key.
func NormalizeKey(s string) string {
	return FoldValue(strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '/':
			return ' '
		}
		return r
	}, s))
}
