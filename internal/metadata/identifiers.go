package metadata

import "strings"

// unpunctuate keeps digits and the X check character, upper-cased.
func unpunctuate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// FormatIsbn returns the canonical unpunctuated form of an ISBN-10 or
// ISBN-13, or "" when the value does not have a valid ISBN length.
func FormatIsbn(isbn string) string {
	v := unpunctuate(isbn)
	if len(v) != 10 && len(v) != 13 {
		return ""
	}
	return v
}

// FormatIssn returns the canonical unpunctuated form of an ISSN, or "" when
// the value is not eight characters long once punctuation is removed.
func FormatIssn(issn string) string {
	v := unpunctuate(issn)
	if len(v) != 8 {
		return ""
	}
	return v
}
