// Package identity canonicalizes and hashes contact identifiers so that every
// advertising platform receives byte-identical digests for the same person.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultCountryCode is the calling code prefixed to national numbers.
const DefaultCountryCode = "90"

var lower = cases.Lower(language.Und)

// NormalizeText trims surrounding whitespace and lowercases.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return lower.String(s)
}

// NormalizePhone keeps digits only and ensures the calling code prefix:
//
//	"905321234567" → unchanged
//	"05321234567"  → "905321234567"
//	"5321234567"   → "905321234567"
//
// Applying it twice yields the same result. Input without digits returns "".
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	default:
		return countryCode + digits
	}
}
